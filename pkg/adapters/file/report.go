package file

import (
	"encoding/json"
	"fmt"

	"github.com/aretw0/weave/pkg/domain"
)

// WriteReport flushes the shutdown report as indented JSON.
func WriteReport(path string, report domain.ShutdownReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal shutdown report: %w", err)
	}
	return WriteAtomic(path, data)
}
