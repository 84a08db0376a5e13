package http

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	maxEventIDLen = 128
	maxActionLen  = 64
	maxReasonLen  = 512
	maxDataKeys   = 256

	defaultReason = "critical patch"
)

// FieldError reports why one request field was rejected.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %q: %s", e.Field, e.Reason)
}

// Validate checks a webhook body. The id and action end up in dedup keys, logs
// and metrics labels, so both must be short tokens; the payload is bounded by
// its number of keys.
func (r *HookRequest) Validate() error {
	var errs []error
	if r.ID != "" {
		if err := checkToken("id", r.ID, maxEventIDLen); err != nil {
			errs = append(errs, err)
		}
	}
	if r.Action == "" {
		errs = append(errs, &FieldError{Field: "action", Reason: "is required"})
	} else if err := checkToken("action", r.Action, maxActionLen); err != nil {
		errs = append(errs, err)
	}
	if len(r.Data) > maxDataKeys {
		errs = append(errs, &FieldError{
			Field:  "data",
			Reason: fmt.Sprintf("has %d keys, limit is %d", len(r.Data), maxDataKeys),
		})
	}
	return errors.Join(errs...)
}

// Normalize folds the free-text reason onto a single line without control
// characters and fills in the default.
func (r *CriticalRequest) Normalize() error {
	if len(r.Reason) > maxReasonLen {
		return &FieldError{Field: "reason", Reason: fmt.Sprintf("exceeds %d bytes", maxReasonLen)}
	}
	if !utf8.ValidString(r.Reason) {
		return &FieldError{Field: "reason", Reason: "is not valid UTF-8"}
	}
	words := strings.FieldsFunc(r.Reason, func(c rune) bool {
		return unicode.IsSpace(c) || unicode.IsControl(c)
	})
	r.Reason = strings.Join(words, " ")
	if r.Reason == "" {
		r.Reason = defaultReason
	}
	return nil
}

func checkToken(field, value string, limit int) error {
	if len(value) > limit {
		return &FieldError{Field: field, Reason: fmt.Sprintf("exceeds %d bytes", limit)}
	}
	for _, c := range value {
		if c > unicode.MaxASCII || !(unicode.IsLetter(c) || unicode.IsDigit(c) || strings.ContainsRune("-_.:", c)) {
			return &FieldError{Field: field, Reason: fmt.Sprintf("contains %q, only letters, digits and -_.: are allowed", c)}
		}
	}
	return nil
}
