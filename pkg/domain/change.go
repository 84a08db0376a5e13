package domain

import "time"

// ChangeKind is the kind of filesystem change.
type ChangeKind string

const (
	ChangeAdd    ChangeKind = "add"
	ChangeModify ChangeKind = "modify"
	ChangeDelete ChangeKind = "delete"
)

// ChangeEvent is a single observed filesystem change, routed to one synchronizer.
type ChangeEvent struct {
	Kind           ChangeKind `json:"kind"`
	Path           string     `json:"path"`
	Timestamp      time.Time  `json:"timestamp"`
	SynchronizerID string     `json:"synchronizer_id"`
}

// ChangeBatch is the coalesced set of events for one (synchronizer, path) key,
// delivered once the debounce window has elapsed.
type ChangeBatch struct {
	SynchronizerID string
	Path           string
	Events         []ChangeEvent
}

// Last returns the most recent event of the batch.
func (b ChangeBatch) Last() ChangeEvent {
	if len(b.Events) == 0 {
		return ChangeEvent{SynchronizerID: b.SynchronizerID, Path: b.Path}
	}
	return b.Events[len(b.Events)-1]
}

// Strategy names how a synchronizer propagates changes to its targets.
type Strategy string

const (
	StrategyCascade Strategy = "cascade"
	StrategyCopy    Strategy = "copy"
	StrategyMerge   Strategy = "merge"
	StrategyCompat  Strategy = "compat"
)

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyCascade, StrategyCopy, StrategyMerge, StrategyCompat:
		return true
	}
	return false
}

// Synchronizer maps watched path globs to target platforms.
type Synchronizer struct {
	ID         string   `json:"id" yaml:"id"`
	WatchPaths []string `json:"watchPaths" yaml:"watchPaths"`
	Targets    []string `json:"targets" yaml:"targets"`
	Strategy   Strategy `json:"strategy" yaml:"strategy"`

	// Dest is the directory inside each target platform that receives copied files.
	Dest string `json:"dest,omitempty" yaml:"dest,omitempty"`
}
