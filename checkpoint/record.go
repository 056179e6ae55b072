// Package checkpoint persists durable, human-legible progress records that
// survive compaction and process restarts. Records are written through a
// pluggable Store; the engine mirrors each saved record as a small
// Foundation-tier marker in the conversation so the checkpoint's existence
// is visible in ordering without its full body entering the budget.
package checkpoint

import (
	"fmt"
	"time"
)

// Decision is one row of a record's key-decisions table.
type Decision struct {
	Topic  string `json:"topic"`
	Choice string `json:"choice"`
}

// Record is a durable snapshot of session progress. Upserts replace the
// whole record by key; partial merges are never performed — the caller
// supplies the complete record.
type Record struct {
	// Key identifies the record within the checkpoint store, e.g.
	// "current plan". The store key space may be shared across sessions.
	Key string `json:"key"`

	Goal              string     `json:"goal,omitempty"`
	Completed         []string   `json:"completed,omitempty"`
	Current           string     `json:"current,omitempty"`
	Pending           []string   `json:"pending,omitempty"`
	Decisions         []Decision `json:"decisions,omitempty"`
	ModifiedResources []string   `json:"modified_resources,omitempty"`
	Notes             string     `json:"notes,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks that the record can be stored.
func (r *Record) Validate() error {
	if r.Key == "" {
		return fmt.Errorf("checkpoint record: key is required")
	}
	return nil
}

// Marker returns the short reference body placed in the conversation when
// the record is saved. Its cost is the cost of the reference, not of the
// full record.
func (r *Record) Marker() string {
	return fmt.Sprintf("[checkpoint saved: %s]", r.Key)
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	c := *r
	c.Completed = append([]string(nil), r.Completed...)
	c.Pending = append([]string(nil), r.Pending...)
	c.Decisions = append([]Decision(nil), r.Decisions...)
	c.ModifiedResources = append([]string(nil), r.ModifiedResources...)
	return &c
}
