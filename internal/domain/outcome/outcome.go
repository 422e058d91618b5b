// Package outcome provides the recorded result of a sync attempt.
package outcome

import (
	"encoding/json"
	"time"

	"github.com/jbctechsolutions/listingsync/internal/domain/record"
)

// Status is the result classification of one sync attempt.
type Status string

const (
	StatusCreated   Status = "created"
	StatusUpdated   Status = "updated"
	StatusUnchanged Status = "unchanged"
	StatusError     Status = "error"
)

// Direction tells whether an attempt pulled from or pushed to the external API.
type Direction string

const (
	DirectionPull Direction = "pull"
	DirectionPush Direction = "push"
)

// Outcome is the immutable record of one import or push attempt. A newer
// outcome for the same record supersedes it.
type Outcome struct {
	ID         string            `json:"id"`                    // Unique attempt ID
	RecordID   record.RecordID   `json:"record_id,omitempty"`   // Local record, empty when never resolved
	EntityType record.EntityType `json:"entity_type"`           // listing or agent
	ExternalID string            `json:"external_id,omitempty"` // Identifier in the external API
	Direction  Direction         `json:"direction"`             // pull or push
	Status     Status            `json:"status"`                // Result classification
	Message    string            `json:"message,omitempty"`     // Human-readable detail
	Warnings   []string          `json:"warnings,omitempty"`    // Non-fatal anomalies
	Changed    []string          `json:"changed,omitempty"`     // Field keys written by this attempt
	Timestamp  time.Time         `json:"timestamp"`             // UTC time the attempt ended
	RawPayload json.RawMessage   `json:"raw_payload,omitempty"` // Snapshot of the external payload
}

// Failed reports whether the attempt ended in error.
func (o Outcome) Failed() bool {
	return o.Status == StatusError
}

// Key returns the status-store key for the outcome: the record id when known,
// otherwise the entity and external id.
func (o Outcome) Key() string {
	if o.RecordID != "" {
		return RecordKey(o.RecordID)
	}
	return ExternalKey(o.EntityType, o.ExternalID)
}

// RecordKey returns the status-store key for a local record.
func RecordKey(id record.RecordID) string {
	return "record:" + string(id)
}

// ExternalKey returns the status-store key for an external record that has no local counterpart.
func ExternalKey(entity record.EntityType, externalID string) string {
	return "external:" + string(entity) + ":" + externalID
}

// Summary aggregates the outcomes of a bulk import.
type Summary struct {
	Pages     int    `json:"pages"`
	Created   int    `json:"created"`
	Updated   int    `json:"updated"`
	Unchanged int    `json:"unchanged"`
	Failed    int    `json:"failed"`
	Fatal     string `json:"fatal,omitempty"` // Set when page iteration stopped early
}

// Add counts one outcome.
func (s *Summary) Add(o Outcome) {
	switch o.Status {
	case StatusCreated:
		s.Created++
	case StatusUpdated:
		s.Updated++
	case StatusUnchanged:
		s.Unchanged++
	case StatusError:
		s.Failed++
	}
}

// Total returns the number of counted outcomes.
func (s Summary) Total() int {
	return s.Created + s.Updated + s.Unchanged + s.Failed
}
