// Package audit defines the append-only event boundary the ledger emits to
// after every state-changing operation. Storage of the trail is an external
// concern; the default sink writes structured log lines.
package audit

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event is one audit record. OldData/NewData carry snapshots of the mutated
// entity before and after the operation.
type Event struct {
	LoanID      uuid.UUID   `json:"loan_id"`
	Action      string      `json:"action"`
	Description string      `json:"description"`
	OldData     interface{} `json:"old_data,omitempty"`
	NewData     interface{} `json:"new_data,omitempty"`
	Actor       string      `json:"actor,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
}

// Sink accepts audit events. Implementations must not mutate the event.
type Sink interface {
	Record(event Event)
}

// ZapSink logs audit events as structured JSON.
type ZapSink struct {
	log *zap.Logger
}

func NewZapSink(log *zap.Logger) *ZapSink {
	return &ZapSink{log: log}
}

func (s *ZapSink) Record(event Event) {
	s.log.Info("audit",
		zap.String("loan_id", event.LoanID.String()),
		zap.String("action", event.Action),
		zap.String("description", event.Description),
		zap.String("actor", event.Actor),
		zap.Time("timestamp", event.Timestamp),
		zap.Any("old_data", event.OldData),
		zap.Any("new_data", event.NewData),
	)
}

// NopSink discards events; used in tests.
type NopSink struct{}

func (NopSink) Record(Event) {}
