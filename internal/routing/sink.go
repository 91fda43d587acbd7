package routing

import (
	"context"

	"callrouter-platform/internal/escalation"
	"callrouter-platform/internal/ledger"
)

// LedgerSink forwards escalation state transitions to the routing ledger.
// It satisfies escalation.EventSink and never blocks the escalation run.
type LedgerSink struct {
	rec Recorder
}

func NewLedgerSink(rec Recorder) *LedgerSink { return &LedgerSink{rec: rec} }

func (s *LedgerSink) EscalationTransition(ctx context.Context, e escalation.Escalation) {
	if s.rec == nil {
		return
	}
	s.rec.Record(ledger.Entry{
		TenantID:     e.TenantID,
		CallID:       e.CallID,
		Kind:         ledger.KindEscalation,
		Reason:       e.Reason,
		EscalationID: e.ID,
		Strategy:     string(e.Strategy),
		Status:       string(e.Status),
		Attempt:      e.Attempts,
	})
}
