package telephony

import (
	"context"
	"time"
)

// Transport is the telephony collaborator contract. The routing core is a
// decision engine: it never talks to a provider SDK directly, it instructs
// the transport layer through this interface.
//
// Rules:
// - No provider SDK calls outside telephony adapters.
// - Keep request/response types provider-agnostic.
type Transport interface {
	Name() string
	HealthCheck(ctx context.Context) error

	// PlaceOrAnswer answers (inbound) or places (outbound) the call leg.
	PlaceOrAnswer(ctx context.Context, callID string) error

	// Transfer connects the call to a target (E.164 number or sip: URI).
	Transfer(ctx context.Context, callID, target string) error

	// DialLeg starts a new leg toward target and blocks until the leg is
	// answered, fails, or ctx is done. Used by escalation ring groups.
	DialLeg(ctx context.Context, callID, target string) (LegResult, error)

	// CancelLeg tears down an in-flight leg, e.g. the losing legs of a
	// simultaneous ring once one leg answers.
	CancelLeg(ctx context.Context, legID string) error
}

// LegResult reports the outcome of a dialed leg.
type LegResult struct {
	LegID    string `json:"leg_id"`
	Answered bool   `json:"answered"`
}

// InboundEvent is a call-lifecycle or input event delivered by the transport
// layer. The router consumes these as trigger input; it does not transcribe
// audio; Utterance arrives already normalized from the transcription
// collaborator.
type InboundEvent struct {
	ProviderCallID string `json:"provider_call_id"`

	// From and To are E.164 where possible.
	From string `json:"from"`
	To   string `json:"to"`

	// Utterance is the normalized caller input for this turn (speech
	// transcript or DTMF-mapped text). Empty on the initial call event.
	Utterance string `json:"utterance,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`

	// RawPayload is optional for debugging/audit; store as JSON string.
	RawPayload string `json:"raw_payload,omitempty"`
}
