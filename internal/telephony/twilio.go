package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// TwilioVoiceForm captures the subset of Twilio voice webhook fields the
// router needs. Twilio posts application/x-www-form-urlencoded by default.
// Ref: https://www.twilio.com/docs/voice/twiml
//
// Keep it minimal and provider-adapter-only. Routing decisions are not made
// here.

type TwilioVoiceForm struct {
	CallSid     string
	AccountSid  string
	From        string
	To          string
	Direction   string
	CallStatus  string
	CallerName  string
	FromCountry string

	// SpeechResult carries the transcript of a <Gather input="speech"> turn.
	// Empty on the initial inbound webhook.
	SpeechResult string
	// Confidence is Twilio's transcription confidence as sent, "0.0".."1.0".
	Confidence string
	// Digits is the DTMF input of a <Gather input="dtmf"> turn.
	Digits string
}

func ParseTwilioVoice(r *http.Request) (TwilioVoiceForm, error) {
	if err := r.ParseForm(); err != nil {
		return TwilioVoiceForm{}, err
	}
	f := TwilioVoiceForm{
		CallSid:      r.PostFormValue("CallSid"),
		AccountSid:   r.PostFormValue("AccountSid"),
		From:         normalizePhone(r.PostFormValue("From")),
		To:           normalizePhone(r.PostFormValue("To")),
		Direction:    r.PostFormValue("Direction"),
		CallStatus:   r.PostFormValue("CallStatus"),
		CallerName:   r.PostFormValue("CallerName"),
		FromCountry:  r.PostFormValue("FromCountry"),
		SpeechResult: r.PostFormValue("SpeechResult"),
		Confidence:   r.PostFormValue("Confidence"),
		Digits:       r.PostFormValue("Digits"),
	}
	if f.CallSid == "" {
		return TwilioVoiceForm{}, errors.New("telephony: CallSid is required")
	}
	return f, nil
}

func normalizePhone(s string) string {
	s = strings.TrimSpace(s)
	// Twilio sometimes sends "anonymous" or empty; keep as-is.
	return s
}

// ToInboundEvent converts the webhook form into the provider-agnostic event
// the router consumes.
func (f TwilioVoiceForm) ToInboundEvent(occurredAt time.Time) InboundEvent {
	raw, _ := json.Marshal(f)
	utterance := f.SpeechResult
	if utterance == "" && f.Digits != "" {
		utterance = digitsToUtterance(f.Digits)
	}
	return InboundEvent{
		ProviderCallID: f.CallSid,
		From:           f.From,
		To:             f.To,
		Utterance:      utterance,
		OccurredAt:     occurredAt,
		RawPayload:     string(raw),
	}
}

// digitsToUtterance maps classic IVR menu digits onto analyzable text so
// DTMF-only callers still reach intent classification.
func digitsToUtterance(digits string) string {
	switch digits {
	case "1":
		return "sales"
	case "2":
		return "billing question"
	case "3":
		return "technical support"
	case "0":
		return "speak to an agent"
	default:
		return ""
	}
}

// TwilioTransport drives call legs through Twilio's REST API. Webhook-driven
// verbs (answer, transfer) are expressed as TwiML by the HTTP layer; the
// transport only covers the out-of-band operations escalation needs.
//
// Dial outcomes arrive asynchronously via status callbacks, so DialLeg
// registers a waiter keyed by the leg ID and blocks on it. The leg ID rides
// on the StatusCallback URL and comes back on every callback.
type TwilioTransport struct {
	accountSID  string
	authToken   string
	callerID    string
	baseURL     string
	webhookBase string
	httpc       *http.Client

	mu      sync.Mutex
	waiters map[string]chan bool
	// legSIDs maps leg IDs to the provider SID of the outbound call so
	// CancelLeg can address the real resource.
	legSIDs map[string]string
}

// NewTwilioTransport builds the transport. webhookBase is the public base URL
// Twilio calls back, e.g. "https://voice.example.com".
func NewTwilioTransport(accountSID, authToken, callerID, webhookBase string) *TwilioTransport {
	return &TwilioTransport{
		accountSID:  accountSID,
		authToken:   authToken,
		callerID:    callerID,
		baseURL:     "https://api.twilio.com/2010-04-01",
		webhookBase: strings.TrimRight(webhookBase, "/"),
		httpc:       &http.Client{Timeout: 10 * time.Second},
		waiters:     map[string]chan bool{},
		legSIDs:     map[string]string{},
	}
}

func (t *TwilioTransport) Name() string { return "twilio" }

func (t *TwilioTransport) HealthCheck(ctx context.Context) error {
	if t.accountSID == "" || t.authToken == "" {
		return errors.New("telephony: twilio credentials not configured")
	}
	return nil
}

func (t *TwilioTransport) PlaceOrAnswer(ctx context.Context, callID string) error {
	// Inbound calls are answered implicitly by returning TwiML from the
	// webhook; nothing to do out-of-band.
	return nil
}

func (t *TwilioTransport) Transfer(ctx context.Context, callID, target string) error {
	form := url.Values{}
	form.Set("Url", t.connectURL(target))
	_, err := t.post(ctx, "/Accounts/"+t.accountSID+"/Calls/"+callID+".json", form)
	return err
}

func (t *TwilioTransport) DialLeg(ctx context.Context, callID, target string) (LegResult, error) {
	legID := callID + ":" + target
	ch := make(chan bool, 1)

	t.mu.Lock()
	t.waiters[legID] = ch
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.waiters, legID)
		t.mu.Unlock()
	}()

	form := url.Values{}
	form.Set("To", target)
	form.Set("From", t.callerID)
	form.Set("Url", t.connectURL(target))
	form.Set("StatusCallback", t.statusURL(legID))
	form.Set("StatusCallbackMethod", http.MethodPost)
	form["StatusCallbackEvent"] = []string{"answered", "completed"}

	body, err := t.post(ctx, "/Accounts/"+t.accountSID+"/Calls.json", form)
	if err != nil {
		return LegResult{}, err
	}
	var created struct {
		Sid string `json:"sid"`
	}
	if err := json.Unmarshal(body, &created); err != nil || created.Sid == "" {
		return LegResult{}, errors.New("telephony: create call response has no sid")
	}
	t.mu.Lock()
	t.legSIDs[legID] = created.Sid
	t.mu.Unlock()

	select {
	case answered := <-ch:
		if answered {
			// An answered leg is never canceled; drop its SID mapping.
			t.mu.Lock()
			delete(t.legSIDs, legID)
			t.mu.Unlock()
		}
		return LegResult{LegID: legID, Answered: answered}, nil
	case <-ctx.Done():
		return LegResult{LegID: legID, Answered: false}, nil
	}
}

func (t *TwilioTransport) CancelLeg(ctx context.Context, legID string) error {
	t.mu.Lock()
	sid, ok := t.legSIDs[legID]
	delete(t.legSIDs, legID)
	t.mu.Unlock()
	if !ok {
		return errors.New("telephony: unknown leg " + legID)
	}
	form := url.Values{}
	form.Set("Status", "canceled")
	_, err := t.post(ctx, "/Accounts/"+t.accountSID+"/Calls/"+sid+".json", form)
	return err
}

// LegStatus delivers the status-callback verdict for an in-flight leg. The
// webhook handler calls this when Twilio reports "in-progress" (answered) or
// a terminal failure state.
func (t *TwilioTransport) LegStatus(legID string, answered bool) {
	t.mu.Lock()
	ch, ok := t.waiters[legID]
	t.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- answered:
	default:
	}
}

func (t *TwilioTransport) post(ctx context.Context, path string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(t.accountSID, t.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, errors.New("telephony: twilio API returned " + resp.Status)
	}
	return body, nil
}

// connectURL serves the TwiML that bridges an answered outbound leg to the
// target. Served by our own connect webhook.
func (t *TwilioTransport) connectURL(target string) string {
	return t.webhookBase + "/webhooks/twilio/connect?target=" + url.QueryEscape(target)
}

func (t *TwilioTransport) statusURL(legID string) string {
	return t.webhookBase + "/webhooks/twilio/status?LegId=" + url.QueryEscape(legID)
}
