package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"callrouter-platform/internal/routing"
	"callrouter-platform/internal/telephony"
	"callrouter-platform/internal/tenant"

	"github.com/gin-gonic/gin"
)

// VoiceWebhook handles Twilio voice webhooks end to end:
//
//  1. Initial inbound call: greet and gather the caller's spoken reason.
//  2. Gather result: run the routing pipeline and render the verdict.
//
// NOTE: This endpoint should be protected by Twilio signature validation in
// production.
type VoiceWebhook struct {
	Router    *routing.Router
	Directory *tenant.Directory
	Transport *telephony.TwilioTransport
	Releases  *ReleaseStore
	Log       *slog.Logger
}

// ReleaseStore maps in-flight provider call IDs to the agent slot release
// owed when the call ends. The status webhook drains it on terminal states;
// the redis hold TTL only covers calls whose callback never arrives.
type ReleaseStore struct {
	mu sync.Mutex
	m  map[string]func(context.Context)
}

func NewReleaseStore() *ReleaseStore {
	return &ReleaseStore{m: map[string]func(context.Context){}}
}

func (s *ReleaseStore) Put(callID string, release func(context.Context)) {
	if release == nil {
		return
	}
	s.mu.Lock()
	s.m[callID] = release
	s.mu.Unlock()
}

// Take removes and returns the release for callID, or nil if none is held.
func (s *ReleaseStore) Take(callID string) func(context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	release, ok := s.m[callID]
	if ok {
		delete(s.m, callID)
	}
	return release
}

func (w VoiceWebhook) HandleVoice(c *gin.Context) {
	form, err := telephony.ParseTwilioVoice(c.Request)
	if err != nil {
		c.String(http.StatusBadRequest, "bad webhook payload")
		return
	}

	ev := form.ToInboundEvent(time.Now())

	// First turn: nothing to analyze yet, ask the caller why they called.
	if ev.Utterance == "" {
		w.renderTwiML(c, w.gatherInstruction(c, ev))
		return
	}

	res, err := w.Router.RouteCall(c.Request.Context(), routing.RouteInput{
		From:           ev.From,
		To:             ev.To,
		ProviderCallID: ev.ProviderCallID,
		Utterance:      ev.Utterance,
		OccurredAt:     ev.OccurredAt,
	})
	if err != nil && !errors.Is(err, tenant.ErrTenantNotFound) {
		w.log().Error("routing failed", "provider_call_id", ev.ProviderCallID, "err", err)
		w.renderTwiML(c, telephony.Instruction{
			Action:  telephony.InstructionHangup,
			Message: "We are unable to process your call right now. Please try again later.",
		})
		return
	}

	// The slot held for this caller is owed back when the call ends. The
	// terminal status callback settles the debt.
	if res.Release != nil && w.Releases != nil {
		w.Releases.Put(ev.ProviderCallID, res.Release)
	}

	w.renderTwiML(c, toInstruction(res))
}

// HandleLegStatus receives Twilio status callbacks. Leg callbacks carry a
// LegId query value and unblock the waiting escalation dial; terminal
// call statuses settle the agent slot held for that call.
func (w VoiceWebhook) HandleLegStatus(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		c.Status(http.StatusBadRequest)
		return
	}
	legID := c.Request.FormValue("LegId")
	status := c.Request.FormValue("CallStatus")
	if legID != "" && w.Transport != nil {
		w.Transport.LegStatus(legID, status == "in-progress" || status == "answered")
	}
	if w.Releases != nil && terminalCallStatus(status) {
		if sid := c.Request.FormValue("CallSid"); sid != "" {
			if release := w.Releases.Take(sid); release != nil {
				release(c.Request.Context())
			}
		}
	}
	c.Status(http.StatusNoContent)
}

// terminalCallStatus reports whether Twilio sends no further callbacks for
// the call after this status.
func terminalCallStatus(status string) bool {
	switch status {
	case "completed", "failed", "busy", "no-answer", "canceled":
		return true
	}
	return false
}

// HandleConnect serves the bridge TwiML an answered outbound leg fetches.
func (w VoiceWebhook) HandleConnect(c *gin.Context) {
	target := c.Query("target")
	if target == "" {
		c.String(http.StatusBadRequest, "target is required")
		return
	}
	w.renderTwiML(c, telephony.Instruction{Action: telephony.InstructionConnect, ConnectTo: target})
}

func (w VoiceWebhook) gatherInstruction(c *gin.Context, ev telephony.InboundEvent) telephony.Instruction {
	t, err := w.Directory.ResolveTenant(c.Request.Context(), ev.To)
	if err != nil {
		return telephony.Instruction{
			Action:  telephony.InstructionReject,
			Message: "The number you have dialed is not in service.",
		}
	}
	prompt := "How can I help you today?"
	if t.Greeting != "" {
		prompt = t.Greeting + " " + prompt
	}
	return telephony.Instruction{Action: telephony.InstructionGather, GatherPrompt: prompt}
}

func (w VoiceWebhook) renderTwiML(c *gin.Context, ins telephony.Instruction) {
	xml, err := telephony.RenderTwiML(ins)
	if err != nil {
		w.log().Error("twiml render failed", "action", string(ins.Action), "err", err)
		c.String(http.StatusInternalServerError, "render error")
		return
	}
	c.Data(http.StatusOK, "application/xml", []byte(xml))
}

func (w VoiceWebhook) log() *slog.Logger {
	if w.Log != nil {
		return w.Log
	}
	return slog.Default()
}

// toInstruction maps the routing verdict onto the provider-agnostic verb the
// transport renders.
func toInstruction(res routing.Result) telephony.Instruction {
	ins := telephony.Instruction{Message: res.Message}
	switch res.Action {
	case routing.ActionConnect:
		ins.Action = telephony.InstructionConnect
		ins.ConnectTo = res.Agent.PhoneNumber
	case routing.ActionForward:
		ins.Action = telephony.InstructionConnect
		ins.ConnectTo = res.Target
	case routing.ActionQueue:
		ins.Action = telephony.InstructionEnqueue
		ins.QueueName = res.Department.ID
	case routing.ActionVoicemail:
		ins.Action = telephony.InstructionVoicemail
	case routing.ActionCallback, routing.ActionAnnouncement:
		ins.Action = telephony.InstructionHangup
	case routing.ActionReject:
		ins.Action = telephony.InstructionReject
	default:
		ins.Action = telephony.InstructionHangup
	}
	return ins
}
