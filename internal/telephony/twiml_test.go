package telephony

import (
	"strings"
	"testing"
)

func TestRenderTwiML_Gather(t *testing.T) {
	xml, err := RenderTwiML(Instruction{
		Action:       InstructionGather,
		GatherPrompt: "Welcome to Acme. How can we help you today?",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(xml, `<Gather input="speech" timeout="5">`) {
		t.Fatalf("expected speech gather in xml: %s", xml)
	}
	if !strings.Contains(xml, "How can we help you today?") {
		t.Fatalf("expected prompt in xml: %s", xml)
	}
}

func TestRenderTwiML_ConnectNumber(t *testing.T) {
	xml, err := RenderTwiML(Instruction{
		Action:    InstructionConnect,
		Message:   "Connecting you now.",
		ConnectTo: "+15551234567",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(xml, "<Say>Connecting you now.</Say>") {
		t.Fatalf("expected say before dial: %s", xml)
	}
	if !strings.Contains(xml, "<Number>+15551234567</Number>") {
		t.Fatalf("expected dial number in xml: %s", xml)
	}
}

func TestRenderTwiML_ConnectSip(t *testing.T) {
	xml, err := RenderTwiML(Instruction{Action: InstructionConnect, ConnectTo: "sip:support@acme.example"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(xml, "<Sip>sip:support@acme.example</Sip>") {
		t.Fatalf("expected sip dial in xml: %s", xml)
	}
}

func TestRenderTwiML_ConnectRequiresTarget(t *testing.T) {
	if _, err := RenderTwiML(Instruction{Action: InstructionConnect}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRenderTwiML_EnqueueRequiresName(t *testing.T) {
	if _, err := RenderTwiML(Instruction{Action: InstructionEnqueue}); err == nil {
		t.Fatalf("expected error")
	}
	xml, err := RenderTwiML(Instruction{Action: InstructionEnqueue, QueueName: "d-billing"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(xml, "<Enqueue>d-billing</Enqueue>") {
		t.Fatalf("expected enqueue in xml: %s", xml)
	}
}

func TestRenderTwiML_Voicemail(t *testing.T) {
	xml, err := RenderTwiML(Instruction{Action: InstructionVoicemail, Message: "Please leave a message."})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(xml, `<Record maxLength="120" playBeep="true">`) {
		t.Fatalf("expected record verb in xml: %s", xml)
	}
}

func TestRenderTwiML_Reject(t *testing.T) {
	xml, err := RenderTwiML(Instruction{Action: InstructionReject})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(xml, "<Reject") {
		t.Fatalf("expected reject verb in xml: %s", xml)
	}
}

func TestRenderTwiML_UnknownAction(t *testing.T) {
	if _, err := RenderTwiML(Instruction{Action: "whisper"}); err == nil {
		t.Fatalf("expected error")
	}
}
