package telephony

import (
	"bytes"
	"encoding/xml"
	"errors"
	"strings"
)

// TwiML is a minimal Twilio Markup Language response builder.
// It intentionally avoids any provider SDK dependency.
//
// Only include primitives we need at the adapter boundary.

// Instruction is the provider-agnostic answer the HTTP layer renders as
// TwiML. It mirrors the routing verdict but stays free of routing types.
type Instruction struct {
	Action InstructionAction

	// Message is spoken to the caller before the action verb.
	Message string

	// ConnectTo is the dial target for ActionConnect (E.164 or sip: URI).
	ConnectTo string

	// QueueName names the hold queue for ActionEnqueue.
	QueueName string

	// GatherPrompt asks the caller to state their reason; the transcript
	// comes back on the next webhook.
	GatherPrompt string
}

type InstructionAction string

const (
	InstructionGather    InstructionAction = "gather"
	InstructionConnect   InstructionAction = "connect"
	InstructionEnqueue   InstructionAction = "enqueue"
	InstructionVoicemail InstructionAction = "voicemail"
	InstructionHangup    InstructionAction = "hangup"
	InstructionReject    InstructionAction = "reject"
)

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlSay struct {
	XMLName xml.Name `xml:"Say"`
	Text    string   `xml:",chardata"`
}

type twimlGather struct {
	XMLName xml.Name  `xml:"Gather"`
	Input   string    `xml:"input,attr"`
	Timeout int       `xml:"timeout,attr"`
	Say     *twimlSay `xml:"Say,omitempty"`
}

type twimlDial struct {
	XMLName xml.Name  `xml:"Dial"`
	Number  string    `xml:"Number,omitempty"`
	Sip     *twimlSip `xml:"Sip,omitempty"`
}

type twimlSip struct {
	URI string `xml:",chardata"`
}

type twimlEnqueue struct {
	XMLName xml.Name `xml:"Enqueue"`
	Name    string   `xml:",chardata"`
}

type twimlRecord struct {
	XMLName   xml.Name `xml:"Record"`
	MaxLength int      `xml:"maxLength,attr"`
	PlayBeep  bool     `xml:"playBeep,attr"`
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

type twimlReject struct {
	XMLName xml.Name `xml:"Reject"`
	Reason  string   `xml:"reason,attr,omitempty"`
}

// RenderTwiML maps an Instruction to a TwiML document.
func RenderTwiML(ins Instruction) (string, error) {
	var r twimlResponse

	if ins.Message != "" && ins.Action != InstructionGather {
		r.Verbs = append(r.Verbs, twimlSay{Text: ins.Message})
	}

	switch ins.Action {
	case InstructionGather:
		g := twimlGather{Input: "speech", Timeout: 5}
		if ins.GatherPrompt != "" {
			g.Say = &twimlSay{Text: ins.GatherPrompt}
		}
		r.Verbs = append(r.Verbs, g)
	case InstructionConnect:
		if strings.TrimSpace(ins.ConnectTo) == "" {
			return "", errors.New("telephony: connect target required")
		}
		d := twimlDial{}
		// Prefer SIP if it looks like sip:... otherwise treat as a PSTN number.
		if strings.HasPrefix(strings.ToLower(ins.ConnectTo), "sip:") {
			d.Sip = &twimlSip{URI: ins.ConnectTo}
		} else {
			d.Number = ins.ConnectTo
		}
		r.Verbs = append(r.Verbs, d)
	case InstructionEnqueue:
		if ins.QueueName == "" {
			return "", errors.New("telephony: queue name required")
		}
		r.Verbs = append(r.Verbs, twimlEnqueue{Name: ins.QueueName})
	case InstructionVoicemail:
		r.Verbs = append(r.Verbs, twimlRecord{MaxLength: 120, PlayBeep: true})
	case InstructionHangup:
		r.Verbs = append(r.Verbs, twimlHangup{})
	case InstructionReject:
		r.Verbs = append(r.Verbs, twimlReject{Reason: "rejected"})
	default:
		return "", errors.New("telephony: unknown instruction action")
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
