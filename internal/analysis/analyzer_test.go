package analysis

import "testing"

func TestAnalyze_EmptyInputIsNeutral(t *testing.T) {
	a := NewAnalyzer()
	res := a.Analyze("", CallerHints{})

	if res.Intent != "support_request" {
		t.Fatalf("expected fallback intent, got %q", res.Intent)
	}
	if res.Confidence != 0 {
		t.Fatalf("expected zero confidence, got %v", res.Confidence)
	}
	if res.Sentiment != 0 {
		t.Fatalf("expected neutral sentiment, got %v", res.Sentiment)
	}
	if res.Urgency != UrgencyLow {
		t.Fatalf("expected low urgency, got %q", res.Urgency)
	}
}

func TestAnalyze_UnopposedIntentHasFullConfidence(t *testing.T) {
	a := NewAnalyzer()
	res := a.Analyze("I was charged twice and I need a refund", CallerHints{})

	if res.Intent != "billing_issue" {
		t.Fatalf("expected billing_issue, got %q", res.Intent)
	}
	if res.Confidence != 1 {
		t.Fatalf("expected confidence 1, got %v", res.Confidence)
	}
}

func TestAnalyze_ConfidenceIsScoreMargin(t *testing.T) {
	a := NewAnalyzer()
	// technical_support scores 2.4 (api + integration), support_request 1.2 (broken).
	res := a.Analyze("my api integration is broken", CallerHints{})

	if res.Intent != "technical_support" {
		t.Fatalf("expected technical_support, got %q", res.Intent)
	}
	if res.Confidence <= 0.49 || res.Confidence >= 0.51 {
		t.Fatalf("expected confidence ~0.5, got %v", res.Confidence)
	}
}

func TestAnalyze_SameInputSameResult(t *testing.T) {
	a := NewAnalyzer()
	in := "urgent billing problem, I am furious about this charge"
	first := a.Analyze(in, CallerHints{Tier: "premium"})
	for i := 0; i < 5; i++ {
		got := a.Analyze(in, CallerHints{Tier: "premium"})
		if got.Intent != first.Intent || got.Sentiment != first.Sentiment ||
			got.Urgency != first.Urgency || got.Confidence != first.Confidence {
			t.Fatalf("non-deterministic result: %+v vs %+v", got, first)
		}
	}
}

func TestScoreSentiment_Bounds(t *testing.T) {
	a := NewAnalyzer()

	if s := a.Analyze("this is terrible and awful", CallerHints{}).Sentiment; s != -1 {
		t.Fatalf("expected -1, got %v", s)
	}
	if s := a.Analyze("thank you, everything is great", CallerHints{}).Sentiment; s != 1 {
		t.Fatalf("expected +1, got %v", s)
	}
	if s := a.Analyze("I would like to change my plan", CallerHints{}).Sentiment; s != 0 {
		t.Fatalf("expected 0, got %v", s)
	}
}

func TestScoreUrgency_TierMultiplier(t *testing.T) {
	a := NewAnalyzer()

	// "urgent" alone scores 1.0: medium for basic callers.
	if u := a.Analyze("urgent", CallerHints{Tier: "basic"}).Urgency; u != UrgencyMedium {
		t.Fatalf("expected medium for basic, got %q", u)
	}
	// 1.0 * 1.3 crosses the high threshold for enterprise.
	if u := a.Analyze("urgent", CallerHints{Tier: "enterprise"}).Urgency; u != UrgencyHigh {
		t.Fatalf("expected high for enterprise, got %q", u)
	}
}

func TestScoreUrgency_Critical(t *testing.T) {
	a := NewAnalyzer()
	res := a.Analyze("urgent emergency, the whole network is down with an outage", CallerHints{})
	if res.Urgency != UrgencyCritical {
		t.Fatalf("expected critical, got %q", res.Urgency)
	}
}

func TestDetectLanguage(t *testing.T) {
	a := NewAnalyzer()

	res := a.Analyze("tengo una problema con los datos que compre", CallerHints{})
	if res.Language != "es-ES" {
		t.Fatalf("expected es-ES, got %q", res.Language)
	}

	// Too short to call: the caller profile default wins.
	res = a.Analyze("hola", CallerHints{DefaultLanguage: "fr-FR"})
	if res.Language != "fr-FR" {
		t.Fatalf("expected fallback fr-FR, got %q", res.Language)
	}

	res = a.Analyze("the payment did not go through and I have an error", CallerHints{})
	if res.Language != "en-US" {
		t.Fatalf("expected en-US, got %q", res.Language)
	}
}

func TestExtractKeywords(t *testing.T) {
	a := NewAnalyzer()
	res := a.Analyze("my esim will not activate and I keep getting an error", CallerHints{})

	want := map[string]bool{"esim": true, "activate": true, "error": true}
	found := 0
	for _, k := range res.Keywords {
		if want[k] {
			found++
		}
	}
	if found != len(want) {
		t.Fatalf("expected keywords %v within %v", want, res.Keywords)
	}
}
