package analysis

import (
	"strings"
)

// Result is the analyzer output attached to a call turn.
//
// Every field is derived deterministically from the input text: the same
// utterance always produces the same result, so routing decisions stay
// reproducible and auditable.
type Result struct {
	Intent    string   `json:"intent"`
	Sentiment float64  `json:"sentiment"` // [-1, 1]
	Urgency   Urgency  `json:"urgency"`
	Language  string   `json:"language"`
	Keywords  []string `json:"keywords"`

	// Confidence is the normalized score margin between the best and
	// second-best intent candidate: 1 when unopposed, 0 when tied.
	Confidence float64 `json:"confidence"`
}

type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// CallerHints are the bits of caller profile that shade urgency.
type CallerHints struct {
	Tier            string // basic | premium | enterprise
	DefaultLanguage string
}

// Analyzer classifies free-form caller input into intent, sentiment, urgency,
// language and keywords.
//
// It is an explainable keyword/lexicon classifier, not a model: a weighted
// phrase table per intent, a sentiment lexicon, and stop-word language
// scoring. Intent ties break by table insertion order.
type Analyzer struct {
	intents   []intentEntry
	positive  []string
	negative  []string
	urgent    []weightedPhrase
	keywords  []string
	languages []languageEntry
}

type intentEntry struct {
	name    string
	phrases []weightedPhrase
}

type weightedPhrase struct {
	phrase string
	weight float64
}

type languageEntry struct {
	code      string
	stopwords []string
}

// NewAnalyzer builds the default classifier tables.
func NewAnalyzer() *Analyzer {
	return &Analyzer{
		// Insertion order is the tie-break order; keep the general intent last.
		intents: []intentEntry{
			{name: "sales_inquiry", phrases: weighted(
				"buy", 1, "purchase", 1, "price", 1, "pricing", 1, "cost", 0.8,
				"plan", 0.8, "subscription", 0.8, "order", 1, "upgrade", 1,
				"quote", 1, "demo", 1,
			)},
			{name: "billing_issue", phrases: weighted(
				"bill", 1, "billing", 1.2, "payment", 1, "charge", 1, "charged", 1.2,
				"refund", 1.5, "invoice", 1, "overcharge", 1.5, "credit card", 1,
				"money", 0.6,
			)},
			{name: "technical_support", phrases: weighted(
				"technical", 1, "setup", 1, "install", 1, "api", 1.2,
				"integration", 1.2, "webhook", 1.2, "configure", 1, "configuration", 1,
			)},
			{name: "cancellation", phrases: weighted(
				"cancel", 1.5, "cancellation", 1.5, "close my account", 2,
				"terminate", 1.2, "unsubscribe", 1.2,
			)},
			{name: "support_request", phrases: weighted(
				"help", 1, "problem", 1, "issue", 1, "not working", 1.5,
				"broken", 1.2, "error", 1, "fix", 1, "trouble", 1,
				"activate", 0.8, "connection", 0.8, "network", 0.8,
			)},
		},
		positive: []string{
			"good", "great", "excellent", "happy", "satisfied", "love",
			"amazing", "perfect", "wonderful", "fantastic", "thanks", "thank you",
		},
		negative: []string{
			"bad", "terrible", "awful", "horrible", "angry", "frustrated",
			"disappointed", "upset", "annoyed", "furious", "hate", "unacceptable",
			"worst", "ridiculous",
		},
		urgent: weighted(
			"urgent", 1, "emergency", 1.2, "critical", 1, "asap", 1,
			"immediately", 1, "right now", 1, "broken", 0.6, "down", 0.6,
			"outage", 1.2, "cannot", 0.4,
		),
		keywords: []string{
			"esim", "data", "phone", "number", "sms", "voice", "calling",
			"activate", "connection", "network", "error", "problem", "issue",
			"payment", "bill", "charge", "refund", "invoice", "subscription",
			"technical", "setup", "install", "api", "integration", "webhook",
			"cancel", "account", "urgent", "manager", "human", "agent",
		},
		languages: []languageEntry{
			{code: "en-US", stopwords: []string{
				"the", "and", "but", "with", "for", "you", "have", "this", "that", "not",
			}},
			{code: "es-ES", stopwords: []string{
				"que", "los", "las", "por", "una", "con", "para", "esta", "pero", "tengo",
			}},
			{code: "fr-FR", stopwords: []string{
				"les", "des", "est", "pas", "une", "que", "pour", "avec", "mais", "vous",
			}},
		},
	}
}

func weighted(pairs ...any) []weightedPhrase {
	out := make([]weightedPhrase, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		w := 1.0
		switch v := pairs[i+1].(type) {
		case float64:
			w = v
		case int:
			w = float64(v)
		}
		out = append(out, weightedPhrase{phrase: pairs[i].(string), weight: w})
	}
	return out
}

// Analyze classifies one caller utterance. Empty input yields the neutral
// result: support intent with zero confidence, neutral sentiment, low urgency.
func (a *Analyzer) Analyze(text string, hints CallerHints) Result {
	lower := strings.ToLower(strings.TrimSpace(text))

	intent, confidence := a.classifyIntent(lower)
	sentiment := a.scoreSentiment(lower)
	urgency := a.scoreUrgency(lower, sentiment, hints.Tier)
	language := a.detectLanguage(lower, hints.DefaultLanguage)
	keywords := a.extractKeywords(lower)

	return Result{
		Intent:     intent,
		Sentiment:  sentiment,
		Urgency:    urgency,
		Language:   language,
		Keywords:   keywords,
		Confidence: confidence,
	}
}

func (a *Analyzer) classifyIntent(lower string) (string, float64) {
	const fallback = "support_request"
	if lower == "" {
		return fallback, 0
	}

	best, second := -1.0, -1.0
	bestIdx := -1
	for i, entry := range a.intents {
		score := 0.0
		for _, p := range entry.phrases {
			if strings.Contains(lower, p.phrase) {
				score += p.weight
			}
		}
		// Strict > keeps the earlier entry on ties (insertion-order tie-break).
		if score > best {
			second = best
			best = score
			bestIdx = i
		} else if score > second {
			second = score
		}
	}

	if bestIdx < 0 || best <= 0 {
		return fallback, 0
	}
	if second <= 0 {
		return a.intents[bestIdx].name, 1
	}
	if best == second {
		return a.intents[bestIdx].name, 0
	}
	return a.intents[bestIdx].name, (best - second) / best
}

// scoreSentiment returns (pos - neg) / (pos + neg), i.e. -1 for purely
// negative input, +1 for purely positive, 0 for neutral or empty.
func (a *Analyzer) scoreSentiment(lower string) float64 {
	pos := countMatches(lower, a.positive)
	neg := countMatches(lower, a.negative)
	if pos+neg == 0 {
		return 0
	}
	return float64(pos-neg) / float64(pos+neg)
}

func (a *Analyzer) scoreUrgency(lower string, sentiment float64, tier string) Urgency {
	score := 0.0
	for _, p := range a.urgent {
		if strings.Contains(lower, p.phrase) {
			score += p.weight
		}
	}

	// Strong sentiment in either direction signals the caller cares a lot.
	if sentiment <= -0.6 {
		score += 0.8
	} else if sentiment <= -0.3 {
		score += 0.4
	}

	switch tier {
	case "enterprise":
		score *= 1.3
	case "premium":
		score *= 1.1
	}

	switch {
	case score >= 2.0:
		return UrgencyCritical
	case score >= 1.2:
		return UrgencyHigh
	case score >= 0.4:
		return UrgencyMedium
	default:
		return UrgencyLow
	}
}

func (a *Analyzer) detectLanguage(lower, fallback string) string {
	if fallback == "" {
		fallback = "en-US"
	}
	words := strings.Fields(lower)
	if len(words) < 3 {
		return fallback
	}

	bestCode := ""
	best, second := 0, 0
	for _, lang := range a.languages {
		hits := 0
		for _, w := range words {
			for _, sw := range lang.stopwords {
				if w == sw {
					hits++
					break
				}
			}
		}
		if hits > best {
			second = best
			best = hits
			bestCode = lang.code
		} else if hits > second {
			second = hits
		}
	}

	// A clear winner needs at least two stop-word hits and a real margin.
	if best < 2 || best == second {
		return fallback
	}
	return bestCode
}

func (a *Analyzer) extractKeywords(lower string) []string {
	var out []string
	for _, k := range a.keywords {
		if strings.Contains(lower, k) {
			out = append(out, k)
		}
	}
	return out
}

func countMatches(lower string, words []string) int {
	n := 0
	for _, w := range words {
		if strings.Contains(lower, w) {
			n++
		}
	}
	return n
}
