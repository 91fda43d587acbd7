package ledger

import (
	"context"
	"errors"
	"sort"
	"time"
)

var ErrInvalidRange = errors.New("ledger: invalid time range")

// StatsRequest scopes an aggregation query to one tenant and a half-open
// time window [From, To).
type StatsRequest struct {
	TenantID string
	From     time.Time
	To       time.Time
}

// Stats is the read-side summary served by the operational API. It is
// computed from immutable ledger rows, never from live call state.
type Stats struct {
	TenantID string `json:"tenant_id"`

	TotalDecisions   int     `json:"total_decisions"`
	TotalEscalations int     `json:"total_escalations"`
	EscalationRate   float64 `json:"escalation_rate"`

	// CallsPerHour is keyed by the hour truncated in UTC, RFC 3339 formatted.
	CallsPerHour map[string]int `json:"calls_per_hour"`

	// DepartmentDistribution counts routing decisions per department name.
	DepartmentDistribution map[string]int `json:"department_distribution"`

	AverageSentiment float64          `json:"average_sentiment"`
	SentimentTrend   []SentimentPoint `json:"sentiment_trend"`

	TopIntents []IntentCount `json:"top_intents"`
}

type SentimentPoint struct {
	Hour      string  `json:"hour"`
	Sentiment float64 `json:"sentiment"`
	Samples   int     `json:"samples"`
}

type IntentCount struct {
	Intent string `json:"intent"`
	Count  int    `json:"count"`
}

// Stats aggregates ledger entries for one tenant over a window.
func (s *Service) Stats(ctx context.Context, req StatsRequest) (Stats, error) {
	if req.TenantID == "" {
		return Stats{}, ErrInvalidEntry
	}
	if req.From.IsZero() || req.To.IsZero() || !req.To.After(req.From) {
		return Stats{}, ErrInvalidRange
	}

	entries, err := s.repo.List(ctx, req.TenantID, req.From, req.To)
	if err != nil {
		return Stats{}, err
	}

	out := Stats{
		TenantID:               req.TenantID,
		CallsPerHour:           map[string]int{},
		DepartmentDistribution: map[string]int{},
	}

	escalatedCalls := map[string]bool{}
	seenCalls := map[string]bool{}
	intents := map[string]int{}
	sentSum := map[string]float64{}
	sentN := map[string]int{}
	var sentTotal float64
	var sentSamples int

	for _, e := range entries {
		hour := e.CreatedAt.UTC().Truncate(time.Hour).Format(time.RFC3339)

		switch e.Kind {
		case KindDecision:
			out.TotalDecisions++
			if !seenCalls[e.CallID] {
				seenCalls[e.CallID] = true
				out.CallsPerHour[hour]++
			}
			if e.DepartmentName != "" {
				out.DepartmentDistribution[e.DepartmentName]++
			}
			if e.Intent != "" {
				intents[e.Intent]++
			}
			sentSum[hour] += e.Sentiment
			sentN[hour]++
			sentTotal += e.Sentiment
			sentSamples++
		case KindEscalation:
			if !escalatedCalls[e.CallID] {
				escalatedCalls[e.CallID] = true
				out.TotalEscalations++
			}
		}
	}

	if len(seenCalls) > 0 {
		out.EscalationRate = float64(out.TotalEscalations) / float64(len(seenCalls))
	}
	if sentSamples > 0 {
		out.AverageSentiment = sentTotal / float64(sentSamples)
	}

	hours := make([]string, 0, len(sentN))
	for h := range sentN {
		hours = append(hours, h)
	}
	sort.Strings(hours)
	for _, h := range hours {
		out.SentimentTrend = append(out.SentimentTrend, SentimentPoint{
			Hour:      h,
			Sentiment: sentSum[h] / float64(sentN[h]),
			Samples:   sentN[h],
		})
	}

	for intent, n := range intents {
		out.TopIntents = append(out.TopIntents, IntentCount{Intent: intent, Count: n})
	}
	sort.Slice(out.TopIntents, func(i, j int) bool {
		if out.TopIntents[i].Count != out.TopIntents[j].Count {
			return out.TopIntents[i].Count > out.TopIntents[j].Count
		}
		return out.TopIntents[i].Intent < out.TopIntents[j].Intent
	})
	if len(out.TopIntents) > 5 {
		out.TopIntents = out.TopIntents[:5]
	}
	return out, nil
}
