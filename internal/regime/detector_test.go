package regime

import (
	"context"
	"testing"
	"time"

	"dexpaper-trading-bot/internal/marketdata"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		sentiment float64
		dominance float64
		want      string
	}{
		{"extreme fear", 18, 60, RiskOff},
		{"fear boundary", 30, 45, RiskOff},
		{"mild fear high dominance", 40, 60, RiskOff},
		{"mild fear low dominance", 40, 45, Neutral},
		{"greed low dominance", 70, 50, RiskOn},
		{"greed high dominance", 70, 60, Neutral},
		{"moderate greed alt rotation", 58, 45, RiskOn},
		{"moderate greed btc led", 58, 52, Neutral},
		{"dead center", 50, 50, Neutral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.sentiment, tt.dominance); got != tt.want {
				t.Errorf("Classify(%v, %v) = %q, want %q", tt.sentiment, tt.dominance, got, tt.want)
			}
		})
	}
}

type stubSentiment struct {
	fg marketdata.FearGreed
	gm marketdata.GlobalMarket
}

func (s *stubSentiment) FearGreed(ctx context.Context) marketdata.FearGreed {
	return s.fg
}

func (s *stubSentiment) GlobalMarket(ctx context.Context) marketdata.GlobalMarket {
	return s.gm
}

func TestDetectBuildsSnapshot(t *testing.T) {
	feed := &stubSentiment{
		fg: marketdata.FearGreed{Value: 18, Classification: "Extreme Fear"},
		gm: marketdata.GlobalMarket{BTCDominance: 60, TotalVolumeUSD: 90e9},
	}
	fixed := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	d := NewDetector(feed, func() time.Time { return fixed })

	snap := d.Detect(context.Background())

	if snap.Regime != RiskOff {
		t.Errorf("regime = %q, want %q", snap.Regime, RiskOff)
	}
	if snap.SentimentScore != 18 || snap.BTCDominance != 60 {
		t.Errorf("snapshot inputs not carried: %+v", snap)
	}
	if !snap.DetectedAt.Equal(fixed) {
		t.Errorf("DetectedAt = %v, want pinned clock %v", snap.DetectedAt, fixed)
	}

	rec := snap.ToRecord()
	if rec.Regime != RiskOff || rec.SentimentScore != 18 {
		t.Errorf("record mismatch: %+v", rec)
	}
	if rec.Metadata["classification"] != "Extreme Fear" {
		t.Errorf("metadata classification = %v", rec.Metadata["classification"])
	}
}

func TestDetectNeutralFallback(t *testing.T) {
	// the sentiment client degrades to 50/Neutral and dominance 50;
	// the detector must classify that as neutral
	feed := &stubSentiment{
		fg: marketdata.FearGreed{Value: 50, Classification: "Neutral"},
		gm: marketdata.GlobalMarket{BTCDominance: 50},
	}
	d := NewDetector(feed, nil)

	if snap := d.Detect(context.Background()); snap.Regime != Neutral {
		t.Errorf("fallback regime = %q, want %q", snap.Regime, Neutral)
	}
}
