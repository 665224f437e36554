package alerting

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestRenderEscapesComparators(t *testing.T) {
	note := Notification{
		Kind:       KindNormalized,
		Percentage: decimal.RequireFromString("77"),
		Threshold:  decimal.NewFromInt(80),
		Comparator: "<",
	}

	html := Render(note)
	if !strings.Contains(html, "<b>Normalized</b>: 77.00% (&lt; 80%)") {
		t.Fatalf("unexpected html %q", html)
	}
	if plain := Plain(note); !strings.Contains(plain, "Normalized: 77.00% (< 80%). Stopping recurring alerts.") {
		t.Fatalf("unexpected plain %q", plain)
	}
}

func TestRenderKinds(t *testing.T) {
	base := Notification{
		Label:      "10:00",
		Percentage: decimal.RequireFromString("82.456"),
		Threshold:  decimal.NewFromInt(80),
		Comparator: "≥",
		ObservedAt: time.Date(2026, 10, 16, 14, 0, 0, 0, time.FixedZone("-03", -3*60*60)),
		Interval:   5 * time.Minute,
	}

	cases := map[Kind]string{
		KindStatus:         "Status 10:00: 82.46% at 2026-10-16 14:00:00 -03",
		KindWarning:        "Alert 10:00: 82.46% (≥ 80%)",
		KindHighStarted:    "Threshold crossed: 82.46% (≥ 80%). Starting recurring alerts every 5 minutes.",
		KindHighRemains:    "Remains high: 82.46% (≥ 80%).",
		KindHighContinuing: "Still above threshold: 82.46% (≥ 80%). Continuing alerts every 5 minutes.",
	}
	for kind, want := range cases {
		note := base
		note.Kind = kind
		if got := Plain(note); !strings.Contains(got, want) {
			t.Errorf("%s: expected %q in %q", kind, want, got)
		}
	}
}

func TestEvery(t *testing.T) {
	cases := map[time.Duration]string{
		0:                "periodically",
		time.Minute:      "every 1 minute",
		5 * time.Minute:  "every 5 minutes",
		2 * time.Hour:    "every 2 hours",
		90 * time.Second: "every 1m30s",
	}
	for d, want := range cases {
		if got := every(d); got != want {
			t.Errorf("every(%s) = %q, want %q", d, got, want)
		}
	}
}
