package alerting

import (
	"fmt"
	"html"
	"time"

	"github.com/shopspring/decimal"
)

// Kind identifies the message template.
type Kind string

const (
	KindStatus         Kind = "status"
	KindWarning        Kind = "warning"
	KindHighStarted    Kind = "high_started"
	KindHighRemains    Kind = "high_remains"
	KindHighContinuing Kind = "high_continuing"
	KindNormalized     Kind = "normalized"
)

// ObservedLayout formats sample timestamps in messages.
const ObservedLayout = "2006-01-02 15:04:05 MST"

// Notification carries everything needed to render one message.
type Notification struct {
	Kind       Kind
	Label      string
	Percentage decimal.Decimal
	Threshold  decimal.Decimal
	Comparator string
	ObservedAt time.Time
	Interval   time.Duration
}

// Render formats the notification with Telegram HTML markup.
func Render(note Notification) string {
	return render(note, true)
}

// Plain formats the notification without markup.
func Plain(note Notification) string {
	return render(note, false)
}

func render(note Notification, markup bool) string {
	bold := func(s string) string {
		if markup {
			return "<b>" + s + "</b>"
		}
		return s
	}
	esc := func(s string) string {
		if markup {
			return html.EscapeString(s)
		}
		return s
	}

	pct := note.Percentage.StringFixed(2) + "%"
	bound := esc(fmt.Sprintf("(%s %s%%)", note.Comparator, note.Threshold.String()))

	switch note.Kind {
	case KindStatus:
		return fmt.Sprintf("📊 Status %s: %s at %s", esc(note.Label), bold(pct), note.ObservedAt.Format(ObservedLayout))
	case KindWarning:
		return fmt.Sprintf("⚠️ %s: %s %s", bold("Alert "+esc(note.Label)), pct, bound)
	case KindHighStarted:
		return fmt.Sprintf("🚨 %s: %s %s. Starting recurring alerts %s.", bold("Threshold crossed"), pct, bound, every(note.Interval))
	case KindHighRemains:
		return fmt.Sprintf("🚨 %s: %s %s.", bold("Remains high"), pct, bound)
	case KindHighContinuing:
		return fmt.Sprintf("🚨 %s: %s %s. Continuing alerts %s.", bold("Still above threshold"), pct, bound, every(note.Interval))
	case KindNormalized:
		return fmt.Sprintf("✅ %s: %s %s. Stopping recurring alerts.", bold("Normalized"), pct, bound)
	default:
		return fmt.Sprintf("%s: %s", esc(string(note.Kind)), pct)
	}
}

func every(d time.Duration) string {
	switch {
	case d <= 0:
		return "periodically"
	case d%time.Hour == 0:
		return "every " + plural(int(d/time.Hour), "hour")
	case d%time.Minute == 0:
		return "every " + plural(int(d/time.Minute), "minute")
	default:
		return "every " + d.String()
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
