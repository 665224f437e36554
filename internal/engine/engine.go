// Package engine holds the threshold and state transition rules. It performs
// no I/O: every entry point takes the sample and the prior state and returns
// a Decision for the caller to execute.
package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"margin-alerts/internal/alerting"
	"margin-alerts/internal/fetcher"
	"margin-alerts/internal/storage"
)

// Action tells the scheduler binding what to do with the recurring job.
type Action int

const (
	ActionNone Action = iota
	ActionStartRecurring
	ActionStopRecurring
)

func (a Action) String() string {
	switch a {
	case ActionStartRecurring:
		return "start"
	case ActionStopRecurring:
		return "stop"
	default:
		return "none"
	}
}

// Thresholds are the two alert bands. Low is always strict; HighInclusive
// selects between >= and > at the high boundary.
type Thresholds struct {
	Low           decimal.Decimal
	High          decimal.Decimal
	HighInclusive bool
}

// IsHigh reports whether p is in the high band.
func (t Thresholds) IsHigh(p decimal.Decimal) bool {
	if t.HighInclusive {
		return p.GreaterThanOrEqual(t.High)
	}
	return p.GreaterThan(t.High)
}

// IsWarning reports whether p exceeds the low band.
func (t Thresholds) IsWarning(p decimal.Decimal) bool {
	return p.GreaterThan(t.Low)
}

func (t Thresholds) highComparators() (above, below string) {
	if t.HighInclusive {
		return "≥", "<"
	}
	return ">", "≤"
}

// Decision is the outcome of one check.
type Decision struct {
	State         storage.State
	Notifications []alerting.Notification
	Action        Action
	// Skipped is set when the check had nothing to do.
	Skipped bool
}

// Engine evaluates checks against fixed thresholds.
type Engine struct {
	thresholds Thresholds
	interval   time.Duration
	loc        *time.Location
}

// New builds an Engine. interval is only used in message text; loc decides
// which calendar day an episode starts on.
func New(thresholds Thresholds, interval time.Duration, loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{thresholds: thresholds, interval: interval, loc: loc}
}

// Thresholds returns the configured bands.
func (e *Engine) Thresholds() Thresholds {
	return e.thresholds
}

// Morning always reports status and warns above the low band. It never
// touches the high-alert flag.
func (e *Engine) Morning(label string, sample fetcher.Sample, prior storage.State) Decision {
	p := sample.Percentage
	d := Decision{
		State:         prior.WithLastValue(p.InexactFloat64()),
		Notifications: []alerting.Notification{e.status(label, sample)},
	}
	if e.thresholds.IsWarning(p) {
		d.Notifications = append(d.Notifications, alerting.Notification{
			Kind:       alerting.KindWarning,
			Label:      label,
			Percentage: p,
			Threshold:  e.thresholds.Low,
			Comparator: ">",
			ObservedAt: sample.ObservedAt,
		})
	}
	return d
}

// Afternoon reports status and moves the high-alert flag.
func (e *Engine) Afternoon(label string, sample fetcher.Sample, prior storage.State) Decision {
	p := sample.Percentage
	d := Decision{
		State:         prior.WithLastValue(p.InexactFloat64()),
		Notifications: []alerting.Notification{e.status(label, sample)},
	}

	high := e.thresholds.IsHigh(p)
	switch {
	case high && !prior.HighAlertActive:
		d.State.HighAlertActive = true
		d.State = d.State.StartedOn(sample.ObservedAt.In(e.loc))
		d.Notifications = append(d.Notifications, e.band(alerting.KindHighStarted, sample, true))
		d.Action = ActionStartRecurring
	case high:
		d.Notifications = append(d.Notifications, e.band(alerting.KindHighRemains, sample, true))
	case prior.HighAlertActive:
		d.State.HighAlertActive = false
		d.Notifications = append(d.Notifications, e.band(alerting.KindNormalized, sample, false))
		d.Action = ActionStopRecurring
	}
	return d
}

// Recurring is a no-op unless the high-alert mode is engaged.
func (e *Engine) Recurring(sample fetcher.Sample, prior storage.State) Decision {
	if !prior.HighAlertActive {
		return Decision{State: prior, Skipped: true}
	}

	p := sample.Percentage
	d := Decision{State: prior.WithLastValue(p.InexactFloat64())}
	if e.thresholds.IsHigh(p) {
		d.Notifications = []alerting.Notification{e.band(alerting.KindHighContinuing, sample, true)}
		return d
	}

	d.State.HighAlertActive = false
	d.Notifications = []alerting.Notification{e.band(alerting.KindNormalized, sample, false)}
	d.Action = ActionStopRecurring
	return d
}

func (e *Engine) status(label string, sample fetcher.Sample) alerting.Notification {
	return alerting.Notification{
		Kind:       alerting.KindStatus,
		Label:      label,
		Percentage: sample.Percentage,
		ObservedAt: sample.ObservedAt.In(e.loc),
	}
}

func (e *Engine) band(kind alerting.Kind, sample fetcher.Sample, above bool) alerting.Notification {
	gt, lt := e.thresholds.highComparators()
	cmp := lt
	if above {
		cmp = gt
	}
	return alerting.Notification{
		Kind:       kind,
		Percentage: sample.Percentage,
		Threshold:  e.thresholds.High,
		Comparator: cmp,
		ObservedAt: sample.ObservedAt.In(e.loc),
		Interval:   e.interval,
	}
}
