package engine

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"margin-alerts/internal/alerting"
	"margin-alerts/internal/fetcher"
	"margin-alerts/internal/storage"
)

var testLoc = time.FixedZone("-03", -3*60*60)

func newEngine(inclusive bool) *Engine {
	return New(Thresholds{
		Low:           decimal.NewFromInt(45),
		High:          decimal.NewFromInt(80),
		HighInclusive: inclusive,
	}, 5*time.Minute, testLoc)
}

func sampleAt(p string, ts time.Time) fetcher.Sample {
	return fetcher.Sample{Percentage: decimal.RequireFromString(p), ObservedAt: ts}
}

func sample(p string) fetcher.Sample {
	return sampleAt(p, time.Date(2026, 10, 16, 17, 0, 0, 0, time.UTC))
}

func kinds(notes []alerting.Notification) []alerting.Kind {
	out := make([]alerting.Kind, 0, len(notes))
	for _, n := range notes {
		out = append(out, n.Kind)
	}
	return out
}

func activeState() storage.State {
	return storage.State{HighAlertActive: true}.StartedOn(time.Date(2026, 10, 15, 14, 0, 0, 0, testLoc))
}

func TestMorningNotificationCount(t *testing.T) {
	e := newEngine(true)
	cases := []struct {
		p    string
		want int
	}{
		{"0", 1},
		{"44.99", 1},
		{"45", 1},
		{"45.01", 2},
		{"80", 2},
		{"120", 2},
	}
	for _, tc := range cases {
		t.Run(tc.p, func(t *testing.T) {
			d := e.Morning("10:00", sample(tc.p), storage.DefaultState())
			assert.Len(t, d.Notifications, tc.want)
			assert.Equal(t, alerting.KindStatus, d.Notifications[0].Kind)
			assert.Equal(t, ActionNone, d.Action)
		})
	}
}

func TestMorningLeavesHighAlertUntouched(t *testing.T) {
	e := newEngine(true)
	prior := activeState()

	d := e.Morning("10:00", sample("12.5"), prior)
	assert.True(t, d.State.HighAlertActive)
	assert.Equal(t, prior.LastHighAlertStartDate, d.State.LastHighAlertStartDate)
	require.NotNil(t, d.State.LastValue)
	assert.Equal(t, 12.5, *d.State.LastValue)
	assert.Equal(t, ActionNone, d.Action)
}

func TestMorningWarningText(t *testing.T) {
	d := newEngine(true).Morning("10:00", sample("52"), storage.DefaultState())
	require.Len(t, d.Notifications, 2)
	assert.Contains(t, alerting.Plain(d.Notifications[0]), "Status 10:00: 52.00% at ")
	assert.Contains(t, alerting.Plain(d.Notifications[1]), "Alert 10:00: 52.00% (> 45%)")
}

func TestAfternoonStartsEpisode(t *testing.T) {
	e := newEngine(true)
	// 01:00 UTC on the 17th is still the 16th locally
	obs := time.Date(2026, 10, 17, 1, 0, 0, 0, time.UTC)

	d := e.Afternoon("14:00", sampleAt("82", obs), storage.DefaultState())

	assert.Equal(t, []alerting.Kind{alerting.KindStatus, alerting.KindHighStarted}, kinds(d.Notifications))
	assert.True(t, d.State.HighAlertActive)
	require.NotNil(t, d.State.LastHighAlertStartDate)
	assert.Equal(t, "2026-10-16", *d.State.LastHighAlertStartDate)
	assert.Equal(t, ActionStartRecurring, d.Action)
	assert.Contains(t, alerting.Plain(d.Notifications[0]), "Status 14:00: 82.00%")
	assert.Contains(t, strings.ToLower(alerting.Plain(d.Notifications[1])), "threshold crossed")
}

func TestAfternoonRemainsHigh(t *testing.T) {
	e := newEngine(true)
	prior := activeState()

	for _, p := range []string{"80", "80.5", "99"} {
		d := e.Afternoon("14:00", sample(p), prior)
		assert.Equal(t, []alerting.Kind{alerting.KindStatus, alerting.KindHighRemains}, kinds(d.Notifications))
		assert.True(t, d.State.HighAlertActive)
		assert.Equal(t, prior.LastHighAlertStartDate, d.State.LastHighAlertStartDate)
		assert.Equal(t, ActionNone, d.Action, p)
	}
}

func TestAfternoonNormalizes(t *testing.T) {
	d := newEngine(true).Afternoon("14:00", sample("77"), activeState())

	assert.Equal(t, []alerting.Kind{alerting.KindStatus, alerting.KindNormalized}, kinds(d.Notifications))
	assert.False(t, d.State.HighAlertActive)
	// start date kept as audit trail
	assert.NotNil(t, d.State.LastHighAlertStartDate)
	assert.Equal(t, ActionStopRecurring, d.Action)
}

func TestAfternoonQuiet(t *testing.T) {
	d := newEngine(true).Afternoon("14:00", sample("60"), storage.DefaultState())

	assert.Equal(t, []alerting.Kind{alerting.KindStatus}, kinds(d.Notifications))
	assert.False(t, d.State.HighAlertActive)
	assert.Nil(t, d.State.LastHighAlertStartDate)
	assert.Equal(t, ActionNone, d.Action)
	require.NotNil(t, d.State.LastValue)
	assert.Equal(t, 60.0, *d.State.LastValue)
}

func TestHighBoundary(t *testing.T) {
	cases := []struct {
		name      string
		inclusive bool
		wantHigh  bool
		wantCmp   string
	}{
		{"inclusive", true, true, "≥"},
		{"exclusive", false, false, "≤"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newEngine(tc.inclusive)
			assert.Equal(t, tc.wantHigh, e.Thresholds().IsHigh(decimal.NewFromInt(80)))

			d := e.Afternoon("14:00", sample("80"), storage.DefaultState())
			assert.Equal(t, tc.wantHigh, d.State.HighAlertActive)

			d = e.Recurring(sample("80"), activeState())
			require.Len(t, d.Notifications, 1)
			assert.Equal(t, tc.wantCmp, d.Notifications[0].Comparator)
			assert.Equal(t, tc.wantHigh, d.State.HighAlertActive)
		})
	}
}

func TestRecurringContinues(t *testing.T) {
	d := newEngine(true).Recurring(sample("91.3"), activeState())

	assert.Equal(t, []alerting.Kind{alerting.KindHighContinuing}, kinds(d.Notifications))
	assert.True(t, d.State.HighAlertActive)
	assert.Equal(t, ActionNone, d.Action)
	assert.Contains(t, alerting.Plain(d.Notifications[0]), "every 5 minutes")
}

func TestRecurringStopsThenIsIdempotent(t *testing.T) {
	e := newEngine(true)

	d := e.Recurring(sample("77"), activeState())
	assert.Equal(t, []alerting.Kind{alerting.KindNormalized}, kinds(d.Notifications))
	assert.False(t, d.State.HighAlertActive)
	assert.Equal(t, ActionStopRecurring, d.Action)

	again := e.Recurring(sample("77"), d.State)
	assert.True(t, again.Skipped)
	assert.Empty(t, again.Notifications)
	assert.Equal(t, ActionNone, again.Action)
	assert.True(t, again.State.Equal(d.State))
}

func TestRecurringWhenInactiveIsNoop(t *testing.T) {
	prior := storage.DefaultState().WithLastValue(50)

	d := newEngine(true).Recurring(sample("99"), prior)
	assert.True(t, d.Skipped)
	assert.Empty(t, d.Notifications)
	assert.Equal(t, ActionNone, d.Action)
	assert.True(t, d.State.Equal(prior), "state must not change")
}

func TestActionString(t *testing.T) {
	assert.Equal(t, "none", ActionNone.String())
	assert.Equal(t, "start", ActionStartRecurring.String())
	assert.Equal(t, "stop", ActionStopRecurring.String())
}
