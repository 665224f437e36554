package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"margin-alerts/internal/alerting"
	"margin-alerts/internal/fetcher"
	"margin-alerts/internal/service"
	"margin-alerts/internal/storage"
)

// SimulateOptions describe a dry run of one check.
type SimulateOptions struct {
	Check  string
	Value  decimal.Decimal
	Active bool
	// Send delivers the resulting messages through the configured notifier
	// instead of printing them only.
	Send bool
}

// Simulate runs one check against a fixed percentage and an in-memory state.
// The persisted state is never touched.
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) (service.Result, error) {
	check, err := service.ParseCheck(opts.Check)
	if err != nil {
		return service.Result{}, err
	}
	if opts.Value.IsNegative() {
		return service.Result{}, errors.New("value cannot be negative")
	}

	var notifier alerting.Notifier = alerting.NewLogNotifier(a.Logger)
	if opts.Send {
		notifier = a.newNotifier()
	}

	store := storage.NewMemoryStore(storage.State{HighAlertActive: opts.Active})
	svc := service.New(a.Config, a.newEngine(), fetcher.Static(opts.Value), store, notifier, nil, a.Logger)

	res, err := svc.Run(ctx, check)
	if err != nil {
		return res, err
	}

	fmt.Fprintf(a.Out, "check: %s  value: %s%%  prior active: %t\n", check, opts.Value.StringFixed(2), opts.Active)
	for _, text := range res.Notifications {
		fmt.Fprintf(a.Out, "  -> %s\n", text)
	}
	if res.Skipped {
		fmt.Fprintf(a.Out, "  (skipped: %s)\n", res.Reason)
	}
	fmt.Fprintf(a.Out, "action: %s  high alert active: %t\n", res.Action, res.State.HighAlertActive)
	return res, nil
}
