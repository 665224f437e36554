package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"margin-alerts/internal/alerting"
	"margin-alerts/internal/service"
	"margin-alerts/internal/storage"
)

// Check runs one check once, outside the scheduler. Control actions have no
// job to act on here; the persisted state still reflects the decision.
func (a *App) Check(ctx context.Context, name string) error {
	check, err := service.ParseCheck(name)
	if err != nil {
		return err
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	source, err := a.newSource()
	if err != nil {
		return err
	}

	svc := service.New(a.Config, a.newEngine(), source, store, a.newNotifier(), nil, a.Logger)
	res, err := svc.Run(ctx, check)
	if printErr := a.printJSON(res); printErr != nil {
		return printErr
	}
	return err
}

// StateFormat selects the rendering of ShowState.
type StateFormat string

const (
	FormatTable StateFormat = "table"
	FormatJSON  StateFormat = "json"
	FormatYAML  StateFormat = "yaml"
)

// ShowState prints the persisted record.
func (a *App) ShowState(ctx context.Context, format StateFormat) error {
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	state, loadErr := store.Load(ctx)
	if loadErr != nil {
		a.Logger.Warn().Err(loadErr).Msg("state unreadable, showing defaults")
	}

	switch format {
	case FormatJSON:
		return a.printJSON(state)
	case FormatYAML:
		enc := yaml.NewEncoder(a.Out)
		enc.SetIndent(2)
		if err := enc.Encode(state); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	case FormatTable, "":
		writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "Driver\tHigh alert\tEpisode start\tLast value")
		fmt.Fprintf(writer, "%s\t%t\t%s\t%s\n",
			a.Config.Storage.Driver,
			state.HighAlertActive,
			stringOrDash(state.LastHighAlertStartDate),
			floatOrDash(state.LastValue),
		)
		return writer.Flush()
	default:
		return fmt.Errorf("unknown format %q (want table, json or yaml)", format)
	}
}

// ResetState overwrites the record with defaults.
func (a *App) ResetState(ctx context.Context) error {
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	svc := service.New(a.Config, a.newEngine(), nil, store, alerting.NewLogNotifier(a.Logger), nil, a.Logger)
	if err := svc.ClearState(ctx); err != nil {
		return fmt.Errorf("reset state: %w", err)
	}
	fmt.Fprintln(a.Out, "state reset to defaults")
	return nil
}

// TestNotify sends free text through the configured notifier.
func (a *App) TestNotify(ctx context.Context, text string) error {
	svc := service.New(a.Config, a.newEngine(), nil, storage.NewMemoryStore(storage.DefaultState()), a.newNotifier(), nil, a.Logger)
	if err := svc.SendTest(ctx, text); err != nil {
		return err
	}
	fmt.Fprintln(a.Out, "test message sent")
	return nil
}

func (a *App) printJSON(v any) error {
	enc := json.NewEncoder(a.Out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

func stringOrDash(v *string) string {
	if v == nil || strings.TrimSpace(*v) == "" {
		return "-"
	}
	return *v
}

func floatOrDash(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v)
}
