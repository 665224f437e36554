package fetcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Demo cycles through a fixed list of values keyed by the wall-clock minute.
type Demo struct {
	values []decimal.Decimal
	now    func() time.Time
}

// ParsePattern parses a comma-separated list of percentages.
func ParsePattern(pattern string) ([]decimal.Decimal, error) {
	var values []decimal.Decimal
	for _, raw := range strings.Split(pattern, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("demo pattern value %q: %w", raw, err)
		}
		values = append(values, v)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("demo pattern %q has no values", pattern)
	}
	return values, nil
}

// NewDemo builds a demo source from a pattern such as "40,50,82.7".
func NewDemo(pattern string) (*Demo, error) {
	values, err := ParsePattern(pattern)
	if err != nil {
		return nil, err
	}
	return &Demo{values: values, now: time.Now}, nil
}

// WithClock replaces the time source.
func (d *Demo) WithClock(now func() time.Time) *Demo {
	d.now = now
	return d
}

// Fetch returns values[minute % len(values)].
func (d *Demo) Fetch(ctx context.Context) (Sample, error) {
	if err := ctx.Err(); err != nil {
		return Sample{}, fmt.Errorf("%w: %v", ErrRetrieval, err)
	}
	now := d.now()
	return Sample{
		Percentage: d.values[now.Minute()%len(d.values)],
		ObservedAt: now,
	}, nil
}
