package fetcher

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrRetrieval marks a failed attempt to read the percentage.
var ErrRetrieval = errors.New("metric retrieval failed")

// Sample is one observation of the margin percentage.
type Sample struct {
	Percentage decimal.Decimal
	ObservedAt time.Time
}

// Source retrieves the current percentage.
type Source interface {
	Fetch(ctx context.Context) (Sample, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (Sample, error)

func (f SourceFunc) Fetch(ctx context.Context) (Sample, error) {
	return f(ctx)
}

// Static returns the same percentage on every call, stamped with the current time.
func Static(p decimal.Decimal) Source {
	return SourceFunc(func(context.Context) (Sample, error) {
		return Sample{Percentage: p, ObservedAt: time.Now()}, nil
	})
}

var (
	_ Source = SourceFunc(nil)
	_ Source = (*Demo)(nil)
	_ Source = (*HTTP)(nil)
)
