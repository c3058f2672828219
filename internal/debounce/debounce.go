// Package debounce turns a noisy digital input into settled level changes.
package debounce

import (
	"context"
	"log/slog"
	"time"
)

const DefaultSettle = 20 * time.Millisecond

type Level uint8

const (
	Low Level = iota
	High
)

func (l Level) String() string {
	if l == High {
		return "high"
	}
	return "low"
}

// Line is a digital input. Edges delivers a notification after the level changes;
// notifications may be coalesced, so receivers must re-read Level.
type Line interface {
	Level() Level
	Edges() <-chan struct{}
}

// Debouncer owns a line and the last level it reported as stable.
type Debouncer struct {
	line   Line
	settle time.Duration
	stable Level
}

func New(line Line, settle time.Duration) *Debouncer {
	if settle <= 0 {
		settle = DefaultSettle
	}

	return &Debouncer{
		line:   line,
		settle: settle,
		stable: line.Level(),
	}
}

// Stable returns the last level Debounce reported, or the level at construction.
func (d *Debouncer) Stable() Level {
	return d.stable
}

// Debounce waits for the line to settle at a level different from the last stable one and
// returns it. A burst of edges that ends at the previous stable level is discarded as noise.
// It only returns an error when ctx is done.
func (d *Debouncer) Debounce(ctx context.Context) (Level, error) {
	for {
		if d.line.Level() == d.stable {
			select {
			case <-d.line.Edges():
			case <-ctx.Done():
				return d.stable, ctx.Err()
			}
		}

		if err := d.waitQuiet(ctx); err != nil {
			return d.stable, err
		}

		level := d.line.Level()
		if level != d.stable {
			d.stable = level
			return level, nil
		}

		slog.Debug("debounce: discarded bounce", "level", level)
	}
}

// waitQuiet returns once no edge has been seen for the settle duration.
func (d *Debouncer) waitQuiet(ctx context.Context) error {
	timer := time.NewTimer(d.settle)
	defer timer.Stop()

	for {
		select {
		case <-d.line.Edges():
			timer.Reset(d.settle)

		case <-timer.C:
			return nil

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
