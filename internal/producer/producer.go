// Package producer translates inputs into controller events and pushes them onto the mailbox.
package producer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/KyleBrandon/planty/internal/debounce"
	"github.com/KyleBrandon/planty/internal/event"
	"github.com/KyleBrandon/planty/internal/mailbox"
)

const DefaultMeasurementInterval = 10 * time.Second

// Sender is the producer side of the mailbox.
type Sender interface {
	Push(ctx context.Context, ev event.Event) error
}

var _ Sender = (*mailbox.Mailbox)(nil)

// WaterButton emits Water when the button is pressed (level falls) and WateringComplete
// when it is released (level rises). It returns when ctx is done.
func WaterButton(ctx context.Context, button *debounce.Debouncer, sender Sender) {
	slog.Debug(">>WaterButton")
	defer slog.Debug("<<WaterButton")

	for {
		level, err := button.Debounce(ctx)
		if err != nil {
			return
		}

		var ev event.Event = event.WateringComplete{}
		if level == debounce.Low {
			ev = event.Water{}
		}

		if err := sender.Push(ctx, ev); err != nil {
			return
		}
	}
}

// CalibrateButton emits Calibrate on every press.
func CalibrateButton(ctx context.Context, button *debounce.Debouncer, sender Sender) {
	slog.Debug(">>CalibrateButton")
	defer slog.Debug("<<CalibrateButton")

	for {
		level, err := button.Debounce(ctx)
		if err != nil {
			return
		}

		if level != debounce.Low {
			continue
		}

		if err := sender.Push(ctx, event.Calibrate{}); err != nil {
			return
		}
	}
}

// Measurement waits interval, emits Measure and repeats. The interval restarts after each
// push, so a stalled controller delays measurements rather than queueing them up.
func Measurement(ctx context.Context, interval time.Duration, sender Sender) {
	slog.Debug(">>Measurement", "interval", interval)
	defer slog.Debug("<<Measurement")

	if interval <= 0 {
		interval = DefaultMeasurementInterval
	}

	for {
		select {
		case <-ctx.Done():
			return

		case <-time.After(interval):
			if err := sender.Push(ctx, event.Measure{}); err != nil {
				return
			}
		}
	}
}

var ErrInvalidThreshold = errors.New("threshold must fit in 16 bits")

// Commands turns remote characteristic writes into events. Every remote surface shares
// it, and every write waits for room in the mailbox rather than being dropped.
type Commands struct {
	sender Sender
}

func NewCommands(sender Sender) *Commands {
	return &Commands{sender: sender}
}

// PumpControl handles a write to the pump-control characteristic.
func (c *Commands) PumpControl(ctx context.Context, value uint8) error {
	var ev event.Event = event.WateringComplete{}
	if value > 0 {
		ev = event.Water{}
	}

	slog.Debug("pump control write", "value", value, "event", ev)
	return c.sender.Push(ctx, ev)
}

// Threshold handles a write to the threshold characteristic.
func (c *Commands) Threshold(ctx context.Context, value int) error {
	if value < 0 || value > 0xFFFF {
		return ErrInvalidThreshold
	}

	slog.Debug("threshold write", "value", value)
	return c.sender.Push(ctx, event.SetThreshold{Value: value})
}
