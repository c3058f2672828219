package controller

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/KyleBrandon/planty/internal/event"
	"github.com/KyleBrandon/planty/internal/mailbox"
	"github.com/KyleBrandon/planty/internal/sensor"
	"github.com/KyleBrandon/planty/internal/telemetry"
)

// Controller drains the mailbox and owns the watering state machine. The state, the
// threshold, the pump and the moisture sensor are only touched by the goroutine running Run.
type Controller struct {
	mailbox  *mailbox.Mailbox
	pump     sensor.Pump
	moisture sensor.MoistureSensor
	readings ReadingPublisher
	observer Observer
	settings Settings
	status   *telemetry.Latest[Status]

	state       State
	threshold   int
	pumpOn      bool
	lastReading int
	hasReading  bool
}

func New(
	mb *mailbox.Mailbox,
	pump sensor.Pump,
	moisture sensor.MoistureSensor,
	readings ReadingPublisher,
	settings Settings,
	observers ...Observer,
) *Controller {
	if settings.WateringDuration <= 0 {
		settings.WateringDuration = DefaultWateringDuration
	}

	c := &Controller{
		mailbox:   mb,
		pump:      pump,
		moisture:  moisture,
		readings:  readings,
		observer:  Observers(observers),
		settings:  settings,
		status:    telemetry.NewLatest[Status](),
		state:     Idle,
		threshold: settings.DefaultThreshold,
	}
	c.publishStatus()

	return c
}

// Status is the cell the controller publishes a snapshot to after every event.
func (c *Controller) Status() *telemetry.Latest[Status] {
	return c.status
}

// Run processes events one at a time until ctx is done. The pump is switched off on return.
func (c *Controller) Run(ctx context.Context) error {
	slog.Info(">>Run", "threshold", c.threshold, "watering_duration", c.settings.WateringDuration)
	defer slog.Info("<<Run")

	defer c.shutdown()

	for {
		ev, err := c.mailbox.Pop(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}

		c.handle(ctx, ev)
	}
}

func (c *Controller) handle(ctx context.Context, ev event.Event) {
	from := c.state
	applied := true

	switch c.state {
	case Idle:
		switch e := ev.(type) {
		case event.Water:
			c.startWatering()
		case event.Measure:
			c.measure(ctx)
		case event.Calibrate:
			c.calibrate(ctx)
		case event.SetThreshold:
			c.setThreshold(e.Value, CauseOverride)
		case event.WateringComplete:
			applied = false
		default:
			applied = false
		}

	case Watering:
		// nothing interrupts a watering cycle except the request to end it
		switch ev.(type) {
		case event.WateringComplete:
			c.stopWatering()
		case event.Water, event.Measure, event.Calibrate, event.SetThreshold:
			applied = false
		default:
			applied = false
		}

	default:
		applied = false
	}

	if !applied {
		slog.Debug("ignoring event", "event", ev, "state", c.state)
	}

	c.observer.EventHandled(ev, from, c.state, applied)
	c.publishStatus()
}

func (c *Controller) startWatering() {
	slog.Info("Watering requested")

	if err := c.pump.TurnPumpOn(); err != nil {
		slog.Error("failed to turn the pump on", "error", err)
		c.observer.PumpFailed(true, CauseManual, err)
		return
	}

	c.pumpOn = true
	c.state = Watering
	c.observer.PumpChanged(true, CauseManual)
}

func (c *Controller) stopWatering() {
	if err := c.pump.TurnPumpOff(); err != nil {
		slog.Error("failed to turn the pump off", "error", err)
		c.observer.PumpFailed(false, CauseManual, err)
		return
	}

	c.pumpOn = false
	c.state = Idle
	c.observer.PumpChanged(false, CauseManual)
	slog.Info("Watering complete")
}

func (c *Controller) measure(ctx context.Context) {
	reading, err := c.moisture.ReadMoisture(ctx)
	if err != nil {
		slog.Error("failed to read the moisture sensor", "error", err)
		return
	}

	slog.Info("Moisture reading", "reading", reading, "threshold", c.threshold)

	c.lastReading = reading
	c.hasReading = true
	c.readings.PublishReading(reading)
	c.observer.ReadingTaken(reading)

	// lower readings are wetter
	if reading > c.threshold {
		slog.Info("Soil is dry, watering", "reading", reading, "threshold", c.threshold)
		c.autoWater(ctx)
	}
}

// autoWater runs the pump for the fixed watering duration without leaving Idle. If the
// pump cannot be stopped the controller moves to Watering.
func (c *Controller) autoWater(ctx context.Context) {
	if err := c.pump.TurnPumpOn(); err != nil {
		slog.Error("failed to turn the pump on for automatic watering", "error", err)
		c.observer.PumpFailed(true, CauseAuto, err)
		return
	}

	c.pumpOn = true
	c.observer.PumpChanged(true, CauseAuto)
	c.publishStatus()

	timer := time.NewTimer(c.settings.WateringDuration)
	select {
	case <-timer.C:
	case <-ctx.Done():
		timer.Stop()
		slog.Warn("automatic watering cut short by shutdown")
	}

	if err := c.pump.TurnPumpOff(); err != nil {
		slog.Warn("failed to turn the pump off after automatic watering, retrying", "error", err)

		if err := c.pump.TurnPumpOff(); err != nil {
			// the pump is still running, so the controller takes it over as a manual
			// watering that the next WateringComplete stops
			slog.Error("pump stuck on after automatic watering", "error", err)
			c.state = Watering
			c.observer.PumpFailed(false, CauseAuto, err)
			return
		}
	}

	c.pumpOn = false
	c.observer.PumpChanged(false, CauseAuto)
	slog.Info("Automatic watering complete")
}

func (c *Controller) calibrate(ctx context.Context) {
	slog.Info("Starting calibration, taking dry soil reading")

	dry, err := c.moisture.ReadMoisture(ctx)
	if err != nil {
		slog.Error("failed to take the dry reading, keeping threshold", "threshold", c.threshold, "error", err)
		return
	}

	slog.Info("Dry reading", "reading", dry)
	c.setThreshold(dry-c.settings.ThresholdBuffer, CauseCalibration)
}

func (c *Controller) setThreshold(threshold int, cause Cause) {
	slog.Info("New threshold set", "threshold", threshold, "previous", c.threshold, "cause", cause)

	c.threshold = threshold
	c.observer.ThresholdChanged(threshold, cause)
}

func (c *Controller) shutdown() {
	if !c.pumpOn {
		return
	}

	if err := c.pump.TurnPumpOff(); err != nil {
		slog.Error("failed to turn the pump off on shutdown", "error", err)
		c.observer.PumpFailed(false, CauseShutdown, err)
		return
	}

	c.pumpOn = false
	c.state = Idle
	c.observer.PumpChanged(false, CauseShutdown)
	c.publishStatus()
}

func (c *Controller) publishStatus() {
	c.status.Publish(Status{
		State:       c.state,
		Threshold:   c.threshold,
		PumpOn:      c.pumpOn,
		LastReading: c.lastReading,
		HasReading:  c.hasReading,
		UpdatedAt:   time.Now().UTC(),
	})
}
