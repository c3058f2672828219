package controller

import (
	"fmt"
	"time"

	"github.com/KyleBrandon/planty/internal/event"
)

const (
	DefaultWateringDuration = 5 * time.Second
	DefaultThreshold        = 2000
	DefaultThresholdBuffer  = 100
)

const (
	CauseManual      Cause = "manual"
	CauseAuto        Cause = "auto"
	CauseCalibration Cause = "calibration"
	CauseOverride    Cause = "override"
	CauseShutdown    Cause = "shutdown"
)

type (
	State int

	// Cause says why the pump or the threshold changed.
	Cause string

	Settings struct {
		WateringDuration time.Duration
		DefaultThreshold int
		ThresholdBuffer  int
	}

	// Status is a snapshot of controller-owned values for observers outside the controller.
	Status struct {
		State       State     `json:"state"`
		Threshold   int       `json:"threshold"`
		PumpOn      bool      `json:"pump_on"`
		LastReading int       `json:"last_reading"`
		HasReading  bool      `json:"has_reading"`
		UpdatedAt   time.Time `json:"updated_at"`
	}

	// ReadingPublisher receives every moisture reading the controller takes.
	ReadingPublisher interface {
		PublishReading(reading int)
	}

	// Observer is told about everything the controller does. Implementations must not block.
	Observer interface {
		EventHandled(ev event.Event, from, to State, applied bool)
		PumpChanged(on bool, cause Cause)
		PumpFailed(on bool, cause Cause, err error)
		ReadingTaken(reading int)
		ThresholdChanged(threshold int, cause Cause)
	}

	// Observers fans calls out to each observer in order.
	Observers []Observer
)

const (
	Idle State = iota
	Watering
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Watering:
		return "watering"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "idle":
		*s = Idle
	case "watering":
		*s = Watering
	default:
		return fmt.Errorf("unknown state %q", text)
	}
	return nil
}

func DefaultSettings() Settings {
	return Settings{
		WateringDuration: DefaultWateringDuration,
		DefaultThreshold: DefaultThreshold,
		ThresholdBuffer:  DefaultThresholdBuffer,
	}
}

func (o Observers) EventHandled(ev event.Event, from, to State, applied bool) {
	for _, obs := range o {
		obs.EventHandled(ev, from, to, applied)
	}
}

func (o Observers) PumpChanged(on bool, cause Cause) {
	for _, obs := range o {
		obs.PumpChanged(on, cause)
	}
}

func (o Observers) PumpFailed(on bool, cause Cause, err error) {
	for _, obs := range o {
		obs.PumpFailed(on, cause, err)
	}
}

func (o Observers) ReadingTaken(reading int) {
	for _, obs := range o {
		obs.ReadingTaken(reading)
	}
}

func (o Observers) ThresholdChanged(threshold int, cause Cause) {
	for _, obs := range o {
		obs.ThresholdChanged(threshold, cause)
	}
}
