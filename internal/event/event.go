package event

import "fmt"

// Event is a command delivered to the controller through the mailbox.
//
// The set of events is closed: the unexported marker keeps other packages from
// adding cases, so the controller's type switch covers every event.
type Event interface {
	isEvent()
	fmt.Stringer
}

type (
	// Water is a manual request to start the pump.
	Water struct{}

	// WateringComplete is a manual request to stop the pump.
	WateringComplete struct{}

	// Measure asks the controller to sample the moisture sensor.
	Measure struct{}

	// Calibrate asks the controller to capture a dry reading and derive a threshold from it.
	Calibrate struct{}

	// SetThreshold overrides the controller's threshold.
	SetThreshold struct {
		Value int
	}
)

func (Water) isEvent()            {}
func (WateringComplete) isEvent() {}
func (Measure) isEvent()          {}
func (Calibrate) isEvent()        {}
func (SetThreshold) isEvent()     {}

func (Water) String() string            { return "Water" }
func (WateringComplete) String() string { return "WateringComplete" }
func (Measure) String() string          { return "Measure" }
func (Calibrate) String() string        { return "Calibrate" }
func (e SetThreshold) String() string   { return fmt.Sprintf("SetThreshold(%d)", e.Value) }

// Kind returns the event name without any payload, suitable as a metric label.
func Kind(e Event) string {
	switch e.(type) {
	case Water:
		return "water"
	case WateringComplete:
		return "watering_complete"
	case Measure:
		return "measure"
	case Calibrate:
		return "calibrate"
	case SetThreshold:
		return "set_threshold"
	default:
		return "unknown"
	}
}
