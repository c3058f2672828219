package pump

import (
	"context"

	"github.com/KyleBrandon/planty/internal/controller"
	"github.com/KyleBrandon/planty/internal/telemetry"
)

type (
	// Commands queues pump and threshold events for the controller.
	Commands interface {
		PumpControl(ctx context.Context, value uint8) error
		Threshold(ctx context.Context, value int) error
	}

	Handler struct {
		status   *telemetry.Latest[controller.Status]
		commands Commands
		apiKey   string
	}

	PumpResponse struct {
		PumpOn bool             `json:"pump_on"`
		State  controller.State `json:"state"`
	}

	ThresholdRequest struct {
		Threshold *int `json:"threshold"`
	}
)
