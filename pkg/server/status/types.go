package status

import (
	"github.com/KyleBrandon/planty/internal/controller"
	"github.com/KyleBrandon/planty/internal/telemetry"
)

type (
	SystemStatus struct {
		controller.Status
		LinkConnected bool    `json:"link_connected"`
		MoistureLevel *uint16 `json:"moisture_level,omitempty"`
	}

	Handler struct {
		status         *telemetry.Latest[controller.Status]
		bridge         *telemetry.Bridge
		originPatterns []string
	}
)
