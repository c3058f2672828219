package readings

import (
	"context"
	"time"

	"github.com/KyleBrandon/planty/internal/database"
	"github.com/KyleBrandon/planty/internal/sensor"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

type (
	Reading struct {
		CreatedAt time.Time `json:"created_at"`
		Moisture  int32     `json:"moisture"`
		SoilTempC *float64  `json:"soil_temp_c,omitempty"`
	}

	Watering struct {
		StartedAt time.Time  `json:"started_at"`
		Cause     string     `json:"cause"`
		EndedAt   *time.Time `json:"ended_at,omitempty"`
	}

	TemperatureReading struct {
		Name         string  `json:"name,omitempty"`
		Address      string  `json:"address,omitempty"`
		TemperatureC float64 `json:"temperature_c,omitempty"`
		TemperatureF float64 `json:"temperature_f,omitempty"`
		Err          string  `json:"err,omitempty"`
	}

	ReadingStore interface {
		GetReadings(ctx context.Context, limit int32) ([]database.Reading, error)
		GetWaterings(ctx context.Context, limit int32) ([]database.Watering, error)
	}

	SoilSensor interface {
		ReadSoilTemperature() sensor.TemperatureReading
	}

	Handler struct {
		store   ReadingStore
		sensors SoilSensor
	}
)
