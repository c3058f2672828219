package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/KyleBrandon/planty/internal/controller"
	"github.com/KyleBrandon/planty/internal/database"
	"github.com/KyleBrandon/planty/internal/sensor"
	"github.com/google/uuid"
)

const taskBuffer = 16

type (
	ReadingTask struct {
		Reading int
	}

	WateringTask struct {
		On    bool
		Cause controller.Cause
		At    time.Time
	}

	ThresholdTask struct {
		Threshold int
		Cause     controller.Cause
	}

	NotificationTask struct {
		Message string
	}

	// Notifier sends a message to the plant's owner. *notify.Notify satisfies it.
	Notifier interface {
		Send(ctx context.Context, subject, message string) error
	}

	SoilSensor interface {
		ReadSoilTemperature() sensor.TemperatureReading
	}

	MonitorStore interface {
		SaveReading(ctx context.Context, arg database.SaveReadingParams) (database.Reading, error)
		StartWatering(ctx context.Context, arg database.StartWateringParams) (database.Watering, error)
		StopWatering(ctx context.Context, id uuid.UUID) (database.Watering, error)
		SaveThreshold(ctx context.Context, arg database.SaveThresholdParams) (database.Threshold, error)
	}

	// MonitorContext records controller activity to the store and sends notifications.
	// It implements controller.Observer; observer calls never block the controller.
	MonitorContext struct {
		sync.Mutex
		wg                *sync.WaitGroup
		ctx               context.Context
		monitorCancelFunc context.CancelFunc
		store             MonitorStore
		sensors           SoilSensor

		ReadingCh   chan ReadingTask
		WateringCh  chan WateringTask
		ThresholdCh chan ThresholdTask

		Watering struct {
			Running bool
			ID      uuid.UUID
		}

		Notification struct {
			NotifyCh chan NotificationTask
			notifier Notifier
		}
	}
)
