package monitor

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/KyleBrandon/planty/internal/controller"
	"github.com/KyleBrandon/planty/internal/database"
	"github.com/KyleBrandon/planty/internal/event"
	"github.com/KyleBrandon/planty/internal/telemetry"
)

const notificationSubject = "Planty Notification"

var now = func() time.Time { return time.Now().UTC() }

// InitializeMonitorContext will initialize a new MonitorContext and start its goroutines.
// store and notifier may be nil.
func InitializeMonitorContext(notifier Notifier, store MonitorStore, sensors SoilSensor) *MonitorContext {
	slog.Debug(">>InitializeMonitorContext")
	defer slog.Debug("<<InitializeMonitorContext")

	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(context.Background())

	mctx := MonitorContext{
		wg:                &wg,
		ctx:               ctx,
		store:             store,
		sensors:           sensors,
		monitorCancelFunc: cancel,
	}

	mctx.ReadingCh = make(chan ReadingTask, taskBuffer)
	mctx.WateringCh = make(chan WateringTask, taskBuffer)
	mctx.ThresholdCh = make(chan ThresholdTask, taskBuffer)
	mctx.Notification.NotifyCh = make(chan NotificationTask, taskBuffer)
	mctx.Notification.notifier = notifier

	mctx.startMonitorRoutines()

	return &mctx
}

// CancelAndWait for the monitor routines to exit.
func (mctx *MonitorContext) CancelAndWait() {
	mctx.monitorCancelFunc()
	mctx.wg.Wait()
}

func (mctx *MonitorContext) startMonitorRoutines() {
	mctx.wg.Add(1)
	go mctx.monitorNotifications()

	mctx.wg.Add(1)
	go mctx.monitorHistory()
}

func (mctx *MonitorContext) EventHandled(ev event.Event, from, to controller.State, applied bool) {}

func (mctx *MonitorContext) PumpChanged(on bool, cause controller.Cause) {
	offer(mctx.WateringCh, WateringTask{On: on, Cause: cause, At: now()}, "watering")

	if cause == controller.CauseAuto && on {
		mctx.Notify("The soil is dry, watering the plant")
	}
}

func (mctx *MonitorContext) PumpFailed(on bool, cause controller.Cause, err error) {
	action := "off"
	if on {
		action = "on"
	}
	mctx.Notify(fmt.Sprintf("Failed to turn the pump %s (%s): %v", action, cause, err))
}

func (mctx *MonitorContext) ReadingTaken(reading int) {
	offer(mctx.ReadingCh, ReadingTask{Reading: reading}, "reading")
}

func (mctx *MonitorContext) ThresholdChanged(threshold int, cause controller.Cause) {
	offer(mctx.ThresholdCh, ThresholdTask{Threshold: threshold, Cause: cause}, "threshold")

	if cause == controller.CauseCalibration {
		mctx.Notify(fmt.Sprintf("Calibration complete, new threshold %d", threshold))
	}
}

// Notify queues a message for the notifier.
func (mctx *MonitorContext) Notify(message string) {
	offer(mctx.Notification.NotifyCh, NotificationTask{Message: message}, "notification")
}

// offer queues a task without blocking; a full queue drops it.
func offer[T any](ch chan T, task T, name string) {
	select {
	case ch <- task:
	default:
		slog.Warn("monitor queue full, dropping task", "queue", name)
	}
}

func (mctx *MonitorContext) monitorHistory() {
	slog.Debug(">>monitorHistory")
	defer slog.Debug("<<monitorHistory")

	defer mctx.wg.Done()

	for {
		select {
		case <-mctx.ctx.Done():
			slog.Debug("monitorHistory: context done")
			return

		case task := <-mctx.ReadingCh:
			mctx.saveReading(task)

		case task := <-mctx.WateringCh:
			mctx.saveWatering(task)

		case task := <-mctx.ThresholdCh:
			mctx.saveThreshold(task)
		}
	}
}

func (mctx *MonitorContext) saveReading(task ReadingTask) {
	if mctx.store == nil {
		return
	}

	soilTemp := sql.NullString{
		Valid: false,
	}

	if mctx.sensors != nil {
		tr := mctx.sensors.ReadSoilTemperature()
		if tr.Err != nil {
			slog.Warn("failed to read the soil temperature", "error", tr.Err)
		} else {
			soilTemp.Valid = true
			soilTemp.String = fmt.Sprintf("%f", tr.TemperatureC)
		}
	}

	arg := database.SaveReadingParams{
		Moisture:  int32(telemetry.MoistureLevel(task.Reading)),
		SoilTempC: soilTemp,
	}
	if _, err := mctx.store.SaveReading(mctx.ctx, arg); err != nil {
		slog.Error("failed to save the moisture reading", "error", err)
	}
}

func (mctx *MonitorContext) saveWatering(task WateringTask) {
	mctx.Lock()
	defer mctx.Unlock()

	if task.On {
		mctx.Watering.Running = true
		if mctx.store == nil {
			return
		}

		w, err := mctx.store.StartWatering(mctx.ctx, database.StartWateringParams{
			StartedAt: task.At,
			Cause:     string(task.Cause),
		})
		if err != nil {
			slog.Error("failed to save the watering start", "error", err)
			return
		}
		mctx.Watering.ID = w.ID
		return
	}

	if !mctx.Watering.Running {
		slog.Warn("pump turned off without a recorded watering", "cause", task.Cause)
		return
	}
	mctx.Watering.Running = false

	if mctx.store == nil {
		return
	}

	if _, err := mctx.store.StopWatering(mctx.ctx, mctx.Watering.ID); err != nil {
		slog.Error("failed to save the watering stop", "error", err)
	}
}

func (mctx *MonitorContext) saveThreshold(task ThresholdTask) {
	if mctx.store == nil {
		return
	}

	arg := database.SaveThresholdParams{
		Threshold: int32(task.Threshold),
		Cause:     string(task.Cause),
	}
	if _, err := mctx.store.SaveThreshold(mctx.ctx, arg); err != nil {
		slog.Error("failed to save the threshold", "error", err)
	}
}

func (mctx *MonitorContext) monitorNotifications() {
	slog.Debug(">>monitorNotifications")
	defer slog.Debug("<<monitorNotifications")

	defer mctx.wg.Done()
	for {
		select {
		case <-mctx.ctx.Done():
			slog.Debug("monitorNotifications: context done")
			return

		case task := <-mctx.Notification.NotifyCh:
			if mctx.Notification.notifier == nil {
				slog.Warn("Notifier is not registered for notifications", "message", task.Message)
				continue
			}

			err := mctx.Notification.notifier.Send(mctx.ctx, notificationSubject, task.Message)
			if err != nil {
				slog.Error("failed to send message", "error", err, "message", task.Message)
			}
		}
	}
}
