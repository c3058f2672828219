package controller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/KyleBrandon/planty/internal/event"
	"github.com/KyleBrandon/planty/internal/mailbox"
)

type mockPump struct {
	mu      sync.Mutex
	on      bool
	history []bool
	onErr   error
	offErr  error
	// offFails makes the next offFails calls to TurnPumpOff fail
	offFails int
}

func (m *mockPump) IsPumpOn() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.on, nil
}

func (m *mockPump) TurnPumpOn() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.onErr != nil {
		return m.onErr
	}
	m.on = true
	m.history = append(m.history, true)
	return nil
}

func (m *mockPump) TurnPumpOff() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.offErr != nil {
		return m.offErr
	}
	if m.offFails > 0 {
		m.offFails--
		return errors.New("relay fault")
	}
	m.on = false
	m.history = append(m.history, false)
	return nil
}

func (m *mockPump) changes() []bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]bool(nil), m.history...)
}

type mockMoisture struct {
	reading int
	err     error
	reads   int
}

func (m *mockMoisture) ReadMoisture(ctx context.Context) (int, error) {
	m.reads++
	return m.reading, m.err
}

type mockPublisher struct {
	mu       sync.Mutex
	readings []int
}

func (m *mockPublisher) PublishReading(reading int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readings = append(m.readings, reading)
}

type handledEvent struct {
	ev       event.Event
	from, to State
	applied  bool
}

type recordingObserver struct {
	mu         sync.Mutex
	handled    []handledEvent
	pump       []Cause
	failures   int
	thresholds []int
}

func (r *recordingObserver) EventHandled(ev event.Event, from, to State, applied bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handled = append(r.handled, handledEvent{ev, from, to, applied})
}

func (r *recordingObserver) PumpChanged(on bool, cause Cause) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pump = append(r.pump, cause)
}

func (r *recordingObserver) PumpFailed(on bool, cause Cause, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures++
}

func (r *recordingObserver) ReadingTaken(reading int) {}

func (r *recordingObserver) ThresholdChanged(threshold int, cause Cause) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.thresholds = append(r.thresholds, threshold)
}

const testWateringDuration = 40 * time.Millisecond

type fixture struct {
	c         *Controller
	pump      *mockPump
	moisture  *mockMoisture
	published *mockPublisher
	observer  *recordingObserver
	mailbox   *mailbox.Mailbox
}

func newFixture(threshold int) *fixture {
	f := &fixture{
		pump:      &mockPump{},
		moisture:  &mockMoisture{},
		published: &mockPublisher{},
		observer:  &recordingObserver{},
		mailbox:   mailbox.New(4),
	}

	settings := Settings{
		WateringDuration: testWateringDuration,
		DefaultThreshold: threshold,
		ThresholdBuffer:  DefaultThresholdBuffer,
	}
	f.c = New(f.mailbox, f.pump, f.moisture, f.published, settings, f.observer)

	return f
}

func TestManualCycle(t *testing.T) {
	f := newFixture(DefaultThreshold)
	ctx := context.Background()

	f.c.handle(ctx, event.Water{})
	if f.c.state != Watering || !f.pump.on {
		t.Fatalf("expected Watering with pump on, got %v pump=%v", f.c.state, f.pump.on)
	}

	f.c.handle(ctx, event.WateringComplete{})
	if f.c.state != Idle || f.pump.on {
		t.Fatalf("expected Idle with pump off, got %v pump=%v", f.c.state, f.pump.on)
	}

	if got := f.pump.changes(); len(got) != 2 || !got[0] || got[1] {
		t.Errorf("expected pump on then off, got %v", got)
	}
}

func TestAutoWatering(t *testing.T) {
	t.Run("dry reading waters for the fixed duration", func(t *testing.T) {
		f := newFixture(1900)
		f.moisture.reading = 2000

		start := time.Now()
		f.c.handle(context.Background(), event.Measure{})
		elapsed := time.Since(start)

		if len(f.published.readings) != 1 || f.published.readings[0] != 2000 {
			t.Errorf("expected reading 2000 to be published, got %v", f.published.readings)
		}

		if got := f.pump.changes(); len(got) != 2 || !got[0] || got[1] {
			t.Errorf("expected pump on then off, got %v", got)
		}

		if elapsed < testWateringDuration {
			t.Errorf("expected the pump to run for %v, handler returned after %v", testWateringDuration, elapsed)
		}

		if f.c.state != Idle {
			t.Errorf("expected state to remain Idle, got %v", f.c.state)
		}

		for _, h := range f.observer.handled {
			if h.to != Idle {
				t.Errorf("auto watering must not leave Idle, saw transition to %v", h.to)
			}
		}

		if len(f.observer.pump) != 2 || f.observer.pump[0] != CauseAuto {
			t.Errorf("expected two automatic pump changes, got %v", f.observer.pump)
		}
	})

	t.Run("wet reading does not water", func(t *testing.T) {
		f := newFixture(1900)
		f.moisture.reading = 1500

		f.c.handle(context.Background(), event.Measure{})

		if len(f.published.readings) != 1 || f.published.readings[0] != 1500 {
			t.Errorf("expected reading 1500 to be published, got %v", f.published.readings)
		}

		if got := f.pump.changes(); len(got) != 0 {
			t.Errorf("expected the pump never to run, got %v", got)
		}
	})

	t.Run("reading equal to threshold is not dry", func(t *testing.T) {
		f := newFixture(1900)
		f.moisture.reading = 1900

		f.c.handle(context.Background(), event.Measure{})

		if got := f.pump.changes(); len(got) != 0 {
			t.Errorf("expected the pump never to run, got %v", got)
		}
	})

	t.Run("shutdown during watering still stops the pump", func(t *testing.T) {
		f := newFixture(1900)
		f.moisture.reading = 2500
		f.c.settings.WateringDuration = time.Hour

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		f.c.handle(ctx, event.Measure{})

		if f.pump.on {
			t.Error("expected the pump to be off")
		}
	})
}

func TestCalibration(t *testing.T) {
	t.Run("threshold is dry reading minus buffer", func(t *testing.T) {
		f := newFixture(DefaultThreshold)
		f.moisture.reading = 2840

		f.c.handle(context.Background(), event.Calibrate{})

		if f.c.threshold != 2740 {
			t.Errorf("expected threshold 2740, got %d", f.c.threshold)
		}

		if f.c.state != Idle {
			t.Errorf("expected Idle, got %v", f.c.state)
		}
	})

	t.Run("failed read keeps the threshold", func(t *testing.T) {
		f := newFixture(DefaultThreshold)
		f.moisture.err = errors.New("spi failure")

		f.c.handle(context.Background(), event.Calibrate{})

		if f.c.threshold != DefaultThreshold {
			t.Errorf("expected threshold %d, got %d", DefaultThreshold, f.c.threshold)
		}
	})
}

func TestRemoteOverride(t *testing.T) {
	ctx := context.Background()

	// under the original threshold the reading is wet
	before := newFixture(1900)
	before.moisture.reading = 1300
	before.c.handle(ctx, event.Measure{})
	if len(before.pump.changes()) != 0 {
		t.Fatal("reading 1300 must not water under threshold 1900")
	}

	f := newFixture(1900)
	f.moisture.reading = 1300
	f.c.handle(ctx, event.SetThreshold{Value: 1200})
	if f.c.threshold != 1200 {
		t.Fatalf("expected threshold 1200, got %d", f.c.threshold)
	}

	f.c.handle(ctx, event.Measure{})
	if got := f.pump.changes(); len(got) != 2 {
		t.Errorf("expected reading 1300 to trigger watering after override, got %v", got)
	}
}

func TestIgnoredPairs(t *testing.T) {
	tests := []struct {
		name  string
		state State
		ev    event.Event
	}{
		{"idle watering complete", Idle, event.WateringComplete{}},
		{"watering water", Watering, event.Water{}},
		{"watering measure", Watering, event.Measure{}},
		{"watering calibrate", Watering, event.Calibrate{}},
		{"watering set threshold", Watering, event.SetThreshold{Value: 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(1900)
			f.moisture.reading = 4000
			ctx := context.Background()

			if tt.state == Watering {
				f.c.handle(ctx, event.Water{})
			}
			pumpChanges := len(f.pump.changes())

			f.c.handle(ctx, tt.ev)

			if f.c.state != tt.state {
				t.Errorf("expected state %v, got %v", tt.state, f.c.state)
			}

			if f.c.threshold != 1900 {
				t.Errorf("expected threshold unchanged, got %d", f.c.threshold)
			}

			if len(f.pump.changes()) != pumpChanges {
				t.Errorf("expected no actuator change, got %v", f.pump.changes())
			}

			if f.moisture.reads != 0 {
				t.Errorf("expected no sensor read, got %d", f.moisture.reads)
			}

			last := f.observer.handled[len(f.observer.handled)-1]
			if last.applied {
				t.Error("expected the event to be reported as ignored")
			}
		})
	}
}

func TestActuatorFailure(t *testing.T) {
	t.Run("failed start stays idle", func(t *testing.T) {
		f := newFixture(1900)
		f.pump.onErr = errors.New("relay fault")

		f.c.handle(context.Background(), event.Water{})

		if f.c.state != Idle {
			t.Errorf("expected Idle, got %v", f.c.state)
		}
		if f.observer.failures != 1 {
			t.Errorf("expected one pump failure, got %d", f.observer.failures)
		}
	})

	t.Run("failed stop stays watering", func(t *testing.T) {
		f := newFixture(1900)
		f.c.handle(context.Background(), event.Water{})
		f.pump.offErr = errors.New("relay fault")

		f.c.handle(context.Background(), event.WateringComplete{})

		if f.c.state != Watering {
			t.Errorf("expected Watering, got %v", f.c.state)
		}
	})
}

func TestAutoWateringStopFailure(t *testing.T) {
	t.Run("one failed stop is retried", func(t *testing.T) {
		f := newFixture(1900)
		f.moisture.reading = 2000
		f.pump.offFails = 1

		f.c.handle(context.Background(), event.Measure{})

		if f.c.state != Idle || f.c.pumpOn || f.pump.on {
			t.Errorf("expected Idle with pump off, got %v pumpOn=%v", f.c.state, f.c.pumpOn)
		}
		if f.observer.failures != 0 {
			t.Errorf("expected no reported failures, got %d", f.observer.failures)
		}
	})

	t.Run("stuck pump moves to watering", func(t *testing.T) {
		f := newFixture(1900)
		f.moisture.reading = 2000
		f.pump.offErr = errors.New("relay fault")

		f.c.handle(context.Background(), event.Measure{})

		if f.c.state != Watering || !f.c.pumpOn {
			t.Errorf("expected Watering with pump on, got %v pumpOn=%v", f.c.state, f.c.pumpOn)
		}
		if f.observer.failures != 1 {
			t.Errorf("expected one pump failure, got %d", f.observer.failures)
		}

		s, _ := f.c.Status().Load()
		if s.State != Watering || !s.PumpOn {
			t.Errorf("expected status to show Watering with pump on, got %+v", s)
		}

		f.pump.mu.Lock()
		f.pump.offErr = nil
		f.pump.mu.Unlock()

		f.c.handle(context.Background(), event.WateringComplete{})

		if f.c.state != Idle || f.pump.on {
			t.Errorf("expected WateringComplete to stop the pump, got %v pump=%v", f.c.state, f.pump.on)
		}
	})
}

func TestSensorFailure(t *testing.T) {
	f := newFixture(1900)
	f.moisture.err = errors.New("spi failure")

	f.c.handle(context.Background(), event.Measure{})

	if len(f.published.readings) != 0 {
		t.Errorf("expected nothing published, got %v", f.published.readings)
	}
	if len(f.pump.changes()) != 0 {
		t.Errorf("expected no pump activity, got %v", f.pump.changes())
	}
}

func TestRun(t *testing.T) {
	f := newFixture(1900)
	ctx, cancel := context.WithCancel(context.Background())

	sub := f.c.Status().Subscribe()
	defer sub.Unsubscribe()
	<-sub.C()

	done := make(chan error, 1)
	go func() {
		done <- f.c.Run(ctx)
	}()

	if err := f.mailbox.Push(ctx, event.Water{}); err != nil {
		t.Fatalf("push failed: %v", err)
	}

	select {
	case status := <-sub.C():
		if status.State != Watering || !status.PumpOn {
			t.Errorf("expected watering status, got %+v", status)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for status")
	}

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected a clean exit, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("controller did not stop")
	}

	if f.pump.on {
		t.Error("expected the pump to be switched off on shutdown")
	}
}

func TestStateString(t *testing.T) {
	if Idle.String() != "idle" || Watering.String() != "watering" {
		t.Errorf("unexpected state names %q %q", Idle, Watering)
	}

	text, _ := Watering.MarshalText()
	if string(text) != "watering" {
		t.Errorf("unexpected text %q", text)
	}
}

func TestStateUnmarshalText(t *testing.T) {
	var s State
	if err := s.UnmarshalText([]byte("watering")); err != nil || s != Watering {
		t.Errorf("expected watering, got %v (%v)", s, err)
	}

	if err := s.UnmarshalText([]byte("flooding")); err == nil {
		t.Error("expected an error for an unknown state")
	}
}
