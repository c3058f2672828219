package sensor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/KyleBrandon/planty/internal/debounce"
)

// DefaultMockMoisture is roughly what the reference probe reads in damp soil.
const DefaultMockMoisture = 1800

func NewMockSensors(sc SensorConfig) *MockSensors {
	m := &MockSensors{
		config:   sc,
		moisture: DefaultMockMoisture,
		buttons:  make(map[string]*MockLine),
	}

	for name := range sc.Buttons {
		m.buttons[name] = NewMockLine(debounce.High)
	}

	return m
}

func (m *MockSensors) Close() error {
	return nil
}

// SetMoisture sets the value returned by subsequent reads.
func (m *MockSensors) SetMoisture(v int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.moisture = v
}

func (m *MockSensors) ReadMoisture(ctx context.Context) (int, error) {
	slog.Debug(">>ReadMoisture")
	defer slog.Debug("<<ReadMoisture")

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.moisture, nil
}

func (m *MockSensors) ReadSoilTemperature() TemperatureReading {
	slog.Debug(">>ReadSoilTemperature")
	defer slog.Debug("<<ReadSoilTemperature")

	device := m.config.SoilTemperatureDevice
	if device.Address == "" {
		return TemperatureReading{Err: fmt.Errorf("no soil temperature probe configured")}
	}

	// TODO: make the mock soil temperature configurable
	return celsiusReading(&device, 18.0)
}

func (m *MockSensors) IsPumpOn() (bool, error) {
	slog.Debug(">>IsPumpOn")
	defer slog.Debug("<<IsPumpOn")

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.pumpOn, nil
}

func (m *MockSensors) TurnPumpOn() error {
	slog.Debug(">>TurnPumpOn")
	defer slog.Debug("<<TurnPumpOn")

	m.mu.Lock()
	defer m.mu.Unlock()
	m.pumpOn = true

	return nil
}

func (m *MockSensors) TurnPumpOff() error {
	slog.Debug(">>TurnPumpOff")
	defer slog.Debug("<<TurnPumpOff")

	m.mu.Lock()
	defer m.mu.Unlock()
	m.pumpOn = false

	return nil
}

func (m *MockSensors) ButtonLine(_ context.Context, name string) (debounce.Line, error) {
	return m.Button(name)
}

// Button returns the mock line behind a configured button so it can be pressed.
func (m *MockSensors) Button(name string) (*MockLine, error) {
	line, ok := m.buttons[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownButton, name)
	}

	return line, nil
}

// MockLine is an in-memory digital input.
type MockLine struct {
	mu    sync.Mutex
	level debounce.Level
	edges chan struct{}
}

func NewMockLine(level debounce.Level) *MockLine {
	return &MockLine{
		level: level,
		edges: make(chan struct{}, 1),
	}
}

func (l *MockLine) Level() debounce.Level {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

func (l *MockLine) Edges() <-chan struct{} {
	return l.edges
}

// Set drives the line to level, signalling an edge if it changed.
func (l *MockLine) Set(level debounce.Level) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.level == level {
		return
	}

	l.level = level
	select {
	case l.edges <- struct{}{}:
	default:
	}
}
