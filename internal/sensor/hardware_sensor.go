package sensor

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/KyleBrandon/planty/internal/debounce"
	"github.com/stianeikeland/go-rpio/v4"
	"github.com/yryz/ds18b20"
)

const buttonPollInterval = 2 * time.Millisecond

// NewHardwareSensors maps the GPIO and SPI registers. Close must be called to release them.
func NewHardwareSensors(sc SensorConfig) (*HardwareSensors, error) {
	slog.Debug(">>NewHardwareSensors")
	defer slog.Debug("<<NewHardwareSensors")

	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("open gpio: %w", err)
	}

	s := &HardwareSensors{config: sc}

	if s.config.MoistureDevice.Name != "" {
		if err := rpio.SpiBegin(rpio.Spi0); err != nil {
			rpio.Close()
			return nil, fmt.Errorf("open spi: %w", err)
		}

		rpio.SpiChipSelect(s.config.MoistureChipSelect)
		rpio.SpiSpeed(1_000_000)
	}

	// start with the pump off
	if s.config.PumpDevice.Address != "" {
		if err := turnDeviceOff(&s.config.PumpDevice); err != nil {
			s.Close()
			return nil, err
		}
	}

	return s, nil
}

func (s *HardwareSensors) Close() error {
	slog.Debug(">>Close")
	defer slog.Debug("<<Close")

	if s.config.MoistureDevice.Name != "" {
		rpio.SpiEnd(rpio.Spi0)
	}

	return rpio.Close()
}

// ReadMoisture samples the configured MCP3208 channel.
func (s *HardwareSensors) ReadMoisture(ctx context.Context) (int, error) {
	slog.Debug(">>ReadMoisture")
	defer slog.Debug("<<ReadMoisture")

	if s.config.MoistureDevice.Name == "" {
		return 0, ErrNoMoistureSensor
	}

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.spiMu.Lock()
	defer s.spiMu.Unlock()

	buffer := mcp3208Request(s.config.MoistureDevice.Channel)
	rpio.SpiExchange(buffer)

	return mcp3208Value(buffer), nil
}

// mcp3208Request builds a single-ended conversion request for channel.
func mcp3208Request(channel int) []byte {
	return []byte{
		0x06 | byte(channel>>2)&0x01,
		byte(channel&0x03) << 6,
		0x00,
	}
}

// mcp3208Value extracts the 12 bit conversion result from the exchanged buffer.
func mcp3208Value(rx []byte) int {
	return int(rx[1]&0x0F)<<8 | int(rx[2])
}

func (s *HardwareSensors) ReadSoilTemperature() TemperatureReading {
	slog.Debug(">>ReadSoilTemperature")
	defer slog.Debug("<<ReadSoilTemperature")

	device := s.config.SoilTemperatureDevice
	if device.Address == "" {
		return TemperatureReading{Err: fmt.Errorf("no soil temperature probe configured")}
	}

	type result struct {
		t   float64
		err error
	}

	// the 1-wire read can stall for a long time on a bad probe
	ch := make(chan result, 1)
	go func() {
		t, err := ds18b20.Temperature(device.Address)
		ch <- result{t, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			slog.Error("failed to read sensor", "name", device.Name, "address", device.Address, "error", r.err)
			return TemperatureReading{Name: device.Name, Address: device.Address, Err: r.err}
		}
		return celsiusReading(&device, r.t)

	case <-time.After(s.config.SensorTimeout):
		err := fmt.Errorf("timed out reading %s after %v", device.Name, s.config.SensorTimeout)
		slog.Error("failed to read sensor", "name", device.Name, "address", device.Address, "error", err)
		return TemperatureReading{Name: device.Name, Address: device.Address, Err: err}
	}
}

func (s *HardwareSensors) IsPumpOn() (bool, error) {
	slog.Debug(">>IsPumpOn")
	defer slog.Debug("<<IsPumpOn")

	if s.config.PumpDevice.Address == "" {
		return false, ErrNoPump
	}

	return isDeviceOn(&s.config.PumpDevice)
}

func (s *HardwareSensors) TurnPumpOn() error {
	slog.Debug(">>TurnPumpOn")
	defer slog.Debug("<<TurnPumpOn")

	if s.config.PumpDevice.Address == "" {
		return ErrNoPump
	}

	return turnDeviceOn(&s.config.PumpDevice)
}

func (s *HardwareSensors) TurnPumpOff() error {
	slog.Debug(">>TurnPumpOff")
	defer slog.Debug("<<TurnPumpOff")

	if s.config.PumpDevice.Address == "" {
		return ErrNoPump
	}

	return turnDeviceOff(&s.config.PumpDevice)
}

// ButtonLine configures the named button as a pulled-up input and polls it for edges
// until ctx is done.
func (s *HardwareSensors) ButtonLine(ctx context.Context, name string) (debounce.Line, error) {
	device, ok := s.config.Buttons[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownButton, name)
	}

	pinNumber, err := strconv.Atoi(device.Address)
	if err != nil {
		return nil, err
	}

	pin := rpio.Pin(pinNumber)
	pin.Input()
	pin.PullUp()

	line := &gpioLine{
		pin:   pin,
		edges: make(chan struct{}, 1),
	}
	line.level.Store(uint32(pin.Read()))

	go line.poll(ctx)

	return line, nil
}

type gpioLine struct {
	pin   rpio.Pin
	level atomic.Uint32
	edges chan struct{}
}

func (l *gpioLine) Level() debounce.Level {
	if rpio.State(l.level.Load()) == rpio.High {
		return debounce.High
	}
	return debounce.Low
}

func (l *gpioLine) Edges() <-chan struct{} {
	return l.edges
}

func (l *gpioLine) poll(ctx context.Context) {
	slog.Debug(">>poll", "pin", l.pin)
	defer slog.Debug("<<poll", "pin", l.pin)

	ticker := time.NewTicker(buttonPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			current := uint32(l.pin.Read())
			if l.level.Swap(current) != current {
				select {
				case l.edges <- struct{}{}:
				default:
				}
			}
		}
	}
}

func isDeviceOn(device *DeviceConfig) (bool, error) {
	slog.Debug(">>isDeviceOn", "name", device.Name, "address", device.Address)
	defer slog.Debug("<<isDeviceOn")

	pinNumber, err := strconv.Atoi(device.Address)
	if err != nil {
		return false, err
	}

	pin := rpio.Pin(pinNumber)
	res := pin.Read()

	var pinOnValue rpio.State = rpio.High
	if device.NormallyOn {
		pinOnValue = rpio.Low
	}

	return res == pinOnValue, nil
}

func turnDeviceOn(device *DeviceConfig) error {
	slog.Info(">>turnDeviceOn", "name", device.Name)
	defer slog.Info("<<turnDeviceOn", "name", device.Name)

	pinNumber, err := strconv.Atoi(device.Address)
	if err != nil {
		return err
	}

	pin := rpio.Pin(pinNumber)
	pin.Output()

	// if the device is normally on, that means the pin is low when it is on
	if device.NormallyOn {
		pin.Low()
	} else {
		pin.High()
	}

	return nil
}

func turnDeviceOff(device *DeviceConfig) error {
	slog.Info(">>turnDeviceOff", "name", device.Name)
	defer slog.Info("<<turnDeviceOff", "name", device.Name)

	pinNumber, err := strconv.Atoi(device.Address)
	if err != nil {
		return err
	}

	pin := rpio.Pin(pinNumber)
	pin.Output()

	// if the device is normally on, that means the pin is high when it is off
	if device.NormallyOn {
		pin.High()
	} else {
		pin.Low()
	}

	return nil
}
