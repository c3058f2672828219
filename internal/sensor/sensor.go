package sensor

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

var (
	ErrNoPump           = errors.New("no pump device is configured")
	ErrNoMoistureSensor = errors.New("no moisture sensor is configured")
	ErrUnknownButton    = errors.New("button is not configured")
)

// NewSensorConfig sorts the configured devices by role and opens the hardware, or a mock
// of it when useMock is set.
func NewSensorConfig(sensorTimeoutSeconds int, devices []DeviceConfig, useMock bool) (Sensors, error) {
	slog.Debug(">>NewSensorConfig")
	defer slog.Debug("<<NewSensorConfig")

	sc, err := parseDevices(sensorTimeoutSeconds, devices)
	if err != nil {
		return nil, err
	}

	if useMock {
		return NewMockSensors(sc), nil
	}

	return NewHardwareSensors(sc)
}

func parseDevices(sensorTimeoutSeconds int, devices []DeviceConfig) (SensorConfig, error) {
	sc := SensorConfig{
		SensorTimeout: time.Duration(sensorTimeoutSeconds) * time.Second,
		Devices:       devices,
		Buttons:       make(map[string]DeviceConfig),
	}

	if sc.SensorTimeout <= 0 {
		sc.SensorTimeout = 2 * time.Second
	}

	for _, d := range sc.Devices {
		switch d.SensorType {
		case SENSOR_POWER:
			if d.Name == DEVICE_PUMP {
				sc.PumpDevice = d
			} else {
				slog.Warn("ignoring unknown power device", "name", d.Name)
			}

		case SENSOR_MOISTURE:
			if d.DriverType != DRIVERTYPE_MCP3208 {
				return sc, fmt.Errorf("moisture sensor %q: unsupported driver %q", d.Name, d.DriverType)
			}
			if d.Channel < 0 || d.Channel > 7 {
				return sc, fmt.Errorf("moisture sensor %q: channel %d out of range", d.Name, d.Channel)
			}
			cs, err := parseChipSelect(d.Address)
			if err != nil {
				return sc, fmt.Errorf("moisture sensor %q: %w", d.Name, err)
			}
			sc.MoistureDevice = d
			sc.MoistureChipSelect = cs

		case SENSOR_TEMPERATURE:
			if d.DriverType == DRIVERTYPE_DS18B20 {
				sc.SoilTemperatureDevice = d
			}

		case SENSOR_BUTTON:
			sc.Buttons[d.Name] = d

		default:
			slog.Warn("ignoring unknown sensor type", "name", d.Name, "sensor_type", d.SensorType)
		}
	}

	// every GPIO device address is a BCM pin number
	for _, d := range sc.Devices {
		if d.DriverType != DRIVERTYPE_GPIO {
			continue
		}
		if _, err := strconv.Atoi(d.Address); err != nil {
			return sc, fmt.Errorf("device %q: invalid pin %q: %w", d.Name, d.Address, err)
		}
	}

	return sc, nil
}

// parseChipSelect accepts the SPI0 chip select lines CE0 and CE1, written as "0" or "1".
// An empty address selects CE0.
func parseChipSelect(address string) (uint8, error) {
	if address == "" {
		return 0, nil
	}

	cs, err := strconv.Atoi(address)
	if err != nil || cs < 0 || cs > 1 {
		return 0, fmt.Errorf("invalid chip select %q", address)
	}

	return uint8(cs), nil
}

func celsiusReading(device *DeviceConfig, t float64) TemperatureReading {
	t += device.CalibrationOffsetCelsius

	return TemperatureReading{
		Name:         device.Name,
		Address:      device.Address,
		TemperatureC: t,
		TemperatureF: (t * 9 / 5) + 32,
	}
}
