package sensor

import (
	"context"
	"sync"
	"time"

	"github.com/KyleBrandon/planty/internal/debounce"
)

const (
	DRIVERTYPE_DS18B20 string = "DS18B20"
	DRIVERTYPE_GPIO    string = "GPIO"
	DRIVERTYPE_MCP3208 string = "MCP3208"

	SENSOR_TEMPERATURE string = "temperature"
	SENSOR_MOISTURE    string = "moisture"
	SENSOR_BUTTON      string = "button"
	SENSOR_POWER       string = "power"

	BUTTON_WATER     string = "Water"
	BUTTON_CALIBRATE string = "Calibrate"
	DEVICE_PUMP      string = "Pump"
)

type (
	SensorConfig struct {
		SensorTimeout time.Duration
		Devices       []DeviceConfig

		PumpDevice            DeviceConfig
		MoistureDevice        DeviceConfig
		// MoistureChipSelect is the SPI0 chip select line of the MCP3208
		MoistureChipSelect    uint8
		SoilTemperatureDevice DeviceConfig
		Buttons               map[string]DeviceConfig
	}

	DeviceConfig struct {
		DriverType               string  `json:"driver_type" yaml:"driver_type"`
		SensorType               string  `json:"sensor_type" yaml:"sensor_type"`
		Address                  string  `json:"address" yaml:"address"`
		Name                     string  `json:"name" yaml:"name"`
		Description              string  `json:"description" yaml:"description"`
		NormallyOn               bool    `json:"normally_on,omitempty" yaml:"normally_on,omitempty"`
		Channel                  int     `json:"channel,omitempty" yaml:"channel,omitempty"`
		CalibrationOffsetCelsius float64 `json:"calibration_offset_celsius" yaml:"calibration_offset_celsius"`
	}

	TemperatureReading struct {
		Name         string  `json:"name,omitempty"`
		Address      string  `json:"address,omitempty"`
		TemperatureC float64 `json:"temperature_c,omitempty"`
		TemperatureF float64 `json:"temperature_f,omitempty"`
		Err          error   `json:"-"`
	}

	// Pump is the watering actuator.
	Pump interface {
		IsPumpOn() (bool, error)
		TurnPumpOn() error
		TurnPumpOff() error
	}

	// MoistureSensor samples the soil probe. Lower readings mean wetter soil.
	MoistureSensor interface {
		ReadMoisture(ctx context.Context) (int, error)
	}

	Sensors interface {
		Pump
		MoistureSensor
		ReadSoilTemperature() TemperatureReading
		ButtonLine(ctx context.Context, name string) (debounce.Line, error)
		Close() error
	}

	HardwareSensors struct {
		config SensorConfig
		spiMu  sync.Mutex
	}

	MockSensors struct {
		config SensorConfig

		mu       sync.Mutex
		pumpOn   bool
		moisture int
		buttons  map[string]*MockLine
	}
)
