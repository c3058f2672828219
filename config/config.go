package config

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/KyleBrandon/planty/internal/controller"
	"github.com/KyleBrandon/planty/internal/debounce"
	"github.com/KyleBrandon/planty/internal/mailbox"
	"github.com/KyleBrandon/planty/internal/mqttlink"
	"github.com/KyleBrandon/planty/internal/producer"
	"github.com/KyleBrandon/planty/internal/sensor"
	"gopkg.in/yaml.v3"
)

const DefaultLogLevel = slog.LevelInfo

type (
	Config struct {
		Devices              []sensor.DeviceConfig `yaml:"devices"`
		SensorTimeoutSeconds int                   `yaml:"sensor_timeout_seconds"`
		OriginPatterns       []string              `yaml:"origin_patterns"`
		Controller           ControllerConfig      `yaml:"controller"`
		Link                 LinkConfig            `yaml:"link"`
		MQTT                 mqttlink.Config       `yaml:"mqtt"`
	}

	ControllerConfig struct {
		WateringDurationSeconds    int `yaml:"watering_duration_seconds"`
		DefaultThreshold           int `yaml:"default_threshold"`
		ThresholdBuffer            int `yaml:"threshold_buffer"`
		MeasurementIntervalSeconds int `yaml:"measurement_interval_seconds"`
		DebounceMillis             int `yaml:"debounce_millis"`
		MailboxCapacity            int `yaml:"mailbox_capacity"`
	}

	LinkConfig struct {
		DeviceName string `yaml:"device_name"`
	}
)

func LoadConfigSettings(filename string) (Config, error) {
	var config Config
	file, err := os.Open(filename)
	if err != nil {
		return config, err
	}

	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return config, err
	}

	err = yaml.Unmarshal(bytes, &config)
	if err != nil {
		return config, err
	}

	return config, nil
}

// Settings returns the controller settings, using the defaults for anything unset.
func (c ControllerConfig) Settings() controller.Settings {
	s := controller.DefaultSettings()

	if c.WateringDurationSeconds > 0 {
		s.WateringDuration = time.Duration(c.WateringDurationSeconds) * time.Second
	}
	if c.DefaultThreshold > 0 {
		s.DefaultThreshold = c.DefaultThreshold
	}
	if c.ThresholdBuffer > 0 {
		s.ThresholdBuffer = c.ThresholdBuffer
	}

	return s
}

func (c ControllerConfig) MeasurementInterval() time.Duration {
	if c.MeasurementIntervalSeconds <= 0 {
		return producer.DefaultMeasurementInterval
	}
	return time.Duration(c.MeasurementIntervalSeconds) * time.Second
}

func (c ControllerConfig) DebounceSettle() time.Duration {
	if c.DebounceMillis <= 0 {
		return debounce.DefaultSettle
	}
	return time.Duration(c.DebounceMillis) * time.Millisecond
}

func (c ControllerConfig) Capacity() int {
	if c.MailboxCapacity <= 0 {
		return mailbox.DefaultCapacity
	}
	return c.MailboxCapacity
}
