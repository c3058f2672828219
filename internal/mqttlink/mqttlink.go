package mqttlink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/KyleBrandon/planty/internal/controller"
	"github.com/KyleBrandon/planty/internal/telemetry"
	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	DefaultTopicPrefix    = "planty"
	DefaultConnectRetries = 5

	publishTimeout    = 5 * time.Second
	disconnectQuiesce = 250
	commandBuffer     = 16
)

var ErrInvalidPayload = errors.New("invalid payload")

type (
	Config struct {
		Broker         string `yaml:"broker"`
		ClientID       string `yaml:"client_id"`
		Username       string `yaml:"username"`
		Password       string `yaml:"password"`
		TopicPrefix    string `yaml:"topic_prefix"`
		ConnectRetries int    `yaml:"connect_retries"`
	}

	// Commands receives pump and threshold commands from the broker.
	Commands interface {
		PumpControl(ctx context.Context, value uint8) error
		Threshold(ctx context.Context, value int) error
	}

	// Bridge mirrors the latest moisture level and controller status to retained topics
	// and forwards command topics to the controller.
	Bridge struct {
		client   mqtt.Client
		prefix   string
		commands Commands
		inbox    chan mqtt.Message
	}
)

// Connect dials the broker, retrying with exponential backoff.
func Connect(ctx context.Context, cfg Config) (mqtt.Client, error) {
	slog.Debug(">>mqttlink.Connect")
	defer slog.Debug("<<mqttlink.Connect")

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	// commands must reach the mailbox in arrival order; the router stalls while the
	// command buffer is full
	opts.SetOrderMatters(true)

	retries := cfg.ConnectRetries
	if retries <= 0 {
		retries = DefaultConnectRetries
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0

	var client mqtt.Client
	err := backoff.Retry(func() error {
		client = mqtt.NewClient(opts)
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			slog.Warn("failed to connect to MQTT broker", "broker", cfg.Broker, "error", token.Error())
			return token.Error()
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(retries-1)), ctx))
	if err != nil {
		return nil, fmt.Errorf("could not establish MQTT connection: %w", err)
	}

	slog.Info("Connected to MQTT broker", "broker", cfg.Broker)

	return client, nil
}

func NewBridge(client mqtt.Client, prefix string, commands Commands) *Bridge {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}

	return &Bridge{
		client:   client,
		prefix:   strings.TrimSuffix(prefix, "/"),
		commands: commands,
		inbox:    make(chan mqtt.Message, commandBuffer),
	}
}

func (b *Bridge) topic(name string) string {
	return b.prefix + "/" + name
}

// Run publishes every new moisture level and status until ctx is cancelled, then
// unsubscribes and disconnects.
func (b *Bridge) Run(ctx context.Context, moisture *telemetry.Subscription[uint16], status *telemetry.Subscription[controller.Status]) error {
	slog.Debug(">>mqttlink.Run")
	defer slog.Debug("<<mqttlink.Run")

	defer moisture.Unsubscribe()
	defer status.Unsubscribe()

	filters := map[string]byte{
		b.topic("pump/set"):      1,
		b.topic("threshold/set"): 1,
	}

	cmdCtx, stopCommands := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer wg.Wait()
	defer stopCommands()

	wg.Add(1)
	go func() {
		defer wg.Done()
		b.forwardCommands(cmdCtx)
	}()

	token := b.client.SubscribeMultiple(filters, func(_ mqtt.Client, msg mqtt.Message) {
		select {
		case b.inbox <- msg:
		case <-cmdCtx.Done():
		}
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe to command topics: %w", token.Error())
	}

	defer func() {
		b.client.Unsubscribe(b.topic("pump/set"), b.topic("threshold/set")).WaitTimeout(publishTimeout)
		b.client.Disconnect(disconnectQuiesce)
		slog.Info("MQTT connection is closed")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case level := <-moisture.C():
			b.publish("moisture", strconv.Itoa(int(level)))

		case s := <-status.C():
			payload, err := json.Marshal(s)
			if err != nil {
				slog.Error("failed to marshal status", "error", err)
				continue
			}
			b.publish("status", string(payload))
		}
	}
}

// forwardCommands hands queued commands to Commands one at a time, in the order the
// broker delivered them.
func (b *Bridge) forwardCommands(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case msg := <-b.inbox:
			if err := b.handleCommand(ctx, msg.Topic(), msg.Payload()); err != nil {
				slog.Warn("ignoring MQTT command", "topic", msg.Topic(), "error", err)
			}
		}
	}
}

func (b *Bridge) publish(name string, payload string) {
	token := b.client.Publish(b.topic(name), 0, true, payload)
	if !token.WaitTimeout(publishTimeout) {
		slog.Warn("MQTT publish timed out", "topic", b.topic(name))
		return
	}
	if err := token.Error(); err != nil {
		slog.Warn("MQTT publish failed", "topic", b.topic(name), "error", err)
	}
}

func (b *Bridge) handleCommand(ctx context.Context, topic string, payload []byte) error {
	switch topic {
	case b.topic("pump/set"):
		v, err := ParsePumpPayload(payload)
		if err != nil {
			return err
		}
		return b.commands.PumpControl(ctx, v)

	case b.topic("threshold/set"):
		v, err := ParseThresholdPayload(payload)
		if err != nil {
			return err
		}
		return b.commands.Threshold(ctx, v)
	}

	return fmt.Errorf("unexpected topic %q", topic)
}

// ParsePumpPayload accepts on/off or a number in 0..255, where nonzero means on.
func ParsePumpPayload(payload []byte) (uint8, error) {
	s := strings.ToLower(strings.TrimSpace(string(payload)))
	switch s {
	case "on", "true":
		return 1, nil
	case "off", "false":
		return 0, nil
	}

	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: pump %q", ErrInvalidPayload, s)
	}
	return uint8(v), nil
}

// ParseThresholdPayload accepts a decimal threshold in 0..65535.
func ParseThresholdPayload(payload []byte) (int, error) {
	s := strings.TrimSpace(string(payload))
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: threshold %q", ErrInvalidPayload, s)
	}
	return int(v), nil
}
