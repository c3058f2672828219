package mqttlink

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/KyleBrandon/planty/internal/controller"
	"github.com/KyleBrandon/planty/internal/event"
	"github.com/KyleBrandon/planty/internal/mailbox"
	"github.com/KyleBrandon/planty/internal/producer"
	"github.com/KyleBrandon/planty/internal/telemetry"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }

func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic    string
	retained bool
	payload  string
}

// fakeClient records publishes and captures the command handler.
type fakeClient struct {
	mqtt.Client

	mu           sync.Mutex
	published    []published
	handler      mqtt.MessageHandler
	disconnected bool
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, published{topic, retained, payload.(string)})
	return doneToken{}
}

func (c *fakeClient) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = callback
	return doneToken{}
}

func (c *fakeClient) Unsubscribe(topics ...string) mqtt.Token {
	return doneToken{}
}

func (c *fakeClient) Disconnect(quiesce uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
}

func (c *fakeClient) last(topic string) (published, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.published) - 1; i >= 0; i-- {
		if c.published[i].topic == topic {
			return c.published[i], true
		}
	}
	return published{}, false
}

func (c *fakeClient) commandHandler() mqtt.MessageHandler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler
}

type fakeMessage struct {
	mqtt.Message
	topic   string
	payload []byte
}

func (m fakeMessage) Topic() string   { return m.topic }
func (m fakeMessage) Payload() []byte { return m.payload }

type mockCommands struct {
	mu         sync.Mutex
	pump       []uint8
	thresholds []int
}

func (m *mockCommands) PumpControl(ctx context.Context, value uint8) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pump = append(m.pump, value)
	return nil
}

func (m *mockCommands) Threshold(ctx context.Context, value int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.thresholds = append(m.thresholds, value)
	return nil
}

func TestParsePumpPayload(t *testing.T) {
	tests := map[string]struct {
		want    uint8
		wantErr bool
	}{
		"on":   {1, false},
		"OFF":  {0, false},
		" 1\n": {1, false},
		"255":  {255, false},
		"256":  {0, true},
		"-1":   {0, true},
		"pump": {0, true},
	}

	for in, tt := range tests {
		t.Run(in, func(t *testing.T) {
			got, err := ParsePumpPayload([]byte(in))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPayload)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseThresholdPayload(t *testing.T) {
	v, err := ParseThresholdPayload([]byte("1200"))
	require.NoError(t, err)
	assert.Equal(t, 1200, v)

	_, err = ParseThresholdPayload([]byte("65536"))
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = ParseThresholdPayload([]byte(""))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestBridgeRun(t *testing.T) {
	client := &fakeClient{}
	commands := &mockCommands{}
	b := NewBridge(client, "garden/", commands)

	moisture := telemetry.NewLatest[uint16]()
	status := telemetry.NewLatest[controller.Status]()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- b.Run(ctx, moisture.Subscribe(), status.Subscribe())
	}()

	require.Eventually(t, func() bool { return client.commandHandler() != nil }, time.Second, 5*time.Millisecond)

	t.Run("publishes retained moisture", func(t *testing.T) {
		moisture.Publish(1900)
		assert.Eventually(t, func() bool {
			p, ok := client.last("garden/moisture")
			return ok && p.payload == "1900" && p.retained
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("publishes retained status", func(t *testing.T) {
		status.Publish(controller.Status{State: controller.Watering, Threshold: 2000, PumpOn: true})
		assert.Eventually(t, func() bool {
			p, ok := client.last("garden/status")
			return ok && p.retained
		}, time.Second, 5*time.Millisecond)

		p, _ := client.last("garden/status")
		assert.Contains(t, p.payload, `"state":"watering"`)
	})

	t.Run("forwards commands", func(t *testing.T) {
		h := client.commandHandler()
		h(client, fakeMessage{topic: "garden/pump/set", payload: []byte("on")})
		h(client, fakeMessage{topic: "garden/threshold/set", payload: []byte("1200")})
		h(client, fakeMessage{topic: "garden/threshold/set", payload: []byte("lots")})

		assert.Eventually(t, func() bool {
			commands.mu.Lock()
			defer commands.mu.Unlock()
			return len(commands.pump) == 1 && len(commands.thresholds) == 1
		}, time.Second, 5*time.Millisecond)

		commands.mu.Lock()
		defer commands.mu.Unlock()
		assert.Equal(t, []uint8{1}, commands.pump)
		assert.Equal(t, []int{1200}, commands.thresholds)
	})

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	client.mu.Lock()
	assert.True(t, client.disconnected)
	client.mu.Unlock()
}

func TestBridgeCommandOrder(t *testing.T) {
	client := &fakeClient{}
	mb := mailbox.New(2)
	b := NewBridge(client, "", producer.NewCommands(mb))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- b.Run(ctx, telemetry.NewLatest[uint16]().Subscribe(), telemetry.NewLatest[controller.Status]().Subscribe())
	}()

	require.Eventually(t, func() bool { return client.commandHandler() != nil }, time.Second, 5*time.Millisecond)
	h := client.commandHandler()

	// more commands than the mailbox holds, so later ones queue behind a full mailbox
	payloads := []struct{ topic, payload string }{
		{"planty/pump/set", "on"},
		{"planty/pump/set", "off"},
		{"planty/threshold/set", "100"},
		{"planty/threshold/set", "200"},
		{"planty/pump/set", "1"},
		{"planty/pump/set", "0"},
	}
	for _, p := range payloads {
		h(client, fakeMessage{topic: p.topic, payload: []byte(p.payload)})
	}

	want := []event.Event{
		event.Water{},
		event.WateringComplete{},
		event.SetThreshold{Value: 100},
		event.SetThreshold{Value: 200},
		event.Water{},
		event.WateringComplete{},
	}
	for i, w := range want {
		popCtx, popCancel := context.WithTimeout(ctx, time.Second)
		got, err := mb.Pop(popCtx)
		popCancel()
		require.NoError(t, err, "event %d", i)
		assert.Equal(t, w, got, "event %d", i)
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
