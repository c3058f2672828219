package telemetry

import (
	"errors"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

type mockNotifier struct {
	calls  int
	handle uuid.UUID
	level  uint16
	err    error
}

func (m *mockNotifier) NotifyMoisture(handle uuid.UUID, level uint16) error {
	m.calls++
	m.handle = handle
	m.level = level
	return m.err
}

func TestBridgePublishReading(t *testing.T) {
	t.Run("should store but not notify while disconnected", func(t *testing.T) {
		n := &mockNotifier{}
		b := NewBridge()
		b.SetNotifier(n)

		b.PublishReading(2000)

		level, ok := b.Moisture()
		assert.True(t, ok)
		assert.Equal(t, uint16(2000), level)
		assert.Equal(t, 0, n.calls)
		assert.Equal(t, Disconnected, b.Connection())
	})

	t.Run("should notify the connected central", func(t *testing.T) {
		n := &mockNotifier{}
		b := NewBridge()
		b.SetNotifier(n)

		handle := uuid.New()
		b.SetConnection(Connected(handle))
		b.PublishReading(1500)

		assert.Equal(t, 1, n.calls)
		assert.Equal(t, handle, n.handle)
		assert.Equal(t, uint16(1500), n.level)
	})

	t.Run("should drop a failed notification", func(t *testing.T) {
		n := &mockNotifier{err: errors.New("link gone")}
		b := NewBridge()
		b.SetNotifier(n)
		b.SetConnection(Connected(uuid.New()))

		b.PublishReading(1700)
		b.PublishReading(1710)

		// each reading is tried once, never retried
		assert.Equal(t, 2, n.calls)
		level, _ := b.Moisture()
		assert.Equal(t, uint16(1710), level)
	})

	t.Run("should stop notifying after disconnect", func(t *testing.T) {
		n := &mockNotifier{}
		b := NewBridge()
		b.SetNotifier(n)
		b.SetConnection(Connected(uuid.New()))
		b.SetConnection(Disconnected)

		b.PublishReading(1900)
		assert.Equal(t, 0, n.calls)
	})
}

func TestBridgeSubscribeMoisture(t *testing.T) {
	b := NewBridge()
	sub := b.SubscribeMoisture()
	defer sub.Unsubscribe()

	b.PublishReading(1200)
	b.PublishReading(1300)

	assert.Equal(t, uint16(1300), <-sub.C())
}

func TestMoistureLevel(t *testing.T) {
	assert.Equal(t, uint16(0), MoistureLevel(-5))
	assert.Equal(t, uint16(2840), MoistureLevel(2840))
	assert.Equal(t, uint16(math.MaxUint16), MoistureLevel(70000))
}

func TestConnectionStateString(t *testing.T) {
	handle := uuid.MustParse("12345678-1234-5678-1234-56789abcdef0")
	assert.Equal(t, "Disconnected", Disconnected.String())
	assert.Equal(t, "Connected(12345678-1234-5678-1234-56789abcdef0)", Connected(handle).String())
}
