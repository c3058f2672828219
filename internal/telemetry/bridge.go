package telemetry

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/google/uuid"
)

// ConnectionState is the status of the link to a remote central.
type ConnectionState struct {
	Connected bool
	Handle    uuid.UUID
}

var Disconnected = ConnectionState{}

func Connected(handle uuid.UUID) ConnectionState {
	return ConnectionState{Connected: true, Handle: handle}
}

func (c ConnectionState) String() string {
	if c.Connected {
		return fmt.Sprintf("Connected(%s)", c.Handle)
	}
	return "Disconnected"
}

// Notifier pushes a moisture-level notification to the central behind handle.
type Notifier interface {
	NotifyMoisture(handle uuid.UUID, level uint16) error
}

// Bridge lets the link observe controller state without going through the mailbox.
type Bridge struct {
	moisture   *Latest[uint16]
	connection *Latest[ConnectionState]
	notifier   Notifier
}

func NewBridge() *Bridge {
	b := &Bridge{
		moisture:   NewLatest[uint16](),
		connection: NewLatest[ConnectionState](),
	}
	b.connection.Publish(Disconnected)

	return b
}

// SetNotifier registers the link that receives moisture notifications. It must be called
// before the controller starts.
func (b *Bridge) SetNotifier(n Notifier) {
	b.notifier = n
}

// PublishReading stores the reading and forwards it to the connected central, if any.
// Forwarding failures are logged and dropped; the next measurement refreshes the value.
func (b *Bridge) PublishReading(reading int) {
	level := MoistureLevel(reading)
	b.moisture.Publish(level)

	conn, _ := b.connection.Load()
	if !conn.Connected || b.notifier == nil {
		slog.Debug("no central connected, moisture notification skipped", "level", level)
		return
	}

	if err := b.notifier.NotifyMoisture(conn.Handle, level); err != nil {
		slog.Warn("failed to notify moisture level", "handle", conn.Handle, "level", level, "error", err)
	}
}

// SetConnection records the current link status.
func (b *Bridge) SetConnection(state ConnectionState) {
	slog.Info("link connection state changed", "state", state)
	b.connection.Publish(state)
}

func (b *Bridge) Connection() ConnectionState {
	conn, _ := b.connection.Load()
	return conn
}

// Moisture returns the latest moisture level and whether one has been measured.
func (b *Bridge) Moisture() (uint16, bool) {
	return b.moisture.Load()
}

func (b *Bridge) SubscribeMoisture() *Subscription[uint16] {
	return b.moisture.Subscribe()
}

func (b *Bridge) SubscribeConnection() *Subscription[ConnectionState] {
	return b.connection.Subscribe()
}

// MoistureLevel clamps a raw reading into the unsigned 16 bit characteristic range.
func MoistureLevel(reading int) uint16 {
	if reading < 0 {
		return 0
	}
	if reading > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(reading)
}
