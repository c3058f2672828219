package link

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/KyleBrandon/planty/internal/telemetry"
	"github.com/coder/websocket"
	"github.com/google/uuid"
)

const (
	DefaultDeviceName   = "planty"
	DefaultWriteTimeout = time.Second

	OP_WRITE                  = "write"
	OP_WRITE_WITHOUT_RESPONSE = "write_without_response"
	OP_READ                   = "read"
	OP_SUBSCRIBE              = "subscribe"
	OP_UNSUBSCRIBE            = "unsubscribe"
	OP_WRITE_RESPONSE         = "write_response"
	OP_READ_RESPONSE          = "read_response"
	OP_NOTIFY                 = "notify"
	OP_ERROR                  = "error"
)

var (
	ServiceUUID       = uuid.MustParse("12345678-1234-5678-1234-56789abcdef0")
	PumpControlUUID   = uuid.MustParse("12345678-1234-5678-1234-56789abcdef1")
	MoistureLevelUUID = uuid.MustParse("12345678-1234-5678-1234-56789abcdef2")
	ThresholdUUID     = uuid.MustParse("12345678-1234-5678-1234-56789abcdef3")

	ErrNotConnected = errors.New("no central connected")
	ErrMalformed    = errors.New("malformed frame")
)

type (
	// Frame is one attribute operation exchanged with a central.
	Frame struct {
		Op    string    `json:"op"`
		UUID  uuid.UUID `json:"uuid"`
		Value int       `json:"value"`
		Error string    `json:"error,omitempty"`
	}

	Advertisement struct {
		Name     string      `json:"name"`
		Services []uuid.UUID `json:"services"`
	}

	// Commands receives characteristic writes.
	Commands interface {
		PumpControl(ctx context.Context, value uint8) error
		Threshold(ctx context.Context, value int) error
	}

	// Link is a single-connection peripheral exposing the plant service over a WebSocket.
	// It advertises while no central is connected.
	Link struct {
		name           string
		bridge         *telemetry.Bridge
		commands       Commands
		originPatterns []string
		writeTimeout   time.Duration

		mu      sync.Mutex
		session *session
	}

	session struct {
		handle uuid.UUID
		conn   *websocket.Conn

		mu         sync.Mutex
		subscribed bool

		notifications chan uint16
	}
)

func newSession() *session {
	return &session{
		handle:        uuid.New(),
		notifications: make(chan uint16, 1),
	}
}
