package link

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/KyleBrandon/planty/internal/telemetry"
	"github.com/KyleBrandon/planty/pkg/utils"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
)

// New creates the link and registers it as the bridge's moisture notifier.
func New(name string, bridge *telemetry.Bridge, commands Commands, originPatterns []string) *Link {
	if name == "" {
		name = DefaultDeviceName
	}

	l := &Link{
		name:           name,
		bridge:         bridge,
		commands:       commands,
		originPatterns: originPatterns,
		writeTimeout:   DefaultWriteTimeout,
	}
	bridge.SetNotifier(l)

	return l
}

func (l *Link) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/advertisement", l.handleAdvertisement)
	mux.HandleFunc("GET /v1/link", l.handleLink)
}

func (l *Link) Advertisement() Advertisement {
	return Advertisement{
		Name:     l.name,
		Services: []uuid.UUID{ServiceUUID},
	}
}

func (l *Link) handleAdvertisement(w http.ResponseWriter, r *http.Request) {
	slog.Debug(">>handleAdvertisement")
	defer slog.Debug("<<handleAdvertisement")

	if l.connected() {
		utils.RespondWithError(w, http.StatusNotFound, "not advertising while a central is connected", ErrNotConnected)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, l.Advertisement())
}

func (l *Link) handleLink(w http.ResponseWriter, r *http.Request) {
	slog.Debug(">>handleLink: new incoming connection")
	defer slog.Debug("<<handleLink")

	s, ok := l.claim()
	if !ok {
		utils.RespondWithError(w, http.StatusConflict, "a central is already connected", errors.New("link busy"))
		return
	}

	opts := &websocket.AcceptOptions{
		OriginPatterns: l.originPatterns,
	}
	c, err := websocket.Accept(w, r, opts)
	if err != nil {
		slog.Error("websocket accept error", "error", err)
		l.release(s)
		return
	}
	defer c.Close(websocket.StatusInternalError, "Unexpected connection close")

	l.mu.Lock()
	s.conn = c
	l.mu.Unlock()

	slog.Info("Connection established", "handle", s.handle)
	l.bridge.SetConnection(telemetry.Connected(s.handle))

	ctx, cancel := context.WithCancel(r.Context())
	notifyDone := make(chan struct{})
	go func() {
		defer close(notifyDone)
		l.forwardNotifications(ctx, s)
	}()

	defer func() {
		cancel()
		<-notifyDone
		l.disconnect(s)
	}()

	l.serve(ctx, s)
}

// disconnect publishes the disconnected state before the link can be claimed again, so
// it never overwrites the state of the next central.
func (l *Link) disconnect(s *session) {
	l.bridge.SetConnection(telemetry.Disconnected)
	l.release(s)
	slog.Info("Disconnected", "handle", s.handle)
}

// forwardNotifications writes queued moisture notifications to the central.
func (l *Link) forwardNotifications(ctx context.Context, s *session) {
	for {
		select {
		case <-ctx.Done():
			return

		case level := <-s.notifications:
			err := l.write(ctx, s, Frame{Op: OP_NOTIFY, UUID: MoistureLevelUUID, Value: int(level)})
			if err != nil {
				slog.Warn("moisture notification failed", "handle", s.handle, "level", level, "error", err)
			}
		}
	}
}

// serve handles frames from the central until the connection fails or closes.
func (l *Link) serve(ctx context.Context, s *session) {
	for {
		var frame Frame
		if err := wsjson.Read(ctx, s.conn, &frame); err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure || errors.Is(err, context.Canceled) {
				return
			}
			slog.Warn("link read failed", "handle", s.handle, "error", err)
			return
		}

		reply, err := l.dispatch(ctx, s, frame)
		if err != nil {
			slog.Warn("ignoring frame", "handle", s.handle, "op", frame.Op, "uuid", frame.UUID, "error", err)
			if frame.Op == OP_WRITE_WITHOUT_RESPONSE {
				continue
			}
			reply = &Frame{Op: OP_ERROR, UUID: frame.UUID, Error: err.Error()}
		}

		if reply == nil {
			continue
		}

		if err := l.write(ctx, s, *reply); err != nil {
			slog.Warn("link write failed", "handle", s.handle, "error", err)
			return
		}
	}
}

func (l *Link) dispatch(ctx context.Context, s *session, frame Frame) (*Frame, error) {
	switch frame.Op {
	case OP_WRITE, OP_WRITE_WITHOUT_RESPONSE:
		if err := l.handleWrite(ctx, frame); err != nil {
			return nil, err
		}
		if frame.Op == OP_WRITE {
			return &Frame{Op: OP_WRITE_RESPONSE, UUID: frame.UUID}, nil
		}
		return nil, nil

	case OP_READ:
		if frame.UUID != MoistureLevelUUID {
			return nil, fmt.Errorf("%w: %s is not readable", ErrMalformed, frame.UUID)
		}
		level, _ := l.bridge.Moisture()
		return &Frame{Op: OP_READ_RESPONSE, UUID: MoistureLevelUUID, Value: int(level)}, nil

	case OP_SUBSCRIBE, OP_UNSUBSCRIBE:
		if frame.UUID != MoistureLevelUUID {
			return nil, fmt.Errorf("%w: %s does not notify", ErrMalformed, frame.UUID)
		}
		s.mu.Lock()
		s.subscribed = frame.Op == OP_SUBSCRIBE
		s.mu.Unlock()
		return &Frame{Op: OP_WRITE_RESPONSE, UUID: frame.UUID}, nil

	default:
		return nil, fmt.Errorf("%w: unknown op %q", ErrMalformed, frame.Op)
	}
}

// handleWrite forwards a write to the controller, waiting for room in the mailbox.
func (l *Link) handleWrite(ctx context.Context, frame Frame) error {
	switch frame.UUID {
	case PumpControlUUID:
		if frame.Value < 0 || frame.Value > 0xFF {
			return fmt.Errorf("%w: pump control value %d", ErrMalformed, frame.Value)
		}
		return l.commands.PumpControl(ctx, uint8(frame.Value))

	case ThresholdUUID:
		if frame.Value < 0 || frame.Value > 0xFFFF {
			return fmt.Errorf("%w: threshold value %d", ErrMalformed, frame.Value)
		}
		return l.commands.Threshold(ctx, frame.Value)

	default:
		return fmt.Errorf("%w: %s is not writable", ErrMalformed, frame.UUID)
	}
}

// NotifyMoisture queues a moisture-level notification if the central subscribed to it.
// It never waits on the connection: a level not yet written is replaced by the newer one.
func (l *Link) NotifyMoisture(handle uuid.UUID, level uint16) error {
	l.mu.Lock()
	s := l.session
	ready := s != nil && s.conn != nil && s.handle == handle
	l.mu.Unlock()

	if !ready {
		return ErrNotConnected
	}

	s.mu.Lock()
	subscribed := s.subscribed
	s.mu.Unlock()
	if !subscribed {
		return nil
	}

	for {
		select {
		case s.notifications <- level:
			return nil
		default:
		}

		select {
		case <-s.notifications:
		default:
		}
	}
}

func (l *Link) write(ctx context.Context, s *session, frame Frame) error {
	ctx, cancel := context.WithTimeout(ctx, l.writeTimeout)
	defer cancel()

	return wsjson.Write(ctx, s.conn, frame)
}

// claim reserves the link for a new central. Only one central is served at a time.
func (l *Link) claim() (*session, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.session != nil {
		return nil, false
	}

	l.session = newSession()
	return l.session, true
}

func (l *Link) release(s *session) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.session == s {
		l.session = nil
	}
}

func (l *Link) connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.session != nil
}
