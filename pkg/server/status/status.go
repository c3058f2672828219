package status

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/KyleBrandon/planty/internal/controller"
	"github.com/KyleBrandon/planty/internal/telemetry"
	"github.com/KyleBrandon/planty/pkg/utils"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const heartbeatInterval = 30 * time.Second

var ErrNoStatus = errors.New("controller has not published a status yet")

func NewHandler(status *telemetry.Latest[controller.Status], bridge *telemetry.Bridge, originPatterns []string) *Handler {
	return &Handler{
		status,
		bridge,
		originPatterns,
	}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/status", h.handleStatusGet)
	mux.HandleFunc("/v1/status/ws", h.handleStatusWS)
}

func (h *Handler) handleStatusGet(w http.ResponseWriter, r *http.Request) {
	slog.Debug("handleStatusGet")

	s, ok := h.status.Load()
	if !ok {
		utils.RespondWithError(w, http.StatusServiceUnavailable, "status not available", ErrNoStatus)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, h.buildStatus(s))
}

func (h *Handler) buildStatus(s controller.Status) SystemStatus {
	ss := SystemStatus{
		Status:        s,
		LinkConnected: h.bridge.Connection().Connected,
	}

	if level, ok := h.bridge.Moisture(); ok {
		ss.MoistureLevel = &level
	}

	return ss
}

func (h *Handler) handleStatusWS(w http.ResponseWriter, r *http.Request) {
	slog.Debug(">>handleStatusWS: new incoming connection")
	defer slog.Debug("<<handleStatusWS")

	opts := &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	}
	c, err := websocket.Accept(w, r, opts)
	if err != nil {
		slog.Error("websocket accept error:", "error", err)
		return
	}

	defer c.Close(websocket.StatusInternalError, "Unexpected connection close")

	ctx := c.CloseRead(r.Context())

	h.monitorStatus(ctx, c)
}

// monitorStatus writes every new status snapshot to the client until it disconnects.
func (h *Handler) monitorStatus(ctx context.Context, c *websocket.Conn) {
	slog.Debug(">>monitorStatus")
	defer slog.Debug("<<monitorStatus")

	sub := h.status.Subscribe()
	defer sub.Unsubscribe()

	heartbeatTicker := time.NewTicker(heartbeatInterval)
	defer heartbeatTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("monitorStatus: client disconnected")
			c.Close(websocket.StatusNormalClosure, "Connection closed")
			return

		case s := <-sub.C():
			err := wsjson.Write(ctx, c, h.buildStatus(s))
			if err != nil {
				slog.Error("monitorStatus: error writing to client", "error", err)
				c.Close(websocket.StatusInternalError, "error writing status")
				return
			}

		case <-heartbeatTicker.C:
			err := c.Ping(ctx)
			if err != nil {
				slog.Error("monitorStatus: error sending ping", "error", err)
				c.Close(websocket.StatusInternalError, "error sending ping")
				return
			}
		}
	}
}
