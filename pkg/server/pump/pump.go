package pump

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/KyleBrandon/planty/internal/auth"
	"github.com/KyleBrandon/planty/internal/controller"
	"github.com/KyleBrandon/planty/internal/producer"
	"github.com/KyleBrandon/planty/internal/telemetry"
	"github.com/KyleBrandon/planty/pkg/utils"
)

var ErrNoStatus = errors.New("controller has not published a status yet")

// NewHandler creates the pump handler. The pump state is answered from the controller's
// status and changes are queued as events; the handler never touches the pump itself.
// When apiKey is set, changes require it.
func NewHandler(status *telemetry.Latest[controller.Status], commands Commands, apiKey string) *Handler {
	return &Handler{
		status,
		commands,
		apiKey,
	}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/pump", h.handlerPumpGet)
	mux.HandleFunc("POST /v1/pump/start", auth.RequireApiKey(h.apiKey, h.handlerPumpStart))
	mux.HandleFunc("POST /v1/pump/stop", auth.RequireApiKey(h.apiKey, h.handlerPumpStop))
	mux.HandleFunc("PUT /v1/threshold", auth.RequireApiKey(h.apiKey, h.handlerThresholdPut))
}

func (h *Handler) handlerPumpGet(w http.ResponseWriter, r *http.Request) {
	slog.Debug("handlerPumpGet")

	s, ok := h.status.Load()
	if !ok {
		utils.RespondWithError(w, http.StatusServiceUnavailable, "pump state not available", ErrNoStatus)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, PumpResponse{
		PumpOn: s.PumpOn,
		State:  s.State,
	})
}

func (h *Handler) handlerPumpStart(w http.ResponseWriter, r *http.Request) {
	slog.Debug("handlerPumpStart")

	if err := h.commands.PumpControl(r.Context(), 1); err != nil {
		utils.RespondWithError(w, http.StatusServiceUnavailable, "failed to request watering", err)
		return
	}

	utils.RespondWithNoContent(w, http.StatusAccepted)
}

func (h *Handler) handlerPumpStop(w http.ResponseWriter, r *http.Request) {
	slog.Debug("handlerPumpStop")

	if err := h.commands.PumpControl(r.Context(), 0); err != nil {
		utils.RespondWithError(w, http.StatusServiceUnavailable, "failed to request the end of watering", err)
		return
	}

	utils.RespondWithNoContent(w, http.StatusAccepted)
}

func (h *Handler) handlerThresholdPut(w http.ResponseWriter, r *http.Request) {
	slog.Debug("handlerThresholdPut")

	defer r.Body.Close()

	var req ThresholdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Threshold == nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid body for threshold", err)
		return
	}

	err := h.commands.Threshold(r.Context(), *req.Threshold)
	if errors.Is(err, producer.ErrInvalidThreshold) {
		utils.RespondWithError(w, http.StatusBadRequest, "Threshold out of range", err)
		return
	}
	if err != nil {
		utils.RespondWithError(w, http.StatusServiceUnavailable, "failed to request the threshold change", err)
		return
	}

	utils.RespondWithNoContent(w, http.StatusAccepted)
}
