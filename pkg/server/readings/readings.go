package readings

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/KyleBrandon/planty/internal/database"
	"github.com/KyleBrandon/planty/internal/sensor"
	"github.com/KyleBrandon/planty/pkg/utils"
)

var ErrNoHistory = errors.New("no history database configured")

// NewHandler creates the history handler. store may be nil when no database is configured.
func NewHandler(store ReadingStore, sensors SoilSensor) *Handler {
	return &Handler{
		store,
		sensors,
	}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/readings", h.handlerReadingsGet)
	mux.HandleFunc("GET /v1/waterings", h.handlerWateringsGet)
	mux.HandleFunc("GET /v1/soil_temperature", h.handlerSoilTemperatureGet)
}

func (h *Handler) handlerReadingsGet(w http.ResponseWriter, r *http.Request) {
	slog.Debug("handlerReadingsGet")

	limit, err := parseLimit(r)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid limit", err)
		return
	}

	if h.store == nil {
		utils.RespondWithError(w, http.StatusServiceUnavailable, "history is not available", ErrNoHistory)
		return
	}

	rows, err := h.store.GetReadings(r.Context(), limit)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "could not read the moisture history", err)
		return
	}

	results := make([]Reading, 0, len(rows))
	for _, row := range rows {
		results = append(results, convertFromDatabaseReading(row))
	}

	utils.RespondWithJSON(w, http.StatusOK, results)
}

func (h *Handler) handlerWateringsGet(w http.ResponseWriter, r *http.Request) {
	slog.Debug("handlerWateringsGet")

	limit, err := parseLimit(r)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid limit", err)
		return
	}

	if h.store == nil {
		utils.RespondWithError(w, http.StatusServiceUnavailable, "history is not available", ErrNoHistory)
		return
	}

	rows, err := h.store.GetWaterings(r.Context(), limit)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "could not read the watering history", err)
		return
	}

	results := make([]Watering, 0, len(rows))
	for _, row := range rows {
		wt := Watering{
			StartedAt: row.StartedAt,
			Cause:     row.Cause,
		}
		if row.EndedAt.Valid {
			wt.EndedAt = &row.EndedAt.Time
		}
		results = append(results, wt)
	}

	utils.RespondWithJSON(w, http.StatusOK, results)
}

func (h *Handler) handlerSoilTemperatureGet(w http.ResponseWriter, r *http.Request) {
	slog.Debug("handlerSoilTemperatureGet")

	utils.RespondWithJSON(w, http.StatusOK, convertFromSensorTemperatureReading(h.sensors.ReadSoilTemperature()))
}

func parseLimit(r *http.Request) (int32, error) {
	param := r.URL.Query().Get("limit")
	if param == "" {
		return DefaultLimit, nil
	}

	limit, err := strconv.Atoi(param)
	if err != nil {
		return 0, err
	}
	if limit <= 0 || limit > MaxLimit {
		return 0, errors.New("limit out of range")
	}

	return int32(limit), nil
}

func convertFromDatabaseReading(row database.Reading) Reading {
	reading := Reading{
		CreatedAt: row.CreatedAt,
		Moisture:  row.Moisture,
	}

	if row.SoilTempC.Valid {
		if t, err := strconv.ParseFloat(row.SoilTempC.String, 64); err == nil {
			reading.SoilTempC = &t
		}
	}

	return reading
}

func convertFromSensorTemperatureReading(tr sensor.TemperatureReading) TemperatureReading {
	errorMessage := ""
	if tr.Err != nil {
		errorMessage = tr.Err.Error()
	}
	return TemperatureReading{
		Name:         tr.Name,
		Address:      tr.Address,
		TemperatureC: tr.TemperatureC,
		TemperatureF: tr.TemperatureF,
		Err:          errorMessage,
	}
}
