package health

import "log/slog"

type (
	Handler struct {
		level  *slog.LevelVar
		logger *slog.Logger
	}

	LogLevelRequest struct {
		Level string `json:"level"`
	}

	LogLevelResponse struct {
		Level string `json:"level"`
	}
)
