package status

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/KyleBrandon/planty/internal/controller"
	"github.com/KyleBrandon/planty/internal/telemetry"
	"github.com/KyleBrandon/planty/pkg/utils"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusGet(t *testing.T) {
	cell := telemetry.NewLatest[controller.Status]()
	bridge := telemetry.NewBridge()
	h := NewHandler(cell, bridge, nil)

	t.Run("should fail before the controller starts", func(t *testing.T) {
		rr := utils.TestRequest(t, http.MethodGet, "/v1/status", nil, h.handleStatusGet)
		utils.TestExpectedStatus(t, rr, http.StatusServiceUnavailable)
	})

	t.Run("should return the latest status", func(t *testing.T) {
		cell.Publish(controller.Status{State: controller.Idle, Threshold: 2000})
		bridge.PublishReading(1900)

		rr := utils.TestRequest(t, http.MethodGet, "/v1/status", nil, h.handleStatusGet)
		utils.TestExpectedStatus(t, rr, http.StatusOK)
		utils.TestExpectedMessage(t, rr, `"state":"idle"`)
		utils.TestExpectedMessage(t, rr, `"threshold":2000`)
		utils.TestExpectedMessage(t, rr, `"moisture_level":1900`)
		utils.TestExpectedMessage(t, rr, `"link_connected":false`)
	})
}

func TestStatusStream(t *testing.T) {
	cell := telemetry.NewLatest[controller.Status]()
	cell.Publish(controller.Status{State: controller.Idle, Threshold: 2000})
	h := NewHandler(cell, telemetry.NewBridge(), nil)

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/v1/status/ws", nil)
	require.NoError(t, err)
	defer c.CloseNow()

	var got SystemStatus
	require.NoError(t, wsjson.Read(ctx, c, &got))
	assert.Equal(t, controller.Idle, got.State)

	cell.Publish(controller.Status{State: controller.Watering, Threshold: 2000, PumpOn: true})

	require.NoError(t, wsjson.Read(ctx, c, &got))
	assert.True(t, got.PumpOn)
}
