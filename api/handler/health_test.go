package handler

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/fastygo/segments/internal/infrastructure/monitor"
)

type staticStatus monitor.Status

func (s staticStatus) GetStatus() monitor.Status { return monitor.Status(s) }

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name   string
		status monitor.Status
		want   int
	}{
		{"sqlite only", monitor.Status{Driver: "sqlite", Database: true}, http.StatusOK},
		{"redis down", monitor.Status{Database: true, RedisEnabled: true}, http.StatusServiceUnavailable},
		{"database down", monitor.Status{}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(staticStatus(tt.status), nil, nil)
			ctx := &fasthttp.RequestCtx{}
			h.Check(ctx)

			assert.Equal(t, tt.want, ctx.Response.StatusCode())
			var env map[string]any
			require.NoError(t, json.Unmarshal(ctx.Response.Body(), &env))
			assert.NotEmpty(t, env["status"])
		})
	}
}
