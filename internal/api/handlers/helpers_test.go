package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/kaanagar1/equimarket-sub000/internal/api/handlers"
	"github.com/kaanagar1/equimarket-sub000/internal/api/middleware"
	"github.com/kaanagar1/equimarket-sub000/internal/auth"
	"github.com/kaanagar1/equimarket-sub000/internal/utils"
)

const testSecret = "handler-test-secret"

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func newEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func newResponder(t *testing.T, production bool) handlers.Responder {
	return handlers.NewResponder(zaptest.NewLogger(t), production)
}

func authed() gin.HandlerFunc {
	return middleware.AuthMiddleware(testSecret)
}

func tokenFor(t *testing.T, id utils.SixID, role string) string {
	token, err := auth.GenerateJWT(id, role, testSecret, time.Hour)
	require.NoError(t, err)
	return token
}

func perform(r *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			_ = json.NewEncoder(&buf).Encode(body)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, data any) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	if data != nil && env.Success {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}
