package logger_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rezonia/invoice-auditor/internal/logger"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"INFO", zapcore.InfoLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"chatty", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, logger.ParseLevel(tt.in))
		})
	}
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auditor.log")
	log, err := logger.New(&logger.Config{Level: "debug", Format: "json", Output: path})
	require.NoError(t, err)

	log.Info("validated", zap.String("invoice_id", "INV-1"), zap.String("status", "accepted"))
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := strings.TrimSpace(string(data))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "validated", entry["msg"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "INV-1", entry["invoice_id"])
}

func TestNew_BadOutput(t *testing.T) {
	_, err := logger.New(&logger.Config{Output: filepath.Join(t.TempDir(), "missing", "dir", "x.log")})
	require.Error(t, err)
}

func TestNewForEnvironment(t *testing.T) {
	for _, env := range []string{"production", "development", ""} {
		log, err := logger.NewForEnvironment(env)
		require.NoError(t, err)
		assert.NotNil(t, log)
	}
}

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, recorded := observer.New(zapcore.InfoLevel)

	router := gin.New()
	router.Use(logger.RequestID(), logger.GinMiddleware(zap.New(core)))
	router.GET("/ok", func(c *gin.Context) {
		logger.FromGin(c).Info("inside handler")
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	router.GET("/bad", func(c *gin.Context) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nope"})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set("X-Request-ID", "req-42")
	router.ServeHTTP(w, req)
	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/bad", nil))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	logs := recorded.All()
	require.Len(t, logs, 3)
	assert.Equal(t, "inside handler", logs[0].Message)
	assert.Equal(t, "req-42", logs[0].ContextMap()["request_id"])
	assert.Equal(t, zapcore.InfoLevel, logs[1].Level)
	assert.Equal(t, "HTTP request", logs[1].Message)
	assert.Equal(t, zapcore.WarnLevel, logs[2].Level)
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, recorded := observer.New(zapcore.ErrorLevel)

	router := gin.New()
	router.Use(logger.Recovery(zap.New(core)))
	router.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, 1, recorded.Len())
	assert.Equal(t, "panic recovered", recorded.All()[0].Message)
}

func TestFromGin_Default(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.NotNil(t, logger.FromGin(c))
}
