// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.
package orchestrator

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wirepro/wirepro/services/diagnostic"
	"github.com/wirepro/wirepro/services/knowledge"
	"github.com/wirepro/wirepro/services/llm"
	"github.com/wirepro/wirepro/services/orchestrator/observability"
	"github.com/wirepro/wirepro/services/pipeline"
	"github.com/wirepro/wirepro/services/policy_engine"
)

// =============================================================================
// Test Setup
// =============================================================================

func init() {
	gin.SetMode(gin.TestMode)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestPipeline(t *testing.T, metrics *observability.Metrics) *pipeline.Pipeline {
	t.Helper()
	logger := testLogger()
	policy, err := policy_engine.NewPolicyEngine()
	require.NoError(t, err)
	p, err := pipeline.New(pipeline.Deps{
		Engine:   diagnostic.NewEngine(knowledge.Load(knowledge.EmbeddedSource(), logger), logger),
		Policy:   policy,
		Cascade:  llm.NewCascade(nil, "", logger),
		Recorder: metrics,
		Logger:   logger,
	})
	require.NoError(t, err)
	return p
}

// =============================================================================
// Config Tests
// =============================================================================

func TestApplyConfigDefaults(t *testing.T) {
	tests := []struct {
		name  string
		input Config
		check func(t *testing.T, got Config)
	}{
		{
			name:  "all defaults",
			input: Config{},
			check: func(t *testing.T, got Config) {
				assert.Equal(t, 8080, got.Port)
				assert.Equal(t, "wirepro", got.ServiceName)
				assert.Equal(t, 10, got.RateLimitBurst)
				assert.Equal(t, int64(8<<20), got.MaxImageBytes)
				assert.Equal(t, 120*time.Second, got.RequestTimeout)
				assert.Equal(t, 10*time.Second, got.ShutdownTimeout)
				assert.Empty(t, got.OTelEndpoint, "tracing stays off unless configured")
				assert.False(t, got.EnableMetrics)
			},
		},
		{
			name: "custom values preserved",
			input: Config{
				Port:            9090,
				ServiceName:     "wirepro-edge",
				OTelEndpoint:    "collector:4317",
				EnableMetrics:   true,
				RateLimitRPS:    5,
				RateLimitBurst:  3,
				MaxImageBytes:   1024,
				RequestTimeout:  time.Second,
				ShutdownTimeout: 2 * time.Second,
			},
			check: func(t *testing.T, got Config) {
				assert.Equal(t, 9090, got.Port)
				assert.Equal(t, "wirepro-edge", got.ServiceName)
				assert.Equal(t, "collector:4317", got.OTelEndpoint)
				assert.True(t, got.EnableMetrics)
				assert.Equal(t, 5.0, got.RateLimitRPS)
				assert.Equal(t, 3, got.RateLimitBurst)
				assert.Equal(t, int64(1024), got.MaxImageBytes)
				assert.Equal(t, time.Second, got.RequestTimeout)
				assert.Equal(t, 2*time.Second, got.ShutdownTimeout)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, applyConfigDefaults(tt.input))
		})
	}
}

// =============================================================================
// Service Tests
// =============================================================================

func TestNew_RequiresPipeline(t *testing.T) {
	svc, err := New(Config{}, Deps{})
	assert.Error(t, err)
	assert.Nil(t, svc)
}

func TestNew_RouterServesEndpoints(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	svc, err := New(Config{EnableMetrics: true}, Deps{
		Pipeline: newTestPipeline(t, metrics),
		Metrics:  metrics,
		Registry: reg,
		Logger:   testLogger(),
	})
	require.NoError(t, err)
	router := svc.Router()

	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}

	health := get("/health")
	require.Equal(t, http.StatusOK, health.Code)
	assert.Contains(t, health.Body.String(), `"offline_only":true`)

	assert.Equal(t, http.StatusOK, get("/v1/engine/test").Code)
	assert.Equal(t, http.StatusOK, get("/v1/knowledge/stats").Code)
	assert.Equal(t, http.StatusNotFound, get("/v1/conversations").Code, "no store configured")

	metricsBody := get("/metrics")
	require.Equal(t, http.StatusOK, metricsBody.Code)
	assert.Contains(t, metricsBody.Body.String(), `wirepro_http_requests_total{endpoint="/v1/engine/test",status="success"} 1`)
}

func TestNew_ChatWithoutProviders(t *testing.T) {
	svc, err := New(Config{}, Deps{Pipeline: newTestPipeline(t, nil), Logger: testLogger()})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(`{"message":"il differenziale scatta"}`))
	req.Header.Set("Content-Type", "application/json")
	svc.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestNew_MetricsDisabled(t *testing.T) {
	svc, err := New(Config{}, Deps{Pipeline: newTestPipeline(t, nil), Logger: testLogger()})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	svc.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNew_RateLimited(t *testing.T) {
	svc, err := New(Config{RateLimitRPS: 0.001, RateLimitBurst: 1}, Deps{Pipeline: newTestPipeline(t, nil), Logger: testLogger()})
	require.NoError(t, err)

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		svc.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/knowledge/stats", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRequestTimeout_SetsDeadline(t *testing.T) {
	router := gin.New()
	router.Use(requestTimeout(time.Minute))
	var hasDeadline bool
	router.GET("/x", func(c *gin.Context) {
		_, hasDeadline = c.Request.Context().Deadline()
		c.Status(http.StatusNoContent)
	})
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.True(t, hasDeadline)
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	svc, err := New(Config{Port: port, ShutdownTimeout: time.Second}, Deps{
		Pipeline: newTestPipeline(t, nil),
		Logger:   testLogger(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://127.0.0.1:" + strconv.Itoa(port) + "/health")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
