package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/audiocove/audiocove-monitoring/internal/monitoring"
	"github.com/audiocove/audiocove-monitoring/pkg/alerting"
	"github.com/audiocove/audiocove-monitoring/pkg/config"
	"github.com/audiocove/audiocove-monitoring/pkg/health"
	"github.com/audiocove/audiocove-monitoring/pkg/resilience"
)

// MockStore is a mock implementation of monitoring.Store
type MockStore struct {
	mock.Mock
}

func (m *MockStore) SaveMonitoringRecord(ctx context.Context, record *monitoring.MonitoringRecord) (string, error) {
	args := m.Called(ctx, record)
	return args.String(0), args.Error(1)
}

func (m *MockStore) GetMonitoringRecords(ctx context.Context, filter monitoring.RecordFilter) ([]*monitoring.MonitoringRecord, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*monitoring.MonitoringRecord), args.Error(1)
}

func (m *MockStore) SaveAlert(ctx context.Context, alert *alerting.Alert) error {
	args := m.Called(ctx, alert)
	return args.Error(0)
}

func (m *MockStore) ResolveAlert(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockStore) GetAlerts(ctx context.Context, filter monitoring.AlertFilter) ([]*alerting.Alert, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*alerting.Alert), args.Error(1)
}

func (m *MockStore) SaveAlertRule(ctx context.Context, rule *alerting.Rule) error {
	args := m.Called(ctx, rule)
	return args.Error(0)
}

func (m *MockStore) DeleteAlertRule(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockStore) GetAlertRules(ctx context.Context, source string) ([]*alerting.Rule, error) {
	args := m.Called(ctx, source)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*alerting.Rule), args.Error(1)
}

func (m *MockStore) SaveSilence(ctx context.Context, silence *alerting.SilenceConfig) error {
	args := m.Called(ctx, silence)
	return args.Error(0)
}

func (m *MockStore) DeleteSilence(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockStore) GetSilences(ctx context.Context) ([]*alerting.SilenceConfig, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*alerting.SilenceConfig), args.Error(1)
}

func (m *MockStore) SaveMonitoringConfig(ctx context.Context, cfg *monitoring.SourceConfig) error {
	args := m.Called(ctx, cfg)
	return args.Error(0)
}

func (m *MockStore) GetMonitoringConfig(ctx context.Context, source string) (*monitoring.SourceConfig, error) {
	args := m.Called(ctx, source)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*monitoring.SourceConfig), args.Error(1)
}

func (m *MockStore) GetMetricSeries(ctx context.Context, source, metric string, limit int) ([]float64, error) {
	args := m.Called(ctx, source, metric, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float64), args.Error(1)
}

func (m *MockStore) CleanupExpiredData(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// Test setup helpers

type testEnv struct {
	router   *gin.Engine
	store    *MockStore
	monitors *monitoring.Service
	engine   *alerting.Engine
	registry *resilience.BreakerRegistry
}

// setupTestEnv builds a router with an in-memory monitoring service, an
// alert engine backed by the mock store, and no database, Redis, pool
// or Prometheus wiring.
func setupTestEnv() *testEnv {
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Auth: config.AuthConfig{
			JWTSecret:     "test-secret",
			JWTExpiration: time.Hour,
		},
	}

	store := &MockStore{}
	monitors := monitoring.NewService(nil, nil, nil, nil)
	engine := alerting.NewEngine(alerting.EngineConfig{}, alerting.WithStore(store))
	registry := resilience.NewBreakerRegistry(resilience.BreakerConfig{FailureThreshold: 3})

	router := NewRouter(cfg, nil, nil, store, monitors, engine, registry, nil, nil, nil)

	return &testEnv{
		router:   router,
		store:    store,
		monitors: monitors,
		engine:   engine,
		registry: registry,
	}
}

func generateTestJWT(secret string, expiresAt time.Time) string {
	claims := JWTClaims{
		Name: "Ops Bot",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    "audiocove-monitoring",
			Subject:   "ops@audiocove.io",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, _ := token.SignedString([]byte(secret))
	return tokenString
}

func performRequest(router *gin.Engine, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewBuffer(data)
	}

	req, _ := http.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func passingChecker() health.Checker {
	return health.CheckerFunc(func(ctx context.Context) *health.CheckResult {
		return &health.CheckResult{
			Status:    health.CheckPass,
			Message:   "ok",
			Timestamp: time.Now(),
			Metrics:   map[string]float64{"response_time_ms": 12},
		}
	})
}

func failingChecker() health.Checker {
	return health.CheckerFunc(func(ctx context.Context) *health.CheckResult {
		return &health.CheckResult{
			Status:    health.CheckFail,
			Message:   "connection refused",
			Timestamp: time.Now(),
		}
	})
}

// Tests

func TestHealthEndpoint(t *testing.T) {
	env := setupTestEnv()

	w := performRequest(env.router, "GET", "/health", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var response HealthResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)

	assert.Equal(t, "healthy", response.Status)
	assert.Equal(t, serviceVersion, response.Version)
}

func TestLivenessEndpoint(t *testing.T) {
	env := setupTestEnv()

	w := performRequest(env.router, "GET", "/health/live", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &body)
	require.NoError(t, err)
	assert.Equal(t, "alive", body["status"])
}

func TestReadinessEndpoint(t *testing.T) {
	env := setupTestEnv()

	w := performRequest(env.router, "GET", "/health/ready", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &body)
	require.NoError(t, err)
	assert.Equal(t, "ready", body["status"])
}

func TestAPIVersionEndpoint(t *testing.T) {
	env := setupTestEnv()

	w := performRequest(env.router, "GET", "/api/v1", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var response APIResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)

	assert.True(t, response.Success)
	data, ok := response.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "AudioCove Monitoring API", data["name"])
	assert.Equal(t, serviceVersion, data["version"])
}

func TestListMonitors(t *testing.T) {
	env := setupTestEnv()
	ctx := context.Background()

	require.NoError(t, env.monitors.Register(ctx, "db", passingChecker(), monitoring.SourceOptions{}))
	require.NoError(t, env.monitors.Register(ctx, "cache", passingChecker(), monitoring.SourceOptions{}))

	w := performRequest(env.router, "GET", "/api/v1/monitors", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var response APIResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)

	assert.True(t, response.Success)
	data, ok := response.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(2), data["count"])

	monitors, ok := data["monitors"].([]interface{})
	require.True(t, ok)
	require.Len(t, monitors, 2)

	first, ok := monitors[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "cache", first["name"])
}

func TestGetMonitor(t *testing.T) {
	env := setupTestEnv()

	require.NoError(t, env.monitors.Register(context.Background(), "db", passingChecker(), monitoring.SourceOptions{}))

	w := performRequest(env.router, "GET", "/api/v1/monitors/db", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var response APIResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)

	assert.True(t, response.Success)
	data, ok := response.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "db", data["name"])
	assert.Equal(t, true, data["enabled"])
}

func TestGetMonitorNotFound(t *testing.T) {
	env := setupTestEnv()

	w := performRequest(env.router, "GET", "/api/v1/monitors/ghost", "", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)

	var response APIResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)

	assert.False(t, response.Success)
	assert.Equal(t, "RESOURCE_NOT_FOUND", response.Error.Code)
}

func TestGetMonitorTrend(t *testing.T) {
	env := setupTestEnv()

	require.NoError(t, env.monitors.Register(context.Background(), "db", passingChecker(), monitoring.SourceOptions{}))

	w := performRequest(env.router, "GET", "/api/v1/monitors/db/trend", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var response APIResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)

	assert.True(t, response.Success)
	data, ok := response.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "db", data["monitor"])
	assert.Equal(t, "stable", data["direction"])
}

func TestGetMonitorHistory(t *testing.T) {
	env := setupTestEnv()
	ctx := context.Background()

	require.NoError(t, env.monitors.Register(ctx, "db", passingChecker(), monitoring.SourceOptions{}))
	for i := 0; i < 3; i++ {
		_, err := env.monitors.TriggerCheck(ctx, "db")
		require.NoError(t, err)
	}

	w := performRequest(env.router, "GET", "/api/v1/monitors/db/history?limit=10", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var response APIResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)

	assert.True(t, response.Success)
	data, ok := response.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(3), data["count"])
}

func TestTriggerCheckRequiresAuth(t *testing.T) {
	env := setupTestEnv()

	require.NoError(t, env.monitors.Register(context.Background(), "db", passingChecker(), monitoring.SourceOptions{}))

	w := performRequest(env.router, "POST", "/api/v1/monitors/db/check", "", nil)

	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var response APIResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)

	assert.False(t, response.Success)
	assert.Equal(t, "UNAUTHORIZED", response.Error.Code)
}

func TestTriggerCheck(t *testing.T) {
	env := setupTestEnv()
	token := generateTestJWT("test-secret", time.Now().Add(time.Hour))

	require.NoError(t, env.monitors.Register(context.Background(), "db", passingChecker(), monitoring.SourceOptions{}))

	w := performRequest(env.router, "POST", "/api/v1/monitors/db/check", token, nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var response APIResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)

	assert.True(t, response.Success)
	data, ok := response.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "pass", data["status"])
}

func TestTriggerCheckUnknownMonitor(t *testing.T) {
	env := setupTestEnv()
	token := generateTestJWT("test-secret", time.Now().Add(time.Hour))

	w := performRequest(env.router, "POST", "/api/v1/monitors/ghost/check", token, nil)

	assert.Equal(t, http.StatusNotFound, w.Code)

	var response APIResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)

	assert.False(t, response.Success)
	assert.Equal(t, "RESOURCE_NOT_FOUND", response.Error.Code)
}

func TestUpdateMonitor(t *testing.T) {
	env := setupTestEnv()
	token := generateTestJWT("test-secret", time.Now().Add(time.Hour))

	require.NoError(t, env.monitors.Register(context.Background(), "db", passingChecker(), monitoring.SourceOptions{}))

	enabled := false
	w := performRequest(env.router, "PATCH", "/api/v1/monitors/db", token, UpdateMonitorRequest{
		Enabled:  &enabled,
		Interval: "45s",
	})

	assert.Equal(t, http.StatusOK, w.Code)

	var response APIResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)

	assert.True(t, response.Success)
	data, ok := response.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, false, data["enabled"])
	assert.Equal(t, float64(45*time.Second), data["interval"])
}

func TestUpdateMonitorValidation(t *testing.T) {
	env := setupTestEnv()
	token := generateTestJWT("test-secret", time.Now().Add(time.Hour))

	require.NoError(t, env.monitors.Register(context.Background(), "db", passingChecker(), monitoring.SourceOptions{}))

	// Neither field set
	w := performRequest(env.router, "PATCH", "/api/v1/monitors/db", token, UpdateMonitorRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Unparseable interval
	w = performRequest(env.router, "PATCH", "/api/v1/monitors/db", token, UpdateMonitorRequest{Interval: "fast"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAggregateHealth(t *testing.T) {
	env := setupTestEnv()
	ctx := context.Background()

	require.NoError(t, env.monitors.Register(ctx, "db", passingChecker(), monitoring.SourceOptions{}))
	require.NoError(t, env.monitors.Register(ctx, "cache", failingChecker(), monitoring.SourceOptions{}))

	_, err := env.monitors.TriggerCheck(ctx, "db")
	require.NoError(t, err)
	_, err = env.monitors.TriggerCheck(ctx, "cache")
	require.NoError(t, err)

	w := performRequest(env.router, "GET", "/api/v1/health/aggregate", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var response APIResponse
	err = json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)

	assert.True(t, response.Success)
	data, ok := response.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "unhealthy", data["status"])
	assert.Equal(t, float64(50), data["score"])

	sources, ok := data["sources"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "healthy", sources["db"])
	assert.Equal(t, "unhealthy", sources["cache"])
}

func TestAlertRuleLifecycle(t *testing.T) {
	env := setupTestEnv()
	token := generateTestJWT("test-secret", time.Now().Add(time.Hour))

	env.store.On("SaveAlertRule", mock.Anything, mock.AnythingOfType("*alerting.Rule")).Return(nil)
	env.store.On("DeleteAlertRule", mock.Anything, mock.AnythingOfType("string")).Return(nil)

	// Create
	w := performRequest(env.router, "POST", "/api/v1/alert-rules", token, CreateRuleRequest{
		Name:      "High latency",
		Source:    "db",
		Metric:    "response_time_ms",
		Operator:  "gt",
		Threshold: 250,
	})

	assert.Equal(t, http.StatusCreated, w.Code)

	var response APIResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)

	assert.True(t, response.Success)
	data, ok := response.Data.(map[string]interface{})
	require.True(t, ok)
	ruleID, ok := data["id"].(string)
	require.True(t, ok)
	require.NotEmpty(t, ruleID)
	assert.Equal(t, "warning", data["severity"])
	assert.Equal(t, true, data["enabled"])

	// List
	w = performRequest(env.router, "GET", "/api/v1/alert-rules", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	response = APIResponse{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	data, ok = response.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(1), data["count"])

	// Disable
	w = performRequest(env.router, "POST", "/api/v1/alert-rules/"+ruleID+"/disable", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	response = APIResponse{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	data, ok = response.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, false, data["enabled"])

	// Delete
	w = performRequest(env.router, "DELETE", "/api/v1/alert-rules/"+ruleID, token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	response = APIResponse{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	data, ok = response.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, data["deleted"])

	// Gone
	w = performRequest(env.router, "GET", "/api/v1/alert-rules/"+ruleID, "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	env.store.AssertExpectations(t)
}

func TestCreateRuleValidation(t *testing.T) {
	env := setupTestEnv()
	token := generateTestJWT("test-secret", time.Now().Add(time.Hour))

	// Missing name
	w := performRequest(env.router, "POST", "/api/v1/alert-rules", token, gin.H{
		"source":   "db",
		"metric":   "response_time_ms",
		"operator": "gt",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Unknown operator
	w = performRequest(env.router, "POST", "/api/v1/alert-rules", token, gin.H{
		"name":     "High latency",
		"source":   "db",
		"metric":   "response_time_ms",
		"operator": "between",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var response APIResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)
	assert.False(t, response.Success)
	assert.Equal(t, "BAD_REQUEST", response.Error.Code)
}

func TestSilenceLifecycle(t *testing.T) {
	env := setupTestEnv()
	token := generateTestJWT("test-secret", time.Now().Add(time.Hour))

	env.store.On("SaveSilence", mock.Anything, mock.AnythingOfType("*alerting.SilenceConfig")).Return(nil)
	env.store.On("DeleteSilence", mock.Anything, mock.AnythingOfType("string")).Return(nil)

	w := performRequest(env.router, "POST", "/api/v1/silences", token, gin.H{
		"source":  "db",
		"reason":  "maintenance window",
		"ends_at": time.Now().Add(2 * time.Hour).Format(time.RFC3339),
	})

	assert.Equal(t, http.StatusCreated, w.Code)

	var response APIResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)

	assert.True(t, response.Success)
	data, ok := response.Data.(map[string]interface{})
	require.True(t, ok)
	silenceID, ok := data["id"].(string)
	require.True(t, ok)
	require.NotEmpty(t, silenceID)
	assert.Equal(t, true, data["enabled"])
	assert.Equal(t, "db", data["source"])

	// List
	w = performRequest(env.router, "GET", "/api/v1/silences", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	response = APIResponse{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	data, ok = response.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(1), data["count"])

	// Delete
	w = performRequest(env.router, "DELETE", "/api/v1/silences/"+silenceID, token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	response = APIResponse{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	data, ok = response.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, data["deleted"])

	env.store.AssertExpectations(t)
}

func TestCreateSilenceValidation(t *testing.T) {
	env := setupTestEnv()
	token := generateTestJWT("test-secret", time.Now().Add(time.Hour))

	// No source, level or pattern to match on
	w := performRequest(env.router, "POST", "/api/v1/silences", token, gin.H{
		"reason": "maintenance window",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var response APIResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)
	assert.False(t, response.Success)
	assert.Equal(t, "VALIDATION_FAILED", response.Error.Code)
}

func TestListAlerts(t *testing.T) {
	env := setupTestEnv()

	alerts := []*alerting.Alert{
		{
			ID:        "a1",
			Title:     "High latency",
			Message:   "db response_time_ms is 412.00 (gt threshold 250.00)",
			Severity:  alerting.SeverityWarning,
			Source:    "db",
			Timestamp: time.Now(),
		},
	}
	env.store.On("GetAlerts", mock.Anything, mock.MatchedBy(func(filter monitoring.AlertFilter) bool {
		return filter.Source == "db" && filter.Limit == 10 && filter.Resolved != nil && !*filter.Resolved
	})).Return(alerts, nil)

	w := performRequest(env.router, "GET", "/api/v1/alerts?source=db&resolved=false&limit=10", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var response APIResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)

	assert.True(t, response.Success)
	data, ok := response.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(1), data["count"])

	list, ok := data["alerts"].([]interface{})
	require.True(t, ok)
	require.Len(t, list, 1)
	first, ok := list[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "a1", first["id"])

	env.store.AssertExpectations(t)
}

func TestListAlertsInvalidResolvedFilter(t *testing.T) {
	env := setupTestEnv()

	w := performRequest(env.router, "GET", "/api/v1/alerts?resolved=sometimes", "", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var response APIResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)
	assert.False(t, response.Success)
	assert.Equal(t, "BAD_REQUEST", response.Error.Code)
}

func TestResolveAlert(t *testing.T) {
	env := setupTestEnv()
	token := generateTestJWT("test-secret", time.Now().Add(time.Hour))

	env.store.On("ResolveAlert", mock.Anything, "alert-1").Return(nil)

	w := performRequest(env.router, "POST", "/api/v1/alerts/alert-1/resolve", token, nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var response APIResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)

	assert.True(t, response.Success)
	data, ok := response.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "alert-1", data["id"])
	assert.Equal(t, true, data["resolved"])

	env.store.AssertExpectations(t)
}

func TestAnomalyEndpoint(t *testing.T) {
	env := setupTestEnv()

	// Forty-nine flat samples and one huge spike at the end
	series := make([]float64, 50)
	for i := range series {
		series[i] = 100.0
	}
	series[len(series)-1] = 500.0
	env.store.On("GetMetricSeries", mock.Anything, "db", "response_time_ms", 100).Return(series, nil)

	w := performRequest(env.router, "GET", "/api/v1/anomalies/db/response_time_ms", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var response APIResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)

	assert.True(t, response.Success)
	data, ok := response.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, data["detected"])

	anomaly, ok := data["anomaly"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "spike", anomaly["type"])
	assert.Equal(t, float64(500), anomaly["value"])

	env.store.AssertExpectations(t)
}

func TestAnomalyInsufficientHistory(t *testing.T) {
	env := setupTestEnv()

	env.store.On("GetMetricSeries", mock.Anything, "db", "response_time_ms", 100).
		Return([]float64{100, 101, 99, 100, 102}, nil)

	w := performRequest(env.router, "GET", "/api/v1/anomalies/db/response_time_ms", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var response APIResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)

	assert.True(t, response.Success)
	data, ok := response.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, false, data["detected"])
	assert.Nil(t, data["anomaly"])
}

func TestBreakersEndpoint(t *testing.T) {
	env := setupTestEnv()
	token := generateTestJWT("test-secret", time.Now().Add(time.Hour))

	env.registry.Get("db.ping")

	w := performRequest(env.router, "GET", "/api/v1/breakers", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var response APIResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)

	assert.True(t, response.Success)
	data, ok := response.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(1), data["count"])

	breakers, ok := data["breakers"].([]interface{})
	require.True(t, ok)
	require.Len(t, breakers, 1)
	first, ok := breakers[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "db.ping", first["name"])
	assert.Equal(t, "closed", first["state"])

	// Reset one
	w = performRequest(env.router, "POST", "/api/v1/breakers/db.ping/reset", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	response = APIResponse{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	data, ok = response.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "closed", data["state"])

	// Reset all
	w = performRequest(env.router, "POST", "/api/v1/breakers/reset", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	response = APIResponse{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	data, ok = response.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(1), data["reset"])
}

func TestResetUnknownBreaker(t *testing.T) {
	env := setupTestEnv()
	token := generateTestJWT("test-secret", time.Now().Add(time.Hour))

	w := performRequest(env.router, "POST", "/api/v1/breakers/ghost/reset", token, nil)

	assert.Equal(t, http.StatusNotFound, w.Code)

	var response APIResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)
	assert.False(t, response.Success)
	assert.Equal(t, "NOT_FOUND", response.Error.Code)
}

func TestPoolStatsNotConfigured(t *testing.T) {
	env := setupTestEnv()

	w := performRequest(env.router, "GET", "/api/v1/pool/stats", "", nil)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var response APIResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)
	assert.False(t, response.Success)
	assert.Equal(t, "RESOURCE_UNAVAILABLE", response.Error.Code)
}

func TestNotFoundEndpoint(t *testing.T) {
	env := setupTestEnv()

	w := performRequest(env.router, "GET", "/api/v1/nonexistent", "", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)

	var response APIResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)

	assert.False(t, response.Success)
	assert.Equal(t, "NOT_FOUND", response.Error.Code)
}
