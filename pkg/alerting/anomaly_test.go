package alerting

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/audiocove/audiocove-monitoring/pkg/errors"
)

// baselineSeries produces n values alternating around 110 so the series
// has nonzero variance.
func baselineSeries(n int) []float64 {
	values := make([]float64, n)
	for i := range values {
		if i%2 == 0 {
			values[i] = 105
		} else {
			values[i] = 115
		}
	}
	return values
}

func TestDetectAnomalies_Spike(t *testing.T) {
	store := newFakeStore()
	store.series["database/response_time_ms"] = append(baselineSeries(49), 500)

	e := NewEngine(EngineConfig{}, WithStore(store))
	anomaly, err := e.DetectAnomalies(context.Background(), "database", "response_time_ms")

	require.NoError(t, err)
	require.NotNil(t, anomaly)
	assert.Equal(t, "database", anomaly.Source)
	assert.Equal(t, "response_time_ms", anomaly.Metric)
	assert.Equal(t, AnomalySpike, anomaly.Type)
	assert.Equal(t, 500.0, anomaly.Value)
	assert.Greater(t, anomaly.ZScore, 3.0)
	assert.Greater(t, anomaly.StdDev, 0.0)
	assert.False(t, anomaly.DetectedAt.IsZero())
}

func TestDetectAnomalies_Dip(t *testing.T) {
	store := newFakeStore()
	store.series["database/response_time_ms"] = append(baselineSeries(49), -300)

	e := NewEngine(EngineConfig{}, WithStore(store))
	anomaly, err := e.DetectAnomalies(context.Background(), "database", "response_time_ms")

	require.NoError(t, err)
	require.NotNil(t, anomaly)
	assert.Equal(t, AnomalyDip, anomaly.Type)
	assert.Less(t, anomaly.ZScore, -3.0)
}

func TestDetectAnomalies_InsufficientHistory(t *testing.T) {
	store := newFakeStore()
	store.series["database/response_time_ms"] = append(baselineSeries(20), 500)

	e := NewEngine(EngineConfig{}, WithStore(store))
	anomaly, err := e.DetectAnomalies(context.Background(), "database", "response_time_ms")

	require.NoError(t, err)
	assert.Nil(t, anomaly)
}

func TestDetectAnomalies_ZeroVariance(t *testing.T) {
	store := newFakeStore()
	values := make([]float64, 40)
	for i := range values {
		values[i] = 100
	}
	store.series["database/response_time_ms"] = values

	e := NewEngine(EngineConfig{}, WithStore(store))
	anomaly, err := e.DetectAnomalies(context.Background(), "database", "response_time_ms")

	require.NoError(t, err)
	assert.Nil(t, anomaly)
}

func TestDetectAnomalies_WithinThreshold(t *testing.T) {
	store := newFakeStore()
	values := make([]float64, 40)
	for i := range values {
		values[i] = float64(i)
	}
	store.series["database/response_time_ms"] = values

	e := NewEngine(EngineConfig{}, WithStore(store))
	anomaly, err := e.DetectAnomalies(context.Background(), "database", "response_time_ms")

	require.NoError(t, err)
	assert.Nil(t, anomaly)
}

func TestDetectAnomalies_CustomThresholdAndMinSamples(t *testing.T) {
	store := newFakeStore()
	store.series["database/response_time_ms"] = append(baselineSeries(9), 500)

	e := NewEngine(EngineConfig{AnomalyMinSamples: 10, AnomalyThreshold: 2.0}, WithStore(store))
	anomaly, err := e.DetectAnomalies(context.Background(), "database", "response_time_ms")

	require.NoError(t, err)
	require.NotNil(t, anomaly)
	assert.Equal(t, AnomalySpike, anomaly.Type)
	assert.Greater(t, anomaly.ZScore, 2.0)
}

func TestDetectAnomalies_Validation(t *testing.T) {
	e := NewEngine(EngineConfig{})
	_, err := e.DetectAnomalies(context.Background(), "database", "response_time_ms")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))

	store := newFakeStore()
	e = NewEngine(EngineConfig{}, WithStore(store))
	_, err = e.DetectAnomalies(context.Background(), "", "response_time_ms")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
	_, err = e.DetectAnomalies(context.Background(), "database", "")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
}

func TestDetectAnomalies_StoreErrorPropagates(t *testing.T) {
	store := newFakeStore()
	store.seriesErr = fmt.Errorf("connection refused")

	e := NewEngine(EngineConfig{}, WithStore(store))
	_, err := e.DetectAnomalies(context.Background(), "database", "response_time_ms")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestMeanStdDev(t *testing.T) {
	mean, stddev := meanStdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	assert.InDelta(t, 5.0, mean, 0.0001)
	assert.InDelta(t, 2.0, stddev, 0.0001)

	mean, stddev = meanStdDev(nil)
	assert.Zero(t, mean)
	assert.Zero(t, stddev)
}
