package alerting

import (
	"context"
	"fmt"
	"math"

	"github.com/audiocove/audiocove-monitoring/pkg/errors"
)

// anomalySeriesLimit caps how much history one detection pass reads.
const anomalySeriesLimit = 100

// DetectAnomalies fetches the recent series for a source metric and
// checks whether its latest value is a statistical outlier. It returns
// nil when the history is too short or the series has no variance.
func (e *Engine) DetectAnomalies(ctx context.Context, source, metric string) (*Anomaly, error) {
	if e.store == nil {
		return nil, errors.NewValidationError("alert engine has no store attached")
	}
	if source == "" || metric == "" {
		return nil, errors.NewValidationError("anomaly detection requires a source and metric")
	}

	values, err := e.store.GetMetricSeries(ctx, source, metric, anomalySeriesLimit)
	if err != nil {
		return nil, fmt.Errorf("fetching series for %s/%s: %w", source, metric, err)
	}
	if len(values) < e.anomalyMinSamples {
		return nil, nil
	}

	latest := values[len(values)-1]
	mean, stddev := meanStdDev(values)
	if stddev == 0 {
		return nil, nil
	}

	z := (latest - mean) / stddev
	if math.Abs(z) <= e.anomalyThreshold {
		return nil, nil
	}

	kind := AnomalySpike
	if z < 0 {
		kind = AnomalyDip
	}
	anomaly := &Anomaly{
		Source:     source,
		Metric:     metric,
		Type:       kind,
		Value:      latest,
		Mean:       mean,
		StdDev:     stddev,
		ZScore:     z,
		DetectedAt: e.now(),
	}

	if e.metrics != nil {
		e.metrics.RecordAnomaly(metric, kind)
	}
	e.logger.Warn("Anomaly detected",
		"source", source,
		"metric", metric,
		"type", kind,
		"value", latest,
		"z_score", z,
	)

	return anomaly, nil
}

func meanStdDev(values []float64) (mean, stddev float64) {
	n := float64(len(values))
	if n == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean = sum / n

	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= n
	return mean, math.Sqrt(variance)
}
