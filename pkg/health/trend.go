package health

import "time"

const (
	// predictionHorizon is how many samples ahead predictions project
	predictionHorizon = 5
	// flatSlope is the magnitude below which a fitted slope counts as flat
	flatSlope = 1e-6
)

// Trend metric names
const (
	MetricResponseTime = "responseTime"
	MetricErrorRate    = "errorRate"
	MetricAvailability = "availability"
)

// AnalyzeTrend fits the monitor's recent history and reports where its
// health is heading. With fewer than the minimum samples the trend is
// stable with zero confidence.
func (m *Monitor) AnalyzeTrend() *TrendAnalysis {
	window := m.History(m.trendWindow)

	analysis := &TrendAnalysis{
		Monitor:    m.name,
		Direction:  TrendStable,
		Samples:    len(window),
		AnalyzedAt: time.Now(),
	}
	if len(window) < m.trendMinSamples {
		return analysis
	}

	series := map[string][]float64{
		MetricResponseTime: make([]float64, len(window)),
		MetricErrorRate:    make([]float64, len(window)),
		MetricAvailability: make([]float64, len(window)),
	}
	for i, result := range window {
		series[MetricResponseTime][i] = float64(result.Duration.Milliseconds())
		if result.Status == CheckFail {
			series[MetricErrorRate][i] = 1
			series[MetricAvailability][i] = 0
		} else {
			series[MetricErrorRate][i] = 0
			series[MetricAvailability][i] = 100
		}
	}

	analysis.Metrics = make(map[string]*MetricTrend, len(series))
	votes := make(map[TrendDirection]int)
	for metric, values := range series {
		trend := fitMetric(metric, values)
		analysis.Metrics[metric] = trend
		votes[trend.Direction]++
	}

	analysis.Direction = overallDirection(votes)
	sizeFactor := float64(len(window)) / float64(m.trendWindow)
	if sizeFactor > 1 {
		sizeFactor = 1
	}
	agreement := float64(votes[analysis.Direction]) / float64(len(series))
	analysis.Confidence = sizeFactor * agreement

	return analysis
}

// fitMetric computes the trend of one metric series
func fitMetric(metric string, values []float64) *MetricTrend {
	slope := leastSquaresSlope(values)
	current := values[len(values)-1]

	return &MetricTrend{
		Current:    current,
		Slope:      slope,
		Prediction: current + slope*predictionHorizon,
		Direction:  metricDirection(metric, slope),
	}
}

// metricDirection maps a slope to a direction. Rising response times and
// error rates degrade; rising availability improves.
func metricDirection(metric string, slope float64) TrendDirection {
	if slope > -flatSlope && slope < flatSlope {
		return TrendStable
	}

	rising := slope > 0
	if metric == MetricAvailability {
		if rising {
			return TrendImproving
		}
		return TrendDegrading
	}
	if rising {
		return TrendDegrading
	}
	return TrendImproving
}

// overallDirection combines per-metric votes. Stable metrics abstain;
// a tie between degrading and improving reads as stable.
func overallDirection(votes map[TrendDirection]int) TrendDirection {
	switch {
	case votes[TrendDegrading] > votes[TrendImproving]:
		return TrendDegrading
	case votes[TrendImproving] > votes[TrendDegrading]:
		return TrendImproving
	default:
		return TrendStable
	}
}

// leastSquaresSlope fits y = a + bx over x = 0..n-1 and returns b
func leastSquaresSlope(values []float64) float64 {
	n := float64(len(values))
	if n < 2 {
		return 0
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}
