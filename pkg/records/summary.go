package records

import "math"

// ThroughputSummary describes a throughput series the way the harness
// reports it: average ops/second with its spread.
type ThroughputSummary struct {
	Samples int     `json:"samples" yaml:"samples"`
	Mean    float64 `json:"mean_ops_per_sec" yaml:"mean_ops_per_sec"`
	StdDev  float64 `json:"stddev_ops_per_sec" yaml:"stddev_ops_per_sec"`
	StdErr  float64 `json:"stderr_ops_per_sec" yaml:"stderr_ops_per_sec"`
}

// SummarizeThroughput returns the mean, sample standard deviation and
// standard error of samples. Spread is zero with fewer than two samples.
func SummarizeThroughput(samples []float64) ThroughputSummary {
	s := ThroughputSummary{Samples: len(samples)}
	if s.Samples == 0 {
		return s
	}

	var sum float64
	for _, v := range samples {
		sum += v
	}

	s.Mean = sum / float64(s.Samples)

	if s.Samples < 2 {
		return s
	}

	var sq float64

	for _, v := range samples {
		d := v - s.Mean
		sq += d * d
	}

	s.StdDev = math.Sqrt(sq / float64(s.Samples-1))
	s.StdErr = s.StdDev / math.Sqrt(float64(s.Samples))

	return s
}

// OpsSamples extracts the ops/second column of a series.
func OpsSamples(recs []ThroughputRecord) []float64 {
	out := make([]float64, len(recs))
	for i, r := range recs {
		out[i] = float64(r.OpsPerSec)
	}

	return out
}
