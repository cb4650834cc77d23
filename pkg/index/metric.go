package index

import "fmt"

// Metric selects the distance function a RequestIndex ranks candidates
// by. Cosine is stored internally as L2-normalized vectors under
// InnerProduct, with the original (pre-normalization) norm recorded per
// item so FetchNearestK can reconstruct the raw vector.
type Metric int

const (
	MetricL2 Metric = iota
	MetricInnerProduct
	MetricCosine
)

func (m Metric) String() string {
	switch m {
	case MetricL2:
		return "L2"
	case MetricInnerProduct:
		return "InnerProduct"
	case MetricCosine:
		return "Cosine"
	default:
		return fmt.Sprintf("Metric(%d)", int(m))
	}
}

// ParseMetric parses the configuration-file / env-var spelling of a metric.
func ParseMetric(s string) (Metric, error) {
	switch s {
	case "L2":
		return MetricL2, nil
	case "InnerProduct":
		return MetricInnerProduct, nil
	case "Cosine":
		return MetricCosine, nil
	default:
		return 0, fmt.Errorf("index: unknown metric %q", s)
	}
}
