package cache

import (
	"fmt"

	"github.com/strata-ai/semcache/pkg/math/vector"
)

// RankingMetric is the distance function SimilarityCache re-ranks the
// index's top-K candidates under. Restricted to distance-valued
// metrics (larger-is-worse): InnerProduct is deliberately excluded
// since it is larger-is-better and would invert the hit_distance_threshold
// comparison if used directly as a ranking distance.
type RankingMetric int

const (
	RankingEuclidean RankingMetric = iota
	RankingManhattan
	RankingCosine
)

func (m RankingMetric) String() string {
	switch m {
	case RankingEuclidean:
		return "Euclidean"
	case RankingManhattan:
		return "Manhattan"
	case RankingCosine:
		return "Cosine"
	default:
		return fmt.Sprintf("RankingMetric(%d)", int(m))
	}
}

// ParseRankingMetric parses the configuration-file / env-var spelling
// of a ranking metric.
func ParseRankingMetric(s string) (RankingMetric, error) {
	switch s {
	case "Euclidean":
		return RankingEuclidean, nil
	case "Manhattan":
		return RankingManhattan, nil
	case "Cosine":
		return RankingCosine, nil
	default:
		return 0, fmt.Errorf("cache: unknown ranking metric %q", s)
	}
}

// distance computes a, b's distance under m. Zero means identical.
func (m RankingMetric) distance(a, b []float32) float64 {
	switch m {
	case RankingEuclidean:
		return vector.EuclideanDistance(a, b)
	case RankingManhattan:
		return vector.ManhattanDistance(a, b)
	case RankingCosine:
		return vector.CosineDistance(a, b)
	default:
		return vector.EuclideanDistance(a, b)
	}
}
