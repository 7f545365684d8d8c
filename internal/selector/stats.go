package selector

import "github.com/Veraticus/the-mentat-must-flow/internal/model"

// BatchStatistics summarizes a prediction batch for review planning.
type BatchStatistics struct {
	CategoryCounts         map[string]int
	Total                  int
	HighConfidence         int
	MediumConfidence       int
	LowConfidence          int
	AverageConfidence      float64
	RecommendedReviewCount int
}

// Statistics computes the confidence and category distribution of a
// batch. The recommended review count covers all low-confidence
// predictions plus half of the medium band, capped at twenty.
func Statistics(preds []model.Prediction) BatchStatistics {
	stats := BatchStatistics{CategoryCounts: make(map[string]int)}
	if len(preds) == 0 {
		return stats
	}

	var sum float64
	for _, p := range preds {
		stats.Total++
		stats.CategoryCounts[p.Category]++
		sum += p.Confidence

		switch {
		case p.Confidence > highBand:
			stats.HighConfidence++
		case p.Confidence > mediumBand:
			stats.MediumConfidence++
		default:
			stats.LowConfidence++
		}
	}

	stats.AverageConfidence = sum / float64(stats.Total)
	stats.RecommendedReviewCount = stats.LowConfidence + stats.MediumConfidence/2
	if stats.RecommendedReviewCount > adaptWindow {
		stats.RecommendedReviewCount = adaptWindow
	}
	return stats
}
