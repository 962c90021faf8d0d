package report

import (
	"math"
	"slices"

	"sjsage522/listingharvester/internal/listing"
)

// MinPricedSample is the smallest number of priced records the outlier filter will judge
const MinPricedSample = 5

// DefaultOutlierFactor is the IQR multiplier used below the first quartile
const DefaultOutlierFactor = 1.5

// OutlierStats describes one outlier filtering pass
type OutlierStats struct {
	Dropped int     `json:"dropped"`
	Q1      float64 `json:"q1"`
	Q3      float64 `json:"q3"`
	IQR     float64 `json:"iqr"`
	Cutoff  float64 `json:"cutoff"`
}

// RemoveLowOutliers drops priced records whose price falls below q1 - factor*iqr.
// Unpriced records are always kept. With fewer than MinPricedSample priced records
// the input is returned unchanged and stats is nil.
// The input slice is never modified.
func RemoveLowOutliers(records []listing.Record, factor float64) ([]listing.Record, *OutlierStats) {
	prices := make([]float64, 0, len(records))
	for _, r := range records {
		if r.HasPrice() {
			prices = append(prices, float64(*r.Price))
		}
	}
	if len(prices) < MinPricedSample {
		return records, nil
	}

	slices.Sort(prices)
	q1 := quantile(prices, 0.25)
	q3 := quantile(prices, 0.75)
	iqr := q3 - q1
	cutoff := q1 - factor*iqr

	kept := make([]listing.Record, 0, len(records))
	for _, r := range records {
		if r.HasPrice() && float64(*r.Price) < cutoff {
			continue
		}
		kept = append(kept, r)
	}

	return kept, &OutlierStats{
		Dropped: len(records) - len(kept),
		Q1:      q1,
		Q3:      q3,
		IQR:     iqr,
		Cutoff:  cutoff,
	}
}

// quantile interpolates linearly between the closest ranks of a sorted sample
func quantile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return math.NaN()
	}
	h := float64(len(sorted)-1) * p
	lo := math.Floor(h)
	hi := math.Ceil(h)
	low, high := sorted[int(lo)], sorted[int(hi)]
	return low + (h-lo)*(high-low)
}
