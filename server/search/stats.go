package search

import (
	"sort"

	"github.com/cyclopcam/framesearch/server/blobstore"
)

// Sampling parameters for the two label-histogram consumers. The dataset
// overview samples wider with a lower floor; suggestions sample narrower
// with a higher floor.
const (
	statsSampleRecords      = 1000
	statsSampleMinScore     = 0.5
	statsTopObjects         = 20
	suggestionSampleRecords = 500
	suggestionMinScore      = 0.6
	suggestionMaxLabels     = 50
	sampleVideoCount        = 10
)

// LabelCount is one entry of a frequency-ranked label histogram.
type LabelCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// DatasetStats is the dataset overview.
// TotalVideos/TotalFrames/TotalKeyframes are exact counts over the full
// store. TopObjects is computed from a bounded sample (see
// sampleObjectFrequency), so its counts are approximate.
type DatasetStats struct {
	TotalVideos    int          `json:"totalVideos"`
	TotalFrames    int64        `json:"totalFrames"`
	TotalKeyframes int64        `json:"totalKeyframes"`
	TopObjects     []LabelCount `json:"topObjects"`
	SampleVideos   []string     `json:"sampleVideos"`
}

// sampleObjectFrequency draws up to maxRecords detection records in the
// store's natural enumeration order - a prefix, not a random sample, so the
// histogram is biased toward whatever the store returns first. Detections
// with score >= minScore increment their entity's counter. Labels come back
// ranked by descending count; ties keep first-encounter order.
// Undecodable records are skipped and counted, never fatal.
func (e *Engine) sampleObjectFrequency(maxRecords int, minScore float64) ([]LabelCount, int, error) {
	blobs, err := e.store.Find(&blobstore.Filter{
		Kind:  blobstore.KindObjects,
		Limit: maxRecords,
	})
	if err != nil {
		return nil, 0, err
	}

	counts := map[string]int{}
	order := []string{} // first-encounter order, for stable tie-breaks
	skipped := 0
	for i := range blobs {
		rec, err := e.decodeBlob(&blobs[i])
		if err != nil {
			skipped++
			continue
		}
		for j := 0; j < rec.Len(); j++ {
			if rec.Scores[j] < minScore {
				continue
			}
			label := rec.Entities[j]
			if _, seen := counts[label]; !seen {
				order = append(order, label)
			}
			counts[label]++
		}
	}

	ranked := make([]LabelCount, 0, len(order))
	for _, label := range order {
		ranked = append(ranked, LabelCount{Label: label, Count: counts[label]})
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].Count > ranked[b].Count
	})
	return ranked, skipped, nil
}

// DatasetStats computes the dataset overview.
func (e *Engine) DatasetStats() (*DatasetStats, error) {
	videos, err := e.store.DistinctVideoIDs(blobstore.KindObjects)
	if err != nil {
		return nil, err
	}
	frames, err := e.store.Count(&blobstore.Filter{Kind: blobstore.KindObjects})
	if err != nil {
		return nil, err
	}
	keyframes, err := e.store.Count(&blobstore.Filter{Kind: blobstore.KindKeyframes})
	if err != nil {
		return nil, err
	}
	top, skipped, err := e.sampleObjectFrequency(statsSampleRecords, statsSampleMinScore)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		e.log.Warnf("DatasetStats: skipped %v undecodable detection records", skipped)
	}
	if len(top) > statsTopObjects {
		top = top[:statsTopObjects]
	}
	sampleVideos := videos
	if len(sampleVideos) > sampleVideoCount {
		sampleVideos = sampleVideos[:sampleVideoCount]
	}
	return &DatasetStats{
		TotalVideos:    len(videos),
		TotalFrames:    frames,
		TotalKeyframes: keyframes,
		TopObjects:     top,
		SampleVideos:   sampleVideos,
	}, nil
}

// Suggestions returns popular object labels for search auto-complete.
func (e *Engine) Suggestions() ([]string, error) {
	ranked, skipped, err := e.sampleObjectFrequency(suggestionSampleRecords, suggestionMinScore)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		e.log.Warnf("Suggestions: skipped %v undecodable detection records", skipped)
	}
	if len(ranked) > suggestionMaxLabels {
		ranked = ranked[:suggestionMaxLabels]
	}
	labels := make([]string, 0, len(ranked))
	for _, lc := range ranked {
		labels = append(labels, lc.Label)
	}
	return labels, nil
}
