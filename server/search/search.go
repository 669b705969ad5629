package search

import (
	"errors"
	"sort"
	"strings"

	"github.com/cyclopcam/framesearch/pkg/detection"
	"github.com/cyclopcam/framesearch/server/blobstore"
	"github.com/cyclopcam/logs"
)

// Package search is the query engine over the blob store: substring search
// across detected object labels, keyframe image resolution, and the
// sampled dataset statistics.

// ErrInvalidQuery is returned by Search when the search term is empty.
var ErrInvalidQuery = errors.New("search term is required")

// DefaultConfidenceFloor and DefaultMaxResults are applied by the HTTP
// layer when the caller doesn't specify them.
const (
	DefaultConfidenceFloor = 0.7
	DefaultMaxResults      = 50
)

// Engine answers queries against an injected BlobStore handle. It holds no
// mutable state, so a single Engine is safe for concurrent requests.
type Engine struct {
	log   logs.Log
	store *blobstore.BlobStore
}

func NewEngine(log logs.Log, store *blobstore.BlobStore) *Engine {
	return &Engine{
		log:   log,
		store: store,
	}
}

// Result is one matched detection in one frame.
type Result struct {
	VideoID     string    `json:"videoID"`
	FrameNumber string    `json:"frameNumber"`
	Entity      string    `json:"entity"`
	ClassName   string    `json:"className"`
	Confidence  float64   `json:"confidence"`
	BBox        []float64 `json:"bbox"`
	Filename    string    `json:"filename"`
}

// SearchResponse is the outcome of one search scan.
// TotalMatches counts the results actually returned, which is bounded by the
// result cap - it is NOT the corpus-wide match count. The scan stops as soon
// as the cap is reached, so the cap applies in store enumeration order,
// before the final sort.
type SearchResponse struct {
	TotalMatches   int      `json:"totalMatches"`
	Results        []Result `json:"results"`
	ScannedRecords int      `json:"scannedRecords"` // Detection records visited, including skipped ones
	SkippedRecords int      `json:"skippedRecords"` // Records dropped because their payload wouldn't decode
}

// Search scans detection records for labels containing 'term'
// (case-insensitive), keeping detections with confidence >= confidenceFloor,
// up to maxResults. videoFilter, when non-empty, restricts the scan to
// video IDs containing it as a case-insensitive substring.
//
// confidenceFloor is applied as-is: a floor above 1 returns nothing, a
// negative floor admits every detection.
//
// A record that fails to decode is skipped and counted; the scan never
// aborts on a single bad record.
func (e *Engine) Search(term string, confidenceFloor float64, maxResults int, videoFilter string) (*SearchResponse, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, ErrInvalidQuery
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	needle := strings.ToLower(term)

	blobs, err := e.store.Find(&blobstore.Filter{
		Kind:            blobstore.KindObjects,
		VideoIDContains: videoFilter,
	})
	if err != nil {
		return nil, err
	}

	results := []Result{}
	scanned := 0
	skipped := 0
	for i := range blobs {
		blob := &blobs[i]
		scanned++
		rec, err := e.decodeBlob(blob)
		if err != nil {
			skipped++
			continue
		}
		for j := 0; j < rec.Len(); j++ {
			if rec.Scores[j] < confidenceFloor {
				continue
			}
			if !strings.Contains(strings.ToLower(rec.Entities[j]), needle) &&
				!strings.Contains(strings.ToLower(rec.ClassNames[j]), needle) {
				continue
			}
			results = append(results, Result{
				VideoID:     blob.VideoID,
				FrameNumber: blob.FrameNumber,
				Entity:      rec.Entities[j],
				ClassName:   rec.ClassNames[j],
				Confidence:  rec.Scores[j],
				BBox:        rec.Box(j),
				Filename:    blob.Filename,
			})
			if len(results) >= maxResults {
				break
			}
		}
		if len(results) >= maxResults {
			break
		}
	}

	// Stable, so equal confidences keep their scan order
	sort.SliceStable(results, func(a, b int) bool {
		return results[a].Confidence > results[b].Confidence
	})

	return &SearchResponse{
		TotalMatches:   len(results),
		Results:        results,
		ScannedRecords: scanned,
		SkippedRecords: skipped,
	}, nil
}

// decodeBlob fetches and decodes one detection record. A payload fetch
// failure is treated the same as a decode failure: the record is skippable.
func (e *Engine) decodeBlob(blob *blobstore.Blob) (*detection.Record, error) {
	data, err := e.store.Payload(blob)
	if err != nil {
		return nil, err
	}
	return detection.Decode(data)
}
