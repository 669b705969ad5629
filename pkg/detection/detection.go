package detection

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Package detection decodes the per-frame JSON documents produced by the
// object detection pipeline. One document holds four parallel arrays
// (entity, class name, score, box). We never run a model here; the detector
// is an upstream system, and this is just its wire format.

// ErrDecode is wrapped by all decode failures, so that scanners can
// recognize a bad record and skip it.
var ErrDecode = errors.New("malformed detection record")

// Record is the decoded object detection output for a single video frame.
// Entities, ClassNames and Scores are parallel. Boxes is allowed to be
// shorter than the other three (some detector runs don't emit boxes), so
// always access boxes through Box().
type Record struct {
	Entities   []string    `json:"detection_class_entities"`
	ClassNames []string    `json:"detection_class_names"`
	Scores     []float64   `json:"detection_scores"`
	Boxes      [][]float64 `json:"detection_boxes"`
}

// Len returns the number of usable detections, which is the shortest of the
// three parallel arrays.
func (r *Record) Len() int {
	n := len(r.Entities)
	if len(r.ClassNames) < n {
		n = len(r.ClassNames)
	}
	if len(r.Scores) < n {
		n = len(r.Scores)
	}
	return n
}

// Box returns the bounding box for detection i, or an empty box if the
// detector didn't emit one for that index.
func (r *Record) Box(i int) []float64 {
	if i < len(r.Boxes) {
		return r.Boxes[i]
	}
	return []float64{}
}

// The detector emits scores either as JSON numbers or as numeric strings,
// depending on which export path produced the file. We accept both.
type scoreList []float64

func (s *scoreList) UnmarshalJSON(b []byte) error {
	raw := []any{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make([]float64, 0, len(raw))
	for i, v := range raw {
		switch t := v.(type) {
		case float64:
			out = append(out, t)
		case string:
			f, err := strconv.ParseFloat(t, 64)
			if err != nil {
				return fmt.Errorf("score %v ('%v') is not a number", i, t)
			}
			out = append(out, f)
		default:
			return fmt.Errorf("score %v has unexpected type %T", i, v)
		}
	}
	*s = out
	return nil
}

type recordJSON struct {
	Entities   []string    `json:"detection_class_entities"`
	ClassNames []string    `json:"detection_class_names"`
	Scores     scoreList   `json:"detection_scores"`
	Boxes      [][]float64 `json:"detection_boxes"`
}

// Decode parses a raw detection document. Missing fields decode as empty
// arrays; an unparseable document, or a score that won't coerce to a number,
// fails with an error wrapping ErrDecode.
func Decode(raw []byte) (*Record, error) {
	rj := recordJSON{}
	if err := json.Unmarshal(raw, &rj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	rec := &Record{
		Entities:   rj.Entities,
		ClassNames: rj.ClassNames,
		Scores:     rj.Scores,
		Boxes:      rj.Boxes,
	}
	if rec.Entities == nil {
		rec.Entities = []string{}
	}
	if rec.ClassNames == nil {
		rec.ClassNames = []string{}
	}
	if rec.Scores == nil {
		rec.Scores = []float64{}
	}
	if rec.Boxes == nil {
		rec.Boxes = [][]float64{}
	}
	return rec, nil
}
