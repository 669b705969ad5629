package search

import (
	"errors"
	"strings"

	"github.com/cyclopcam/framesearch/server/blobstore"
)

// Canonical width of a frame number. Frame 12 of a video is stored as "0012".
const frameNumberWidth = 4

// CanonicalFrameNumber left-pads a frame number with zeros to the canonical
// width. Idempotent, and inputs wider than the canonical width are returned
// as-is.
func CanonicalFrameNumber(frame string) string {
	frame = strings.TrimSpace(frame)
	for len(frame) < frameNumberWidth {
		frame = "0" + frame
	}
	return frame
}

// ResolveImageBlob locates the keyframe image for a frame of a video.
//
// The primary lookup is an exact tag match. Some ingestion runs named their
// keyframe files differently (eg "frame_0001.jpg") and so carry no
// frame_number tag; for those we fall back to scanning the video's keyframes
// for a filename containing the canonical frame string. The fallback winner
// is whichever blob the store enumerates first, which is not guaranteed
// deterministic when several filenames contain the same digit substring.
//
// Returns blobstore.ErrNotFound when neither lookup succeeds.
func (e *Engine) ResolveImageBlob(videoID, frameNumber string) (*blobstore.Blob, error) {
	frame := CanonicalFrameNumber(frameNumber)

	blob, err := e.store.FindOne(&blobstore.Filter{
		Kind:        blobstore.KindKeyframes,
		VideoID:     videoID,
		FrameNumber: frame,
	})
	if err == nil {
		return blob, nil
	} else if !errors.Is(err, blobstore.ErrNotFound) {
		return nil, err
	}

	candidates, err := e.store.Find(&blobstore.Filter{
		Kind:    blobstore.KindKeyframes,
		VideoID: videoID,
	})
	if err != nil {
		return nil, err
	}
	for i := range candidates {
		if strings.Contains(candidates[i].Filename, frame) {
			return &candidates[i], nil
		}
	}
	return nil, blobstore.ErrNotFound
}

// ResolveImage returns the keyframe image bytes for a frame of a video, or
// blobstore.ErrNotFound.
func (e *Engine) ResolveImage(videoID, frameNumber string) ([]byte, error) {
	blob, err := e.ResolveImageBlob(videoID, frameNumber)
	if err != nil {
		return nil, err
	}
	return e.store.Payload(blob)
}

// Detection is one detected object inside a frame detail.
type Detection struct {
	Entity     string    `json:"entity"`
	ClassName  string    `json:"className"`
	Confidence float64   `json:"confidence"`
	BBox       []float64 `json:"bbox"`
}

// FrameDetail aggregates everything we know about one frame.
// Image marshals as base64, or null when the keyframe couldn't be resolved.
type FrameDetail struct {
	VideoID      string      `json:"videoID"`
	FrameNumber  string      `json:"frameNumber"`
	Detections   []Detection `json:"detections"`
	Image        []byte      `json:"image"`
	TotalObjects int         `json:"totalObjects"`
}

// FrameDetails returns all detections for a frame, plus its keyframe image.
// A missing or undecodable detection record yields an empty detection list,
// and a missing keyframe yields a nil image; neither is an error.
func (e *Engine) FrameDetails(videoID, frameNumber string) (*FrameDetail, error) {
	frame := CanonicalFrameNumber(frameNumber)
	detail := &FrameDetail{
		VideoID:     videoID,
		FrameNumber: frame,
		Detections:  []Detection{},
	}

	blob, err := e.store.FindOne(&blobstore.Filter{
		Kind:        blobstore.KindObjects,
		VideoID:     videoID,
		FrameNumber: frame,
	})
	if err != nil && !errors.Is(err, blobstore.ErrNotFound) {
		return nil, err
	}
	if err == nil {
		if rec, err := e.decodeBlob(blob); err == nil {
			for i := 0; i < rec.Len(); i++ {
				detail.Detections = append(detail.Detections, Detection{
					Entity:     rec.Entities[i],
					ClassName:  rec.ClassNames[i],
					Confidence: rec.Scores[i],
					BBox:       rec.Box(i),
				})
			}
		} else {
			e.log.Warnf("Frame %v/%v has an undecodable detection record: %v", videoID, frame, err)
		}
	}

	if image, err := e.ResolveImage(videoID, frame); err == nil {
		detail.Image = image
	} else if !errors.Is(err, blobstore.ErrNotFound) {
		return nil, err
	}

	detail.TotalObjects = len(detail.Detections)
	return detail, nil
}
