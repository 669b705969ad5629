package blobstore

import (
	"strings"

	"github.com/cyclopcam/dbh"
	"gorm.io/gorm"
)

// The blob kinds that the ingestion pipeline produces. Kind discriminates
// which of the optional tag fields on Blob are meaningful.
const (
	KindObjects      = "objects"       // Object detection JSON, one document per frame
	KindKeyframes    = "keyframes"     // Keyframe images
	KindClipFeatures = "clip-features" // Feature vectors, one file per video
	KindMapKeyframes = "map-keyframes" // Keyframe mapping data
	KindMetadata     = "metadata"      // Per-video metadata
)

// Kinds lists every valid blob kind.
var Kinds = []string{KindObjects, KindKeyframes, KindClipFeatures, KindMapKeyframes, KindMetadata}

// BaseModel is our base class for a GORM model.
// The default GORM Model uses int, but we prefer int64
type BaseModel struct {
	ID int64 `gorm:"primaryKey" json:"id"`
}

// Blob is the metadata record of one stored payload. Rows are written once
// at ingestion and never mutated. DetectionCount/MaxConfidence/AvgConfidence
// are populated for 'objects' blobs only, and VideoID/FrameNumber are empty
// where the original path didn't encode them.
type Blob struct {
	BaseModel
	Kind           string      `json:"kind"`
	VideoID        string      `json:"videoID"`
	FrameNumber    string      `json:"frameNumber"` // As encoded in the original path (eg "0012")
	Batch          string      `json:"batch"`
	Filename       string      `json:"filename"`
	OriginalPath   string      `json:"originalPath"`
	FileSize       int64       `json:"fileSize"`
	UploadTime     dbh.IntTime `json:"uploadTime"`
	ContentType    string      `json:"contentType"`
	DetectionCount int         `json:"detectionCount"`
	MaxConfidence  float64     `json:"maxConfidence"`
	AvgConfidence  float64     `json:"avgConfidence"`
}

// Filter is a metadata predicate for Find/FindOne/Count. Zero-valued fields
// are not applied. Enumeration order of the resulting blobs is store-defined
// (primary key order in practice); callers must not rely on it.
type Filter struct {
	Kind            string
	VideoID         string // Exact match
	VideoIDContains string // Case-insensitive substring match
	FrameNumber     string
	Batch           string
	OriginalPath    string
	Filename        string
	Limit           int
}

func (f *Filter) apply(q *gorm.DB) *gorm.DB {
	if f.Kind != "" {
		q = q.Where("kind = ?", f.Kind)
	}
	if f.VideoID != "" {
		q = q.Where("video_id = ?", f.VideoID)
	}
	if f.VideoIDContains != "" {
		// LOWER() keeps the semantics identical between sqlite and postgres
		q = q.Where("LOWER(video_id) LIKE ?", "%"+strings.ToLower(f.VideoIDContains)+"%")
	}
	if f.FrameNumber != "" {
		q = q.Where("frame_number = ?", f.FrameNumber)
	}
	if f.Batch != "" {
		q = q.Where("batch = ?", f.Batch)
	}
	if f.OriginalPath != "" {
		q = q.Where("original_path = ?", f.OriginalPath)
	}
	if f.Filename != "" {
		q = q.Where("filename = ?", f.Filename)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	return q.Order("id")
}

// BatchSummary is an aggregate over all blobs of one ingestion batch.
type BatchSummary struct {
	Batch      string   `json:"batch"`
	TotalFiles int64    `json:"totalFiles"`
	TotalBytes int64    `json:"totalBytes"`
	Kinds      []string `json:"kinds"`
}
