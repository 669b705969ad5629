package ingest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/framesearch/pkg/detection"
	"github.com/cyclopcam/framesearch/server/blobstore"
	"github.com/cyclopcam/logs"
)

// Package ingest uploads a batch directory tree into the blob store.
// A batch (eg "data-batch-1") contains one folder per blob kind, and the
// video ID and frame number are encoded in the file paths:
//
//	objects/L01_V001/0001.json
//	keyframes/L01_V001/frame_0001.jpg
//	clip-features/L01_V001_features.npy
//
// Ingestion is an offline phase; nothing here runs while the search service
// is answering queries.

// Uploader ingests batch directories.
type Uploader struct {
	log   logs.Log
	store *blobstore.BlobStore
}

// UploadStats counts the outcome of one batch upload.
type UploadStats struct {
	Uploaded int
	Skipped  int // Already present (same batch + original path + filename)
	Failed   int
}

func NewUploader(log logs.Log, store *blobstore.BlobStore) *Uploader {
	return &Uploader{
		log:   log,
		store: store,
	}
}

var contentTypes = map[string]string{
	".json": "application/json",
	".npy":  "application/numpy",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".mp4":  "video/mp4",
	".txt":  "text/plain",
	".csv":  "text/csv",
}

func contentTypeFor(path string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// UploadBatch walks the known folder kinds under root and uploads every
// file. Missing folders are skipped. Per-file failures are logged and
// counted, and never abort the batch.
func (u *Uploader) UploadBatch(root string) (*UploadStats, error) {
	root = filepath.Clean(root)
	batch := filepath.Base(root)
	u.log.Infof("Uploading batch '%v' from %v", batch, root)

	stats := &UploadStats{}
	for _, kind := range blobstore.Kinds {
		dir := filepath.Join(root, kind)
		if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
			u.log.Infof("Folder %v not found, skipping", kind)
			continue
		} else if err != nil {
			return nil, err
		}
		if err := u.uploadFolder(dir, batch, kind, stats); err != nil {
			return nil, err
		}
	}
	u.log.Infof("Batch '%v' done: %v uploaded, %v skipped, %v failed", batch, stats.Uploaded, stats.Skipped, stats.Failed)
	return stats, nil
}

func (u *Uploader) uploadFolder(dir, batch, kind string, stats *UploadStats) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		relPath, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		switch u.uploadFile(path, batch, kind, filepath.ToSlash(relPath)) {
		case uploadOK:
			stats.Uploaded++
			if stats.Uploaded%100 == 0 {
				u.log.Infof("Uploaded %v files", stats.Uploaded)
			}
		case uploadSkipped:
			stats.Skipped++
		case uploadFailed:
			stats.Failed++
		}
		return nil
	})
}

type uploadOutcome int

const (
	uploadOK uploadOutcome = iota
	uploadSkipped
	uploadFailed
)

func (u *Uploader) uploadFile(path, batch, kind, relPath string) uploadOutcome {
	filename := filepath.Base(path)

	// Write-once: a file from the same batch at the same path is never
	// uploaded twice.
	_, err := u.store.FindOne(&blobstore.Filter{
		Batch:        batch,
		OriginalPath: relPath,
		Filename:     filename,
	})
	if err == nil {
		u.log.Infof("Skipping %v (already exists)", relPath)
		return uploadSkipped
	} else if !errors.Is(err, blobstore.ErrNotFound) {
		u.log.Errorf("Error checking for existing blob %v: %v", relPath, err)
		return uploadFailed
	}

	data, err := os.ReadFile(path)
	if err != nil {
		u.log.Errorf("Error reading %v: %v", path, err)
		return uploadFailed
	}

	blob := &blobstore.Blob{
		Kind:         kind,
		Batch:        batch,
		Filename:     filename,
		OriginalPath: relPath,
		UploadTime:   dbh.MakeIntTime(time.Now().UTC()),
		ContentType:  contentTypeFor(path),
	}
	tagVideoAndFrame(blob, kind, relPath)
	if kind == blobstore.KindObjects && strings.HasSuffix(filename, ".json") {
		tagDetectionStats(blob, data)
	}

	if err := u.store.Put(data, blob); err != nil {
		u.log.Errorf("Error uploading %v: %v", relPath, err)
		return uploadFailed
	}
	return uploadOK
}

// tagVideoAndFrame extracts video_id and frame_number from the path layout
// of each folder kind. Keyframe filenames carry a "frame_" prefix which is
// stripped; frame numbers are stored exactly as they appear on disk (the
// corpus convention is already zero-padded to width 4).
func tagVideoAndFrame(blob *blobstore.Blob, kind, relPath string) {
	parts := strings.Split(relPath, "/")
	switch kind {
	case blobstore.KindObjects:
		// L01_V001/0001.json
		if len(parts) >= 2 {
			blob.VideoID = parts[0]
			blob.FrameNumber = stem(parts[1])
		}
	case blobstore.KindKeyframes:
		// L01_V001/frame_0001.jpg
		if len(parts) >= 2 {
			blob.VideoID = parts[0]
			if strings.Contains(parts[1], "frame") {
				blob.FrameNumber = stem(strings.Replace(parts[1], "frame_", "", 1))
			}
		}
	case blobstore.KindClipFeatures:
		// L01_V001_features.npy
		name := stem(parts[len(parts)-1])
		if i := strings.Index(name, "_"); i > 0 {
			blob.VideoID = name[:i]
		}
	}
}

func stem(filename string) string {
	return strings.TrimSuffix(filename, filepath.Ext(filename))
}

// tagDetectionStats parses a detection document and tags the blob with its
// detection count and confidence aggregates, so that high-confidence frames
// can be found by metadata alone. A malformed document still uploads, just
// without these tags.
func tagDetectionStats(blob *blobstore.Blob, data []byte) {
	rec, err := detection.Decode(data)
	if err != nil {
		return
	}
	blob.DetectionCount = len(rec.Scores)
	if len(rec.Scores) == 0 {
		return
	}
	maxScore := 0.0
	sum := 0.0
	for _, s := range rec.Scores {
		if s > maxScore {
			maxScore = s
		}
		sum += s
	}
	blob.MaxConfidence = maxScore
	blob.AvgConfidence = sum / float64(len(rec.Scores))
}

// Describe returns a short human-readable summary of the store's batches,
// for the upload CLI.
func Describe(store *blobstore.BlobStore) (string, error) {
	summaries, err := store.BatchSummaries()
	if err != nil {
		return "", err
	}
	b := strings.Builder{}
	for _, s := range summaries {
		fmt.Fprintf(&b, "%v: %v files, %.1fMB (%v)\n", s.Batch, s.TotalFiles, float64(s.TotalBytes)/(1024*1024), strings.Join(s.Kinds, ", "))
	}
	return b.String(), nil
}
