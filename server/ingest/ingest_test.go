package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/framesearch/server/blobstore"
	"github.com/cyclopcam/framesearch/server/storage"
	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *blobstore.BlobStore {
	log := logs.NewTestingLog(t)
	tmp := t.TempDir()
	files, err := storage.NewStorageFS(log, filepath.Join(tmp, "payloads"))
	require.NoError(t, err)
	store, err := blobstore.Open(log, dbh.MakeSqliteConfig(filepath.Join(tmp, "blobs.sqlite")), files)
	require.NoError(t, err)
	return store
}

func writeFile(t *testing.T, path string, data string) {
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))
}

// makeBatch lays out a batch directory the way the capture pipeline emits it.
func makeBatch(t *testing.T) string {
	root := filepath.Join(t.TempDir(), "data-batch-1")
	writeFile(t, filepath.Join(root, "objects", "L01_V001", "0001.json"),
		`{"detection_class_entities": ["Car"], "detection_class_names": ["Car"], "detection_scores": [0.75, 0.25]}`)
	writeFile(t, filepath.Join(root, "objects", "L01_V001", "0002.json"), `broken json`)
	writeFile(t, filepath.Join(root, "keyframes", "L01_V001", "frame_0001.jpg"), "jpegdata")
	writeFile(t, filepath.Join(root, "clip-features", "L01_V001_features.npy"), "npydata")
	return root
}

func TestUploadBatch(t *testing.T) {
	store := openTestStore(t)
	uploader := NewUploader(logs.NewTestingLog(t), store)

	root := makeBatch(t)
	stats, err := uploader.UploadBatch(root)
	require.NoError(t, err)
	require.Equal(t, 4, stats.Uploaded)
	require.Equal(t, 0, stats.Skipped)
	require.Equal(t, 0, stats.Failed)

	// Detection record: tagged with video, frame, and confidence aggregates
	blob, err := store.FindOne(&blobstore.Filter{Kind: blobstore.KindObjects, VideoID: "L01_V001", FrameNumber: "0001"})
	require.NoError(t, err)
	require.Equal(t, "data-batch-1", blob.Batch)
	require.Equal(t, "L01_V001/0001.json", blob.OriginalPath)
	require.Equal(t, "application/json", blob.ContentType)
	require.Equal(t, 2, blob.DetectionCount)
	require.Equal(t, 0.75, blob.MaxConfidence)
	require.Equal(t, 0.5, blob.AvgConfidence)
	require.False(t, blob.UploadTime.IsZero())

	// Keyframe: "frame_" prefix stripped from the frame number
	blob, err = store.FindOne(&blobstore.Filter{Kind: blobstore.KindKeyframes, VideoID: "L01_V001", FrameNumber: "0001"})
	require.NoError(t, err)
	require.Equal(t, "frame_0001.jpg", blob.Filename)
	require.Equal(t, "image/jpeg", blob.ContentType)

	// Clip features: video id is the filename prefix before the first
	// underscore, matching the capture pipeline's naming
	blob, err = store.FindOne(&blobstore.Filter{Kind: blobstore.KindClipFeatures, Filename: "L01_V001_features.npy"})
	require.NoError(t, err)
	require.Equal(t, "L01", blob.VideoID)
	require.Equal(t, "application/numpy", blob.ContentType)

	// Payload survives the round trip
	data, err := store.Payload(blob)
	require.NoError(t, err)
	require.Equal(t, "npydata", string(data))
}

func TestUploadBatchDedup(t *testing.T) {
	store := openTestStore(t)
	uploader := NewUploader(logs.NewTestingLog(t), store)
	root := makeBatch(t)

	stats, err := uploader.UploadBatch(root)
	require.NoError(t, err)
	require.Equal(t, 4, stats.Uploaded)

	// Re-running the same batch uploads nothing
	stats, err = uploader.UploadBatch(root)
	require.NoError(t, err)
	require.Equal(t, 0, stats.Uploaded)
	require.Equal(t, 4, stats.Skipped)

	n, err := store.Count(&blobstore.Filter{Kind: blobstore.KindObjects})
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
}

func TestUploadBadDetectionRecord(t *testing.T) {
	store := openTestStore(t)
	uploader := NewUploader(logs.NewTestingLog(t), store)

	_, err := uploader.UploadBatch(makeBatch(t))
	require.NoError(t, err)

	// A malformed detection document still uploads, just without stat tags
	blob, err := store.FindOne(&blobstore.Filter{Kind: blobstore.KindObjects, VideoID: "L01_V001", FrameNumber: "0002"})
	require.NoError(t, err)
	require.Equal(t, 0, blob.DetectionCount)
	require.Equal(t, 0.0, blob.MaxConfidence)
	data, err := store.Payload(blob)
	require.NoError(t, err)
	require.Equal(t, "broken json", string(data))
}

func TestUploadMissingFolders(t *testing.T) {
	store := openTestStore(t)
	uploader := NewUploader(logs.NewTestingLog(t), store)

	// Only one of the known folder kinds exists
	root := filepath.Join(t.TempDir(), "data-batch-2")
	writeFile(t, filepath.Join(root, "keyframes", "L02_V001", "frame_0001.jpg"), "jpg")

	stats, err := uploader.UploadBatch(root)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Uploaded)
}

func TestContentTypeFor(t *testing.T) {
	require.Equal(t, "application/json", contentTypeFor("a/b/0001.json"))
	require.Equal(t, "image/jpeg", contentTypeFor("frame_0001.JPG"))
	require.Equal(t, "application/octet-stream", contentTypeFor("weights.bin"))
}

func TestDescribe(t *testing.T) {
	store := openTestStore(t)
	uploader := NewUploader(logs.NewTestingLog(t), store)
	_, err := uploader.UploadBatch(makeBatch(t))
	require.NoError(t, err)

	text, err := Describe(store)
	require.NoError(t, err)
	require.Contains(t, text, "data-batch-1")
	require.Contains(t, text, "4 files")
}
