package blobstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/framesearch/server/storage"
	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *BlobStore {
	log := logs.NewTestingLog(t)
	tmp := t.TempDir()
	files, err := storage.NewStorageFS(log, filepath.Join(tmp, "payloads"))
	require.NoError(t, err)
	store, err := Open(log, dbh.MakeSqliteConfig(filepath.Join(tmp, "blobs.sqlite")), files)
	require.NoError(t, err)
	return store
}

func put(t *testing.T, store *BlobStore, data string, blob *Blob) *Blob {
	if blob.UploadTime.IsZero() {
		blob.UploadTime = dbh.MakeIntTime(time.Now().UTC())
	}
	require.NoError(t, store.Put([]byte(data), blob))
	require.NotZero(t, blob.ID)
	return blob
}

func TestPutAndFind(t *testing.T) {
	store := openTestStore(t)
	put(t, store, `{}`, &Blob{Kind: KindObjects, VideoID: "L01_V001", FrameNumber: "0001", Batch: "data-batch-1", Filename: "0001.json"})
	put(t, store, `{}`, &Blob{Kind: KindObjects, VideoID: "L01_V002", FrameNumber: "0001", Batch: "data-batch-1", Filename: "0001.json"})
	put(t, store, `img`, &Blob{Kind: KindKeyframes, VideoID: "L01_V001", FrameNumber: "0001", Batch: "data-batch-1", Filename: "0001.jpg"})

	blobs, err := store.Find(&Filter{Kind: KindObjects})
	require.NoError(t, err)
	require.Len(t, blobs, 2)

	blobs, err = store.Find(&Filter{Kind: KindObjects, VideoID: "L01_V001"})
	require.NoError(t, err)
	require.Len(t, blobs, 1)
	require.Equal(t, "L01_V001", blobs[0].VideoID)

	// Substring video filter is case-insensitive
	blobs, err = store.Find(&Filter{Kind: KindObjects, VideoIDContains: "l01_v"})
	require.NoError(t, err)
	require.Len(t, blobs, 2)

	blobs, err = store.Find(&Filter{Kind: KindObjects, Limit: 1})
	require.NoError(t, err)
	require.Len(t, blobs, 1)
}

func TestFindOne(t *testing.T) {
	store := openTestStore(t)
	put(t, store, `img`, &Blob{Kind: KindKeyframes, VideoID: "L01_V001", FrameNumber: "0007", Filename: "0007.jpg"})

	blob, err := store.FindOne(&Filter{Kind: KindKeyframes, VideoID: "L01_V001", FrameNumber: "0007"})
	require.NoError(t, err)
	require.Equal(t, "0007.jpg", blob.Filename)

	_, err = store.FindOne(&Filter{Kind: KindKeyframes, VideoID: "L01_V001", FrameNumber: "9999"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPayloadRoundtrip(t *testing.T) {
	store := openTestStore(t)
	blob := put(t, store, `{"detection_scores": [0.5]}`, &Blob{Kind: KindObjects, VideoID: "L01_V001", FrameNumber: "0001", Filename: "0001.json"})
	data, err := store.Payload(blob)
	require.NoError(t, err)
	require.Equal(t, `{"detection_scores": [0.5]}`, string(data))
	require.Equal(t, int64(len(data)), blob.FileSize)
}

func TestPutValidation(t *testing.T) {
	store := openTestStore(t)
	err := store.Put([]byte(`x`), &Blob{Kind: "selfies", Filename: "a.jpg"})
	require.Error(t, err)
	err = store.Put([]byte(`x`), &Blob{Kind: KindObjects})
	require.Error(t, err)
}

func TestCountAndDistinct(t *testing.T) {
	store := openTestStore(t)
	put(t, store, `{}`, &Blob{Kind: KindObjects, VideoID: "L01_V002", FrameNumber: "0001", Filename: "0001.json"})
	put(t, store, `{}`, &Blob{Kind: KindObjects, VideoID: "L01_V001", FrameNumber: "0001", Filename: "0001.json"})
	put(t, store, `{}`, &Blob{Kind: KindObjects, VideoID: "L01_V001", FrameNumber: "0002", Filename: "0002.json"})
	put(t, store, `img`, &Blob{Kind: KindKeyframes, VideoID: "L01_V001", FrameNumber: "0001", Filename: "0001.jpg"})

	n, err := store.Count(&Filter{Kind: KindObjects})
	require.NoError(t, err)
	require.Equal(t, int64(3), n)

	// Count ignores any Limit on the filter
	n, err = store.Count(&Filter{Kind: KindObjects, Limit: 1})
	require.NoError(t, err)
	require.Equal(t, int64(3), n)

	videos, err := store.DistinctVideoIDs(KindObjects)
	require.NoError(t, err)
	require.Equal(t, []string{"L01_V001", "L01_V002"}, videos)
}

func TestBatchSummaries(t *testing.T) {
	store := openTestStore(t)
	put(t, store, `aaaa`, &Blob{Kind: KindObjects, Batch: "data-batch-1", VideoID: "L01_V001", FrameNumber: "0001", Filename: "0001.json"})
	put(t, store, `bb`, &Blob{Kind: KindKeyframes, Batch: "data-batch-1", VideoID: "L01_V001", FrameNumber: "0001", Filename: "0001.jpg"})
	put(t, store, `c`, &Blob{Kind: KindObjects, Batch: "data-batch-2", VideoID: "L02_V001", FrameNumber: "0001", Filename: "0001.json"})

	summaries, err := store.BatchSummaries()
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	require.Equal(t, "data-batch-1", summaries[0].Batch)
	require.Equal(t, int64(2), summaries[0].TotalFiles)
	require.Equal(t, int64(6), summaries[0].TotalBytes)
	require.Equal(t, []string{KindKeyframes, KindObjects}, summaries[0].Kinds)
	require.Equal(t, "data-batch-2", summaries[1].Batch)
	require.Equal(t, int64(1), summaries[1].TotalFiles)
}
