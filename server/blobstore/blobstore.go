package blobstore

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/framesearch/server/storage"
	"github.com/cyclopcam/logs"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a point lookup matches no blob.
var ErrNotFound = errors.New("blob not found")

// BlobStore holds payloads in a storage.Storage backend, and their metadata
// tags in a SQL database. The two are linked by the blob's row ID.
// The store is an explicit handle: every consumer receives it at
// construction. Reads are safe for concurrent use; ingestion is an offline
// phase, so we don't model writer contention.
type BlobStore struct {
	log   logs.Log
	db    *gorm.DB
	files storage.Storage
}

// Open or create a blob store. Runs migrations on the metadata DB.
func Open(log logs.Log, dbc dbh.DBConfig, files storage.Storage) (*BlobStore, error) {
	db, err := dbh.OpenDB(log, dbc, migrations(log), 0)
	if err != nil {
		return nil, fmt.Errorf("Failed to open blob metadata DB (%v): %w", dbc.LogSafeDescription(), err)
	}
	return &BlobStore{
		log:   log,
		db:    db,
		files: files,
	}, nil
}

// DB exposes the underlying metadata DB (for tests and migrations tooling).
func (s *BlobStore) DB() *gorm.DB {
	return s.db
}

func payloadName(b *Blob) string {
	return fmt.Sprintf("blobs/%v/%v", b.ID, b.Filename)
}

// Put stores a payload with its metadata record. Blobs are write-once;
// blob.ID is populated on return.
func (s *BlobStore) Put(data []byte, blob *Blob) error {
	if err := validateBlob(blob); err != nil {
		return err
	}
	blob.FileSize = int64(len(data))
	tx := s.db.Begin()
	if tx.Error != nil {
		return tx.Error
	}
	defer tx.Rollback()
	if err := tx.Create(blob).Error; err != nil {
		return fmt.Errorf("Failed to create blob record for %v: %w", blob.Filename, err)
	}
	if err := storage.WriteFile(s.files, payloadName(blob), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("Failed to write payload %v: %w", payloadName(blob), err)
	}
	return tx.Commit().Error
}

// Tag validation at the adapter boundary, so that the rest of the system
// can trust the discriminated fields.
func validateBlob(b *Blob) error {
	valid := false
	for _, k := range Kinds {
		if b.Kind == k {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("Invalid blob kind '%v'", b.Kind)
	}
	if b.Filename == "" {
		return fmt.Errorf("Blob must have a filename")
	}
	return nil
}

// Find enumerates blobs matching the filter. The result is a finite slice;
// its order is store-defined.
func (s *BlobStore) Find(filter *Filter) ([]Blob, error) {
	blobs := []Blob{}
	if err := filter.apply(s.db).Find(&blobs).Error; err != nil {
		return nil, err
	}
	return blobs, nil
}

// FindOne returns the first blob matching the filter, or ErrNotFound.
func (s *BlobStore) FindOne(filter *Filter) (*Blob, error) {
	blob := Blob{}
	err := filter.apply(s.db).First(&blob).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	return &blob, nil
}

// Payload fetches the stored bytes of a blob.
func (s *BlobStore) Payload(blob *Blob) ([]byte, error) {
	return storage.ReadFile(s.files, payloadName(blob))
}

// Count returns the exact number of blobs matching the filter.
func (s *BlobStore) Count(filter *Filter) (int64, error) {
	n := int64(0)
	// Limit/Order don't belong in a COUNT
	f := *filter
	f.Limit = 0
	err := f.apply(s.db.Model(&Blob{})).Count(&n).Error
	return n, err
}

// DistinctVideoIDs returns the distinct non-empty video IDs of a kind,
// sorted, exact (never sampled).
func (s *BlobStore) DistinctVideoIDs(kind string) ([]string, error) {
	ids := []string{}
	err := s.db.Model(&Blob{}).
		Where("kind = ? AND video_id <> ''", kind).
		Distinct().
		Order("video_id").
		Pluck("video_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// BatchSummaries aggregates file count, total size and the kinds present,
// per ingestion batch.
func (s *BlobStore) BatchSummaries() ([]BatchSummary, error) {
	type row struct {
		Batch      string
		TotalFiles int64
		TotalBytes int64
	}
	rows := []row{}
	err := s.db.Model(&Blob{}).
		Select("batch, COUNT(*) AS total_files, SUM(file_size) AS total_bytes").
		Group("batch").
		Order("batch").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	type kindRow struct {
		Batch string
		Kind  string
	}
	kindRows := []kindRow{}
	err = s.db.Model(&Blob{}).Distinct("batch", "kind").Scan(&kindRows).Error
	if err != nil {
		return nil, err
	}
	kindsByBatch := map[string][]string{}
	for _, kr := range kindRows {
		kindsByBatch[kr.Batch] = append(kindsByBatch[kr.Batch], kr.Kind)
	}
	summaries := make([]BatchSummary, 0, len(rows))
	for _, r := range rows {
		kinds := kindsByBatch[r.Batch]
		sort.Strings(kinds)
		summaries = append(summaries, BatchSummary{
			Batch:      r.Batch,
			TotalFiles: r.TotalFiles,
			TotalBytes: r.TotalBytes,
			Kinds:      kinds,
		})
	}
	return summaries, nil
}
