package blobstore

import (
	"github.com/BurntSushi/migration"
	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
)

func migrations(log logs.Log) []migration.Migrator {
	migs := []migration.Migrator{}
	idx := 0

	migs = append(migs, dbh.MakeMigrationFromSQL(log, &idx,
		`
		CREATE TABLE blob(
			id INTEGER PRIMARY KEY,
			kind TEXT NOT NULL,
			video_id TEXT NOT NULL DEFAULT '',
			frame_number TEXT NOT NULL DEFAULT '',
			batch TEXT NOT NULL DEFAULT '',
			filename TEXT NOT NULL,
			original_path TEXT NOT NULL DEFAULT '',
			file_size INT NOT NULL DEFAULT 0,
			upload_time INT NOT NULL DEFAULT 0,
			content_type TEXT NOT NULL DEFAULT '',
			detection_count INT NOT NULL DEFAULT 0,
			max_confidence REAL NOT NULL DEFAULT 0,
			avg_confidence REAL NOT NULL DEFAULT 0
		);
		CREATE INDEX idx_blob_kind ON blob(kind);
		CREATE INDEX idx_blob_kind_video ON blob(kind, video_id);
		CREATE INDEX idx_blob_kind_video_frame ON blob(kind, video_id, frame_number);
	`))

	return migs
}
