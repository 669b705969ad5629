package server

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/framesearch/server/blobstore"
	"github.com/cyclopcam/framesearch/server/storage"
	"github.com/cyclopcam/logs"
)

type Config struct {
	DB          dbh.DBConfig  `json:"db"`
	BlobStorage StorageConfig `json:"blobStorage"`
	WWW         string        `json:"www"` // Path to the static UI files. Empty disables the UI.
}

// One of the storage options must be configured (i.e. either 'filesystem' or 'gcs')
type StorageConfig struct {
	Filesystem *StorageConfigFS  `json:"filesystem"`
	GCS        *StorageConfigGCS `json:"gcs"`
}

type StorageConfigFS struct {
	Root string `json:"root"` // Path to the root of the payload filesystem
}

type StorageConfigGCS struct {
	Bucket string `json:"bucket"` // Name of the GCS bucket
}

func LoadConfig(filename string) (*Config, error) {
	cfg := &Config{}
	cfgB, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(cfgB, cfg); err != nil {
		return nil, fmt.Errorf("Error parsing config file %v: %w", filename, err)
	}
	return cfg, nil
}

// OpenBlobStore opens the payload backend named in the config, and the
// metadata DB on top of it. Shared by the service daemon and the upload CLI.
func (c *Config) OpenBlobStore(log logs.Log) (*blobstore.BlobStore, error) {
	var files storage.Storage
	var err error
	if c.BlobStorage.GCS != nil {
		files, err = storage.NewStorageGCS(log, c.BlobStorage.GCS.Bucket)
		if err != nil {
			return nil, err
		}
	} else if c.BlobStorage.Filesystem != nil {
		files, err = storage.NewStorageFS(log, c.BlobStorage.Filesystem.Root)
		if err != nil {
			return nil, err
		}
	} else {
		return nil, fmt.Errorf("One of the storage options must be configured (i.e. either 'filesystem' or 'gcs')")
	}
	return blobstore.Open(log, c.DB, files)
}
