package main

import (
	"fmt"
	"os"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/framesearch/server"
	"github.com/cyclopcam/framesearch/server/ingest"
	"github.com/cyclopcam/logs"
)

// frameup uploads a batch directory tree (objects, keyframes, clip-features,
// map-keyframes, metadata) into the blob store that framesearchd serves.

func main() {
	parser := argparse.NewParser("frameup", "Upload a video data batch into the frame search store")
	configFile := parser.String("c", "config", &argparse.Options{Help: "Configuration file", Default: "framesearch.json"})
	batchRoot := parser.String("b", "batch", &argparse.Options{Help: "Path to the batch root directory (eg data-batch-1)"})
	list := parser.Flag("l", "list", &argparse.Options{Help: "List batches already in the store", Default: false})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	check(err)
	cfg, err := server.LoadConfig(*configFile)
	check(err)
	store, err := cfg.OpenBlobStore(logger)
	check(err)

	if *batchRoot != "" {
		uploader := ingest.NewUploader(logger, store)
		stats, err := uploader.UploadBatch(*batchRoot)
		check(err)
		fmt.Printf("Uploaded %v, skipped %v, failed %v\n", stats.Uploaded, stats.Skipped, stats.Failed)
	}

	if *list || *batchRoot == "" {
		desc, err := ingest.Describe(store)
		check(err)
		fmt.Print(desc)
	}
}

func check(err error) {
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}
