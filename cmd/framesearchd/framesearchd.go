package main

import (
	"fmt"
	"os"

	"github.com/akamensky/argparse"
	"github.com/coreos/go-systemd/daemon"
	"github.com/cyclopcam/framesearch/server"
)

func main() {
	parser := argparse.NewParser("framesearchd", "Video frame search service")
	configFile := parser.String("c", "config", &argparse.Options{Help: "Configuration file", Default: "framesearch.json"})
	port := parser.String("p", "port", &argparse.Options{Help: "HTTP listen port", Default: ":8080"})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	srv, err := server.NewServer(*configFile)
	if err != nil {
		fmt.Printf("Failed to start server: %v\n", err)
		os.Exit(1)
	}
	srv.ListenForKillSignals()
	daemon.SdNotify(false, daemon.SdNotifyReady)
	if err := srv.ListenHTTP(*port); err != nil {
		srv.Log.Infof("ListenHTTP returned: %v", err)
	}
}
