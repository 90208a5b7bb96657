package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/spf13/afero"
)

// The binary is launched by the in-host menu script, which passes the port
// of the JSON bridge it opened. There is no interactive surface here: one
// operation per invocation, non-zero exit on failure.
func main() {
	initLogging()

	fs := afero.NewOsFs()
	var (
		cfgPath    = flag.String("config", ConfigPath(fs), "path to the sync configuration file")
		bridgePort = flag.Int("bridge-port", 8765, "port of the in-host script bridge")
		op         = flag.String("op", "", "operation: build, push, pull, export-srt, test")
		out        = flag.String("out", "", "output path for export-srt")
	)
	flag.Parse()

	if err := run(fs, *cfgPath, *bridgePort, *op, *out); err != nil {
		log.Printf("Error: %v", err)
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(fs afero.Fs, cfgPath string, bridgePort int, op, out string) error {
	app, err := NewApp(fs, cfgPath)
	if err != nil {
		return err
	}
	// the connection test only exercises the service API, so it must work
	// with the editor closed
	if op == "test" {
		if err := app.ConnectService(); err != nil {
			return err
		}
		return app.TestConnection()
	}
	if err := app.Connect(bridgePort); err != nil {
		return err
	}

	switch op {
	case "build":
		return app.BuildTimeline()
	case "push":
		return app.PushChanges()
	case "pull":
		return app.PullChanges()
	case "export-srt":
		if out == "" {
			return fmt.Errorf("export-srt needs -out")
		}
		return app.ExportSubtitles(out)
	case "":
		return fmt.Errorf("no operation given, use -op build|push|pull|export-srt|test")
	default:
		return fmt.Errorf("unknown operation %q", op)
	}
}
