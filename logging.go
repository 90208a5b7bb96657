package main

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/natefinch/lumberjack.v2"
)

// appDataDir is where the operation log lives, per platform.
func appDataDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "ConceptoSync")
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "."
		}
		return filepath.Join(home, "Library", "Application Support", "ConceptoSync")
	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "."
		}
		return filepath.Join(home, ".local", "ConceptoSync")
	}
}

// initLogging tees every log line to stdout and a rotating file, so a
// failed operation can be reconstructed after the host window is gone.
func initLogging() {
	base := appDataDir()
	_ = os.MkdirAll(base, 0o755)

	rotated := &lumberjack.Logger{
		Filename:   filepath.Join(base, "sync.log"),
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     30, // days
	}
	log.SetOutput(io.MultiWriter(os.Stdout, rotated))
	log.SetFlags(log.LstdFlags | log.Lmsgprefix)
}
