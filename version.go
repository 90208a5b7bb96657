package main

import (
	"embed"
	"encoding/json"
	"log"
)

//go:embed version.json
var versionFile embed.FS

type versionInfo struct {
	Version string `json:"version"`
}

var AppVersion string

func init() {
	raw, err := versionFile.ReadFile("version.json")
	if err != nil {
		log.Fatalf("Error reading embedded version.json: %v", err)
	}
	var info versionInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		log.Fatalf("Error unmarshalling version.json: %v", err)
	}
	AppVersion = info.Version
}
