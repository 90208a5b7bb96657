package main

import (
	"fmt"
	"log"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/concepto-app/resolve-sync/internal/assets"
	"github.com/concepto-app/resolve-sync/internal/concepto"
	"github.com/concepto-app/resolve-sync/internal/host"
	"github.com/concepto-app/resolve-sync/internal/timeline"
)

// App wires the service client, the host bridge, and the download cache
// into the sync operations. One operation runs at a time: the host
// scripting bridge is not reentrant, so a second invocation while one is
// in flight is refused, not queued.
type App struct {
	fs      afero.Fs
	cfg     *Config
	cfgPath string

	client *concepto.Client
	orch   *timeline.Orchestrator

	busy atomic.Bool
}

func NewApp(fs afero.Fs, cfgPath string) (*App, error) {
	cfg, err := LoadConfig(fs, cfgPath)
	if err != nil {
		return nil, err
	}
	return &App{fs: fs, cfg: cfg, cfgPath: cfgPath}, nil
}

// ConnectService validates the configuration and builds the REST client.
// It does not touch the host bridge, so it works with the editor closed.
func (a *App) ConnectService() error {
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	a.client = concepto.NewClient(a.cfg.APIEndpoint, a.cfg.APIKey, clientID())
	return nil
}

// Connect additionally dials the in-host helper and builds the
// orchestrator. Nothing touches the timeline until an operation is
// invoked.
func (a *App) Connect(bridgePort int) error {
	if err := a.ConnectService(); err != nil {
		return err
	}
	bridge, err := host.Dial(bridgePort)
	if err != nil {
		return fmt.Errorf("connect to host helper: %w", err)
	}
	a.orch = &timeline.Orchestrator{
		Client:    a.client,
		Host:      bridge,
		Downloads: assets.NewDownloader(a.fs, a.cfg.DownloadRoot, a.client.ResolveURL),
		Fs:        a.fs,
	}
	return nil
}

// runExclusive is the one-operation-at-a-time gate.
func (a *App) runExclusive(name string, fn func() error) error {
	if a.orch == nil {
		return fmt.Errorf("not connected to host")
	}
	if !a.busy.CompareAndSwap(false, true) {
		return fmt.Errorf("another operation is already running")
	}
	defer a.busy.Store(false)

	opID := uuid.NewString()[:8]
	log.Printf("=== %s [%s] started (v%s) ===", name, opID, AppVersion)
	err := fn()
	if err != nil {
		log.Printf("=== %s [%s] failed: %v ===", name, opID, err)
		return err
	}
	log.Printf("=== %s [%s] finished ===", name, opID)
	return nil
}

// TestConnection verifies endpoint and key by fetching the configured
// episode, plus the show when a show id is set.
func (a *App) TestConnection() error {
	if a.client == nil {
		return fmt.Errorf("not connected")
	}
	ep, err := a.client.GetEpisode(a.cfg.EpisodeID)
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	log.Printf("Connected, episode %q has %d segments", ep.Title, len(ep.AVScript.Segments))
	if a.cfg.ShowID != "" {
		show, err := a.client.GetShow(a.cfg.ShowID)
		if err != nil {
			return fmt.Errorf("show lookup failed: %w", err)
		}
		log.Printf("Show: %q", show.Title)
	}
	return nil
}

func (a *App) BuildTimeline() error {
	return a.runExclusive("Build", func() error {
		report, err := a.orch.Build(a.cfg.EpisodeID)
		if err != nil {
			return err
		}
		failed := 0
		for _, shot := range report.Shots {
			if shot.State == timeline.StatePlacementFailed {
				failed++
			}
		}
		if failed > 0 {
			log.Printf("%d of %d shots failed placement, see log above", failed, len(report.Shots))
		}
		return nil
	})
}

func (a *App) PushChanges() error {
	return a.runExclusive("Push", func() error {
		return a.orch.Push(a.cfg.EpisodeID)
	})
}

func (a *App) PullChanges() error {
	return a.runExclusive("Pull", func() error {
		return a.orch.Pull(a.cfg.EpisodeID)
	})
}

func (a *App) ExportSubtitles(path string) error {
	return a.runExclusive("Export subtitles", func() error {
		return a.orch.ExportSubtitlesToFile(path)
	})
}

// ImportConfig applies a pasted JSON snippet from the service's setup page
// and persists the merged result.
func (a *App) ImportConfig(snippet string) error {
	if err := ImportConfigJSON(a.cfg, snippet); err != nil {
		return err
	}
	return SaveConfig(a.fs, a.cfgPath, a.cfg)
}
