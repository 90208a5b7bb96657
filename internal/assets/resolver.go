// Package assets enumerates the files a shot references on the service and
// mirrors them into a local download tree with deterministic names, so that
// repeated builds reuse what is already on disk.
package assets

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/concepto-app/resolve-sync/internal/concepto"
	"github.com/concepto-app/resolve-sync/internal/shotid"
)

// Asset roles. The main roles also appear in timeline clip names
// (e.g. "SC03T01_MAIN_video.mp4"), which is how Push matches items back to
// shots.
const (
	RoleMainVideo  = "MAIN_video"
	RoleMainImage  = "MAIN_image"
	RoleReference  = "reference"
	RoleStartFrame = "start_frame"
	RoleEndFrame   = "end_frame"
)

// Asset is one downloadable file belonging to a shot or audio track.
type Asset struct {
	Take shotid.TakeCode
	Role string
	URL  string
}

// LocalName derives the on-disk filename: <take>_<role><ext>. The extension
// comes from the URL path and defaults by role when the URL has none.
func (a Asset) LocalName() string {
	return fmt.Sprintf("%s_%s%s", a.Take.String(), a.Role, extensionOf(a.URL, a.Role))
}

// IsVideo reports whether the asset role carries video content.
func (a Asset) IsVideo() bool {
	return a.Role == RoleMainVideo || strings.HasPrefix(a.Role, "gen_video")
}

// IsImage reports whether the asset role carries still-image content.
func (a Asset) IsImage() bool {
	switch a.Role {
	case RoleMainImage, RoleReference, RoleStartFrame, RoleEndFrame:
		return true
	}
	return strings.HasPrefix(a.Role, "gen_image")
}

func extensionOf(rawURL, role string) string {
	if parsed, err := url.Parse(rawURL); err == nil {
		if ext := path.Ext(parsed.Path); ext != "" {
			return ext
		}
	}
	switch {
	case strings.Contains(role, "video"):
		return ".mp4"
	case strings.Contains(role, "voice") || strings.Contains(role, "audio"):
		return ".wav"
	default:
		return ".png"
	}
}

// EnumerateShotAssets lists every URL a shot references: the main
// video/image, the image-generation thread's frames, generated alternates,
// and per-voice audio. Shots without a parseable take code have no
// deterministic local names, so the caller filters those out first.
func EnumerateShotAssets(shot *concepto.Shot) ([]Asset, error) {
	take, err := shot.Take()
	if err != nil {
		return nil, fmt.Errorf("shot %s: %w", shot.ID, err)
	}

	var out []Asset
	add := func(role, rawURL string) {
		if rawURL != "" {
			out = append(out, Asset{Take: take, Role: role, URL: rawURL})
		}
	}

	add(RoleMainVideo, shot.VideoURL)
	add(RoleMainImage, shot.ImageURL)

	if thread := shot.ImageGenerationThread; thread != nil {
		add(RoleReference, thread.ReferenceFrame)
		add(RoleStartFrame, thread.StartFrame)
		add(RoleEndFrame, thread.EndFrame)
		for i, u := range thread.GeneratedImages {
			add(fmt.Sprintf("gen_image_%02d", i+1), u)
		}
		for i, u := range thread.GeneratedVideos {
			add(fmt.Sprintf("gen_video_%02d", i+1), u)
		}
	}
	for i, voice := range shot.VoiceAudio {
		add(fmt.Sprintf("voice_%02d", i+1), voice.URL)
	}
	return out, nil
}

// AudioClipName derives the local filename of an AV-preview audio clip.
// Audio clips are not take-scoped, so the name is keyed on track index and
// clip ID instead.
func AudioClipName(trackIndex int, clip *concepto.AudioClip) string {
	return fmt.Sprintf("audio_%02d_%s%s", trackIndex, sanitizeName(clip.ID), extensionOf(clip.URL, "audio"))
}

func sanitizeName(s string) string {
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}
		return '_'
	}, s)
}
