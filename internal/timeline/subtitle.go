package timeline

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/afero"

	"github.com/concepto-app/resolve-sync/internal/host"
	"github.com/concepto-app/resolve-sync/internal/shotid"
)

// Cue is one subtitle item read off the timeline. Start and Duration are
// seconds relative to the timeline origin, the inverse of the offset the
// writer applies, so a write-then-read round trip reproduces them to within
// a frame. HasTake is false for free text that carries no take code.
type Cue struct {
	Take     shotid.TakeCode
	HasTake  bool
	Text     string
	Start    float64
	Duration float64
}

// ReadSubtitleCues scans every subtitle track and decodes each item into a
// Cue. Item text comes from the caption accessor first and falls back to
// the item name on hosts that do not expose captions.
func ReadSubtitleCues(tl host.Timeline, basis Basis) ([]Cue, error) {
	count, err := tl.TrackCount(host.TrackSubtitle)
	if err != nil {
		return nil, fmt.Errorf("count subtitle tracks: %w", err)
	}
	var cues []Cue
	for index := 1; index <= count; index++ {
		items, err := tl.Items(host.TrackSubtitle, index)
		if err != nil {
			return nil, fmt.Errorf("list subtitle track %d: %w", index, err)
		}
		for _, item := range items {
			text := itemText(item)
			if text == "" {
				continue
			}
			start, err := item.StartFrame()
			if err != nil {
				log.Printf("Subtitle item has no readable start frame, skipping")
				continue
			}
			end, err := item.EndFrame()
			if err != nil {
				end = start + int(basis.FPS)
			}
			cue := Cue{
				Text:     text,
				Start:    FramesToSeconds(start, basis.StartFrame, basis.FPS),
				Duration: float64(end-start) / basis.FPS,
			}
			if take, remainder, ok := shotid.ExtractTake(text); ok {
				cue.Take = take
				cue.HasTake = true
				cue.Text = remainder
			}
			cues = append(cues, cue)
		}
	}
	return cues, nil
}

func itemText(item host.Item) string {
	if text, err := item.Text(); err == nil && strings.TrimSpace(text) != "" {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(item.Name())
}

// SubtitleEntry is one cue to be written: relative timing plus the take
// code and free-text description.
type SubtitleEntry struct {
	Take     shotid.TakeCode
	Text     string
	Start    float64
	Duration float64
}

// BuildSRT renders entries as an SRT document. Timestamps are absolute
// timeline positions: the timeline's start offset in seconds is added here
// and subtracted again by ReadSubtitleCues.
func BuildSRT(entries []SubtitleEntry, startOffsetSeconds float64) string {
	var b strings.Builder
	for i, entry := range entries {
		text := fmt.Sprintf("[%s]", entry.Take)
		if strings.TrimSpace(entry.Text) != "" {
			text += " " + strings.TrimSpace(entry.Text)
		}
		start := entry.Start + startOffsetSeconds
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n",
			i+1,
			FormatSRTTimestamp(start),
			FormatSRTTimestamp(start+entry.Duration),
			text)
	}
	return b.String()
}

// BuildRawSRT renders cues back to SRT preserving their text as-is; cues
// with a take code get the bracketed form restored. Used by the export-to-
// file path, which passes unrecognized text through instead of dropping it.
func BuildRawSRT(cues []Cue, startOffsetSeconds float64) string {
	var b strings.Builder
	for i, cue := range cues {
		text := cue.Text
		if cue.HasTake {
			text = fmt.Sprintf("[%s]", cue.Take)
			if cue.Text != "" {
				text += " " + cue.Text
			}
		}
		start := cue.Start + startOffsetSeconds
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n",
			i+1,
			FormatSRTTimestamp(start),
			FormatSRTTimestamp(start+cue.Duration),
			text)
	}
	return b.String()
}

// WriteSubtitleFile writes SRT content to path.
func WriteSubtitleFile(fs afero.Fs, path, content string) error {
	if err := afero.WriteFile(fs, path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write subtitle file: %w", err)
	}
	return nil
}

// ImportSubtitles writes the entries to an SRT file and imports it into the
// timeline's subtitle track.
func ImportSubtitles(fs afero.Fs, tl host.Timeline, basis Basis, entries []SubtitleEntry, path string) error {
	content := BuildSRT(entries, float64(basis.StartFrame)/basis.FPS)
	if err := WriteSubtitleFile(fs, path, content); err != nil {
		return err
	}
	if err := tl.ImportSubtitleFile(path); err != nil {
		return fmt.Errorf("import subtitle file %s: %w", path, err)
	}
	log.Printf("Imported %d subtitles from %s", len(entries), path)
	return nil
}
