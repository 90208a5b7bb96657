// Package host defines the capability surface the sync engine consumes from
// the editor's scripting object model. The host's API differs across
// versions and installations, so every primitive here may be absent at
// runtime: implementations report a missing primitive by returning an error
// wrapping ErrUnsupported, and callers degrade instead of aborting. The
// historical try-method-name-after-method-name probing lives inside the
// adapter (see bridge.go), never in the engine.
package host

import (
	"errors"
	"fmt"
)

// ErrUnsupported marks a primitive the connected host does not offer.
var ErrUnsupported = errors.ErrUnsupported

// Unsupported builds an ErrUnsupported-wrapping error naming the primitive.
func Unsupported(primitive string) error {
	return fmt.Errorf("%s: %w", primitive, ErrUnsupported)
}

// TrackType selects a timeline track family. Indexes are 1-based, matching
// the host's own numbering.
type TrackType string

const (
	TrackVideo    TrackType = "video"
	TrackAudio    TrackType = "audio"
	TrackSubtitle TrackType = "subtitle"
)

// Host is the root object of a connected editor instance.
type Host interface {
	CurrentProject() (Project, error)
}

type Project interface {
	Name() string
	CurrentTimeline() (Timeline, error)
	MediaPool() (MediaPool, error)
}

// ClipPlacement describes a frame-exact placement for the bulk append
// primitive: source trim range plus the absolute record frame.
type ClipPlacement struct {
	Media       MediaItem
	Kind        TrackType
	TrackIndex  int
	SourceIn    int
	SourceOut   int
	RecordFrame int
}

// Timeline exposes track inspection plus the four placement primitives the
// engine falls through, in priority order: AppendClip,
// InsertFileAtTimecode, SetPlayhead+InsertAtPlayhead, AppendToContext.
type Timeline interface {
	Name() string
	FrameRate() (float64, error)
	StartTimecode() (string, error)
	TrackCount(kind TrackType) (int, error)
	Items(kind TrackType, index int) ([]Item, error)

	AppendClip(p ClipPlacement) error
	InsertFileAtTimecode(filePath string, kind TrackType, index int, timecode string) (Item, error)
	SetPlayhead(timecode string) error
	InsertAtPlayhead(media []MediaItem, kind TrackType, index int) error
	AppendToContext(media []MediaItem) error

	ImportSubtitleFile(path string) error
	DeleteItems(items []Item) error
}

type MediaPool interface {
	RootFolder() (Folder, error)
	SetCurrentFolder(f Folder) error
	// ImportFiles imports into the current folder and returns the new
	// media items.
	ImportFiles(paths []string) ([]MediaItem, error)
}

type Folder interface {
	Name() string
	Subfolders() ([]Folder, error)
	CreateSubfolder(name string) (Folder, error)
	Media() ([]MediaItem, error)
}

type MediaItem interface {
	Name() string
	FilePath() string
	// DurationFrames is the total source duration. Hosts that cannot
	// report it return ErrUnsupported and the engine skips clamping.
	DurationFrames() (int, error)
}

// Item is a clip or subtitle already on a track. Text returns the caption
// for subtitle items and ErrUnsupported elsewhere. The setters may be
// absent on older hosts.
type Item interface {
	Name() string
	Text() (string, error)
	StartFrame() (int, error)
	EndFrame() (int, error)
	SourceStartFrame() (int, error)
	SetStartFrame(frame int) error
	SetEndFrame(frame int) error
	SetSourceStartFrame(frame int) error
	Media() (MediaItem, error)
}
