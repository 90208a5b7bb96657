// Package hosttest provides an in-memory host implementation for tests.
// Each primitive can be switched off to exercise the placement fallback
// order, and the bulk append can be told to lie (report success without
// adding an item) to exercise verification.
package hosttest

import (
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/concepto-app/resolve-sync/internal/host"
)

const defaultMediaFrames = 72

var (
	_ host.Host      = (*Host)(nil)
	_ host.Timeline  = (*Timeline)(nil)
	_ host.MediaPool = (*MediaPool)(nil)
	_ host.Item      = (*Item)(nil)
)

type Host struct {
	Project *Project
}

func (h *Host) CurrentProject() (host.Project, error) {
	if h.Project == nil {
		return nil, fmt.Errorf("no project is currently open")
	}
	return h.Project, nil
}

type Project struct {
	ProjectName string
	Timeline    *Timeline
	Pool        *MediaPool
}

func (p *Project) Name() string { return p.ProjectName }

func (p *Project) CurrentTimeline() (host.Timeline, error) {
	if p.Timeline == nil {
		return nil, fmt.Errorf("no timeline is currently open")
	}
	return p.Timeline, nil
}

func (p *Project) MediaPool() (host.MediaPool, error) { return p.Pool, nil }

// New builds a host with one project, an empty timeline at the given frame
// rate and start timecode, and an empty media pool.
func New(fps float64, startTimecode string) *Host {
	tl := &Timeline{
		TimelineName: "Timeline 1",
		FPS:          fps,
		StartTC:      startTimecode,
		Fs:           afero.NewOsFs(),
	}
	pool := &MediaPool{Root: &Folder{FolderName: "Master"}, Durations: map[string]int{}}
	pool.current = pool.Root
	return &Host{Project: &Project{ProjectName: "Test Project", Timeline: tl, Pool: pool}}
}

type Timeline struct {
	TimelineName string
	FPS          float64
	StartTC      string
	Fs           afero.Fs

	Video    [][]*Item
	Audio    [][]*Item
	Subtitle [][]*Item

	DisableFrameRate      bool
	DisableStartTimecode  bool
	DisableAppendClip     bool
	DisableInsertAtTC     bool
	DisablePlayhead       bool
	DisableContextAppend  bool
	DisableImportSubtitle bool
	DisableDelete         bool
	AppendClipLies        bool

	Playhead int

	AppendClipCalls    int
	InsertAtTCCalls    int
	PlayheadCalls      int
	ContextAppendCalls int
	ImportedSubtitles  []string
}

func (t *Timeline) Name() string { return t.TimelineName }

func (t *Timeline) FrameRate() (float64, error) {
	if t.DisableFrameRate {
		return 0, host.Unsupported("timeline.frameRate")
	}
	return t.FPS, nil
}

func (t *Timeline) StartTimecode() (string, error) {
	if t.DisableStartTimecode {
		return "", host.Unsupported("timeline.startTimecode")
	}
	return t.StartTC, nil
}

func (t *Timeline) tracks(kind host.TrackType) *[][]*Item {
	switch kind {
	case host.TrackAudio:
		return &t.Audio
	case host.TrackSubtitle:
		return &t.Subtitle
	default:
		return &t.Video
	}
}

func (t *Timeline) ensureTrack(kind host.TrackType, index int) *[]*Item {
	tracks := t.tracks(kind)
	for len(*tracks) < index {
		*tracks = append(*tracks, nil)
	}
	return &(*tracks)[index-1]
}

func (t *Timeline) TrackCount(kind host.TrackType) (int, error) {
	return len(*t.tracks(kind)), nil
}

func (t *Timeline) Items(kind host.TrackType, index int) ([]host.Item, error) {
	tracks := *t.tracks(kind)
	if index < 1 || index > len(tracks) {
		return nil, nil
	}
	items := make([]host.Item, len(tracks[index-1]))
	for i, item := range tracks[index-1] {
		items[i] = item
	}
	return items, nil
}

func (t *Timeline) AppendClip(p host.ClipPlacement) error {
	if t.DisableAppendClip {
		return host.Unsupported("timeline.appendClip")
	}
	t.AppendClipCalls++
	if t.AppendClipLies {
		return nil
	}
	track := t.ensureTrack(p.Kind, p.TrackIndex)
	*track = append(*track, &Item{
		ItemName: p.Media.Name(),
		Start:    p.RecordFrame,
		End:      p.RecordFrame + (p.SourceOut - p.SourceIn),
		SrcStart: p.SourceIn,
		Clip:     p.Media,
	})
	return nil
}

func (t *Timeline) startFrames() int {
	frames, err := parseTimecodeFrames(t.StartTC, t.FPS)
	if err != nil {
		return 0
	}
	return frames
}

func (t *Timeline) mediaFrames(m host.MediaItem) int {
	if m == nil {
		return defaultMediaFrames
	}
	frames, err := m.DurationFrames()
	if err != nil || frames <= 0 {
		return defaultMediaFrames
	}
	return frames
}

func (t *Timeline) InsertFileAtTimecode(filePath string, kind host.TrackType, index int, timecode string) (host.Item, error) {
	if t.DisableInsertAtTC {
		return nil, host.Unsupported("timeline.insertFileAtTimecode")
	}
	t.InsertAtTCCalls++
	frame, err := parseTimecodeFrames(timecode, t.FPS)
	if err != nil {
		return nil, err
	}
	media := &MediaItem{MediaName: filepath.Base(filePath), Path: filePath, Frames: defaultMediaFrames}
	item := &Item{
		ItemName: media.MediaName,
		Start:    frame,
		End:      frame + media.Frames,
		Clip:     media,
	}
	track := t.ensureTrack(kind, index)
	*track = append(*track, item)
	return item, nil
}

func (t *Timeline) SetPlayhead(timecode string) error {
	if t.DisablePlayhead {
		return host.Unsupported("timeline.setPlayhead")
	}
	frame, err := parseTimecodeFrames(timecode, t.FPS)
	if err != nil {
		return err
	}
	t.Playhead = frame
	return nil
}

func (t *Timeline) InsertAtPlayhead(media []host.MediaItem, kind host.TrackType, index int) error {
	if t.DisablePlayhead {
		return host.Unsupported("timeline.insertAtPlayhead")
	}
	t.PlayheadCalls++
	track := t.ensureTrack(kind, index)
	at := t.Playhead
	for _, m := range media {
		frames := t.mediaFrames(m)
		*track = append(*track, &Item{ItemName: m.Name(), Start: at, End: at + frames, Clip: m})
		at += frames
	}
	return nil
}

func (t *Timeline) AppendToContext(media []host.MediaItem) error {
	if t.DisableContextAppend {
		return host.Unsupported("timeline.appendToContext")
	}
	t.ContextAppendCalls++
	track := t.ensureTrack(host.TrackVideo, 1)
	at := t.startFrames()
	for _, item := range *track {
		if item.End > at {
			at = item.End
		}
	}
	for _, m := range media {
		frames := t.mediaFrames(m)
		*track = append(*track, &Item{ItemName: m.Name(), Start: at, End: at + frames, Clip: m})
		at += frames
	}
	return nil
}

// ImportSubtitleFile parses the SRT file and materializes its cues as
// subtitle items. Cue timestamps are absolute timeline positions, the way
// the real host treats them.
func (t *Timeline) ImportSubtitleFile(path string) error {
	if t.DisableImportSubtitle {
		return host.Unsupported("timeline.importSubtitles")
	}
	t.ImportedSubtitles = append(t.ImportedSubtitles, path)
	raw, err := afero.ReadFile(t.Fs, path)
	if err != nil {
		return err
	}
	track := t.ensureTrack(host.TrackSubtitle, 1)
	for _, block := range strings.Split(strings.ReplaceAll(string(raw), "\r\n", "\n"), "\n\n") {
		lines := strings.Split(strings.TrimSpace(block), "\n")
		if len(lines) < 3 {
			continue
		}
		startSec, endSec, err := parseSRTRange(lines[1])
		if err != nil {
			return err
		}
		*track = append(*track, &Item{
			ItemName: "subtitle",
			ItemText: strings.Join(lines[2:], "\n"),
			Start:    int(math.Round(startSec * t.FPS)),
			End:      int(math.Round(endSec * t.FPS)),
		})
	}
	return nil
}

func (t *Timeline) DeleteItems(items []host.Item) error {
	if t.DisableDelete {
		return host.Unsupported("timeline.deleteItems")
	}
	doomed := make(map[host.Item]bool, len(items))
	for _, item := range items {
		doomed[item] = true
	}
	for _, tracks := range []*[][]*Item{&t.Video, &t.Audio, &t.Subtitle} {
		for i, track := range *tracks {
			kept := track[:0]
			for _, item := range track {
				if !doomed[item] {
					kept = append(kept, item)
				}
			}
			(*tracks)[i] = kept
		}
	}
	return nil
}

func parseTimecodeFrames(tc string, fps float64) (int, error) {
	parts := strings.Split(tc, ":")
	if len(parts) != 4 {
		return 0, fmt.Errorf("invalid timecode %q", tc)
	}
	nums := make([]int, 4)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0, fmt.Errorf("invalid timecode %q", tc)
		}
		nums[i] = n
	}
	rate := int(math.Round(fps))
	return ((nums[0]*60+nums[1])*60+nums[2])*rate + nums[3], nil
}

func parseSRTRange(line string) (float64, float64, error) {
	parts := strings.Split(line, "-->")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid cue timing %q", line)
	}
	start, err := parseSRTTime(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, err
	}
	end, err := parseSRTTime(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

func parseSRTTime(s string) (float64, error) {
	var h, m, sec, ms int
	if _, err := fmt.Sscanf(s, "%d:%d:%d,%d", &h, &m, &sec, &ms); err != nil {
		return 0, fmt.Errorf("invalid cue timestamp %q: %w", s, err)
	}
	return float64(h*3600+m*60+sec) + float64(ms)/1000, nil
}

type MediaPool struct {
	Root      *Folder
	Durations map[string]int

	current     *Folder
	ImportCalls int
}

func (m *MediaPool) RootFolder() (host.Folder, error) { return m.Root, nil }

func (m *MediaPool) SetCurrentFolder(f host.Folder) error {
	folder, ok := f.(*Folder)
	if !ok {
		return fmt.Errorf("foreign folder")
	}
	m.current = folder
	return nil
}

func (m *MediaPool) CurrentFolder() *Folder { return m.current }

func (m *MediaPool) ImportFiles(paths []string) ([]host.MediaItem, error) {
	m.ImportCalls++
	items := make([]host.MediaItem, len(paths))
	for i, path := range paths {
		frames := m.Durations[filepath.Base(path)]
		if frames == 0 {
			frames = defaultMediaFrames
		}
		item := &MediaItem{MediaName: filepath.Base(path), Path: path, Frames: frames}
		m.current.Items = append(m.current.Items, item)
		items[i] = item
	}
	return items, nil
}

type Folder struct {
	FolderName string
	Subs       []*Folder
	Items      []*MediaItem

	CreateCalls int
}

func (f *Folder) Name() string { return f.FolderName }

func (f *Folder) Subfolders() ([]host.Folder, error) {
	folders := make([]host.Folder, len(f.Subs))
	for i, sub := range f.Subs {
		folders[i] = sub
	}
	return folders, nil
}

func (f *Folder) CreateSubfolder(name string) (host.Folder, error) {
	f.CreateCalls++
	sub := &Folder{FolderName: name}
	f.Subs = append(f.Subs, sub)
	return sub, nil
}

func (f *Folder) Media() ([]host.MediaItem, error) {
	items := make([]host.MediaItem, len(f.Items))
	for i, item := range f.Items {
		items[i] = item
	}
	return items, nil
}

type MediaItem struct {
	MediaName string
	Path      string
	Frames    int

	DisableDuration bool
}

func (m *MediaItem) Name() string     { return m.MediaName }
func (m *MediaItem) FilePath() string { return m.Path }

func (m *MediaItem) DurationFrames() (int, error) {
	if m.DisableDuration {
		return 0, host.Unsupported("media.durationFrames")
	}
	return m.Frames, nil
}

type Item struct {
	ItemName string
	ItemText string
	Start    int
	End      int
	SrcStart int
	Clip     host.MediaItem

	DisableText    bool
	DisableSetters bool
}

func (i *Item) Name() string { return i.ItemName }

func (i *Item) Text() (string, error) {
	if i.DisableText {
		return "", host.Unsupported("item.text")
	}
	return i.ItemText, nil
}

func (i *Item) StartFrame() (int, error)       { return i.Start, nil }
func (i *Item) EndFrame() (int, error)         { return i.End, nil }
func (i *Item) SourceStartFrame() (int, error) { return i.SrcStart, nil }

func (i *Item) SetStartFrame(frame int) error {
	if i.DisableSetters {
		return host.Unsupported("item.setStartFrame")
	}
	i.Start = frame
	return nil
}

func (i *Item) SetEndFrame(frame int) error {
	if i.DisableSetters {
		return host.Unsupported("item.setEndFrame")
	}
	i.End = frame
	return nil
}

func (i *Item) SetSourceStartFrame(frame int) error {
	if i.DisableSetters {
		return host.Unsupported("item.setSourceStartFrame")
	}
	i.SrcStart = frame
	return nil
}

func (i *Item) Media() (host.MediaItem, error) {
	if i.Clip == nil {
		return nil, host.Unsupported("item.media")
	}
	return i.Clip, nil
}
