package host

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Bridge talks to the thin helper script running inside the editor, which
// exposes the scripting object model over a local JSON/HTTP endpoint.
// Objects live host-side and are addressed by opaque handles. The helper
// reports the set of primitives it could resolve once, when the bridge
// connects; everything absent from that set surfaces as ErrUnsupported
// without another round trip. The helper itself still owns the per-version
// quirks (parameter-shape variants for the bulk append call, alternate
// subtitle-import signatures) so the engine sees one stable surface.
type Bridge struct {
	url    string
	client *http.Client
	caps   map[string]bool
}

var _ Host = (*Bridge)(nil)

type bridgeRequest struct {
	TaskID  string         `json:"taskId"`
	Command string         `json:"command"`
	Params  map[string]any `json:"params"`
}

type bridgeResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Dial connects to the in-host helper on the given port and probes its
// capability list.
func Dial(port int) (*Bridge, error) {
	b := &Bridge{
		url:    fmt.Sprintf("http://localhost:%d/command", port),
		client: &http.Client{Timeout: 20 * time.Second},
	}

	var probe struct {
		Primitives []string `json:"primitives"`
	}
	if err := b.call("capabilities", nil, &probe); err != nil {
		return nil, fmt.Errorf("probe host capabilities: %w", err)
	}
	b.caps = make(map[string]bool, len(probe.Primitives))
	for _, p := range probe.Primitives {
		b.caps[p] = true
	}
	log.Printf("Host bridge connected on port %d, %d primitives available", port, len(probe.Primitives))
	return b, nil
}

func (b *Bridge) call(command string, params map[string]any, out any) error {
	if params == nil {
		params = map[string]any{}
	}
	payload, err := json.Marshal(bridgeRequest{TaskID: uuid.NewString(), Command: command, Params: params})
	if err != nil {
		return fmt.Errorf("marshal bridge command %s: %w", command, err)
	}

	resp, err := b.client.Post(b.url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("bridge command %s: %w", command, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("bridge command %s: read response: %w", command, err)
	}

	var decoded bridgeResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return fmt.Errorf("bridge command %s: invalid response: %w", command, err)
	}
	if decoded.Status != "success" {
		return fmt.Errorf("bridge command %s failed: %s", command, decoded.Message)
	}
	if out != nil && len(decoded.Data) > 0 {
		if err := json.Unmarshal(decoded.Data, out); err != nil {
			return fmt.Errorf("bridge command %s: decode data: %w", command, err)
		}
	}
	return nil
}

// guarded runs a call only when the helper resolved the primitive.
func (b *Bridge) guarded(primitive string, params map[string]any, out any) error {
	if !b.caps[primitive] {
		return Unsupported(primitive)
	}
	return b.call(primitive, params, out)
}

// CurrentProject implements Host.
func (b *Bridge) CurrentProject() (Project, error) {
	var data struct {
		Handle string `json:"handle"`
		Name   string `json:"name"`
	}
	if err := b.call("project.current", nil, &data); err != nil {
		return nil, err
	}
	if data.Handle == "" {
		return nil, fmt.Errorf("no project is currently open")
	}
	return &bridgeProject{bridge: b, handle: data.Handle, name: data.Name}, nil
}

type bridgeProject struct {
	bridge *Bridge
	handle string
	name   string
}

func (p *bridgeProject) Name() string { return p.name }

func (p *bridgeProject) CurrentTimeline() (Timeline, error) {
	var data struct {
		Handle string `json:"handle"`
		Name   string `json:"name"`
	}
	if err := p.bridge.call("project.currentTimeline", map[string]any{"project": p.handle}, &data); err != nil {
		return nil, err
	}
	if data.Handle == "" {
		return nil, fmt.Errorf("no timeline is currently open")
	}
	return &bridgeTimeline{bridge: p.bridge, handle: data.Handle, name: data.Name}, nil
}

func (p *bridgeProject) MediaPool() (MediaPool, error) {
	var data struct {
		Handle string `json:"handle"`
	}
	if err := p.bridge.call("project.mediaPool", map[string]any{"project": p.handle}, &data); err != nil {
		return nil, err
	}
	return &bridgeMediaPool{bridge: p.bridge, handle: data.Handle}, nil
}

type bridgeTimeline struct {
	bridge *Bridge
	handle string
	name   string
}

func (t *bridgeTimeline) Name() string { return t.name }

func (t *bridgeTimeline) FrameRate() (float64, error) {
	var data struct {
		FPS float64 `json:"fps"`
	}
	err := t.bridge.guarded("timeline.frameRate", map[string]any{"timeline": t.handle}, &data)
	return data.FPS, err
}

func (t *bridgeTimeline) StartTimecode() (string, error) {
	var data struct {
		Timecode string `json:"timecode"`
	}
	err := t.bridge.guarded("timeline.startTimecode", map[string]any{"timeline": t.handle}, &data)
	return data.Timecode, err
}

func (t *bridgeTimeline) TrackCount(kind TrackType) (int, error) {
	var data struct {
		Count int `json:"count"`
	}
	err := t.bridge.call("timeline.trackCount", map[string]any{"timeline": t.handle, "trackType": string(kind)}, &data)
	return data.Count, err
}

type bridgeItemRef struct {
	Handle string `json:"handle"`
	Name   string `json:"name"`
}

func (t *bridgeTimeline) Items(kind TrackType, index int) ([]Item, error) {
	var data struct {
		Items []bridgeItemRef `json:"items"`
	}
	params := map[string]any{"timeline": t.handle, "trackType": string(kind), "trackIndex": index}
	if err := t.bridge.call("timeline.items", params, &data); err != nil {
		return nil, err
	}
	items := make([]Item, len(data.Items))
	for i, ref := range data.Items {
		items[i] = &bridgeItem{bridge: t.bridge, handle: ref.Handle, name: ref.Name}
	}
	return items, nil
}

func (t *bridgeTimeline) AppendClip(p ClipPlacement) error {
	media, ok := p.Media.(*bridgeMediaItem)
	if !ok {
		return fmt.Errorf("append clip: media item does not belong to this bridge")
	}
	return t.bridge.guarded("timeline.appendClip", map[string]any{
		"timeline":    t.handle,
		"media":       media.handle,
		"trackType":   string(p.Kind),
		"trackIndex":  p.TrackIndex,
		"startFrame":  p.SourceIn,
		"endFrame":    p.SourceOut,
		"recordFrame": p.RecordFrame,
	}, nil)
}

func (t *bridgeTimeline) InsertFileAtTimecode(filePath string, kind TrackType, index int, timecode string) (Item, error) {
	var data bridgeItemRef
	err := t.bridge.guarded("timeline.insertFileAtTimecode", map[string]any{
		"timeline":   t.handle,
		"filePath":   filePath,
		"trackType":  string(kind),
		"trackIndex": index,
		"timecode":   timecode,
	}, &data)
	if err != nil {
		return nil, err
	}
	if data.Handle == "" {
		return nil, fmt.Errorf("insert at %s returned no item", timecode)
	}
	return &bridgeItem{bridge: t.bridge, handle: data.Handle, name: data.Name}, nil
}

func (t *bridgeTimeline) SetPlayhead(timecode string) error {
	return t.bridge.guarded("timeline.setPlayhead", map[string]any{"timeline": t.handle, "timecode": timecode}, nil)
}

func (t *bridgeTimeline) InsertAtPlayhead(media []MediaItem, kind TrackType, index int) error {
	handles, err := mediaHandles(media)
	if err != nil {
		return err
	}
	return t.bridge.guarded("timeline.insertAtPlayhead", map[string]any{
		"timeline":   t.handle,
		"media":      handles,
		"trackType":  string(kind),
		"trackIndex": index,
	}, nil)
}

func (t *bridgeTimeline) AppendToContext(media []MediaItem) error {
	handles, err := mediaHandles(media)
	if err != nil {
		return err
	}
	return t.bridge.guarded("timeline.appendToContext", map[string]any{"timeline": t.handle, "media": handles}, nil)
}

func (t *bridgeTimeline) ImportSubtitleFile(path string) error {
	return t.bridge.guarded("timeline.importSubtitles", map[string]any{"timeline": t.handle, "path": path}, nil)
}

func (t *bridgeTimeline) DeleteItems(items []Item) error {
	handles := make([]string, len(items))
	for i, item := range items {
		ref, ok := item.(*bridgeItem)
		if !ok {
			return fmt.Errorf("delete items: item does not belong to this bridge")
		}
		handles[i] = ref.handle
	}
	return t.bridge.guarded("timeline.deleteItems", map[string]any{"timeline": t.handle, "items": handles}, nil)
}

func mediaHandles(media []MediaItem) ([]string, error) {
	handles := make([]string, len(media))
	for i, m := range media {
		ref, ok := m.(*bridgeMediaItem)
		if !ok {
			return nil, fmt.Errorf("media item does not belong to this bridge")
		}
		handles[i] = ref.handle
	}
	return handles, nil
}

type bridgeMediaPool struct {
	bridge *Bridge
	handle string
}

func (m *bridgeMediaPool) RootFolder() (Folder, error) {
	var data struct {
		Handle string `json:"handle"`
		Name   string `json:"name"`
	}
	if err := m.bridge.call("mediaPool.rootFolder", map[string]any{"mediaPool": m.handle}, &data); err != nil {
		return nil, err
	}
	return &bridgeFolder{bridge: m.bridge, pool: m.handle, handle: data.Handle, name: data.Name}, nil
}

func (m *bridgeMediaPool) SetCurrentFolder(f Folder) error {
	folder, ok := f.(*bridgeFolder)
	if !ok {
		return fmt.Errorf("set current folder: folder does not belong to this bridge")
	}
	return m.bridge.call("mediaPool.setCurrentFolder", map[string]any{"mediaPool": m.handle, "folder": folder.handle}, nil)
}

type bridgeMediaRef struct {
	Handle   string `json:"handle"`
	Name     string `json:"name"`
	FilePath string `json:"filePath"`
}

func (m *bridgeMediaPool) ImportFiles(paths []string) ([]MediaItem, error) {
	var data struct {
		Items []bridgeMediaRef `json:"items"`
	}
	if err := m.bridge.call("mediaPool.importFiles", map[string]any{"mediaPool": m.handle, "paths": paths}, &data); err != nil {
		return nil, err
	}
	items := make([]MediaItem, len(data.Items))
	for i, ref := range data.Items {
		items[i] = &bridgeMediaItem{bridge: m.bridge, handle: ref.Handle, name: ref.Name, filePath: ref.FilePath}
	}
	return items, nil
}

type bridgeFolder struct {
	bridge *Bridge
	pool   string
	handle string
	name   string
}

func (f *bridgeFolder) Name() string { return f.name }

func (f *bridgeFolder) Subfolders() ([]Folder, error) {
	var data struct {
		Folders []struct {
			Handle string `json:"handle"`
			Name   string `json:"name"`
		} `json:"folders"`
	}
	if err := f.bridge.call("folder.subfolders", map[string]any{"folder": f.handle}, &data); err != nil {
		return nil, err
	}
	folders := make([]Folder, len(data.Folders))
	for i, ref := range data.Folders {
		folders[i] = &bridgeFolder{bridge: f.bridge, pool: f.pool, handle: ref.Handle, name: ref.Name}
	}
	return folders, nil
}

func (f *bridgeFolder) CreateSubfolder(name string) (Folder, error) {
	var data struct {
		Handle string `json:"handle"`
	}
	if err := f.bridge.call("folder.createSubfolder", map[string]any{"folder": f.handle, "name": name}, &data); err != nil {
		return nil, err
	}
	return &bridgeFolder{bridge: f.bridge, pool: f.pool, handle: data.Handle, name: name}, nil
}

func (f *bridgeFolder) Media() ([]MediaItem, error) {
	var data struct {
		Items []bridgeMediaRef `json:"items"`
	}
	if err := f.bridge.call("folder.media", map[string]any{"folder": f.handle}, &data); err != nil {
		return nil, err
	}
	items := make([]MediaItem, len(data.Items))
	for i, ref := range data.Items {
		items[i] = &bridgeMediaItem{bridge: f.bridge, handle: ref.Handle, name: ref.Name, filePath: ref.FilePath}
	}
	return items, nil
}

type bridgeMediaItem struct {
	bridge   *Bridge
	handle   string
	name     string
	filePath string
}

func (m *bridgeMediaItem) Name() string     { return m.name }
func (m *bridgeMediaItem) FilePath() string { return m.filePath }

func (m *bridgeMediaItem) DurationFrames() (int, error) {
	var data struct {
		Frames int `json:"frames"`
	}
	err := m.bridge.guarded("media.durationFrames", map[string]any{"media": m.handle}, &data)
	return data.Frames, err
}

type bridgeItem struct {
	bridge *Bridge
	handle string
	name   string
}

func (i *bridgeItem) Name() string { return i.name }

func (i *bridgeItem) Text() (string, error) {
	var data struct {
		Text string `json:"text"`
	}
	err := i.bridge.guarded("item.text", map[string]any{"item": i.handle}, &data)
	return data.Text, err
}

func (i *bridgeItem) frameField(command string) (int, error) {
	var data struct {
		Frame int `json:"frame"`
	}
	err := i.bridge.call(command, map[string]any{"item": i.handle}, &data)
	return data.Frame, err
}

func (i *bridgeItem) StartFrame() (int, error)       { return i.frameField("item.startFrame") }
func (i *bridgeItem) EndFrame() (int, error)         { return i.frameField("item.endFrame") }
func (i *bridgeItem) SourceStartFrame() (int, error) { return i.frameField("item.sourceStartFrame") }

func (i *bridgeItem) SetStartFrame(frame int) error {
	return i.bridge.guarded("item.setStartFrame", map[string]any{"item": i.handle, "frame": frame}, nil)
}

func (i *bridgeItem) SetEndFrame(frame int) error {
	return i.bridge.guarded("item.setEndFrame", map[string]any{"item": i.handle, "frame": frame}, nil)
}

func (i *bridgeItem) SetSourceStartFrame(frame int) error {
	return i.bridge.guarded("item.setSourceStartFrame", map[string]any{"item": i.handle, "frame": frame}, nil)
}

func (i *bridgeItem) Media() (MediaItem, error) {
	var data bridgeMediaRef
	if err := i.bridge.call("item.media", map[string]any{"item": i.handle}, &data); err != nil {
		return nil, err
	}
	if data.Handle == "" {
		return nil, Unsupported("item.media")
	}
	return &bridgeMediaItem{bridge: i.bridge, handle: data.Handle, name: data.Name, filePath: data.FilePath}, nil
}
