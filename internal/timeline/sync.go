package timeline

import (
	"errors"
	"fmt"
	"log"
	"math"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/concepto-app/resolve-sync/internal/assets"
	"github.com/concepto-app/resolve-sync/internal/concepto"
	"github.com/concepto-app/resolve-sync/internal/host"
	"github.com/concepto-app/resolve-sync/internal/shotid"
)

// ShotState tracks one shot through a Build.
type ShotState string

const (
	StatePending          ShotState = "PENDING"
	StateAssetsDownloaded ShotState = "ASSETS_DOWNLOADED"
	StateBinImported      ShotState = "BIN_IMPORTED"
	StatePlaced           ShotState = "PLACED"
	StatePlaceholderOnly  ShotState = "PLACEHOLDER_ONLY"
	StateVerified         ShotState = "VERIFIED"
	StatePlacementFailed  ShotState = "PLACEMENT_FAILED"
)

// ShotResult is the terminal record for one shot of a Build.
type ShotResult struct {
	Take     shotid.TakeCode
	Identity shotid.ClipIdentity
	State    ShotState
	Err      error
}

// BuildReport summarizes a completed Build.
type BuildReport struct {
	Shots      []ShotResult
	Subtitles  int
	AudioClips int
}

// VideoTrack is where Build places every main clip. Audio tracks from the
// preview bundle start one above it; host audio track 1 stays reserved for
// audio embedded in the video clips.
const (
	VideoTrack      = 1
	FirstAudioTrack = 2
)

// Orchestrator runs the three sync operations against one host session.
// All calls happen on the invoking goroutine; the host scripting bridge is
// not reentrant, so callers serialize operations.
type Orchestrator struct {
	Client    *concepto.Client
	Host      host.Host
	Downloads *assets.Downloader
	Fs        afero.Fs
}

// session resolves the fatal preconditions shared by every operation.
func (o *Orchestrator) session() (host.Project, host.Timeline, host.MediaPool, error) {
	project, err := o.Host.CurrentProject()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("no project open: %w", err)
	}
	tl, err := project.CurrentTimeline()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("no timeline open: %w", err)
	}
	pool, err := project.MediaPool()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("media pool unavailable: %w", err)
	}
	return project, tl, pool, nil
}

func episodeLabel(ep *concepto.Episode) string {
	if label := sanitizeLabel(ep.Title); label != "" {
		return label
	}
	return "Episode_" + ep.ID
}

// Build places every shot of the episode onto the current timeline: assets
// are downloaded and imported into bins, main clips go on the video track
// at their resolved start times, one aggregate subtitle track covers every
// shot, and preview audio tracks are materialized below. A shot that fails
// placement is recorded and never aborts the batch.
func (o *Orchestrator) Build(episodeID string) (*BuildReport, error) {
	_, tl, pool, err := o.session()
	if err != nil {
		return nil, err
	}
	ep, err := o.Client.GetEpisode(episodeID)
	if err != nil {
		return nil, fmt.Errorf("fetch episode: %w", err)
	}

	engine := NewEngine(tl)
	report := &BuildReport{}
	var subtitles []SubtitleEntry
	epLabel := episodeLabel(ep)

	for si := range ep.AVScript.Segments {
		seg := &ep.AVScript.Segments[si]
		raw := seg.RawShots()
		starts := ResolveStartTimes(ep.AVPreview.VideoClipStartTimes, raw)
		identities := raw.IdentityByShotID()
		segLabel := SegmentLabel(seg)

		for _, shot := range seg.ShotsByRow() {
			result := o.buildShot(engine, pool, &shot, epLabel, segLabel, identities, starts)
			report.Shots = append(report.Shots, result)
			if result.Err != nil && result.State == StatePending {
				continue
			}
			start := starts[result.Identity]
			subtitles = append(subtitles, SubtitleEntry{
				Take:     result.Take,
				Text:     shot.Visual,
				Start:    start,
				Duration: shot.PlayableDuration(),
			})
		}
	}

	if len(subtitles) > 0 {
		path := o.Downloads.LocalPath(filepath.Join("subtitles", episodeID+".srt"))
		if err := o.Fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return report, fmt.Errorf("create subtitle dir: %w", err)
		}
		if err := ImportSubtitles(o.Fs, tl, engine.Basis, subtitles, path); err != nil {
			log.Printf("Subtitle import failed: %v", err)
		} else {
			report.Subtitles = len(subtitles)
		}
	}

	report.AudioClips = o.buildAudioTracks(engine, pool, ep, epLabel)
	log.Printf("Build finished: %d shots, %d subtitles, %d audio clips",
		len(report.Shots), report.Subtitles, report.AudioClips)
	return report, nil
}

func (o *Orchestrator) buildShot(engine *Engine, pool host.MediaPool, shot *concepto.Shot,
	epLabel, segLabel string, identities map[string]shotid.ClipIdentity,
	starts map[shotid.ClipIdentity]float64) ShotResult {

	result := ShotResult{Identity: identities[shot.ID], State: StatePending}
	take, err := shot.Take()
	if err != nil {
		log.Printf("Shot %s has no usable take code, skipping: %v", shot.ID, err)
		result.Err = err
		return result
	}
	result.Take = take

	list, err := assets.EnumerateShotAssets(shot)
	if err != nil {
		result.Err = err
		return result
	}
	var paths []string
	for _, asset := range list {
		path, cached, err := o.Downloads.FetchAsset(asset)
		if err != nil {
			log.Printf("Download of %s failed, continuing: %v", asset.LocalName(), err)
			continue
		}
		if cached {
			log.Printf("Using cached %s", asset.LocalName())
		}
		paths = append(paths, path)
	}
	result.State = StateAssetsDownloaded

	folder, err := EnsureTakeFolder(pool, epLabel, segLabel, take.String())
	if err != nil {
		result.Err = err
		return result
	}
	if _, err := ImportIntoFolder(pool, folder, paths); err != nil {
		result.Err = err
		return result
	}
	result.State = StateBinImported

	mainFile, found := chooseMainFile(take, paths)
	if !found {
		log.Printf("Shot %s has no placeable asset, subtitle placeholder only", take)
		result.State = StatePlaceholderOnly
		return result
	}
	media, ok := FindMediaByFilename(folder, mainFile)
	if !ok {
		log.Printf("Imported media %s not found in bin, subtitle placeholder only", mainFile)
		result.State = StatePlaceholderOnly
		return result
	}

	start := starts[result.Identity]
	result.State = StatePlaced
	if err := engine.Place(media, host.TrackVideo, VideoTrack, start, shot.PlayableDuration(), shot.VideoOffset); err != nil {
		log.Printf("Placement failed for %s: %v", take, err)
		result.State = StatePlacementFailed
		result.Err = err
		return result
	}
	result.State = StateVerified
	return result
}

// chooseMainFile picks the file Build places on the video track: the exact
// main video, then the exact main image, then any video, any image, and
// finally whatever downloaded first.
func chooseMainFile(take shotid.TakeCode, paths []string) (string, bool) {
	if len(paths) == 0 {
		return "", false
	}
	names := make([]string, len(paths))
	for i, p := range paths {
		names[i] = filepath.Base(p)
	}
	prefix := take.String() + "_"
	for _, want := range []string{prefix + assets.RoleMainVideo, prefix + assets.RoleMainImage} {
		for _, name := range names {
			if trimExt(name) == want {
				log.Printf("Main file for %s: %s", take, name)
				return name, true
			}
		}
	}
	for _, name := range names {
		if isVideoName(name) {
			log.Printf("Main file for %s: %s (first video)", take, name)
			return name, true
		}
	}
	for _, name := range names {
		if isImageName(name) {
			log.Printf("Main file for %s: %s (first image)", take, name)
			return name, true
		}
	}
	log.Printf("Main file for %s: %s (first available)", take, names[0])
	return names[0], true
}

func trimExt(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}

func isVideoName(name string) bool {
	switch filepath.Ext(name) {
	case ".mp4", ".mov", ".mkv", ".webm":
		return true
	}
	return false
}

func isImageName(name string) bool {
	switch filepath.Ext(name) {
	case ".png", ".jpg", ".jpeg", ".webp":
		return true
	}
	return false
}

func (o *Orchestrator) buildAudioTracks(engine *Engine, pool host.MediaPool, ep *concepto.Episode, epLabel string) int {
	placed := 0
	for ti := range ep.AVPreview.AudioTracks {
		track := &ep.AVPreview.AudioTracks[ti]
		hostTrack := FirstAudioTrack + ti
		folder, err := EnsureFolderPath(pool, epLabel, "Audio")
		if err != nil {
			log.Printf("Audio bin folder failed: %v", err)
			return placed
		}
		for ci := range track.Clips {
			clip := &track.Clips[ci]
			name := assets.AudioClipName(ti+1, clip)
			path, _, err := o.Downloads.Fetch(clip.URL, name)
			if err != nil {
				log.Printf("Audio clip %s download failed, skipping: %v", name, err)
				continue
			}
			if _, err := ImportIntoFolder(pool, folder, []string{path}); err != nil {
				log.Printf("Audio clip %s import failed, skipping: %v", name, err)
				continue
			}
			media, ok := FindMediaByFilename(folder, filepath.Base(path))
			if !ok {
				log.Printf("Audio clip %s not found in bin after import, skipping", name)
				continue
			}
			duration := clip.Duration
			if duration <= 0 {
				if probed, err := assets.WavDuration(o.Fs, path); err == nil {
					log.Printf("Audio clip %s has no stored duration, probed %.2fs from file", name, probed)
					duration = probed
				}
			}
			if err := engine.Place(media, host.TrackAudio, hostTrack, clip.StartTime, duration, clip.Offset); err != nil {
				log.Printf("Audio placement failed for %s: %v", name, err)
				continue
			}
			if clip.Volume != 0 && clip.Volume != 1 {
				log.Printf("Audio clip %s volume %.2f not applied, host exposes no volume setter", name, clip.Volume)
			}
			placed++
		}
	}
	return placed
}

type shotRef struct {
	shot     *concepto.Shot
	identity shotid.ClipIdentity
	start    float64
}

// indexShots maps take codes to their shot, identity, and resolved start.
func indexShots(ep *concepto.Episode) map[shotid.TakeCode]shotRef {
	index := make(map[shotid.TakeCode]shotRef)
	for si := range ep.AVScript.Segments {
		seg := &ep.AVScript.Segments[si]
		raw := seg.RawShots()
		starts := ResolveStartTimes(ep.AVPreview.VideoClipStartTimes, raw)
		for i := 0; i < raw.Len(); i++ {
			shot := raw.At(i)
			take, err := shot.Take()
			if err != nil {
				continue
			}
			id := raw.Identity(i)
			index[take] = shotRef{shot: &seg.Shots[i], identity: id, start: starts[id]}
		}
	}
	return index
}

// Push reads the current timeline state back into the service: clip record
// positions become start-time overrides, clip source trims that drifted
// from the stored video offset and subtitle text that drifted from the
// stored visual description become per-shot field updates. An
// empty timeline is informational, never an error.
func (o *Orchestrator) Push(episodeID string) error {
	_, tl, _, err := o.session()
	if err != nil {
		return err
	}
	ep, err := o.Client.GetEpisode(episodeID)
	if err != nil {
		return fmt.Errorf("fetch episode: %w", err)
	}
	basis := TimelineBasis(tl)
	index := indexShots(ep)

	startTimes := map[string]float64{}
	updates := map[string]concepto.ShotUpdate{}
	videoTracks, err := tl.TrackCount(host.TrackVideo)
	if err != nil {
		return fmt.Errorf("count video tracks: %w", err)
	}
	for trackIndex := 1; trackIndex <= videoTracks; trackIndex++ {
		items, err := tl.Items(host.TrackVideo, trackIndex)
		if err != nil {
			return fmt.Errorf("list video track %d: %w", trackIndex, err)
		}
		for _, item := range items {
			take, _, ok := shotid.ExtractTake(item.Name())
			if !ok {
				continue
			}
			ref, known := index[take]
			if !known {
				log.Printf("Timeline clip %s matches no shot in episode, skipping", item.Name())
				continue
			}
			start, err := item.StartFrame()
			if err != nil {
				log.Printf("Clip %s start frame unreadable, skipping: %v", item.Name(), err)
				continue
			}
			startTimes[ref.identity.String()] = FramesToSeconds(start, basis.StartFrame, basis.FPS)
			srcStart, err := item.SourceStartFrame()
			if err != nil {
				log.Printf("Clip %s source start unreadable, skipping trim: %v", item.Name(), err)
				continue
			}
			offset := float64(srcStart) / basis.FPS
			if math.Abs(offset-ref.shot.VideoOffset) > 1/basis.FPS {
				update := updates[ref.shot.ID]
				update.VideoOffset = &offset
				updates[ref.shot.ID] = update
			}
		}
	}

	cues, err := ReadSubtitleCues(tl, basis)
	if err != nil {
		return err
	}
	for _, cue := range cues {
		if !cue.HasTake {
			continue
		}
		ref, known := index[cue.Take]
		if !known {
			continue
		}
		update := updates[ref.shot.ID]
		if cue.Text != ref.shot.Visual {
			visual := cue.Text
			update.Visual = &visual
		}
		if math.Abs(cue.Duration-ref.shot.Duration) > 1/basis.FPS {
			duration := cue.Duration
			update.Duration = &duration
		}
		if !update.IsEmpty() {
			updates[ref.shot.ID] = update
		}
	}

	if len(startTimes) == 0 && len(updates) == 0 {
		log.Printf("Nothing to sync: no recognizable clips or subtitles on the timeline")
		return nil
	}

	if len(startTimes) > 0 {
		if err := o.Client.UpdateAVPreview(episodeID, concepto.AVPreviewUpdate{VideoClipStartTimes: startTimes}); err != nil {
			return fmt.Errorf("push start times: %w", err)
		}
		log.Printf("Pushed %d clip start times", len(startTimes))
	}
	for shotID, update := range updates {
		if err := o.Client.UpdateShot(shotID, update); err != nil {
			log.Printf("Shot %s update failed, continuing: %v", shotID, err)
			continue
		}
	}
	log.Printf("Pushed %d shot updates", len(updates))
	return nil
}

// Pull re-fetches the episode and moves existing timeline clips to the
// service's authoritative positions. A changed main asset URL triggers a
// re-download and re-place. Moves prefer delete-then-reinsert, which keeps
// the trim; hosts without item deletion get direct setters, one field at a
// time, skipping whatever the host cannot do.
func (o *Orchestrator) Pull(episodeID string) error {
	_, tl, pool, err := o.session()
	if err != nil {
		return err
	}
	ep, err := o.Client.GetEpisode(episodeID)
	if err != nil {
		return fmt.Errorf("fetch episode: %w", err)
	}
	engine := NewEngine(tl)
	index := indexShots(ep)
	epLabel := episodeLabel(ep)

	segLabels := map[string]string{}
	for si := range ep.AVScript.Segments {
		seg := &ep.AVScript.Segments[si]
		segLabels[seg.ID] = SegmentLabel(seg)
	}

	videoTracks, err := tl.TrackCount(host.TrackVideo)
	if err != nil {
		return fmt.Errorf("count video tracks: %w", err)
	}
	for trackIndex := 1; trackIndex <= videoTracks; trackIndex++ {
		items, err := tl.Items(host.TrackVideo, trackIndex)
		if err != nil {
			return fmt.Errorf("list video track %d: %w", trackIndex, err)
		}
		for _, item := range items {
			take, _, ok := shotid.ExtractTake(item.Name())
			if !ok {
				continue
			}
			ref, known := index[take]
			if !known {
				continue
			}
			o.pullShot(engine, tl, pool, item, take, ref, trackIndex, epLabel, segLabels[ref.identity.SegmentID])
		}
	}
	return nil
}

func (o *Orchestrator) pullShot(engine *Engine, tl host.Timeline, pool host.MediaPool,
	item host.Item, take shotid.TakeCode, ref shotRef, trackIndex int, epLabel, segLabel string) {

	shot := ref.shot
	media := o.pullMedia(pool, item, take, shot, epLabel, segLabel)
	if media == nil {
		return
	}

	desiredStart := SecondsToFrames(ref.start, engine.Basis.StartFrame, engine.Basis.FPS)
	actualStart, err := item.StartFrame()
	if err != nil {
		log.Printf("Clip %s start frame unreadable, skipping: %v", take, err)
		return
	}
	moved := actualStart != desiredStart

	if moved || o.mediaChanged(item, take, shot) {
		if err := tl.DeleteItems([]host.Item{item}); err == nil {
			if err := engine.Place(media, host.TrackVideo, trackIndex, ref.start, shot.PlayableDuration(), shot.VideoOffset); err != nil {
				log.Printf("Reinsert of %s failed: %v", take, err)
			}
			return
		} else if !errors.Is(err, host.ErrUnsupported) {
			log.Printf("Delete of %s failed, falling back to setters: %v", take, err)
		}
		o.pullWithSetters(engine.Basis, item, take, shot, desiredStart)
		return
	}
	o.pullWithSetters(engine.Basis, item, take, shot, desiredStart)
}

// pullMedia returns the media handle the clip should reference, downloading
// and re-importing first when the service's main asset no longer matches
// what is on the timeline.
func (o *Orchestrator) pullMedia(pool host.MediaPool, item host.Item, take shotid.TakeCode,
	shot *concepto.Shot, epLabel, segLabel string) host.MediaItem {

	url, isVideo, ok := shot.MainAssetURL()
	if !ok {
		log.Printf("Shot %s has no main asset on the service, leaving clip as is", take)
		media, err := item.Media()
		if err != nil {
			return nil
		}
		return media
	}
	role := assets.RoleMainImage
	if isVideo {
		role = assets.RoleMainVideo
	}
	asset := assets.Asset{Take: take, Role: role, URL: url}
	expected := asset.LocalName()

	if !o.mediaChanged(item, take, shot) {
		if media, err := item.Media(); err == nil {
			return media
		}
	}

	path, cached, err := o.Downloads.FetchAsset(asset)
	if err != nil {
		log.Printf("Re-download of %s failed, skipping shot: %v", expected, err)
		return nil
	}
	if !cached {
		log.Printf("Main asset for %s changed, downloaded %s", take, expected)
	}
	folder, err := EnsureTakeFolder(pool, epLabel, segLabel, take.String())
	if err != nil {
		log.Printf("Bin folder for %s failed, skipping shot: %v", take, err)
		return nil
	}
	if _, err := ImportIntoFolder(pool, folder, []string{path}); err != nil {
		log.Printf("Re-import of %s failed, skipping shot: %v", expected, err)
		return nil
	}
	media, found := FindMediaByFilename(folder, expected)
	if !found {
		log.Printf("Re-imported %s not found in bin, skipping shot", expected)
		return nil
	}
	return media
}

// mediaChanged reports whether the clip's backing file differs from the
// deterministically-expected local path for the shot's current main asset.
func (o *Orchestrator) mediaChanged(item host.Item, take shotid.TakeCode, shot *concepto.Shot) bool {
	url, isVideo, ok := shot.MainAssetURL()
	if !ok {
		return false
	}
	role := assets.RoleMainImage
	if isVideo {
		role = assets.RoleMainVideo
	}
	expected := assets.Asset{Take: take, Role: role, URL: url}.LocalName()
	media, err := item.Media()
	if err != nil {
		return false
	}
	return filepath.Base(media.FilePath()) != expected
}

// pullWithSetters applies start, duration, and trim via the item's direct
// setters, skipping each field the host does not support.
func (o *Orchestrator) pullWithSetters(basis Basis, item host.Item, take shotid.TakeCode, shot *concepto.Shot, desiredStart int) {
	if err := item.SetStartFrame(desiredStart); err != nil {
		logPullSkip(take, "start frame", err)
	}
	durationFrames := int(math.Round(shot.PlayableDuration() * basis.FPS))
	if durationFrames < 1 {
		durationFrames = 1
	}
	if err := item.SetEndFrame(desiredStart + durationFrames); err != nil {
		logPullSkip(take, "duration", err)
	}
	sourceIn := int(math.Round(shot.VideoOffset * basis.FPS))
	if sourceIn < 0 {
		sourceIn = 0
	}
	if err := item.SetSourceStartFrame(sourceIn); err != nil {
		logPullSkip(take, "source trim", err)
	}
}

func logPullSkip(take shotid.TakeCode, field string, err error) {
	if errors.Is(err, host.ErrUnsupported) {
		log.Printf("Host cannot set %s, skipping that field for %s", field, take)
		return
	}
	log.Printf("Setting %s for %s failed, skipping: %v", field, take, err)
}

// ExportSubtitlesToFile writes every subtitle on the timeline to an SRT
// file at path. Text without a take code passes through unchanged.
func (o *Orchestrator) ExportSubtitlesToFile(path string) error {
	_, tl, _, err := o.session()
	if err != nil {
		return err
	}
	basis := TimelineBasis(tl)
	cues, err := ReadSubtitleCues(tl, basis)
	if err != nil {
		return err
	}
	content := BuildRawSRT(cues, float64(basis.StartFrame)/basis.FPS)
	if err := WriteSubtitleFile(o.Fs, path, content); err != nil {
		return err
	}
	log.Printf("Exported %d subtitles to %s", len(cues), path)
	return nil
}
