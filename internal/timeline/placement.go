package timeline

import (
	"errors"
	"fmt"
	"log"
	"math"

	"github.com/concepto-app/resolve-sync/internal/host"
)

// Basis is the per-timeline frame math context: the effective frame rate
// and the absolute frame of the timeline's first frame. Timelines commonly
// start at a non-zero timecode (one hour is the convention), so every
// record frame must include this offset.
type Basis struct {
	FPS        float64
	StartFrame int
}

// TimelineBasis reads the frame rate and start timecode from the host,
// falling back to 24.0 fps and a zero origin when the host cannot report
// them.
func TimelineBasis(tl host.Timeline) Basis {
	basis := Basis{FPS: DefaultFPS}
	if fps, err := tl.FrameRate(); err != nil || fps <= 0 {
		log.Printf("Timeline frame rate unavailable, assuming %.1f fps", DefaultFPS)
	} else {
		basis.FPS = fps
	}
	tc, err := tl.StartTimecode()
	if err != nil {
		log.Printf("Timeline start timecode unavailable, assuming zero origin")
		return basis
	}
	frame, err := ParseTimecode(tc, basis.FPS)
	if err != nil {
		log.Printf("Timeline start timecode %q unparseable, assuming zero origin", tc)
		return basis
	}
	basis.StartFrame = frame
	return basis
}

// Placement is the frame-exact plan for one clip: the absolute record frame
// plus the source trim range. SourceOut > SourceIn always holds after
// planning, whatever the inputs were.
type Placement struct {
	RecordFrame int
	SourceIn    int
	SourceOut   int
}

func (p Placement) DurationFrames() int { return p.SourceOut - p.SourceIn }

// PlanPlacement computes the placement for a clip at recordSeconds with the
// given playable duration and source trim offset. media may be nil when no
// source duration is known. Invalid inputs are corrected, never rejected:
// a degenerate duration becomes a 1-second placement.
func PlanPlacement(basis Basis, media host.MediaItem, recordSeconds, durationSeconds, offsetSeconds float64) Placement {
	if durationSeconds < 0.1 {
		log.Printf("Correcting duration %.3fs to 1.0s minimum", durationSeconds)
		durationSeconds = 1.0
	}

	rate := int(math.Round(basis.FPS))
	recordFrame := int(math.Round(recordSeconds*basis.FPS)) + basis.StartFrame
	sourceIn := int(math.Round(offsetSeconds * basis.FPS))
	if sourceIn < 0 {
		sourceIn = 0
	}
	durationFrames := int(math.Round(durationSeconds * basis.FPS))
	if durationFrames < 1 {
		durationFrames = 1
	}
	sourceOut := sourceIn + durationFrames

	if media != nil {
		if total, err := media.DurationFrames(); err == nil && total > 0 {
			if sourceOut > total {
				sourceOut = total
			}
			if sourceOut <= sourceIn {
				sourceIn = 0
				window := 3 * rate
				if total < window {
					window = total
				}
				sourceOut = window
				log.Printf("Trim range exceeded source %s (%d frames), resetting to 0-%d", media.Name(), total, sourceOut)
			}
		}
	}

	if sourceOut <= sourceIn {
		sourceIn = 0
		sourceOut = rate
	}
	return Placement{RecordFrame: recordFrame, SourceIn: sourceIn, SourceOut: sourceOut}
}

// Engine places clips on one timeline, falling through the host's placement
// primitives in priority order. Success is only believed when the target
// track's item count actually grew: several host builds return success from
// placement calls that put nothing on the timeline.
type Engine struct {
	Timeline host.Timeline
	Basis    Basis
}

func NewEngine(tl host.Timeline) *Engine {
	return &Engine{Timeline: tl, Basis: TimelineBasis(tl)}
}

func (e *Engine) itemCount(kind host.TrackType, index int) int {
	items, err := e.Timeline.Items(kind, index)
	if err != nil {
		return 0
	}
	return len(items)
}

// Place puts media on the given track at recordSeconds. One failed strategy
// falls through to the next; only when all four fail does Place return an
// error, which the caller logs and survives.
func (e *Engine) Place(media host.MediaItem, kind host.TrackType, trackIndex int, recordSeconds, durationSeconds, offsetSeconds float64) error {
	plan := PlanPlacement(e.Basis, media, recordSeconds, durationSeconds, offsetSeconds)
	before := e.itemCount(kind, trackIndex)
	recordTC := FormatTimecode(plan.RecordFrame, e.Basis.FPS)

	if e.tryAppendClip(media, kind, trackIndex, plan) && e.verify(media, kind, trackIndex, before) {
		return nil
	}
	if e.tryInsertAtTimecode(media, kind, trackIndex, recordTC, plan) && e.verify(media, kind, trackIndex, before) {
		return nil
	}
	if e.tryPlayheadInsert(media, kind, trackIndex, recordTC) && e.verify(media, kind, trackIndex, before) {
		return nil
	}
	if e.tryContextAppend(media, kind, trackIndex, plan) && e.verify(media, kind, trackIndex, before) {
		return nil
	}
	return fmt.Errorf("place %s on %s track %d at %s: all placement strategies failed",
		media.Name(), kind, trackIndex, recordTC)
}

func (e *Engine) tryAppendClip(media host.MediaItem, kind host.TrackType, trackIndex int, plan Placement) bool {
	err := e.Timeline.AppendClip(host.ClipPlacement{
		Media:       media,
		Kind:        kind,
		TrackIndex:  trackIndex,
		SourceIn:    plan.SourceIn,
		SourceOut:   plan.SourceOut,
		RecordFrame: plan.RecordFrame,
	})
	if err != nil {
		logStrategyMiss("bulk append", err)
		return false
	}
	return true
}

func (e *Engine) tryInsertAtTimecode(media host.MediaItem, kind host.TrackType, trackIndex int, recordTC string, plan Placement) bool {
	item, err := e.Timeline.InsertFileAtTimecode(media.FilePath(), kind, trackIndex, recordTC)
	if err != nil {
		logStrategyMiss("insert at timecode", err)
		return false
	}
	e.applyTrim(item, plan)
	return true
}

func (e *Engine) tryPlayheadInsert(media host.MediaItem, kind host.TrackType, trackIndex int, recordTC string) bool {
	if err := e.Timeline.SetPlayhead(recordTC); err != nil {
		logStrategyMiss("playhead insert", err)
		return false
	}
	if err := e.Timeline.InsertAtPlayhead([]host.MediaItem{media}, kind, trackIndex); err != nil {
		logStrategyMiss("playhead insert", err)
		return false
	}
	log.Printf("Placed %s via playhead insert, trim not applied", media.Name())
	return true
}

func (e *Engine) tryContextAppend(media host.MediaItem, kind host.TrackType, trackIndex int, plan Placement) bool {
	if err := e.Timeline.AppendToContext([]host.MediaItem{media}); err != nil {
		logStrategyMiss("context append", err)
		return false
	}
	if items, err := e.Timeline.Items(kind, trackIndex); err == nil && len(items) > 0 {
		e.applyTrim(items[len(items)-1], plan)
	}
	return true
}

// applyTrim re-applies the source range after a strategy that placed the
// whole clip. Setter absence is logged and tolerated.
func (e *Engine) applyTrim(item host.Item, plan Placement) {
	if err := item.SetSourceStartFrame(plan.SourceIn); err != nil {
		logStrategyMiss("source trim", err)
	}
	if start, err := item.StartFrame(); err == nil {
		if err := item.SetEndFrame(start + plan.DurationFrames()); err != nil {
			logStrategyMiss("duration trim", err)
		}
	}
}

// verify confirms the track item count grew, then reads back the new item's
// actual frames for the operation log.
func (e *Engine) verify(media host.MediaItem, kind host.TrackType, trackIndex int, before int) bool {
	items, err := e.Timeline.Items(kind, trackIndex)
	if err != nil || len(items) <= before {
		log.Printf("Placement of %s reported success but %s track %d did not grow, trying next strategy",
			media.Name(), kind, trackIndex)
		return false
	}
	item := items[len(items)-1]
	start, startErr := item.StartFrame()
	end, endErr := item.EndFrame()
	if startErr == nil && endErr == nil {
		log.Printf("Placed %s on %s track %d, frames %d-%d", item.Name(), kind, trackIndex, start, end)
	} else {
		log.Printf("Placed %s on %s track %d", item.Name(), kind, trackIndex)
	}
	return true
}

func logStrategyMiss(strategy string, err error) {
	if errors.Is(err, host.ErrUnsupported) {
		log.Printf("Host does not support %s, falling through", strategy)
		return
	}
	log.Printf("%s failed: %v", strategy, err)
}
