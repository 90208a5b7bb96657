package timeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concepto-app/resolve-sync/internal/host"
	"github.com/concepto-app/resolve-sync/internal/host/hosttest"
)

func testMedia(frames int) *hosttest.MediaItem {
	return &hosttest.MediaItem{
		MediaName: "SC01T01_MAIN_video.mp4",
		Path:      "/assets/SC01T01_MAIN_video.mp4",
		Frames:    frames,
	}
}

func TestPlanPlacementZeroDuration(t *testing.T) {
	basis := Basis{FPS: 24, StartFrame: 86400}
	plan := PlanPlacement(basis, nil, 5, 0, 0)

	assert.Equal(t, 86400+120, plan.RecordFrame)
	assert.GreaterOrEqual(t, plan.DurationFrames(), 24)
	assert.Greater(t, plan.SourceOut, plan.SourceIn)
}

func TestPlanPlacementNegativeDuration(t *testing.T) {
	plan := PlanPlacement(Basis{FPS: 24}, nil, 0, -2.5, -1.0)
	assert.Equal(t, 0, plan.SourceIn)
	assert.Greater(t, plan.SourceOut, plan.SourceIn)
	assert.GreaterOrEqual(t, plan.DurationFrames(), 1)
}

func TestPlanPlacementClampsToSource(t *testing.T) {
	// 10s requested from a 3s source starting 1s in: out clamps to the
	// source end.
	plan := PlanPlacement(Basis{FPS: 24}, testMedia(72), 0, 10.0, 1.0)
	assert.Equal(t, 24, plan.SourceIn)
	assert.Equal(t, 72, plan.SourceOut)
}

func TestPlanPlacementOffsetPastSource(t *testing.T) {
	// Offset beyond the source end resets the trim window to the head.
	plan := PlanPlacement(Basis{FPS: 24}, testMedia(48), 0, 2.0, 10.0)
	assert.Equal(t, 0, plan.SourceIn)
	assert.Equal(t, 48, plan.SourceOut)
}

func TestPlaceViaAppendClip(t *testing.T) {
	h := hosttest.New(24, "01:00:00:00")
	tl := h.Project.Timeline
	engine := NewEngine(tl)

	err := engine.Place(testMedia(72), host.TrackVideo, 1, 10.0, 2.0, 0)
	require.NoError(t, err)

	require.Len(t, tl.Video, 1)
	require.Len(t, tl.Video[0], 1)
	item := tl.Video[0][0]
	assert.Equal(t, 86640, item.Start)
	assert.Equal(t, 86688, item.End)
	assert.Equal(t, 1, tl.AppendClipCalls)
	assert.Zero(t, tl.InsertAtTCCalls)
}

func TestPlaceFallsBackToInsertAtTimecode(t *testing.T) {
	h := hosttest.New(24, "00:00:00:00")
	tl := h.Project.Timeline
	tl.DisableAppendClip = true
	engine := NewEngine(tl)

	err := engine.Place(testMedia(72), host.TrackVideo, 1, 5.0, 2.0, 0)
	require.NoError(t, err)

	assert.Equal(t, 1, tl.InsertAtTCCalls)
	item := tl.Video[0][0]
	assert.Equal(t, 120, item.Start)
	// trim re-applied after insertion
	assert.Equal(t, 168, item.End)
}

func TestPlaceFallsBackToPlayhead(t *testing.T) {
	h := hosttest.New(24, "00:00:00:00")
	tl := h.Project.Timeline
	tl.DisableAppendClip = true
	tl.DisableInsertAtTC = true
	engine := NewEngine(tl)

	err := engine.Place(testMedia(72), host.TrackVideo, 1, 5.0, 2.0, 0)
	require.NoError(t, err)

	assert.Equal(t, 1, tl.PlayheadCalls)
	assert.Equal(t, 120, tl.Video[0][0].Start)
}

func TestPlaceFallsBackToContextAppend(t *testing.T) {
	h := hosttest.New(24, "00:00:00:00")
	tl := h.Project.Timeline
	tl.DisableAppendClip = true
	tl.DisableInsertAtTC = true
	tl.DisablePlayhead = true
	engine := NewEngine(tl)

	err := engine.Place(testMedia(72), host.TrackVideo, 1, 5.0, 2.0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, tl.ContextAppendCalls)
	require.Len(t, tl.Video[0], 1)
}

func TestPlaceAllStrategiesFail(t *testing.T) {
	h := hosttest.New(24, "00:00:00:00")
	tl := h.Project.Timeline
	tl.DisableAppendClip = true
	tl.DisableInsertAtTC = true
	tl.DisablePlayhead = true
	tl.DisableContextAppend = true
	engine := NewEngine(tl)

	err := engine.Place(testMedia(72), host.TrackVideo, 1, 5.0, 2.0, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all placement strategies failed")
}

func TestPlaceDistrustsLyingAppend(t *testing.T) {
	// The bulk append reports success without adding an item; verification
	// must catch it and fall through to the next strategy.
	h := hosttest.New(24, "00:00:00:00")
	tl := h.Project.Timeline
	tl.AppendClipLies = true
	engine := NewEngine(tl)

	err := engine.Place(testMedia(72), host.TrackVideo, 1, 5.0, 2.0, 0)
	require.NoError(t, err)

	assert.Equal(t, 1, tl.AppendClipCalls)
	assert.Equal(t, 1, tl.InsertAtTCCalls)
	require.Len(t, tl.Video[0], 1)
	assert.Equal(t, 120, tl.Video[0][0].Start)
}

func TestTimelineBasisFallbacks(t *testing.T) {
	h := hosttest.New(30, "garbage")
	basis := TimelineBasis(h.Project.Timeline)
	assert.Equal(t, 30.0, basis.FPS)
	assert.Equal(t, 0, basis.StartFrame)

	h = hosttest.New(24, "01:00:00:00")
	h.Project.Timeline.DisableFrameRate = true
	basis = TimelineBasis(h.Project.Timeline)
	assert.Equal(t, DefaultFPS, basis.FPS)
	assert.Equal(t, 86400, basis.StartFrame)
}
