package timeline

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concepto-app/resolve-sync/internal/assets"
	"github.com/concepto-app/resolve-sync/internal/concepto"
	"github.com/concepto-app/resolve-sync/internal/host/hosttest"
)

type fakeService struct {
	episode       *concepto.Episode
	fileHits      atomic.Int64
	previewBodies []concepto.AVPreviewUpdate
	shotBodies    map[string]concepto.ShotUpdate
}

func newFakeService(ep *concepto.Episode) (*fakeService, *httptest.Server) {
	svc := &fakeService{episode: ep, shotBodies: map[string]concepto.ShotUpdate{}}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /episodes/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"success": true, "data": svc.episode})
	})
	mux.HandleFunc("PUT /episodes/", func(w http.ResponseWriter, r *http.Request) {
		var update concepto.AVPreviewUpdate
		json.NewDecoder(r.Body).Decode(&update)
		svc.previewBodies = append(svc.previewBodies, update)
		json.NewEncoder(w).Encode(map[string]any{"success": true})
	})
	mux.HandleFunc("PUT /shots/", func(w http.ResponseWriter, r *http.Request) {
		var update concepto.ShotUpdate
		json.NewDecoder(r.Body).Decode(&update)
		svc.shotBodies[strings.TrimPrefix(r.URL.Path, "/shots/")] = update
		json.NewEncoder(w).Encode(map[string]any{"success": true})
	})
	mux.HandleFunc("/files/", func(w http.ResponseWriter, r *http.Request) {
		svc.fileHits.Add(1)
		w.Write([]byte("media bytes"))
	})
	return svc, httptest.NewServer(mux)
}

func testEpisode() *concepto.Episode {
	return &concepto.Episode{
		ID:    "ep1",
		Title: "Pilot",
		AVScript: concepto.AVScript{Segments: []concepto.Segment{{
			ID:            "sg1",
			SegmentNumber: 1,
			Title:         "Opening",
			Shots: []concepto.Shot{
				{ID: "sh1", TakeCode: "SC01T01", Order: 0, Visual: "establishing", VideoURL: "/files/a.mp4", Duration: 2.0},
				{ID: "sh2", TakeCode: "SC01T02", Order: 1, Visual: "wide shot", ImageURL: "/files/b.png", Duration: 3.0},
			},
		}}},
		AVPreview: concepto.AVPreview{
			AudioTracks: []concepto.AudioTrack{{
				ID:   "at1",
				Name: "VO",
				Clips: []concepto.AudioClip{
					{ID: "ac1", Name: "vo take", URL: "/files/c.wav", StartTime: 1.0, Duration: 2.0, Volume: 1.0},
				},
			}},
		},
	}
}

func newOrchestrator(t *testing.T, serverURL string, h *hosttest.Host) (*Orchestrator, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	client := concepto.NewClient(serverURL, "key", "client-1")
	o := &Orchestrator{
		Client:    client,
		Host:      h,
		Downloads: assets.NewDownloader(fs, "/dl", client.ResolveURL),
		Fs:        fs,
	}
	h.Project.Timeline.Fs = fs
	return o, fs
}

func TestBuildPlacesShotsSubtitlesAndAudio(t *testing.T) {
	_, server := newFakeService(testEpisode())
	defer server.Close()
	h := hosttest.New(24, "01:00:00:00")
	o, _ := newOrchestrator(t, server.URL, h)

	report, err := o.Build("ep1")
	require.NoError(t, err)

	require.Len(t, report.Shots, 2)
	for _, shot := range report.Shots {
		assert.Equal(t, StateVerified, shot.State)
	}

	tl := h.Project.Timeline
	require.Len(t, tl.Video, 1)
	require.Len(t, tl.Video[0], 2)
	assert.Equal(t, "SC01T01_MAIN_video.mp4", tl.Video[0][0].Name())
	assert.Equal(t, 86400, tl.Video[0][0].Start)
	assert.Equal(t, "SC01T02_MAIN_image.png", tl.Video[0][1].Name())
	assert.Equal(t, 86448, tl.Video[0][1].Start)

	assert.Equal(t, 2, report.Subtitles)
	require.Len(t, tl.ImportedSubtitles, 1)
	require.Len(t, tl.Subtitle, 1)
	assert.Len(t, tl.Subtitle[0], 2)

	// audio goes below the reserved track 1
	assert.Equal(t, 1, report.AudioClips)
	require.Len(t, tl.Audio, 2)
	require.Len(t, tl.Audio[1], 1)
	assert.Equal(t, 86424, tl.Audio[1][0].Start)

	pool := h.Project.Pool
	require.Len(t, pool.Root.Subs, 1)
	assert.Equal(t, "Pilot", pool.Root.Subs[0].Name())
}

func TestBuildReusesDownloadCache(t *testing.T) {
	svc, server := newFakeService(testEpisode())
	defer server.Close()
	h := hosttest.New(24, "01:00:00:00")
	o, _ := newOrchestrator(t, server.URL, h)

	_, err := o.Build("ep1")
	require.NoError(t, err)
	first := svc.fileHits.Load()
	require.Greater(t, first, int64(0))

	_, err = o.Build("ep1")
	require.NoError(t, err)
	assert.Equal(t, first, svc.fileHits.Load())
}

func TestBuildShotWithoutAssetsBecomesPlaceholder(t *testing.T) {
	ep := testEpisode()
	ep.AVScript.Segments[0].Shots = []concepto.Shot{
		{ID: "sh1", TakeCode: "SC01T01", Visual: "no media yet", Duration: 2.0},
	}
	ep.AVPreview.AudioTracks = nil
	_, server := newFakeService(ep)
	defer server.Close()
	h := hosttest.New(24, "00:00:00:00")
	o, _ := newOrchestrator(t, server.URL, h)

	report, err := o.Build("ep1")
	require.NoError(t, err)

	require.Len(t, report.Shots, 1)
	assert.Equal(t, StatePlaceholderOnly, report.Shots[0].State)
	assert.Empty(t, h.Project.Timeline.Video)
	// placeholder shots still get a subtitle
	assert.Equal(t, 1, report.Subtitles)
}

func TestPushReportsClipStartTimes(t *testing.T) {
	ep := testEpisode()
	ep.AVScript.Segments[0].Shots = []concepto.Shot{
		{ID: "sh1", TakeCode: "SC03T01", Order: 0, Visual: "establishing", VideoURL: "/files/a.mp4", Duration: 2.0},
	}
	ep.AVPreview.AudioTracks = nil
	svc, server := newFakeService(ep)
	defer server.Close()

	h := hosttest.New(24, "00:00:00:00")
	h.Project.Timeline.Video = [][]*hosttest.Item{{
		{ItemName: "SC03T01_MAIN_video.mp4", Start: 240, End: 288},
	}}
	o, _ := newOrchestrator(t, server.URL, h)

	require.NoError(t, o.Push("ep1"))

	require.Len(t, svc.previewBodies, 1)
	starts := svc.previewBodies[0].VideoClipStartTimes
	require.Len(t, starts, 1)
	assert.Equal(t, 10.0, starts["sg1-sh1-0"])
}

func TestPushReportsTrimOffset(t *testing.T) {
	ep := testEpisode()
	ep.AVScript.Segments[0].Shots = []concepto.Shot{
		{ID: "sh1", TakeCode: "SC03T01", Order: 0, Visual: "establishing", VideoURL: "/files/a.mp4", Duration: 2.0, VideoOffset: 0},
	}
	ep.AVPreview.AudioTracks = nil
	svc, server := newFakeService(ep)
	defer server.Close()

	h := hosttest.New(24, "00:00:00:00")
	h.Project.Timeline.Video = [][]*hosttest.Item{{
		{ItemName: "SC03T01_MAIN_video.mp4", Start: 240, End: 288, SrcStart: 48},
	}}
	o, _ := newOrchestrator(t, server.URL, h)

	require.NoError(t, o.Push("ep1"))

	// the retimed clip still reports its record position
	require.Len(t, svc.previewBodies, 1)
	assert.Equal(t, 10.0, svc.previewBodies[0].VideoClipStartTimes["sg1-sh1-0"])

	update, ok := svc.shotBodies["sh1"]
	require.True(t, ok)
	require.NotNil(t, update.VideoOffset)
	assert.Equal(t, 2.0, *update.VideoOffset)
}

func TestPushSubtitleDiffUpdatesShot(t *testing.T) {
	ep := testEpisode()
	ep.AVScript.Segments[0].Shots = []concepto.Shot{
		{ID: "sh1", TakeCode: "SC01T01", Order: 0, Visual: "old description", Duration: 2.0},
	}
	ep.AVPreview.AudioTracks = nil
	svc, server := newFakeService(ep)
	defer server.Close()

	h := hosttest.New(24, "00:00:00:00")
	h.Project.Timeline.Subtitle = [][]*hosttest.Item{{
		{ItemName: "sub", ItemText: "[SC01T01] new description", Start: 0, End: 48},
	}}
	o, _ := newOrchestrator(t, server.URL, h)

	require.NoError(t, o.Push("ep1"))

	update, ok := svc.shotBodies["sh1"]
	require.True(t, ok)
	require.NotNil(t, update.Visual)
	assert.Equal(t, "new description", *update.Visual)
}

func TestPushEmptyTimelineIsInformational(t *testing.T) {
	svc, server := newFakeService(testEpisode())
	defer server.Close()
	h := hosttest.New(24, "00:00:00:00")
	o, _ := newOrchestrator(t, server.URL, h)

	require.NoError(t, o.Push("ep1"))
	assert.Empty(t, svc.previewBodies)
	assert.Empty(t, svc.shotBodies)
}

func TestPullMovesClipToServicePosition(t *testing.T) {
	ep := testEpisode()
	ep.AVScript.Segments[0].Shots = []concepto.Shot{
		{ID: "sh1", TakeCode: "SC03T01", Order: 0, VideoURL: "/files/a.mp4", Duration: 2.0},
	}
	ep.AVPreview.AudioTracks = nil
	_, server := newFakeService(ep)
	defer server.Close()

	h := hosttest.New(24, "00:00:00:00")
	clip := &hosttest.MediaItem{
		MediaName: "SC03T01_MAIN_video.mp4",
		Path:      "/dl/SC03T01_MAIN_video.mp4",
		Frames:    72,
	}
	h.Project.Timeline.Video = [][]*hosttest.Item{{
		{ItemName: "SC03T01_MAIN_video.mp4", Start: 240, End: 288, Clip: clip},
	}}
	o, _ := newOrchestrator(t, server.URL, h)

	require.NoError(t, o.Pull("ep1"))

	tl := h.Project.Timeline
	require.Len(t, tl.Video[0], 1)
	assert.Equal(t, 0, tl.Video[0][0].Start)
}

func TestPullFallsBackToSettersWhenDeleteUnsupported(t *testing.T) {
	ep := testEpisode()
	ep.AVScript.Segments[0].Shots = []concepto.Shot{
		{ID: "sh1", TakeCode: "SC03T01", Order: 0, VideoURL: "/files/a.mp4", Duration: 2.0},
	}
	ep.AVPreview.AudioTracks = nil
	_, server := newFakeService(ep)
	defer server.Close()

	h := hosttest.New(24, "00:00:00:00")
	h.Project.Timeline.DisableDelete = true
	clip := &hosttest.MediaItem{
		MediaName: "SC03T01_MAIN_video.mp4",
		Path:      "/dl/SC03T01_MAIN_video.mp4",
		Frames:    72,
	}
	item := &hosttest.Item{ItemName: "SC03T01_MAIN_video.mp4", Start: 240, End: 288, Clip: clip}
	h.Project.Timeline.Video = [][]*hosttest.Item{{item}}
	o, _ := newOrchestrator(t, server.URL, h)

	require.NoError(t, o.Pull("ep1"))

	assert.Equal(t, 0, item.Start)
	assert.Equal(t, 48, item.End)
}

func TestExportSubtitlesToFile(t *testing.T) {
	_, server := newFakeService(testEpisode())
	defer server.Close()
	h := hosttest.New(24, "00:00:00:00")
	h.Project.Timeline.Subtitle = [][]*hosttest.Item{{
		{ItemName: "sub", ItemText: "[SC01T01] establishing", Start: 0, End: 48},
		{ItemName: "sub", ItemText: "plain note", Start: 48, End: 72},
	}}
	o, fs := newOrchestrator(t, server.URL, h)

	require.NoError(t, o.ExportSubtitlesToFile("/out/ep.srt"))

	raw, err := afero.ReadFile(fs, "/out/ep.srt")
	require.NoError(t, err)
	assert.Contains(t, string(raw), "[SC01T01] establishing")
	assert.Contains(t, string(raw), "plain note")
}
