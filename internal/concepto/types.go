package concepto

import (
	"sort"

	"github.com/concepto-app/resolve-sync/internal/shotid"
)

// DefaultShotDuration is substituted when a shot carries no playable
// duration. Matches the preview player's default slot length.
const DefaultShotDuration = 3.0

// Episode is the top-level record returned by GET /episodes/{id}.
type Episode struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	ShowID    string    `json:"showId"`
	AVScript  AVScript  `json:"avScript"`
	AVPreview AVPreview `json:"avPreview"`
}

type AVScript struct {
	Segments []Segment `json:"segments"`
}

type Segment struct {
	ID            string `json:"id"`
	SegmentNumber int    `json:"segmentNumber"`
	Title         string `json:"title"`
	Shots         []Shot `json:"shots"`
}

// Shot is one slot in a segment. Order is the row key used for layout;
// ShotNumber is display-only and the two may disagree.
type Shot struct {
	ID          string  `json:"id"`
	TakeCode    string  `json:"takeCode"`
	ShotNumber  int     `json:"shotNumber"`
	Order       int     `json:"order"`
	Audio       string  `json:"audio"`
	Visual      string  `json:"visual"`
	VideoURL    string  `json:"videoUrl"`
	ImageURL    string  `json:"imageUrl"`
	Duration    float64 `json:"duration"`
	VideoOffset float64 `json:"videoOffset"`
	WordCount   int     `json:"wordCount"`
	Runtime     float64 `json:"runtime"`

	VoiceAudio            []VoiceAudio           `json:"voiceAudio,omitempty"`
	ImageGenerationThread *ImageGenerationThread `json:"imageGenerationThread,omitempty"`
}

// VoiceAudio is one per-voice narration file attached to a shot.
type VoiceAudio struct {
	Voice string `json:"voice"`
	URL   string `json:"url"`
}

// ImageGenerationThread holds the auxiliary frames and generated alternates
// for a shot.
type ImageGenerationThread struct {
	ReferenceFrame  string   `json:"referenceFrame"`
	StartFrame      string   `json:"startFrame"`
	EndFrame        string   `json:"endFrame"`
	GeneratedImages []string `json:"generatedImages"`
	GeneratedVideos []string `json:"generatedVideos"`
}

// AVPreview bundles the explicit start-time overrides (keyed by clip
// identity string) and the audio track descriptors for an episode.
type AVPreview struct {
	VideoClipStartTimes map[string]float64 `json:"videoClipStartTimes"`
	AudioTracks         []AudioTrack       `json:"audioTracks"`
}

type AudioTrack struct {
	ID    string      `json:"id"`
	Name  string      `json:"name"`
	Clips []AudioClip `json:"clips"`
}

// AudioClip start times are seconds relative to segment-local zero. Volume
// is linear, 0.0-1.0.
type AudioClip struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	URL       string  `json:"url"`
	StartTime float64 `json:"startTime"`
	Duration  float64 `json:"duration"`
	Offset    float64 `json:"offset"`
	Volume    float64 `json:"volume"`
}

type Show struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Take parses the shot's stored take code (stripping any "_image" suffix).
func (s *Shot) Take() (shotid.TakeCode, error) {
	return shotid.ParseTakeCode(s.TakeCode)
}

// MainAssetURL returns the single authoritative asset for the shot's slot.
// Video wins when both a video and an image are present.
func (s *Shot) MainAssetURL() (url string, isVideo bool, ok bool) {
	if s.VideoURL != "" {
		return s.VideoURL, true, true
	}
	if s.ImageURL != "" {
		return s.ImageURL, false, true
	}
	return "", false, false
}

// PlayableDuration is the duration used when actually placing the shot.
// The start-time resolver intentionally uses the raw Duration instead; see
// ResolveStartTimes.
func (s *Shot) PlayableDuration() float64 {
	if s.Duration <= 0 {
		return DefaultShotDuration
	}
	return s.Duration
}

// RawOrderedShots preserves a segment's shot array exactly as received from
// the service. Clip identities are derived from positions in this array, and
// the service's preview component derives them the same way, so this type is
// the only sanctioned source of identities. It is constructed only by
// Segment.RawShots.
type RawOrderedShots struct {
	segmentID string
	shots     []Shot
}

// RawShots wraps the segment's unsorted shot array for identity computation.
func (s *Segment) RawShots() RawOrderedShots {
	return RawOrderedShots{segmentID: s.ID, shots: s.Shots}
}

func (r RawOrderedShots) Len() int { return len(r.shots) }

func (r RawOrderedShots) At(i int) Shot { return r.shots[i] }

// Identity returns the composite clip identity for the shot at raw index i.
func (r RawOrderedShots) Identity(i int) shotid.ClipIdentity {
	return shotid.ClipIdentity{SegmentID: r.segmentID, ShotID: r.shots[i].ID, RawIndex: i}
}

// IdentityByShotID maps shot IDs to their raw-order identities, for call
// sites that iterate shots in display order but need the raw identity.
func (r RawOrderedShots) IdentityByShotID() map[string]shotid.ClipIdentity {
	m := make(map[string]shotid.ClipIdentity, len(r.shots))
	for i := range r.shots {
		m[r.shots[i].ID] = r.Identity(i)
	}
	return m
}

// ShotsByRow returns a sorted copy of the segment's shots in row-key order
// for layout. The underlying array is left untouched so identities stay
// stable.
func (s *Segment) ShotsByRow() []Shot {
	sorted := make([]Shot, len(s.Shots))
	copy(sorted, s.Shots)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Order != sorted[j].Order {
			return sorted[i].Order < sorted[j].Order
		}
		return sorted[i].ShotNumber < sorted[j].ShotNumber
	})
	return sorted
}
