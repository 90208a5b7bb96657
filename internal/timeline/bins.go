package timeline

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/concepto-app/resolve-sync/internal/concepto"
	"github.com/concepto-app/resolve-sync/internal/host"
)

const maxLabelLen = 40

// SegmentLabel builds the bin folder name for a segment from its number and
// title, with filesystem-unsafe characters replaced and the whole label
// truncated to a bounded length.
func SegmentLabel(seg *concepto.Segment) string {
	label := fmt.Sprintf("%02d_%s", seg.SegmentNumber, sanitizeLabel(seg.Title))
	if len(label) > maxLabelLen {
		label = label[:maxLabelLen]
	}
	return strings.TrimRight(label, "_ ")
}

func sanitizeLabel(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// EnsureFolderPath walks the media pool from the root folder, creating each
// named level only when it does not already exist. Calling it twice with
// the same names returns the same folder and creates nothing new.
func EnsureFolderPath(pool host.MediaPool, names ...string) (host.Folder, error) {
	folder, err := pool.RootFolder()
	if err != nil {
		return nil, fmt.Errorf("media pool root folder: %w", err)
	}
	for _, name := range names {
		next, err := findSubfolder(folder, name)
		if err != nil {
			return nil, err
		}
		if next == nil {
			next, err = folder.CreateSubfolder(name)
			if err != nil {
				return nil, fmt.Errorf("create bin folder %q: %w", name, err)
			}
		}
		folder = next
	}
	return folder, nil
}

func findSubfolder(folder host.Folder, name string) (host.Folder, error) {
	subs, err := folder.Subfolders()
	if err != nil {
		return nil, fmt.Errorf("list subfolders of %q: %w", folder.Name(), err)
	}
	for _, sub := range subs {
		if sub.Name() == name {
			return sub, nil
		}
	}
	return nil, nil
}

// EnsureTakeFolder materializes the three-level bin path for one take:
// episode label, segment label, take code.
func EnsureTakeFolder(pool host.MediaPool, episodeLabel, segmentLabel string, take string) (host.Folder, error) {
	return EnsureFolderPath(pool, episodeLabel, segmentLabel, take)
}

// ImportIntoFolder imports the given local files into the folder, skipping
// any whose filename is already present there. It returns every media item
// in the folder afterward.
func ImportIntoFolder(pool host.MediaPool, folder host.Folder, paths []string) ([]host.MediaItem, error) {
	existing, err := folder.Media()
	if err != nil {
		return nil, fmt.Errorf("list bin media: %w", err)
	}
	present := make(map[string]bool, len(existing))
	for _, item := range existing {
		present[item.Name()] = true
	}

	var missing []string
	for _, p := range paths {
		if !present[filepath.Base(p)] {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		if err := pool.SetCurrentFolder(folder); err != nil {
			return nil, fmt.Errorf("select bin folder %q: %w", folder.Name(), err)
		}
		if _, err := pool.ImportFiles(missing); err != nil {
			return nil, fmt.Errorf("import %d files into %q: %w", len(missing), folder.Name(), err)
		}
	}
	return folder.Media()
}

// FindMediaByFilename looks up a media item in the folder by its filename.
func FindMediaByFilename(folder host.Folder, name string) (host.MediaItem, bool) {
	items, err := folder.Media()
	if err != nil {
		return nil, false
	}
	for _, item := range items {
		if item.Name() == name || filepath.Base(item.FilePath()) == name {
			return item, true
		}
	}
	return nil, false
}
