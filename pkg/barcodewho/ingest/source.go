package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/internalerr"
)

// Recording is one file offered for ingestion.
type Recording struct {
	Path    string
	ModTime time.Time
}

// Source lists recordings modified at or after since, oldest first.
// Recordings sharing the watermark's timestamp are listed again; the
// ledger filters the ones already seen.
type Source interface {
	List(ctx context.Context, since time.Time) ([]Recording, error)
}

// DefaultExtension is the file extension of game recordings.
const DefaultExtension = ".SC2Replay"

// FolderSource walks a directory tree for recordings.
type FolderSource struct {
	Root string
	// Ext is matched case-insensitively. Empty means DefaultExtension.
	Ext string
	// LoadOld ignores the watermark and lists every recording.
	LoadOld bool
}

// List implements Source.
func (f FolderSource) List(ctx context.Context, since time.Time) ([]Recording, error) {
	if f.Root == "" {
		return nil, fmt.Errorf("folder source: root is required: %w", internalerr.ErrInvalidConfig)
	}
	ext := f.Ext
	if ext == "" {
		ext = DefaultExtension
	}

	var out []Recording
	err := filepath.WalkDir(f.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ext) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !f.LoadOld && info.ModTime().Before(since) {
			return nil
		}
		out = append(out, Recording{Path: path, ModTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", f.Root, err)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].ModTime.Equal(out[j].ModTime) {
			return out[i].ModTime.Before(out[j].ModTime)
		}
		return out[i].Path < out[j].Path
	})
	return out, nil
}
