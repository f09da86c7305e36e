package ops

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/hpungsan/wardrobe/internal/errors"
	"github.com/hpungsan/wardrobe/internal/outfit"
)

// BackupVersion is written in the header line of every export.
const BackupVersion = 1

// Line types of a backup file after the header.
const (
	lineSettings = "settings"
	lineOwner    = "owner"
)

// backupHeader is the first line of a backup file.
type backupHeader struct {
	WardrobeExport bool  `json:"_wardrobe_export"`
	Version        int   `json:"version"`
	ExportedAt     int64 `json:"exported_at"`
}

// backupLine is every line after the header. Type selects which fields are
// meaningful.
type backupLine struct {
	Type string `json:"type"`

	// settings
	CustomFields   []string `json:"custom_fields,omitempty"`
	AutoUpdate     bool     `json:"auto_update,omitempty"`
	PromptTemplate string   `json:"prompt_template,omitempty"`

	// owner
	Owner       outfit.Kind   `json:"owner,omitempty"`
	CharacterID string        `json:"character_id,omitempty"`
	Outfit      outfit.Record `json:"outfit,omitempty"`
	Location    string        `json:"location,omitempty"`
}

// ExportInput contains parameters for the Export operation.
type ExportInput struct {
	Path string // optional, default: ~/.wardrobe/exports/wardrobe-<timestamp>.jsonl
}

// ExportOutput contains the result of the Export operation.
type ExportOutput struct {
	Path       string `json:"path"`
	Owners     int    `json:"owners"`
	ExportedAt int64  `json:"exported_at"`
}

// Export writes the whole record to a JSONL file: a header line, a settings
// line and one line per owner. The file is written to a temporary name and
// renamed into place, so an existing backup survives a failed export.
func Export(ctx context.Context, d *Deps, input ExportInput) (*ExportOutput, error) {
	now := time.Now()

	path := input.Path
	if path == "" {
		dir, err := DefaultExportsDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(dir, "wardrobe-"+now.Format("2006-01-02T150405")+".jsonl")
	}
	if err := ValidatePath(path, PathCheckWrite, d.Config); err != nil {
		return nil, err
	}

	snap, err := d.Store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	lines := backupLines(snap)

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}
	header := backupHeader{WardrobeExport: true, Version: BackupVersion, ExportedAt: now.Unix()}
	if err := writeAtomic(ctx, path, header, lines); err != nil {
		return nil, err
	}

	d.logger().Info("state exported", zap.String("path", path), zap.Int("owners", len(lines)-1))
	return &ExportOutput{Path: path, Owners: len(lines) - 1, ExportedAt: header.ExportedAt}, nil
}

func backupLines(s *outfit.State) []backupLine {
	lines := []backupLine{
		{
			Type:           lineSettings,
			CustomFields:   s.CustomFields,
			AutoUpdate:     s.AutoUpdate,
			PromptTemplate: s.PromptTemplate,
		},
		{Type: lineOwner, Owner: outfit.KindUser, Outfit: s.User.Outfit, Location: s.User.Location},
	}
	for _, id := range s.CharacterIDs() {
		cs := s.Characters[id]
		lines = append(lines, backupLine{
			Type:        lineOwner,
			Owner:       outfit.KindChar,
			CharacterID: id,
			Outfit:      cs.Outfit,
			Location:    cs.Location,
		})
	}
	return lines
}

func writeAtomic(ctx context.Context, path string, header backupHeader, lines []backupLine) (err error) {
	suffix := make([]byte, 8)
	if _, err := rand.Read(suffix); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tmp := path + "." + hex.EncodeToString(suffix) + ".tmp"

	f, err := openNoFollow(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer func() {
		if f != nil {
			f.Close()
		}
		if err != nil {
			os.Remove(tmp)
		}
	}()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(header); err != nil {
		return errors.NewInternal(err)
	}
	for _, l := range lines {
		if ctx.Err() != nil {
			return errors.NewCancelled("export")
		}
		if err := enc.Encode(l); err != nil {
			return errors.NewInternal(err)
		}
	}
	if err := w.Flush(); err != nil {
		return errors.NewInternal(err)
	}
	if err := f.Sync(); err != nil {
		return errors.NewInternal(err)
	}
	// Closed before rename; Windows refuses to rename an open file.
	if err := f.Close(); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to close export file: %w", err))
	}
	f = nil

	if isSymlink(path) {
		return errors.NewInvalidRequest("path must not be a symlink")
	}
	if err := os.Rename(tmp, path); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(path); statErr == nil {
				return errors.NewInvalidRequest("export destination already exists; choose a new path")
			}
		}
		return errors.NewInternal(fmt.Errorf("failed to finalize export: %w", err))
	}
	return nil
}
