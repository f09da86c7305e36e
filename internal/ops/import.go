package ops

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/hpungsan/wardrobe/internal/errors"
	"github.com/hpungsan/wardrobe/internal/outfit"
)

// maxBackupLine bounds one line of a backup file. Prompt templates are the
// longest values.
const maxBackupLine = 4 << 20

// ImportInput contains parameters for the Import operation.
type ImportInput struct {
	Path string // required
}

// ImportOutput contains the result of the Import operation.
type ImportOutput struct {
	Owners       int      `json:"owners"`
	CustomFields []string `json:"custom_fields"`
}

// Import replaces the whole record with the contents of a backup file. The
// file is parsed completely before anything is written; any malformed line
// fails the import and leaves the current state untouched. Missing schema
// keys are filled with unknown and a blank template becomes the default.
// Pending suggestions are discarded.
func Import(ctx context.Context, d *Deps, input ImportInput) (*ImportOutput, error) {
	if err := ValidatePath(input.Path, PathCheckRead, d.Config); err != nil {
		return nil, err
	}
	f, err := openNoFollow(input.Path, os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	next, err := readBackup(f)
	if err != nil {
		return nil, err
	}

	var out *ImportOutput
	err = d.Store.Update(ctx, func(s *outfit.State) error {
		*s = *next
		s.PromptTemplate = templateOrDefault(s.PromptTemplate, d.Store.DefaultTemplate())
		out = &ImportOutput{Owners: 1 + len(s.Characters), CustomFields: append([]string{}, s.CustomFields...)}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if d.Board != nil {
		d.Board.Reset()
	}
	d.logger().Info("state imported", zap.String("path", input.Path), zap.Int("owners", out.Owners))
	d.notify(Event{Type: EventSettings})
	d.notify(Event{Type: EventStateChanged})
	return out, nil
}

// readBackup parses a backup file into a fresh state.
func readBackup(r io.Reader) (*outfit.State, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxBackupLine)

	s := outfit.NewState("")
	lineNum := 0
	sawHeader, sawSettings := false, false
	for sc.Scan() {
		lineNum++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}

		if !sawHeader {
			var h backupHeader
			if err := json.Unmarshal([]byte(raw), &h); err != nil || !h.WardrobeExport {
				return nil, errors.NewInvalidRequest(fmt.Sprintf("line %d: not a wardrobe export", lineNum))
			}
			if h.Version > BackupVersion {
				return nil, errors.NewInvalidRequest(fmt.Sprintf("unsupported export version %d", h.Version))
			}
			sawHeader = true
			continue
		}

		var l backupLine
		if err := json.Unmarshal([]byte(raw), &l); err != nil {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("line %d: invalid JSON: %v", lineNum, err))
		}
		switch l.Type {
		case lineSettings:
			if sawSettings {
				return nil, errors.NewInvalidRequest(fmt.Sprintf("line %d: duplicate settings line", lineNum))
			}
			sawSettings = true
			s.CustomFields = outfit.CleanCustomFields(l.CustomFields)
			s.AutoUpdate = l.AutoUpdate
			s.PromptTemplate = l.PromptTemplate
		case lineOwner:
			st := &outfit.OwnerState{Outfit: l.Outfit, Location: l.Location}
			if st.Outfit == nil {
				st.Outfit = outfit.Record{}
			}
			switch l.Owner {
			case outfit.KindUser:
				s.User = *st
			case outfit.KindChar:
				if strings.TrimSpace(l.CharacterID) == "" {
					return nil, errors.NewInvalidRequest(fmt.Sprintf("line %d: character_id is required", lineNum))
				}
				s.Characters[l.CharacterID] = st
			default:
				return nil, errors.NewInvalidRequest(fmt.Sprintf("line %d: unknown owner %q", lineNum, l.Owner))
			}
		default:
			return nil, errors.NewInvalidRequest(fmt.Sprintf("line %d: unknown line type %q", lineNum, l.Type))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("line %d: %v", lineNum+1, err))
	}
	if !sawHeader {
		return nil, errors.NewInvalidRequest("empty export file")
	}

	dropUnknownKeys(s)
	s.EnsureSchemaKeys()
	return s, nil
}

// dropUnknownKeys deletes outfit keys that are not in the imported schema.
func dropUnknownKeys(s *outfit.State) {
	schema := s.Schema()
	prune := func(r outfit.Record) {
		for k := range r {
			if !schema.Has(k) {
				delete(r, k)
			}
		}
	}
	prune(s.User.Outfit)
	for _, cs := range s.Characters {
		prune(cs.Outfit)
	}
}
