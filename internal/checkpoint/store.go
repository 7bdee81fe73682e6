// Package checkpoint persists intermediate pipeline state between stages so
// an interrupted run can resume without repeating completed work.
package checkpoint

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/model"
)

// Slot names one of the two stage-boundary checkpoints.
type Slot string

const (
	// SlotScraped holds leads after a successful scrape, before enrichment.
	SlotScraped Slot = "scraped"
	// SlotEnriched holds leads after enrichment completed.
	SlotEnriched Slot = "enriched"
)

var slots = []Slot{SlotScraped, SlotEnriched}

// Store is a file-backed checkpoint store. Each slot is a single JSON file
// under the store directory; absence of the file means the slot is empty.
type Store struct {
	dir string
}

// NewStore creates a Store rooted at dir, creating the directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "checkpoint: create directory %s", dir)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the store's root directory.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(slot Slot) string {
	return filepath.Join(s.dir, "checkpoint_"+string(slot)+".json")
}

// ExistsAny reports whether either slot holds data.
func (s *Store) ExistsAny() bool {
	for _, slot := range slots {
		if s.Exists(slot) {
			return true
		}
	}
	return false
}

// Exists reports whether the given slot holds data.
func (s *Store) Exists(slot Slot) bool {
	_, err := os.Stat(s.path(slot))
	return err == nil
}

// Save serializes the checkpoint for slot, replacing any prior content. The
// write goes to a temporary file in the same directory followed by a rename,
// so a reader never observes a half-written checkpoint.
func (s *Store) Save(slot Slot, leads []model.Lead, meta *model.CheckpointMeta) error {
	cp := model.Checkpoint{Leads: leads, Meta: meta}
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return eris.Wrapf(err, "checkpoint: marshal %s", slot)
	}

	dest := s.path(slot)
	tmp := dest + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return eris.Wrapf(err, "checkpoint: write %s", slot)
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return eris.Wrapf(err, "checkpoint: commit %s", slot)
	}
	return nil
}

// Load returns the leads and meta stored in slot. An absent slot or one
// whose content fails to parse yields (nil, nil); corruption is treated as
// absence, never as a fatal error.
func (s *Store) Load(slot Slot) ([]model.Lead, *model.CheckpointMeta) {
	data, err := os.ReadFile(s.path(slot))
	if err != nil {
		return nil, nil
	}

	var cp model.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		zap.L().Warn("checkpoint: unreadable slot treated as absent",
			zap.String("slot", string(slot)),
			zap.Error(err),
		)
		return nil, nil
	}
	return cp.Leads, cp.Meta
}

// ClearAll removes both slots. Idempotent: already-absent slots are not an
// error.
func (s *Store) ClearAll() error {
	for _, slot := range slots {
		if err := os.Remove(s.path(slot)); err != nil && !os.IsNotExist(err) {
			return eris.Wrapf(err, "checkpoint: remove %s", slot)
		}
	}
	return nil
}
