package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rustyeddy/obtrader/mitigation"
	"github.com/vmihailenco/msgpack/v5"
)

// Checkpoint is the state saved after each bar close so a restart on the
// same trading date can resume mitigation against the pre-crash level.
type Checkpoint struct {
	Instrument  string           `msgpack:"instrument"`
	TradingDate time.Time        `msgpack:"trading_date"`
	Tracker     mitigation.State `msgpack:"tracker"`
	Realized    float64          `msgpack:"realized"`
	SavedAt     time.Time        `msgpack:"saved_at"`
}

// Store persists checkpoints per instrument.
type Store interface {
	Save(cp Checkpoint) error
	Load(instrument string) (Checkpoint, bool, error)
}

// FileStore writes one msgpack file per instrument under Dir.
type FileStore struct {
	Dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	return &FileStore{Dir: dir}, nil
}

func (s *FileStore) path(instrument string) string {
	name := strings.NewReplacer("/", "_", "\\", "_").Replace(instrument)
	return filepath.Join(s.Dir, name+".ckpt")
}

func (s *FileStore) Save(cp Checkpoint) error {
	data, err := msgpack.Marshal(&cp)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	dst := s.path(cp.Instrument)
	tmp := dst + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return nil
}

func (s *FileStore) Load(instrument string) (Checkpoint, bool, error) {
	data, err := os.ReadFile(s.path(instrument))
	if errors.Is(err, os.ErrNotExist) {
		return Checkpoint{}, false, nil
	}
	if err != nil {
		return Checkpoint{}, false, fmt.Errorf("read checkpoint: %w", err)
	}
	var cp Checkpoint
	if err := msgpack.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, false, fmt.Errorf("decode checkpoint: %w", err)
	}
	return cp, true, nil
}
