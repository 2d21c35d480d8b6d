package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/alejandrodnm/sweepbot/internal/domain"
)

// StateFile implementa ports.StateStore sobre un archivo JSON.
// Save escribe en un temporal del mismo directorio y hace rename, así un
// crash a mitad de escritura nunca deja un archivo truncado.
type StateFile struct {
	path string
}

// NewStateFile crea el store; el directorio se crea en el primer Save.
func NewStateFile(path string) *StateFile {
	return &StateFile{path: path}
}

// Path devuelve la ruta del archivo.
func (s *StateFile) Path() string { return s.path }

// Load implementa ports.StateStore.
func (s *StateFile) Load() (domain.PersistedState, bool, error) {
	var st domain.PersistedState
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return st, false, nil
	}
	if err != nil {
		return st, false, fmt.Errorf("storage.StateFile.Load: read %q: %w", s.path, err)
	}
	if err := json.Unmarshal(b, &st); err != nil {
		return st, false, fmt.Errorf("storage.StateFile.Load: parse %q: %w", s.path, err)
	}
	if st.Dedupe == nil {
		st.Dedupe = domain.DedupeBook{}
	}
	if st.CRBaselines == nil {
		st.CRBaselines = map[string]float64{}
	}
	return st, true, nil
}

// Save implementa ports.StateStore.
func (s *StateFile) Save(st domain.PersistedState) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage.StateFile.Save: mkdir %q: %w", dir, err)
	}
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("storage.StateFile.Save: marshal: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("storage.StateFile.Save: temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("storage.StateFile.Save: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("storage.StateFile.Save: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("storage.StateFile.Save: close: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("storage.StateFile.Save: rename: %w", err)
	}
	return nil
}
