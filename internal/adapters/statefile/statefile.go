// Package statefile escribe el RuntimeState a disco para CLIs y dashboards
// que no hablan HTTP.
package statefile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/alejandrodnm/smcbot/internal/domain"
)

// Writer implementa ports.StatePublisher. Cada publicación reemplaza el
// archivo de forma atómica: un lector ve la foto anterior o la nueva, nunca
// una a medio escribir.
type Writer struct {
	path string
}

// NewWriter crea el directorio padre si hace falta.
func NewWriter(path string) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("statefile.NewWriter: mkdir %q: %w", dir, err)
		}
	}
	return &Writer{path: path}, nil
}

// Path devuelve la ruta del archivo.
func (w *Writer) Path() string { return w.path }

// PublishState serializa st en un temporal del mismo directorio y lo renombra.
func (w *Writer) PublishState(_ context.Context, st domain.RuntimeState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("statefile.PublishState: marshal: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(w.path), filepath.Base(w.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("statefile.PublishState: create temp: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op tras el rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("statefile.PublishState: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("statefile.PublishState: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("statefile.PublishState: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), w.path); err != nil {
		return fmt.Errorf("statefile.PublishState: rename: %w", err)
	}
	return nil
}

// Read carga la última foto publicada en path.
func Read(path string) (domain.RuntimeState, error) {
	var st domain.RuntimeState
	data, err := os.ReadFile(path)
	if err != nil {
		return st, fmt.Errorf("statefile.Read: %w", err)
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return st, fmt.Errorf("statefile.Read: decode %q: %w", path, err)
	}
	return st, nil
}
