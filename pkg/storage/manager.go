package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

// Manager saves media files and remembers which items are already on disk
type Manager struct {
	fs        afero.Fs
	outputDir string
	saved     map[string]string
	mu        sync.RWMutex
}

// NewManager creates outputDir on fs and indexes the files already in it
func NewManager(fs afero.Fs, outputDir string) (*Manager, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if err := fs.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	m := &Manager{
		fs:        fs,
		outputDir: outputDir,
		saved:     make(map[string]string),
	}

	if err := m.scanExistingFiles(); err != nil {
		return nil, fmt.Errorf("failed to scan existing files: %w", err)
	}
	return m, nil
}

// scanExistingFiles indexes media files by item id. Sidecars and leftover
// temporary files are ignored.
func (m *Manager) scanExistingFiles() error {
	entries, err := afero.ReadDir(m.fs, m.outputDir)
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext == "" || ext == ".json" || ext == ".tmp" {
			continue
		}
		m.saved[strings.TrimSuffix(entry.Name(), ext)] = filepath.Join(m.outputDir, entry.Name())
	}
	return nil
}

// IsSaved reports whether a file for itemID exists in the output directory
func (m *Manager) IsSaved(itemID string) bool {
	m.mu.RLock()
	p, ok := m.saved[itemID]
	m.mu.RUnlock()
	if !ok {
		return false
	}

	if _, err := m.fs.Stat(p); err != nil {
		m.mu.Lock()
		delete(m.saved, itemID)
		m.mu.Unlock()
		return false
	}
	return true
}

// Path returns where itemID with the given format is stored
func (m *Manager) Path(itemID, format string) string {
	if format == "" {
		format = "bin"
	}
	return filepath.Join(m.outputDir, itemID+"."+format)
}

// Save writes r to <itemID>.<format> through a temporary file and a rename,
// so a partially written file never carries the final name.
func (m *Manager) Save(r io.Reader, itemID, format string) (string, error) {
	filename := m.Path(itemID, format)
	tempFile := filename + ".tmp"

	out, err := m.fs.OpenFile(tempFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create temporary file: %w", err)
	}

	_, err = io.Copy(out, r)
	closeErr := out.Close()

	if err != nil {
		_ = m.fs.Remove(tempFile)
		return "", fmt.Errorf("failed to save media data: %w", err)
	}
	if closeErr != nil {
		_ = m.fs.Remove(tempFile)
		return "", fmt.Errorf("failed to close file: %w", closeErr)
	}

	if err := m.fs.Rename(tempFile, filename); err != nil {
		_ = m.fs.Remove(tempFile)
		return "", fmt.Errorf("failed to rename temporary file: %w", err)
	}

	m.mu.Lock()
	m.saved[itemID] = filename
	m.mu.Unlock()

	return filename, nil
}

// OutputDir returns the output directory path
func (m *Manager) OutputDir() string {
	return m.outputDir
}

// Count returns the number of indexed media files
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.saved)
}

// Fs exposes the filesystem so sidecar writers share it
func (m *Manager) Fs() afero.Fs {
	return m.fs
}
