package engine

import (
	"fmt"
	"os"
	"sync"

	"github.com/datallboy/optolib/internal/library"
)

type fileHandle struct {
	mu   sync.Mutex
	file *os.File
}

// FileWriter owns the open partial files of running transfers. Data only
// reaches the final name through Finalize.
type FileWriter struct {
	mu      sync.RWMutex
	handles map[string]*fileHandle
}

func NewFileWriter() *FileWriter {
	return &FileWriter{
		handles: make(map[string]*fileHandle),
	}
}

// Create truncates (or creates) the partial file for finalPath and returns its path.
func (fw *FileWriter) Create(finalPath string) (string, error) {
	part := finalPath + library.PartSuffix

	fw.mu.Lock()
	defer fw.mu.Unlock()

	if _, ok := fw.handles[part]; ok {
		return "", fmt.Errorf("partial file already open: %s", part)
	}

	f, err := os.OpenFile(part, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return "", fmt.Errorf("could not open partial file: %w", err)
	}

	fw.handles[part] = &fileHandle{file: f}
	return part, nil
}

// Write appends data to an open partial file.
func (fw *FileWriter) Write(part string, data []byte) error {
	fw.mu.RLock()
	h, ok := fw.handles[part]
	fw.mu.RUnlock()
	if !ok {
		return fmt.Errorf("partial file not open: %s", part)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, err := h.file.Write(data); err != nil {
		return fmt.Errorf("write error: %w", err)
	}
	return nil
}

// Finalize syncs and closes the partial file, then renames it over finalPath.
// The rename is atomic, so readers see either the old file or the complete new one.
func (fw *FileWriter) Finalize(part, finalPath string) error {
	h := fw.release(part)
	if h == nil {
		return fmt.Errorf("partial file not open: %s", part)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.file.Sync(); err != nil {
		h.file.Close()
		return fmt.Errorf("failed to sync %s: %w", part, err)
	}
	if err := h.file.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", part, err)
	}

	if err := os.Rename(part, finalPath); err != nil {
		return fmt.Errorf("failed to finalize %s: %w", finalPath, err)
	}
	return nil
}

// Discard closes and deletes a partial file. Safe to call after Finalize.
func (fw *FileWriter) Discard(part string) {
	if h := fw.release(part); h != nil {
		h.mu.Lock()
		h.file.Close()
		h.mu.Unlock()
	}
	_ = os.Remove(part)
}

// CloseAll discards every partial file still open.
func (fw *FileWriter) CloseAll() {
	fw.mu.RLock()
	// Collect first: Discard modifies the map
	parts := make([]string, 0, len(fw.handles))
	for part := range fw.handles {
		parts = append(parts, part)
	}
	fw.mu.RUnlock()

	for _, part := range parts {
		fw.Discard(part)
	}
}

func (fw *FileWriter) release(part string) *fileHandle {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	h, ok := fw.handles[part]
	if !ok {
		return nil
	}
	delete(fw.handles, part)
	return h
}
