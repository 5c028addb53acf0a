package catalog

import (
	"os"
	"path/filepath"
)

// SnapshotCache stores the last good copy of each catalog table.
type SnapshotCache interface {
	Get(name string) ([]byte, error)
	Put(name string, data []byte) error
	Exists(name string) bool
}

// FileCache keeps one JSON file per table.
type FileCache struct {
	Dir string
}

func (f *FileCache) Get(name string) ([]byte, error) {
	return os.ReadFile(f.path(name))
}

// Put replaces the snapshot atomically so a crash never leaves half a file.
func (f *FileCache) Put(name string, data []byte) error {
	if err := os.MkdirAll(f.Dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(f.Dir, name+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.path(name))
}

func (f *FileCache) Exists(name string) bool {
	_, err := os.Stat(f.path(name))
	return err == nil
}

func (f *FileCache) path(name string) string {
	return filepath.Join(f.Dir, name+".json")
}
