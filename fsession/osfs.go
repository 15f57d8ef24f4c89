package fsession

import (
	"io"
	"os"
	"path/filepath"
)

// OSFS is the default FS backed by a directory on the local filesystem.
// Names are cleaned and joined under Root; no name may escape it.
type OSFS struct {
	Root string
}

// NewOSFS builds an OSFS rooted at root, creating the directory if
// necessary.
func NewOSFS(root string) (*OSFS, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &OSFS{Root: root}, nil
}

func (fsys *OSFS) resolve(name string) string {
	clean := filepath.Clean("/" + name)
	return filepath.Join(fsys.Root, clean)
}

func (fsys *OSFS) OpenRead(name string) (io.ReadSeekCloser, error) {
	return os.Open(fsys.resolve(name))
}

func (fsys *OSFS) OpenWrite(name string) (io.WriteSeeker, error) {
	return os.OpenFile(fsys.resolve(name), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
}

func (fsys *OSFS) Delete(name string) error {
	return os.Remove(fsys.resolve(name))
}

func (fsys *OSFS) Size(name string) (int64, error) {
	info, err := os.Stat(fsys.resolve(name))
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (fsys *OSFS) List() ([]Entry, error) {
	dents, err := os.ReadDir(fsys.Root)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(dents))
	for _, d := range dents {
		info, err := d.Info()
		if err != nil {
			continue
		}
		out = append(out, Entry{Name: d.Name(), Size: info.Size(), IsDir: d.IsDir()})
	}
	return out, nil
}
