package addonkit

import (
	"io/fs"
	"os"
)

// FileSystem abstracts minimal operations needed to discover volumes and read archives.
type FileSystem interface {
	Stat(path string) (fs.FileInfo, error)
	Open(path string) (fs.File, error)
	ReadDir(path string) ([]fs.DirEntry, error)
}

type osFS struct{}

func (osFS) Stat(p string) (fs.FileInfo, error)      { return os.Stat(p) }
func (osFS) Open(p string) (fs.File, error)          { return os.Open(p) }
func (osFS) ReadDir(p string) ([]fs.DirEntry, error) { return os.ReadDir(p) }

var defaultFS osFS
