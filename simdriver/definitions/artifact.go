package definitions

import (
	"os"
)

// FileArtifact is a handle to a file produced by a capture or log operation.
// The caller owns the file once it is returned.
type FileArtifact struct {
	Path string `json:"path"`
}

func NewFileArtifact(path string) *FileArtifact {
	return &FileArtifact{Path: path}
}

// Exists reports whether the wrapped file is present on disk.
func (a *FileArtifact) Exists() bool {
	if a == nil || a.Path == "" {
		return false
	}
	_, err := os.Stat(a.Path)
	return err == nil
}

func (a *FileArtifact) String() string {
	if a == nil {
		return ""
	}
	return a.Path
}
