package restyutil

import (
	"log/slog"
	"os"
	"path/filepath"
)

// FilesystemOutput writes each http transcript to <dir>/<id>.txt. the
// directory is wiped on construction so every run's dumps are
// self-contained.
type FilesystemOutput struct {
	dir string
}

func NewFilesystemOutput(dir string) FilesystemOutput {
	os.RemoveAll(dir)
	err := os.MkdirAll(dir, 0755)
	if err != nil {
		panic(err)
	}
	return FilesystemOutput{dir: dir}
}

func (o FilesystemOutput) Write(id string, contents string) {
	path := filepath.Join(o.dir, id+".txt")
	err := os.WriteFile(path, []byte(contents), 0644)
	if err != nil {
		slog.Warn("failed to write http transcript", "path", path, "err", err)
	}
}
