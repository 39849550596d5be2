package restyutil

import (
	"log/slog"
	"os"
	"path/filepath"
)

// FilesystemOutput writes one file per exchange into a directory that is
// cleared when the output is created.
type FilesystemOutput struct {
	directory string
}

func NewFilesystemOutput(dir string) (FilesystemOutput, error) {
	err := os.RemoveAll(dir)
	if err != nil {
		return FilesystemOutput{}, err
	}
	err = os.MkdirAll(dir, 0777)
	if err != nil {
		return FilesystemOutput{}, err
	}
	return FilesystemOutput{directory: dir}, nil
}

func (o FilesystemOutput) Write(id string, contents string) {
	err := os.WriteFile(filepath.Join(o.directory, id), []byte(contents), 0600)
	if err != nil {
		slog.Warn("failed to write message info file", "id", id, "err", err)
	}
}

// DevOutput dumps into .dev/resty/<name>, it returns nil if the directory
// cannot be created.
func DevOutput(name string) InstrumentOutput {
	output, err := NewFilesystemOutput(filepath.Join(".dev", "resty", name))
	if err != nil {
		slog.Warn("failed to create resty dump directory", "name", name, "err", err)
		return nil
	}
	return output
}
