package fleetback

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// fileHook mirrors every emitted log entry into an append-only text file.
// The file is purely observational and is never read back.
type fileHook struct {
	w         io.Writer
	formatter logrus.Formatter
}

func (h *fileHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *fileHook) Fire(entry *logrus.Entry) error {
	line, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}
	_, err = h.w.Write(line)
	return err
}

// AddActionLog attaches an append-only file log to the standard logger, so
// every catalog-affecting decision of the current action is persisted with
// its level and context. The returned closer must be closed when the action
// finishes.
func AddActionLog(path string) (io.Closer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	logrus.AddHook(&fileHook{
		w: f,
		formatter: &logrus.TextFormatter{
			FullTimestamp:   true,
			DisableColors:   true,
			TimestampFormat: TimeFormat,
		},
	})

	return f, nil
}
