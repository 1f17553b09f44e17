package ingest

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/gofrs/flock"
	"github.com/nxadm/tail"
	"github.com/sirupsen/logrus"

	"github.com/torosent/crankprom/internal/sample"
)

// FileSource follows a JSONL results file, one sample or batch per line, from its first
// line on. The file may not exist yet and may be rotated.
type FileSource struct {
	path string
	sink Sink
	log  *logrus.Entry
}

func NewFileSource(path string, sink Sink, log *logrus.Entry) *FileSource {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &FileSource{
		path: path,
		sink: sink,
		log:  log.WithFields(logrus.Fields{"source": SourceFile, "file": path}),
	}
}

// LockPath is the lock file guarding path against a second follower.
func LockPath(path string) string {
	return path + ".lock"
}

// Run follows the file until ctx ends. It fails right away if another process already
// follows the same file.
func (f *FileSource) Run(ctx context.Context) error {
	lock := flock.New(LockPath(f.path))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("lock %s: %w", lock.Path(), err)
	}
	if !locked {
		return fmt.Errorf("%s is already followed by another process", f.path)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			f.log.WithError(err).Warn("failed to release results file lock")
		}
	}()

	t, err := tail.TailFile(f.path, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: false,
		Poll:      true,
		Location:  &tail.SeekInfo{Whence: io.SeekStart},
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("follow %s: %w", f.path, err)
	}
	defer t.Cleanup()

	f.log.Info("following results file")
	for {
		select {
		case <-ctx.Done():
			_ = t.Stop()
			return nil
		case line, ok := <-t.Lines:
			if !ok {
				return t.Err()
			}
			f.handleLine(line)
		}
	}
}

func (f *FileSource) handleLine(line *tail.Line) {
	if line == nil {
		return
	}
	if line.Err != nil {
		f.log.WithError(line.Err).Warn("failed to read results line")
		return
	}
	text := strings.TrimSpace(line.Text)
	if text == "" {
		return
	}
	samples, err := sample.DecodeBatch([]byte(text))
	if err != nil {
		f.log.WithError(err).WithField("line", line.Num).Warn("skipping undecodable results line")
		return
	}
	for _, s := range samples {
		f.sink.OnSample(s)
	}
}
