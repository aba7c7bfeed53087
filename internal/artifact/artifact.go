// Package artifact lays out the rendered session reports on disk, one
// directory per run date.
package artifact

import (
	"context"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const (
	ReportFile = "validation-report.md"
	TasksFile  = "daily-tasks.md"
	dateLayout = "2006-01-02"
)

// Artifacts is the rendered text of one session.
type Artifacts struct {
	Report     string
	DailyTasks string
}

// Paths reports where the artifacts were written.
type Paths struct {
	Dir        string `json:"dir"`
	Report     string `json:"report"`
	DailyTasks string `json:"daily_tasks"`
}

// Writer persists session artifacts under a date-scoped location.
type Writer interface {
	Prepare(ctx context.Context, date string) (string, error)
	Write(ctx context.Context, date string, a Artifacts) (Paths, error)
}

// FileWriter writes <root>/<date>/{validation-report,daily-tasks}.md.
// Writing the same date again overwrites both files.
type FileWriter struct {
	fs   afero.Fs
	root string
}

// NewFileWriter creates a FileWriter rooted at root.
func NewFileWriter(fs afero.Fs, root string) *FileWriter {
	return &FileWriter{fs: fs, root: root}
}

func (w *FileWriter) dir(date string) (string, error) {
	if _, err := time.Parse(dateLayout, date); err != nil {
		return "", eris.Wrapf(err, "artifact: invalid date %q", date)
	}
	return filepath.Join(w.root, date), nil
}

// Prepare creates the directory for date and returns it.
func (w *FileWriter) Prepare(ctx context.Context, date string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dir, err := w.dir(date)
	if err != nil {
		return "", err
	}
	if err := w.fs.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "artifact: mkdir %s", dir)
	}
	return dir, nil
}

// Write implements Writer.
func (w *FileWriter) Write(ctx context.Context, date string, a Artifacts) (Paths, error) {
	dir, err := w.Prepare(ctx, date)
	if err != nil {
		return Paths{}, err
	}
	p := Paths{
		Dir:        dir,
		Report:     filepath.Join(dir, ReportFile),
		DailyTasks: filepath.Join(dir, TasksFile),
	}
	if err := afero.WriteFile(w.fs, p.Report, []byte(a.Report), 0o644); err != nil {
		return Paths{}, eris.Wrapf(err, "artifact: write %s", p.Report)
	}
	if err := afero.WriteFile(w.fs, p.DailyTasks, []byte(a.DailyTasks), 0o644); err != nil {
		return Paths{}, eris.Wrapf(err, "artifact: write %s", p.DailyTasks)
	}
	zap.L().Info("artifacts written",
		zap.String("report", p.Report),
		zap.String("daily_tasks", p.DailyTasks),
	)
	return p, nil
}
