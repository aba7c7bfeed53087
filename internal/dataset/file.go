package dataset

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/sells-group/market-validator/internal/model"
)

type document struct {
	UpdatedAt *time.Time           `json:"updated_at,omitempty"`
	Items     []model.BaselineItem `json:"items"`
}

// FileStore keeps <dir>/<targetFileID>.json documents on an afero filesystem.
type FileStore struct {
	fs  afero.Fs
	dir string
	now func() time.Time

	mu sync.Mutex
}

// NewFileStore creates a FileStore rooted at dir.
func NewFileStore(fs afero.Fs, dir string) *FileStore {
	return &FileStore{fs: fs, dir: dir, now: time.Now}
}

func (s *FileStore) path(targetFileID string) (string, error) {
	if targetFileID == "" || strings.ContainsAny(targetFileID, `/\`) || strings.Contains(targetFileID, "..") {
		return "", eris.Errorf("invalid target file id %q", targetFileID)
	}
	return filepath.Join(s.dir, targetFileID+".json"), nil
}

// Load implements BaselineLoader.
func (s *FileStore) Load(ctx context.Context, targetFileID string) ([]model.BaselineItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read(targetFileID)
	if err != nil {
		return nil, err
	}
	return doc.Items, nil
}

// Save replaces the items of a target file.
func (s *FileStore) Save(ctx context.Context, targetFileID string, items []model.BaselineItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.write(targetFileID, document{Items: items})
}

// Apply implements Updater. Discrepancies whose ticker or field is not in
// the file are not applied and do not appear in the returned changes.
func (s *FileStore) Apply(ctx context.Context, targetFileID string, batch []model.Discrepancy) ([]model.AppliedChange, error) {
	if err := ctx.Err(); err != nil {
		return nil, &UpdateError{TargetFileID: targetFileID, Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read(targetFileID)
	if err != nil {
		return nil, &UpdateError{TargetFileID: targetFileID, Err: err}
	}

	index := make(map[string]int, len(doc.Items))
	for i, item := range doc.Items {
		index[item.Ticker] = i
	}

	var changes []model.AppliedChange
	for _, d := range batch {
		if d.Action != model.ActionUpdate {
			continue
		}
		i, ok := index[d.Ticker]
		if !ok {
			zap.L().Warn("dataset: ticker not in file",
				zap.String("file", targetFileID),
				zap.String("ticker", d.Ticker),
			)
			continue
		}
		old, ok := doc.Items[i].Fields[d.Field]
		if !ok {
			continue
		}
		doc.Items[i].Fields[d.Field] = d.FetchedValue
		changes = append(changes, model.AppliedChange{
			Ticker:   d.Ticker,
			Field:    d.Field,
			OldValue: old,
			NewValue: d.FetchedValue,
		})
	}

	if len(changes) == 0 {
		return nil, nil
	}

	now := s.now().UTC()
	doc.UpdatedAt = &now
	if err := s.write(targetFileID, doc); err != nil {
		return nil, &UpdateError{TargetFileID: targetFileID, Err: err}
	}
	zap.L().Info("dataset: applied batch",
		zap.String("file", targetFileID),
		zap.Int("changes", len(changes)),
	)
	return changes, nil
}

func (s *FileStore) read(targetFileID string) (document, error) {
	p, err := s.path(targetFileID)
	if err != nil {
		return document{}, err
	}
	raw, err := afero.ReadFile(s.fs, p)
	if err != nil {
		return document{}, eris.Wrapf(err, "dataset: read %s", p)
	}
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return document{}, eris.Wrapf(err, "dataset: parse %s", p)
	}
	for i := range doc.Items {
		if doc.Items[i].Fields == nil {
			doc.Items[i].Fields = map[string]float64{}
		}
	}
	return doc, nil
}

// write replaces the file atomically through a temp file and rename.
func (s *FileStore) write(targetFileID string, doc document) error {
	p, err := s.path(targetFileID)
	if err != nil {
		return err
	}
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return eris.Wrapf(err, "dataset: mkdir %s", s.dir)
	}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return eris.Wrap(err, "dataset: marshal")
	}

	tmp, err := afero.TempFile(s.fs, s.dir, targetFileID+".*.tmp")
	if err != nil {
		return eris.Wrap(err, "dataset: create temp file")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(raw, '\n')); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpName)
		return eris.Wrap(err, "dataset: write temp file")
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpName)
		return eris.Wrap(err, "dataset: close temp file")
	}
	if err := s.fs.Rename(tmpName, p); err != nil {
		_ = s.fs.Remove(tmpName)
		return eris.Wrapf(err, "dataset: rename to %s", p)
	}
	return nil
}
