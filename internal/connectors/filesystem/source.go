// Package filesystem implements a ContentSource over record files on disk.
//
// Layout: <root>/<contentType>/<id>.json, <id>.toml or <id>.yaml, one
// ContentRecord per file. A record without an id takes the file stem. Hidden files and
// directories are ignored.
package filesystem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/shopground/internal/core/domain"
	"github.com/custodia-labs/shopground/internal/core/ports/driven"
	"github.com/custodia-labs/shopground/internal/logger"
)

// Verify interface compliance.
var (
	_ driven.ContentSource  = (*Source)(nil)
	_ driven.CountingSource = (*Source)(nil)
	_ driven.WatchingSource = (*Source)(nil)
)

// Source reads the records of one content type from <root>/<contentType>.
type Source struct {
	root        string
	contentType domain.ContentType

	mu      sync.Mutex
	ids     map[string]string   // path -> content id, for deletions
	pending map[string]struct{} // created paths that have not parsed yet
	watcher *fsnotify.Watcher
	closed  bool
}

// New creates a source for contentType under root.
func New(root string, contentType domain.ContentType) *Source {
	return &Source{
		root:        root,
		contentType: contentType,
		ids:         make(map[string]string),
		pending:     make(map[string]struct{}),
	}
}

// Discover returns one source per content type directory under root,
// ordered by type name.
func Discover(root string) ([]*Source, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read content directory: %w", err)
	}

	var sources []*Source
	for _, entry := range entries {
		if !entry.IsDir() || isHidden(entry.Name()) {
			continue
		}
		ct := domain.ContentType(entry.Name())
		if !ct.IsValid() {
			logger.Warn("filesystem: skipping directory %q: not a content type name", entry.Name())
			continue
		}
		sources = append(sources, New(root, ct))
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].contentType < sources[j].contentType })
	return sources, nil
}

// Type returns the content type this source serves.
func (s *Source) Type() domain.ContentType {
	return s.contentType
}

// Dir returns the directory holding this source's records.
func (s *Source) Dir() string {
	return filepath.Join(s.root, string(s.contentType))
}

// ListAll streams every record in path order.
// Files that fail to parse are logged and skipped.
func (s *Source) ListAll(ctx context.Context) (<-chan domain.ContentRecord, <-chan error) {
	records := make(chan domain.ContentRecord)
	errs := make(chan error, 1)

	go func() {
		defer close(records)
		defer close(errs)

		paths, err := s.recordPaths()
		if err != nil {
			errs <- err
			return
		}

		for _, path := range paths {
			if err := ctx.Err(); err != nil {
				errs <- err
				return
			}

			record, err := s.readRecord(path)
			if err != nil {
				logger.Warn("filesystem: skipping %s: %v", path, err)
				continue
			}

			select {
			case records <- *record:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
	}()

	return records, errs
}

// GetOne fetches a single record. A file named after the id is tried
// first, then every file is scanned for a matching id field.
func (s *Source) GetOne(ctx context.Context, contentID string) (*domain.ContentRecord, error) {
	for _, ext := range recordExts {
		path := filepath.Join(s.Dir(), contentID+ext)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		record, err := s.readRecord(path)
		if err != nil {
			return nil, err
		}
		if record.ContentID == contentID {
			return record, nil
		}
	}

	paths, err := s.recordPaths()
	if err != nil {
		return nil, err
	}
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := s.readRecord(path)
		if err != nil {
			continue
		}
		if record.ContentID == contentID {
			return record, nil
		}
	}
	return nil, fmt.Errorf("%s/%s: %w", s.contentType, contentID, domain.ErrNotFound)
}

// Count returns the number of record files.
func (s *Source) Count(_ context.Context) (int, error) {
	paths, err := s.recordPaths()
	if err != nil {
		return 0, err
	}
	return len(paths), nil
}

// Watch streams changes to record files until ctx is cancelled.
// Create maps to ChangeCreated, write to ChangeUpdated, remove and rename
// to ChangeDeleted. Files that do not parse yet (partial writes) are skipped;
// the first write that makes a newly created file parse reports ChangeCreated.
func (s *Source) Watch(ctx context.Context) (<-chan domain.ContentChange, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errors.New("filesystem: source closed")
	}
	if s.watcher != nil {
		s.mu.Unlock()
		return nil, errors.New("filesystem: already watching")
	}

	if _, err := os.Stat(s.Dir()); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("watch %s: %w", s.Dir(), err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(s.Dir()); err != nil {
		watcher.Close()
		s.mu.Unlock()
		return nil, fmt.Errorf("watch %s: %w", s.Dir(), err)
	}
	s.watcher = watcher
	s.mu.Unlock()

	// Prime the path -> id map so deletions resolve ids set inside files.
	if paths, err := s.recordPaths(); err == nil {
		for _, path := range paths {
			_, _ = s.readRecord(path)
		}
	}

	changes := make(chan domain.ContentChange)
	go func() {
		defer close(changes)
		defer s.stopWatcher(watcher)

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				change, ok := s.handleFsEvent(event)
				if !ok {
					continue
				}
				select {
				case changes <- change:
				case <-ctx.Done():
					return
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("filesystem: watch error: %v", err)
			}
		}
	}()

	return changes, nil
}

// handleFsEvent converts a filesystem event to a content change.
// Returns false if the event should be ignored.
func (s *Source) handleFsEvent(event fsnotify.Event) (domain.ContentChange, bool) {
	if isHidden(filepath.Base(event.Name)) || !isRecordFile(event.Name) {
		return domain.ContentChange{}, false
	}

	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		s.settle(event.Name)
		return domain.ContentChange{
			Kind: domain.ChangeDeleted,
			Record: domain.ContentRecord{
				ContentID:   s.forget(event.Name),
				ContentType: s.contentType,
			},
		}, true

	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		info, err := os.Stat(event.Name)
		if err != nil || info.IsDir() {
			return domain.ContentChange{}, false
		}
		record, err := s.readRecord(event.Name)
		if err != nil {
			if event.Has(fsnotify.Create) {
				s.mu.Lock()
				s.pending[event.Name] = struct{}{}
				s.mu.Unlock()
			}
			logger.Debug("filesystem: ignoring %s: %v", event.Name, err)
			return domain.ContentChange{}, false
		}
		kind := domain.ChangeUpdated
		if s.settle(event.Name) || event.Has(fsnotify.Create) {
			kind = domain.ChangeCreated
		}
		return domain.ContentChange{Kind: kind, Record: *record}, true

	default:
		return domain.ContentChange{}, false
	}
}

// settle clears a pending create for path and reports whether there was one.
func (s *Source) settle(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[path]
	delete(s.pending, path)
	return ok
}

// Close stops any active watch.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	if s.watcher != nil {
		err := s.watcher.Close()
		s.watcher = nil
		return err
	}
	return nil
}

func (s *Source) stopWatcher(w *fsnotify.Watcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watcher == w {
		_ = w.Close()
		s.watcher = nil
	}
}

// recordPaths returns every visible record file below Dir, sorted.
func (s *Source) recordPaths() ([]string, error) {
	dir := s.Dir()
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("content directory %s does not exist: %w", dir, err)
		}
		return nil, fmt.Errorf("stat %s: %w", dir, err)
	}

	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != dir && isHidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !isRecordFile(path) {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	sort.Strings(paths)
	return paths, nil
}

// readRecord parses one record file and fills defaults from the file.
func (s *Source) readRecord(path string) (*domain.ContentRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat: %w", err)
	}

	var record domain.ContentRecord
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &record)
	case ".toml":
		err = toml.Unmarshal(data, &record)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &record)
	default:
		return nil, fmt.Errorf("unsupported record file %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	if record.ContentID == "" {
		record.ContentID = stem(path)
	}
	if record.ContentType == "" {
		record.ContentType = s.contentType
	}
	if record.ContentType != s.contentType {
		return nil, fmt.Errorf("record type %q does not match directory %q", record.ContentType, s.contentType)
	}
	if record.LastModified.IsZero() {
		record.LastModified = info.ModTime().UTC()
	}

	s.mu.Lock()
	s.ids[path] = record.ContentID
	s.mu.Unlock()

	return &record, nil
}

// forget removes a path from the id map and returns the id it carried.
func (s *Source) forget(path string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.ids[path]
	if !ok {
		return stem(path)
	}
	delete(s.ids, path)
	return id
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

var recordExts = []string{".json", ".toml", ".yaml", ".yml"}

func isRecordFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range recordExts {
		if ext == e {
			return true
		}
	}
	return false
}

// isHidden checks if a path component starts with a dot.
func isHidden(name string) bool {
	return name != "." && name != ".." && strings.HasPrefix(name, ".")
}
