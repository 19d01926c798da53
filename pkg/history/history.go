// Package history persists price observations as one append-only CSV log per product.
package history

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/kennygrant/sanitize"
)

// DateFormat is how observation timestamps are rendered in the logs.
const DateFormat = "2006-01-02 15:04:05"

const (
	fileSuffix = "_pricetrack.csv"
	maxNameLen = 80
)

// header is written as encoding/csv renders it, without spaces after the commas;
// isHeader also accepts the spaced "Date, Title, URL, Price" spelling.
var header = []string{"Date", "Title", "URL", "Price"}

// Observation is one price seen on a product page at a point in time.
type Observation struct {
	Time  time.Time
	Title string
	URL   string
	Price string
}

func (o Observation) row() []string {
	return []string{o.Time.Local().Format(DateFormat), o.Title, o.URL, o.Price}
}

// StorageError reports a failure of the underlying filesystem.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("history: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Option configures a Store.
type Option func(*Store)

// WithClock sets the time source used by Append. Default: time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger used to report skipped logs. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store keeps one log file per product title inside a directory.
// Appends to the same title are serialised; different titles are written independently.
type Store struct {
	dir    string
	now    func() time.Time
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore returns a Store rooted at dir. The directory is created on first append.
func NewStore(dir string, opts ...Option) *Store {
	s := &Store{
		dir:    dir,
		now:    time.Now,
		logger: slog.Default(),
		locks:  make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the directory holding the logs.
func (s *Store) Dir() string { return s.dir }

// Append records price for title as observed now.
func (s *Store) Append(url, title, price string) error {
	return s.Record(Observation{Time: s.now(), Title: title, URL: url, Price: price})
}

// Record appends o to the log for o.Title, creating the log with its header if needed.
func (s *Store) Record(o Observation) error {
	path := filepath.Join(s.dir, FileName(o.Title))

	l := s.lockFor(path)
	l.Lock()
	defer l.Unlock()

	if err := os.MkdirAll(s.dir, os.ModeDir|0755); err != nil {
		return &StorageError{Op: "mkdir", Path: s.dir, Err: err}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return &StorageError{Op: "open", Path: path, Err: err}
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return &StorageError{Op: "stat", Path: path, Err: err}
	}
	size := info.Size()

	w := csv.NewWriter(f)
	if size == 0 {
		w.Write(header)
	} else {
		// a torn last row (killed process, hand edit) would swallow this one
		last := make([]byte, 1)
		if _, err := f.ReadAt(last, size-1); err != nil {
			f.Close()
			return &StorageError{Op: "read", Path: path, Err: err}
		}
		if last[0] != '\n' {
			if _, err := f.Write([]byte("\n")); err != nil {
				f.Truncate(size)
				f.Close()
				return &StorageError{Op: "write", Path: path, Err: err}
			}
		}
	}
	w.Write(o.row())
	w.Flush()
	if err := w.Error(); err != nil {
		// leave no partial row behind
		f.Truncate(size)
		f.Close()
		return &StorageError{Op: "write", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &StorageError{Op: "close", Path: path, Err: err}
	}
	return nil
}

// LoadAll returns the observations of every log in the store. Logs are
// visited in file name order and each contributes its rows in append order.
// Logs that cannot be read are skipped.
func (s *Store) LoadAll() ([]Observation, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, &StorageError{Op: "list", Path: s.dir, Err: err}
	}

	var all []Observation
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileSuffix) {
			continue
		}
		path := filepath.Join(s.dir, e.Name())
		obs, err := s.loadFile(path)
		if err != nil {
			s.logger.Warn("skipping unreadable history log", "path", path, "error", err)
			continue
		}
		all = append(all, obs...)
	}
	return all, nil
}

// Load returns the observations recorded for a single title.
func (s *Store) Load(title string) ([]Observation, error) {
	path := filepath.Join(s.dir, FileName(title))
	obs, err := s.loadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, &StorageError{Op: "read", Path: path, Err: err}
	}

	out := obs[:0]
	for _, o := range obs {
		if o.Title == title {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *Store) loadFile(path string) ([]Observation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var obs []Observation
	for line := 0; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			// a row still being appended, or one damaged by hand
			s.logger.Debug("skipping malformed history row", "path", path, "line", perr.Line, "error", err)
			continue
		} else if err != nil {
			return nil, err
		}
		if line == 0 && isHeader(rec) {
			continue
		}

		o, ok := parseRow(rec)
		if !ok {
			s.logger.Debug("skipping malformed history row", "path", path, "row", rec)
			continue
		}
		obs = append(obs, o)
	}
	return obs, nil
}

func isHeader(rec []string) bool {
	if len(rec) != len(header) {
		return false
	}
	for i := range rec {
		if strings.TrimSpace(rec[i]) != header[i] {
			return false
		}
	}
	return true
}

func parseRow(rec []string) (Observation, bool) {
	if len(rec) != len(header) {
		return Observation{}, false
	}
	t, err := time.ParseInLocation(DateFormat, rec[0], time.Local)
	if err != nil {
		return Observation{}, false
	}
	return Observation{Time: t, Title: rec[1], URL: rec[2], Price: rec[3]}, true
}

func (s *Store) lockFor(path string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[path]
	if !ok {
		l = &sync.Mutex{}
		s.locks[path] = l
	}
	return l
}

// FileName returns the log file name for title: a filesystem-safe rendering
// of the title followed by a short digest of the raw title, so titles that
// sanitise to the same text still get separate logs.
func FileName(title string) string {
	name := strings.Trim(sanitize.BaseName(title), "-.")
	if len(name) > maxNameLen {
		name = strings.Trim(name[:maxNameLen], "-.")
	}
	if name == "" {
		name = "product"
	}

	sum := sha256.Sum256([]byte(title))
	return name + "-" + hex.EncodeToString(sum[:4]) + fileSuffix
}
