// Package file is a cache.Store keeping one file per entry in a directory.
// Each file starts with a header line holding the expiry as Unix nanoseconds,
// followed by the sealed value.
package file

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pario-ai/orchestra/pkg/cache"
	"github.com/pario-ai/orchestra/pkg/models"
)

const (
	ext = ".cache"

	tmpPattern = "tmp-*"
	// staleTemp is how old an unrenamed temp file must be before a sweep
	// removes it.
	staleTemp = time.Hour
)

// Store is a directory-backed cache store.
type Store struct {
	dir string
}

// New creates the directory if needed and returns a Store rooted there.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Path returns the file used for id.
func (s *Store) Path(id string) string {
	return filepath.Join(s.dir, id+ext)
}

func (s *Store) Load(_ context.Context, id string) (models.CacheEntry, error) {
	data, err := os.ReadFile(s.Path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return models.CacheEntry{}, cache.ErrNotFound
		}
		return models.CacheEntry{}, fmt.Errorf("read cache file: %w", err)
	}
	return decode(id, data)
}

func (s *Store) Save(_ context.Context, entry models.CacheEntry) error {
	var buf bytes.Buffer
	buf.WriteString(strconv.FormatInt(entry.ExpiresAt.UnixNano(), 10))
	buf.WriteByte('\n')
	buf.Write(entry.Value)

	tmp, err := os.CreateTemp(s.dir, tmpPattern)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path(entry.Key)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename cache file: %w", err)
	}
	return nil
}

func (s *Store) Remove(_ context.Context, id string) error {
	err := os.Remove(s.Path(id))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove cache file: %w", err)
	}
	return nil
}

// Purge removes every entry and leftover temp file without reading them.
func (s *Store) Purge(ctx context.Context) error {
	names, err := s.names(ctx, true)
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove cache file: %w", err)
		}
	}
	return nil
}

// PurgeExpired removes entries expired at now, reading only their header
// line. Corrupt entries count as expired. Temp files older than staleTemp
// are removed too but not counted.
func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	names, err := s.names(ctx, true)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		path := filepath.Join(s.dir, name)
		if isTemp(name) {
			info, err := os.Stat(path)
			if err != nil || now.Sub(info.ModTime()) < staleTemp {
				continue
			}
			if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return n, fmt.Errorf("remove temp file: %w", err)
			}
			continue
		}
		exp, err := readExpiry(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil && !errors.Is(err, cache.ErrCorrupt) {
			return n, err
		}
		if err == nil && now.Before(exp) {
			continue
		}
		if err := os.Remove(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return n, fmt.Errorf("remove cache file: %w", err)
		}
		n++
	}
	return n, nil
}

// Scan reports unreadable files as entries with a zero expiry, so a sweep
// removes them.
func (s *Store) Scan(ctx context.Context, fn func(models.CacheEntry) bool) error {
	stop := errors.New("stop")
	err := s.walk(ctx, func(id string, data []byte) error {
		entry, err := decode(id, data)
		if err != nil {
			entry = models.CacheEntry{Key: id, Value: data}
		}
		if !fn(entry) {
			return stop
		}
		return nil
	})
	if errors.Is(err, stop) {
		return nil
	}
	return err
}

func (s *Store) Close() error { return nil }

func (s *Store) walk(ctx context.Context, fn func(id string, data []byte) error) error {
	names, err := s.names(ctx, false)
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("read cache file: %w", err)
		}
		if err := fn(strings.TrimSuffix(name, ext), data); err != nil {
			return err
		}
	}
	return nil
}

// names lists entry files, plus temp files when temps is set.
func (s *Store) names(ctx context.Context, temps bool) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read cache dir: %w", err)
	}
	var names []string
	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() {
			continue
		}
		if strings.HasSuffix(name, ext) || (temps && isTemp(name)) {
			names = append(names, name)
		}
	}
	return names, nil
}

func isTemp(name string) bool {
	ok, _ := filepath.Match(tmpPattern, name)
	return ok && !strings.HasSuffix(name, ext)
}

func readExpiry(path string) (time.Time, error) {
	f, err := os.Open(path)
	if err != nil {
		return time.Time{}, err
	}
	defer f.Close()
	header, err := bufio.NewReader(f).ReadString('\n')
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: missing header", cache.ErrCorrupt)
	}
	return parseExpiry(header)
}

func decode(id string, data []byte) (models.CacheEntry, error) {
	r := bufio.NewReader(bytes.NewReader(data))
	header, err := r.ReadString('\n')
	if err != nil {
		return models.CacheEntry{}, fmt.Errorf("%w: missing header", cache.ErrCorrupt)
	}
	exp, err := parseExpiry(header)
	if err != nil {
		return models.CacheEntry{}, err
	}
	return models.CacheEntry{
		Key:       id,
		Value:     data[len(header):],
		ExpiresAt: exp,
	}, nil
}

func parseExpiry(header string) (time.Time, error) {
	nanos, err := strconv.ParseInt(strings.TrimSpace(header), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad expiry: %v", cache.ErrCorrupt, err)
	}
	return time.Unix(0, nanos), nil
}

var _ cache.Store = (*Store)(nil)
