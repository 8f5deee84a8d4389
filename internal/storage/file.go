package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"taskmgr/pkg/logx"
)

// fileStore is the dependency-free persistence backend.
//
// Files:
//   - <prefix>.load.jsonl    (append-only JSON Lines)
//   - <prefix>.runtime.jsonl (append-only JSON Lines)
//
// Prune rewrites each file, dropping records older than the cutoff.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	loadPath    string
	runtimePath string
	loadFile    *os.File
	runtimeFile *os.File
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(filepath.Base(path)))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{
		log:         log,
		loadPath:    prefix + ".load.jsonl",
		runtimePath: prefix + ".runtime.jsonl",
	}

	var err error
	if s.loadFile, err = openAppend(s.loadPath); err != nil {
		return nil, err
	}
	if s.runtimeFile, err = openAppend(s.runtimePath); err != nil {
		_ = s.loadFile.Close()
		return nil, err
	}
	return s, nil
}

func openAppend(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
}

func (s *fileStore) AppendLoad(_ context.Context, r LoadRecord) error {
	if r.At.IsZero() {
		r.At = time.Now()
	}
	return s.appendLine(s.loadFile, r)
}

func (s *fileStore) AppendRuntime(_ context.Context, r RuntimeRecord) error {
	if r.At.IsZero() {
		r.At = time.Now()
	}
	return s.appendLine(s.runtimeFile, r)
}

func (s *fileStore) appendLine(f *os.File, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if f == nil {
		return ErrDisabled
	}
	_, err = f.Write(append(b, '\n'))
	return err
}

func (s *fileStore) Prune(_ context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n1, f1, err := pruneJSONL(s.loadPath, s.loadFile, olderThan)
	if err != nil {
		return 0, err
	}
	s.loadFile = f1

	n2, f2, err := pruneJSONL(s.runtimePath, s.runtimeFile, olderThan)
	if err != nil {
		return n1, err
	}
	s.runtimeFile = f2

	if n1+n2 > 0 {
		s.log.Debug("pruned persisted samples", logx.Int("removed", n1+n2))
	}
	return n1 + n2, nil
}

// pruneJSONL rewrites a JSONL file keeping only records at or after the
// cutoff. Records that fail to decode are kept; pruning must never eat data
// it does not understand.
func pruneJSONL(path string, open *os.File, cutoff time.Time) (int, *os.File, error) {
	if open != nil {
		_ = open.Close()
	}

	in, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			f, err := openAppend(path)
			return 0, f, err
		}
		return 0, nil, err
	}

	tmp := path + ".tmp"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		_ = in.Close()
		return 0, nil, err
	}

	removed := 0
	w := bufio.NewWriter(out)
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		var stamp struct {
			At time.Time `json:"at"`
		}
		if err := json.Unmarshal(line, &stamp); err == nil && !stamp.At.IsZero() && stamp.At.Before(cutoff) {
			removed++
			continue
		}
		_, _ = w.Write(line)
		_ = w.WriteByte('\n')
	}
	_ = in.Close()
	if err := sc.Err(); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return 0, nil, err
	}
	if err := w.Flush(); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return 0, nil, err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return 0, nil, err
	}
	if err := os.Rename(tmp, path); err != nil {
		return 0, nil, err
	}

	f, err := openAppend(path)
	return removed, f, err
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var first error
	if s.loadFile != nil {
		first = s.loadFile.Close()
		s.loadFile = nil
	}
	if s.runtimeFile != nil {
		if err := s.runtimeFile.Close(); err != nil && first == nil {
			first = err
		}
		s.runtimeFile = nil
	}
	return first
}
