package progress

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/mCat-0/mCat-ac/internal/fsutil"
)

var (
	// ErrNothingToReset is returned by Reset for a user with no record.
	ErrNothingToReset = errors.New("no progress recorded for user")
	// ErrInvalidUser rejects user IDs that cannot name a file safely.
	ErrInvalidUser = errors.New("invalid user id")
)

// Record is the canonical on-disk shape of a user's progress.
type Record struct {
	CompletedIDs []int  `json:"completedIds"`
	Timestamp    int64  `json:"timestamp"`
	LastUpdate   string `json:"lastUpdate"`
}

// MergeResult reports what a Merge changed.
type MergeResult struct {
	// Added counts new IDs, never the sentinel.
	Added   int
	Written bool
	Total   int
}

// Store keeps one JSON file per user under dir. Every merged set contains
// the sentinel ID; reads never return it.
type Store struct {
	dir      string
	sentinel int
	log      logrus.FieldLogger
	now      func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewStore(dir string, sentinel int, log logrus.FieldLogger) *Store {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Store{
		dir:      dir,
		sentinel: sentinel,
		log:      log,
		now:      time.Now,
		locks:    make(map[string]*sync.Mutex),
	}
}

// Sentinel returns the ID that is stored but never counted.
func (s *Store) Sentinel() int { return s.sentinel }

func (s *Store) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

func (s *Store) path(userID string) (string, error) {
	if err := ValidateUserID(userID); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, userID+".json"), nil
}

// ValidateUserID rejects IDs that would escape the user dir.
func ValidateUserID(userID string) error {
	switch {
	case userID == "", userID == ".", userID == "..":
		return fmt.Errorf("%w: %q", ErrInvalidUser, userID)
	case strings.ContainsAny(userID, `/\`+"\x00"):
		return fmt.Errorf("%w: %q", ErrInvalidUser, userID)
	}
	return nil
}

// Exists reports whether the user has a progress file.
func (s *Store) Exists(userID string) (bool, error) {
	p, err := s.path(userID)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

// Completed returns the user's completed IDs without the sentinel. A user
// with no file has an empty set.
func (s *Store) Completed(userID string) (map[int]bool, error) {
	ids, err := s.read(userID)
	if err != nil {
		return nil, err
	}
	delete(ids, s.sentinel)
	return ids, nil
}

// Record returns the raw stored record, or nil when the user has none.
func (s *Store) Record(userID string) (*Record, error) {
	p, err := s.path(userID)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read progress: %w", err)
	}
	ids, ts, last := s.normalize(userID, raw)
	return &Record{CompletedIDs: slices.Sorted(maps.Keys(ids)), Timestamp: ts, LastUpdate: last}, nil
}

// Merge unions ids into the user's stored set. It writes only when
// something was added or the sentinel was missing, so repeating a merge is
// a no-op.
func (s *Store) Merge(userID string, ids map[int]bool) (MergeResult, error) {
	if _, err := s.path(userID); err != nil {
		return MergeResult{}, err
	}
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	stored, err := s.read(userID)
	if err != nil {
		return MergeResult{}, err
	}

	var res MergeResult
	for id := range ids {
		if id <= 0 || id == s.sentinel || stored[id] {
			continue
		}
		stored[id] = true
		res.Added++
	}

	sentinelMissing := !stored[s.sentinel]
	stored[s.sentinel] = true
	res.Total = len(stored) - 1

	if res.Added == 0 && !sentinelMissing {
		return res, nil
	}
	if err := s.write(userID, stored); err != nil {
		return MergeResult{}, err
	}
	res.Written = true

	s.log.WithFields(logrus.Fields{
		"user_id": userID,
		"added":   res.Added,
		"total":   res.Total,
	}).Info("progress merged")
	return res, nil
}

// Reset replaces the user's set with an empty one. The sentinel returns
// with the next Merge.
func (s *Store) Reset(userID string) error {
	exists, err := s.Exists(userID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNothingToReset
	}

	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	if err := s.write(userID, map[int]bool{}); err != nil {
		return err
	}
	s.log.WithField("user_id", userID).Info("progress reset")
	return nil
}

// read returns the stored set including the sentinel if present.
func (s *Store) read(userID string) (map[int]bool, error) {
	p, err := s.path(userID)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return map[int]bool{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read progress: %w", err)
	}
	ids, _, _ := s.normalize(userID, raw)
	return ids, nil
}

// normalize accepts the canonical shape and the legacy shapes: a bare ID
// array, or an object whose achievements array flags completion per item.
func (s *Store) normalize(userID string, raw []byte) (map[int]bool, int64, string) {
	ids := map[int]bool{}
	if !gjson.ValidBytes(raw) {
		s.log.WithField("user_id", userID).Warn("progress file is not valid JSON, treating as empty")
		return ids, 0, ""
	}
	doc := gjson.ParseBytes(raw)

	switch {
	case doc.IsArray():
		addInts(ids, doc)
	case doc.Get("completedIds").IsArray():
		addInts(ids, doc.Get("completedIds"))
	case doc.Get("achievements").IsArray():
		doc.Get("achievements").ForEach(func(_, v gjson.Result) bool {
			if v.Get("status").Type == gjson.True || truthy(v.Get("completed")) {
				if id := v.Get("id").Int(); id > 0 {
					ids[int(id)] = true
				}
			}
			return true
		})
	default:
		s.log.WithField("user_id", userID).Warn("unrecognized progress file shape, treating as empty")
	}
	return ids, doc.Get("timestamp").Int(), doc.Get("lastUpdate").String()
}

func (s *Store) write(userID string, ids map[int]bool) error {
	p, err := s.path(userID)
	if err != nil {
		return err
	}
	now := s.now()
	rec := Record{
		CompletedIDs: slices.Sorted(maps.Keys(ids)),
		Timestamp:    now.UnixMilli(),
		LastUpdate:   now.UTC().Format(time.RFC3339Nano),
	}
	if rec.CompletedIDs == nil {
		rec.CompletedIDs = []int{}
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	if err := fsutil.WriteFileAtomic(p, data, 0o644); err != nil {
		return fmt.Errorf("write progress: %w", err)
	}
	return nil
}

func addInts(ids map[int]bool, arr gjson.Result) {
	arr.ForEach(func(_, v gjson.Result) bool {
		if v.Type == gjson.Number && v.Int() > 0 {
			ids[int(v.Int())] = true
		}
		return true
	})
}

// truthy mirrors loose boolean coercion for legacy completion flags.
func truthy(v gjson.Result) bool {
	switch v.Type {
	case gjson.True:
		return true
	case gjson.Number:
		return v.Num != 0
	case gjson.String:
		return v.Str != ""
	case gjson.JSON:
		return true
	default:
		return false
	}
}
