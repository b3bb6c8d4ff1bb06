package storage

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/felixgeelhaar/edimap/pkg/domain/events"
	"github.com/google/uuid"
)

var _ events.EventStore = (*FileEventStore)(nil)

// maxEventLine bounds a single journal record.
const maxEventLine = 1 << 20

// FileEventStore keeps the journal as hash-chained JSON lines in the
// workspace directory, which is created on the first append.
type FileEventStore struct {
	mu   sync.RWMutex
	dir  string
	path string
	tail string // hash of the last appended event
}

// NewFileEventStore opens the journal under dir and picks up its tail hash.
// An unreadable journal starts a fresh chain; VerifyIntegrity reports it.
func NewFileEventStore(dir string) (*FileEventStore, error) {
	s := &FileEventStore{dir: dir, path: filepath.Join(dir, EventsFile)}
	if last, err := s.Last(); err == nil && last != nil {
		s.tail = last.Hash
	}
	return s, nil
}

// Append stamps, chains and writes event.
func (s *FileEventStore) Append(event *events.BaseEvent) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	event.PrevHash = s.tail
	event.Hash = event.CalculateHash()

	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("open events file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close events file: %w", cerr)
		}
	}()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	s.tail = event.Hash
	return nil
}

// Query returns the events matching f in append order.
func (s *FileEventStore) Query(f events.Filter) ([]*events.BaseEvent, error) {
	var out []*events.BaseEvent
	err := s.scan(func(e *events.BaseEvent) {
		if f.Match(e) {
			out = append(out, e)
		}
	})
	return out, err
}

// Last returns the most recent event, or nil for an empty journal.
func (s *FileEventStore) Last() (*events.BaseEvent, error) {
	var last *events.BaseEvent
	err := s.scan(func(e *events.BaseEvent) { last = e })
	return last, err
}

// VerifyIntegrity checks the hash chain. It returns the index of the first
// broken event, or -1 when the journal is intact.
func (s *FileEventStore) VerifyIntegrity() (int, error) {
	all, err := s.Query(events.Filter{})
	if err != nil {
		return -1, err
	}
	return events.VerifyChain(all), nil
}

// scan feeds every stored event to fn. A missing file is an empty journal.
func (s *FileEventStore) scan(fn func(*events.BaseEvent)) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open events file: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only file

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxEventLine)
	for n := 1; sc.Scan(); n++ {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e events.BaseEvent
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return fmt.Errorf("decode event on line %d: %w", n, err)
		}
		fn(&e)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("scan events: %w", err)
	}
	return nil
}
