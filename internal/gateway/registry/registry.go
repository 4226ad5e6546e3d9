// Package registry persists the set of sessions that should exist across
// restarts. The backing store is a single JSON document holding the ordered
// list of session records, plus one JSON document per session for its opaque
// credential blob. All registry mutations are read-modify-write cycles
// serialized behind a single lock so that concurrent creates, removals and
// readiness updates cannot lose each other's writes.
package registry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/relaygate/relaygate/internal/common/apperrors"
)

const sessionsFileName = "sessions.json"

// Record is the durable projection of one session.
type Record struct {
	ID          string `json:"id"`          // caller-supplied stable identifier
	Description string `json:"description"` // free-form label
	Ready       bool   `json:"ready"`       // true once the connection is operational
}

var sessionIDRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidateSessionID reports whether id is safe to use as a registry key and
// file name component.
func ValidateSessionID(id string) apperrors.Error {
	if !sessionIDRegex.MatchString(id) {
		return ErrInvalidSessionID.Msg("invalid session id: " + id)
	}
	return nil
}

// Store owns the sessions file and the per-session credential blobs under a
// single data directory.
type Store struct {
	dataDir string
	mu      sync.Mutex // serializes all read-modify-write cycles
}

// NewStore opens the registry rooted at dataDir, creating an empty sessions
// file on first run. An existing file is never overwritten.
func NewStore(dataDir string) (*Store, apperrors.Error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, ErrRegistryIO.MsgErr("unable to create data directory", err)
	}
	s := &Store{dataDir: dataDir}
	path := s.sessionsPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, []byte("[]"), 0600); err != nil {
			return nil, ErrRegistryIO.MsgErr("unable to create sessions file", err)
		}
	} else if err != nil {
		return nil, ErrRegistryIO.MsgErr("unable to stat sessions file", err)
	}
	return s, nil
}

func (s *Store) sessionsPath() string {
	return filepath.Join(s.dataDir, sessionsFileName)
}

// Load returns the ordered list of session records.
func (s *Store) Load() ([]Record, apperrors.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Save overwrites the full record set.
func (s *Store) Save(records []Record) apperrors.Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(records)
}

// load reads the sessions file. Callers must hold s.mu.
func (s *Store) load() ([]Record, apperrors.Error) {
	data, err := os.ReadFile(s.sessionsPath())
	if err != nil {
		return nil, ErrRegistryIO.MsgErr("unable to read sessions file", err)
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, ErrRegistryIO.MsgErr("corrupt sessions file", err)
	}
	return records, nil
}

// save writes the full record set. Callers must hold s.mu.
func (s *Store) save(records []Record) apperrors.Error {
	if records == nil {
		records = []Record{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return ErrRegistryIO.MsgErr("unable to marshal sessions", err)
	}
	if err := os.WriteFile(s.sessionsPath(), data, 0600); err != nil {
		return ErrRegistryIO.MsgErr("unable to write sessions file", err)
	}
	return nil
}

// InsertIfAbsent adds a record if no record with the same id exists.
// Inserting an id that is already present is a no-op.
func (s *Store) InsertIfAbsent(rec Record) apperrors.Error {
	if err := ValidateSessionID(rec.ID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.load()
	if err != nil {
		return err
	}
	for _, r := range records {
		if r.ID == rec.ID {
			return nil
		}
	}
	return s.save(append(records, rec))
}

// UpsertReady marks the record for id as ready. Unknown ids are a no-op.
func (s *Store) UpsertReady(id string) apperrors.Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.load()
	if err != nil {
		return err
	}
	for i := range records {
		if records[i].ID == id {
			records[i].Ready = true
			return s.save(records)
		}
	}
	return nil
}

// Remove deletes the record for id. Unknown ids are a no-op.
func (s *Store) Remove(id string) apperrors.Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.load()
	if err != nil {
		return err
	}
	out := records[:0]
	for _, r := range records {
		if r.ID != id {
			out = append(out, r)
		}
	}
	if len(out) == len(records) {
		return nil
	}
	return s.save(out)
}
