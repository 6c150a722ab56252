// Package permissions implements C11: persistent storage of opaque
// folder-handles plus their granted/prompt/denied/missing verification
// state (spec.md §4.11, §6 "Folder handle API surface"). It mirrors
// internal/catalog's Store shape over a second sqlite file
// (literoom-fs, spec.md §6) so the catalog and permission stores can be
// backed up, wiped, or migrated independently.
package permissions

import (
	"database/sql"
	"errors"
	"os"

	_ "modernc.org/sqlite"
)

// State is a folder handle's current accessibility, spec.md §4.11.
type State string

const (
	StateGranted State = "granted"
	StatePrompt  State = "prompt"
	StateDenied  State = "denied"
	StateMissing State = "missing" // the referenced directory is gone
)

// Handle is an opaque reference to a host-managed folder. In this
// desktop-style Go port there is no browser File System Access API to
// delegate to, so a Handle is simply the absolute path the user granted
// access to; it is still treated as opaque by every caller above this
// package (spec.md §9 "do not attempt to normalize paths yourself").
type Handle struct {
	Path string
}

// Store persists Handles by string key plus their last-known state.
type Store struct {
	DB *sql.DB
}

// Open opens (or creates) the permission database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 2000;`); err != nil {
		db.Close()
		return nil, err
	}
	s := &Store{DB: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	_, err := s.DB.Exec(`
		CREATE TABLE IF NOT EXISTS folder_handles (
			key TEXT PRIMARY KEY,
			path TEXT NOT NULL,
			last_state TEXT NOT NULL DEFAULT 'prompt'
		);`)
	return err
}

func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// Save persists handle under key. A new key starts in "prompt" state
// until the next Query/Request reverifies it; re-saving an existing key
// updates its path and keeps its last state.
func (s *Store) Save(key string, handle Handle) error {
	_, err := s.DB.Exec(`
		INSERT INTO folder_handles (key, path, last_state) VALUES (?, ?, 'prompt')
		ON CONFLICT(key) DO UPDATE SET path = excluded.path;
	`, key, handle.Path)
	return err
}

// Load fetches the handle stored under key.
func (s *Store) Load(key string) (Handle, error) {
	var path string
	err := s.DB.QueryRow(`SELECT path FROM folder_handles WHERE key = ?;`, key).Scan(&path)
	if errors.Is(err, sql.ErrNoRows) {
		return Handle{}, os.ErrNotExist
	}
	if err != nil {
		return Handle{}, err
	}
	return Handle{Path: path}, nil
}

// Remove deletes a saved handle.
func (s *Store) Remove(key string) error {
	_, err := s.DB.Exec(`DELETE FROM folder_handles WHERE key = ?;`, key)
	return err
}

// Entry pairs a handle key with its last-persisted state, for List.
type Entry struct {
	Key   string
	Path  string
	State State
}

// List returns every saved handle and its last-persisted state, for the
// UI to classify on startup without attempting silent access (spec.md
// §4.11 "does not attempt silent access for non-current folders").
func (s *Store) List() ([]Entry, error) {
	rows, err := s.DB.Query(`SELECT key, path, last_state FROM folder_handles;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var state string
		if err := rows.Scan(&e.Key, &e.Path, &state); err != nil {
			return nil, err
		}
		e.State = State(state)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Query classifies handle's current accessibility without requiring a
// user gesture: granted if the directory exists and is readable, missing
// if it no longer exists, prompt otherwise (spec.md §4.11 query/request
// distinction — Query never escalates a prior denial to granted).
func (s *Store) Query(key string) (State, error) {
	h, err := s.Load(key)
	if err != nil {
		return "", err
	}
	state := classify(h)
	if state == StateGranted {
		// a prior explicit denial is sticky until Request() re-authorizes
		prev, err := s.lastState(key)
		if err == nil && prev == StateDenied {
			state = StateDenied
		}
	}
	_, _ = s.DB.Exec(`UPDATE folder_handles SET last_state = ? WHERE key = ?;`, string(state), key)
	return state, nil
}

// Request re-authorizes handle under a user gesture: it always
// reverifies against the filesystem, so a previously denied folder can
// transition to granted once the user acts again (spec.md §4.11
// scenario 5: "a second request() under user gesture that is granted
// transitions to granted").
func (s *Store) Request(key string) (State, error) {
	h, err := s.Load(key)
	if err != nil {
		return "", err
	}
	state := classify(h)
	_, err = s.DB.Exec(`UPDATE folder_handles SET last_state = ? WHERE key = ?;`, string(state), key)
	return state, err
}

// Deny records an explicit denial for key, used by the CLI/server to
// simulate a user declining the host's access prompt.
func (s *Store) Deny(key string) error {
	_, err := s.DB.Exec(`UPDATE folder_handles SET last_state = ? WHERE key = ?;`, string(StateDenied), key)
	return err
}

func (s *Store) lastState(key string) (State, error) {
	var state string
	err := s.DB.QueryRow(`SELECT last_state FROM folder_handles WHERE key = ?;`, key).Scan(&state)
	return State(state), err
}

func classify(h Handle) State {
	info, err := os.Stat(h.Path)
	if errors.Is(err, os.ErrNotExist) {
		return StateMissing
	}
	if err != nil {
		return StatePrompt
	}
	if !info.IsDir() {
		return StateMissing
	}
	f, err := os.Open(h.Path)
	if err != nil {
		return StatePrompt
	}
	f.Close()
	return StateGranted
}
