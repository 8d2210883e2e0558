package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/petervdpas/jamnet/internal/util"
)

var ErrNotFound = errors.New("song not found")

// truthyTokens are the accepted spellings of an explicit flag.
var truthyTokens = map[string]bool{
	"true": true, "yes": true, "y": true, "1": true, "explicit": true,
}

// Song is one catalog entry. Explicit is free text; use ExplicitFlag to
// interpret it. Private songs (Public=false) never leave the owning node.
type Song struct {
	ID       int    `json:"id"`
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Lyrics   string `json:"lyrics"`
	Explicit string `json:"explicit"`
	Public   bool   `json:"public"`
}

// ExplicitFlag reports whether the explicit field matches a truthy token.
func (s Song) ExplicitFlag() bool {
	return truthyTokens[strings.ToLower(strings.TrimSpace(s.Explicit))]
}

// Store owns the persisted song catalog: a single JSON array document.
// Every operation runs its own load-mutate-save cycle; the RWMutex
// serializes those cycles against snapshot reads so a concurrent responder
// never observes a half-written document.
type Store struct {
	path string
	mu   sync.RWMutex
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string { return s.path }

// EnsureFile seeds an empty catalog document when none exists.
// Load never does this on its own.
func (s *Store) EnsureFile() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := os.Stat(s.path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat catalog: %w", err)
	}
	return s.save([]Song{})
}

// Load reads and parses the catalog document. A missing, unreadable, or
// malformed file is an error, not an empty catalog.
func (s *Store) Load() ([]Song, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.load()
}

// Save overwrites the whole catalog document.
func (s *Store) Save(songs []Song) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(songs)
}

// Create appends a new private song with the next free id (max+1, or 0 on an
// empty catalog) and returns the persisted record.
func (s *Store) Create(title, artist, lyrics, explicit string) (Song, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	songs, err := s.load()
	if err != nil {
		return Song{}, err
	}

	nextID := 0
	for _, r := range songs {
		if r.ID >= nextID {
			nextID = r.ID + 1
		}
	}

	song := Song{
		ID:       nextID,
		Title:    title,
		Artist:   artist,
		Lyrics:   lyrics,
		Explicit: explicit,
		Public:   false,
	}
	songs = append(songs, song)

	if err := s.save(songs); err != nil {
		return Song{}, err
	}
	return song, nil
}

// Delete removes the song with the given id. Returns ErrNotFound (catalog
// untouched) when no record matches.
func (s *Store) Delete(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	songs, err := s.load()
	if err != nil {
		return err
	}

	idx := -1
	for i, r := range songs {
		if r.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrNotFound
	}

	songs = append(songs[:idx], songs[idx+1:]...)
	return s.save(songs)
}

// SetVisibility flips the public flag on the song with the given id.
// Returns ErrNotFound (catalog untouched) when no record matches.
func (s *Store) SetVisibility(id int, public bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	songs, err := s.load()
	if err != nil {
		return err
	}

	found := false
	for i := range songs {
		if songs[i].ID == id {
			songs[i].Public = public
			found = true
		}
	}
	if !found {
		return ErrNotFound
	}

	return s.save(songs)
}

// PublicSnapshot returns only the public songs. Outbound responses are built
// exclusively from this so private entries never leave the node.
func (s *Store) PublicSnapshot() ([]Song, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	songs, err := s.load()
	if err != nil {
		return nil, err
	}

	public := make([]Song, 0, len(songs))
	for _, r := range songs {
		if r.Public {
			public = append(public, r)
		}
	}
	return public, nil
}

func (s *Store) load() ([]Song, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var songs []Song
	if err := json.Unmarshal(b, &songs); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return songs, nil
}

func (s *Store) save(songs []Song) error {
	if songs == nil {
		songs = []Song{}
	}
	if err := util.WriteJSONFile(s.path, songs); err != nil {
		return fmt.Errorf("write catalog: %w", err)
	}
	return nil
}
