package library

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/inkdrift/refrain/internal/core"
	refrainerrors "github.com/inkdrift/refrain/internal/errors"
)

// Entry is one stored clip: the journal entry it belongs to, the track,
// and the playback window. Title and artist are display metadata captured
// at save time.
type Entry struct {
	EntryID   string
	TrackURI  string
	Title     string
	Artist    string
	Start     time.Duration
	End       time.Duration
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clip returns the playable window for this entry.
func (e Entry) Clip() core.Clip {
	return core.Clip{
		EntryID:  e.EntryID,
		TrackURI: e.TrackURI,
		Start:    e.Start,
		End:      e.End,
	}
}

// Save inserts or updates the clip for an entry. The created timestamp is
// preserved across updates.
func (s *Store) Save(e Entry) error {
	if err := e.Clip().Validate(); err != nil {
		return err
	}

	now := time.Now().Unix()
	_, err := s.db.Exec(`
		INSERT INTO clips (entry_id, track_uri, title, artist, start_ms, end_ms, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(entry_id) DO UPDATE SET
			track_uri=excluded.track_uri,
			title=excluded.title,
			artist=excluded.artist,
			start_ms=excluded.start_ms,
			end_ms=excluded.end_ms,
			updated_at=excluded.updated_at
	`,
		e.EntryID,
		e.TrackURI,
		e.Title,
		e.Artist,
		e.Start.Milliseconds(),
		e.End.Milliseconds(),
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to save clip: %w", err)
	}
	return nil
}

// Get returns the clip for an entry id.
func (s *Store) Get(entryID string) (Entry, error) {
	row := s.db.QueryRow(`
		SELECT entry_id, track_uri, title, artist, start_ms, end_ms, created_at, updated_at
		FROM clips WHERE entry_id = ?
	`, entryID)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, refrainerrors.ErrClipNotFound
	}
	return e, err
}

// Resolve finds a clip by exact entry id, or by unique id prefix so short
// ids work on the command line.
func (s *Store) Resolve(entryID string) (Entry, error) {
	e, err := s.Get(entryID)
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, refrainerrors.ErrClipNotFound) {
		return Entry{}, err
	}

	rows, err := s.db.Query(`
		SELECT entry_id, track_uri, title, artist, start_ms, end_ms, created_at, updated_at
		FROM clips WHERE entry_id LIKE ? || '%' LIMIT 2
	`, entryID)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to resolve clip: %w", err)
	}
	defer rows.Close()

	var matches []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return Entry{}, err
		}
		matches = append(matches, e)
	}
	if err := rows.Err(); err != nil {
		return Entry{}, err
	}

	switch len(matches) {
	case 0:
		return Entry{}, refrainerrors.ErrClipNotFound
	case 1:
		return matches[0], nil
	default:
		return Entry{}, fmt.Errorf("entry id %q is ambiguous", entryID)
	}
}

// List returns all clips, most recently updated first.
func (s *Store) List() ([]Entry, error) {
	rows, err := s.db.Query(`
		SELECT entry_id, track_uri, title, artist, start_ms, end_ms, created_at, updated_at
		FROM clips ORDER BY updated_at DESC, entry_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list clips: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// ClipsFor returns the playable windows stored for a track, most recently
// updated first.
func (s *Store) ClipsFor(trackURI string) ([]core.Clip, error) {
	rows, err := s.db.Query(`
		SELECT entry_id, track_uri, title, artist, start_ms, end_ms, created_at, updated_at
		FROM clips WHERE track_uri = ? ORDER BY updated_at DESC, entry_id
	`, trackURI)
	if err != nil {
		return nil, fmt.Errorf("failed to query clips for track: %w", err)
	}
	defer rows.Close()

	var clips []core.Clip
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		clips = append(clips, e.Clip())
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return clips, nil
}

// Delete removes the clip for an entry id.
func (s *Store) Delete(entryID string) error {
	res, err := s.db.Exec("DELETE FROM clips WHERE entry_id = ?", entryID)
	if err != nil {
		return fmt.Errorf("failed to delete clip: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return refrainerrors.ErrClipNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var (
		e                  Entry
		startMS, endMS     int64
		createdAt, updated int64
	)
	err := row.Scan(&e.EntryID, &e.TrackURI, &e.Title, &e.Artist, &startMS, &endMS, &createdAt, &updated)
	if err != nil {
		return Entry{}, err
	}
	e.Start = time.Duration(startMS) * time.Millisecond
	e.End = time.Duration(endMS) * time.Millisecond
	e.CreatedAt = time.Unix(createdAt, 0)
	e.UpdatedAt = time.Unix(updated, 0)
	return e, nil
}
