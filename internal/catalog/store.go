// Package catalog provides PostgreSQL-backed storage for chat room metadata.
// The catalog is consulted by the HTTP API before a client attempts to join;
// the real-time coordinator treats room ids as opaque keys and never reads
// this store.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// Validation limits for room creation, matching the dashboard form contract.
const (
	MinNameLen          = 3
	MaxNameLen          = 100
	MinSubjectLen       = 2
	MaxSubjectLen       = 50
	MinParticipants     = 2
	MaxParticipants     = 100
	DefaultParticipants = 50
)

// ErrNameTaken is returned when an active room with the same name exists.
var ErrNameTaken = errors.New("catalog: room name already exists")

// Room is a chat room's catalog entry.
type Room struct {
	ID                int64     `json:"id"`
	Name              string    `json:"name"`
	Subject           string    `json:"subject"`
	Description       string    `json:"description"`
	MaxParticipants   int       `json:"max_participants"`
	CreatedAt         time.Time `json:"created_at"`
	CreatedByUsername string    `json:"created_by_username"`
}

// RoomSpec carries the fields for creating a room.
type RoomSpec struct {
	Name            string
	Subject         string
	Description     string
	MaxParticipants int
	CreatedBy       int64 // user id of the creator
}

// Store manages room metadata in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a catalog store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// ListRooms returns all active rooms, newest first, optionally filtered by
// subject. The creator's username is joined in for display.
func (s *Store) ListRooms(ctx context.Context, subjectFilter string) ([]Room, error) {
	query := `
		SELECT r.id, r.name, r.subject, r.description, r.max_participants, r.created_at,
		       u.username AS created_by_username
		FROM rooms r
		JOIN users u ON r.created_by = u.id
		WHERE r.is_active`
	args := []interface{}{}

	if subjectFilter != "" {
		query += " AND r.subject = $1"
		args = append(args, subjectFilter)
	}
	query += " ORDER BY r.created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: list rooms: %w", err)
	}
	defer rows.Close()

	rooms := []Room{}
	for rows.Next() {
		var r Room
		if err := rows.Scan(&r.ID, &r.Name, &r.Subject, &r.Description,
			&r.MaxParticipants, &r.CreatedAt, &r.CreatedByUsername); err != nil {
			return nil, fmt.Errorf("catalog: scan room: %w", err)
		}
		rooms = append(rooms, r)
	}
	return rooms, rows.Err()
}

// Subjects returns the distinct subjects of all active rooms, sorted, for
// the dashboard's filter options.
func (s *Store) Subjects(ctx context.Context) ([]string, error) {
	const query = `SELECT DISTINCT subject FROM rooms WHERE is_active ORDER BY subject`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("catalog: list subjects: %w", err)
	}
	defer rows.Close()

	subjects := []string{}
	for rows.Next() {
		var subject string
		if err := rows.Scan(&subject); err != nil {
			return nil, fmt.Errorf("catalog: scan subject: %w", err)
		}
		subjects = append(subjects, subject)
	}
	return subjects, rows.Err()
}

// CreateRoom validates the spec and inserts the room, returning the stored
// entry with the creator's username resolved.
func (s *Store) CreateRoom(ctx context.Context, spec RoomSpec) (*Room, error) {
	spec.Name = strings.TrimSpace(spec.Name)
	spec.Subject = strings.TrimSpace(spec.Subject)
	spec.Description = strings.TrimSpace(spec.Description)
	if spec.MaxParticipants == 0 {
		spec.MaxParticipants = DefaultParticipants
	}

	if err := ValidateRoomSpec(spec); err != nil {
		return nil, err
	}

	const query = `
		INSERT INTO rooms (name, subject, description, created_by, max_participants)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	room := &Room{
		Name:            spec.Name,
		Subject:         spec.Subject,
		Description:     spec.Description,
		MaxParticipants: spec.MaxParticipants,
	}
	err := s.db.QueryRowContext(ctx, query,
		spec.Name, spec.Subject, spec.Description, spec.CreatedBy, spec.MaxParticipants).
		Scan(&room.ID, &room.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, ErrNameTaken
		}
		return nil, fmt.Errorf("catalog: insert room: %w", err)
	}

	const creatorQuery = `SELECT username FROM users WHERE id = $1`
	if err := s.db.QueryRowContext(ctx, creatorQuery, spec.CreatedBy).Scan(&room.CreatedByUsername); err != nil {
		return nil, fmt.Errorf("catalog: resolve creator: %w", err)
	}
	return room, nil
}

// ValidationError reports a room spec that violates the catalog rules.
// Message is safe to show to the end user.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return "catalog: " + e.Message
}

// ValidateRoomSpec checks a room spec against the catalog rules: name 3-100
// characters, subject 2-50 characters, participants 2-100.
func ValidateRoomSpec(spec RoomSpec) error {
	if len(spec.Name) < MinNameLen || len(spec.Name) > MaxNameLen {
		return &ValidationError{Message: fmt.Sprintf("room name must be between %d and %d characters", MinNameLen, MaxNameLen)}
	}
	if len(spec.Subject) < MinSubjectLen || len(spec.Subject) > MaxSubjectLen {
		return &ValidationError{Message: fmt.Sprintf("subject must be between %d and %d characters", MinSubjectLen, MaxSubjectLen)}
	}
	if spec.MaxParticipants < MinParticipants || spec.MaxParticipants > MaxParticipants {
		return &ValidationError{Message: fmt.Sprintf("max participants must be between %d and %d", MinParticipants, MaxParticipants)}
	}
	return nil
}
