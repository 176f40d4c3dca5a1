// Package account implements the account/session service: user registration
// and login backed by PostgreSQL, with bearer tokens kept in Redis. The
// real-time coordinator never calls into this package — it only ever sees
// the (userId, username) pair the client announces after login.
package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"
)

// Validation limits, matching the registration form contract.
const (
	MinUsernameLen = 3
	MaxUsernameLen = 50
	MinPasswordLen = 6
)

var (
	// ErrUsernameTaken is returned when the requested username already exists.
	ErrUsernameTaken = errors.New("account: username already exists")

	// ErrEmailTaken is returned when the requested email already exists.
	ErrEmailTaken = errors.New("account: email already exists")

	// ErrInvalidCredentials is returned on login with a wrong username or
	// password. The two cases are deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("account: invalid credentials")
)

// User is a registered account. PasswordHash never leaves this package.
type User struct {
	ID        int64
	Username  string
	Email     string
	CreatedAt time.Time
}

// Store manages user accounts in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates an account store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Register validates the input, hashes the password with bcrypt, and inserts
// the user. Username and email collisions are reported as ErrUsernameTaken
// and ErrEmailTaken respectively.
func (s *Store) Register(ctx context.Context, username, email, password string) (*User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)

	if err := ValidateRegistration(username, email, password); err != nil {
		return nil, err
	}

	hash, err := hashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("account: hash password: %w", err)
	}

	const query = `
		INSERT INTO users (username, email, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	user := &User{Username: username, Email: email}
	err = s.db.QueryRowContext(ctx, query, username, email, hash).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			if strings.Contains(pqErr.Constraint, "email") {
				return nil, ErrEmailTaken
			}
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("account: insert user: %w", err)
	}
	return user, nil
}

// Login verifies the password for a username or email and returns the user.
// Unknown accounts and wrong passwords both yield ErrInvalidCredentials.
func (s *Store) Login(ctx context.Context, usernameOrEmail, password string) (*User, error) {
	const query = `
		SELECT id, username, email, password_hash, created_at
		FROM users
		WHERE (username = $1 OR email = $1) AND is_active`

	var (
		user User
		hash string
	)
	err := s.db.QueryRowContext(ctx, query, strings.TrimSpace(usernameOrEmail)).
		Scan(&user.ID, &user.Username, &user.Email, &hash, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("account: query user: %w", err)
	}

	if !checkPassword(hash, password) {
		return nil, ErrInvalidCredentials
	}

	// Best effort; a failed last_login update does not fail the login.
	_, _ = s.db.ExecContext(ctx, `UPDATE users SET last_login = NOW() WHERE id = $1`, user.ID)

	return &user, nil
}

// ValidationError reports a registration input that violates the account
// rules. Message is safe to show to the end user.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return "account: " + e.Message
}

// ValidateRegistration checks the registration input against the account
// rules: username 3-50 characters, syntactically plausible email, password
// of at least 6 characters.
func ValidateRegistration(username, email, password string) error {
	if len(username) < MinUsernameLen || len(username) > MaxUsernameLen {
		return &ValidationError{Message: fmt.Sprintf("username must be between %d and %d characters", MinUsernameLen, MaxUsernameLen)}
	}
	if !validEmail(email) {
		return &ValidationError{Message: "invalid email format"}
	}
	if len(password) < MinPasswordLen {
		return &ValidationError{Message: fmt.Sprintf("password must be at least %d characters long", MinPasswordLen)}
	}
	return nil
}

// validEmail applies a minimal structural check: one "@" with a non-empty
// local part and a domain containing a dot. Deliverability is not our
// problem; the check only catches obvious typos.
func validEmail(email string) bool {
	at := strings.IndexByte(email, '@')
	if at < 1 || at == len(email)-1 {
		return false
	}
	domain := email[at+1:]
	if strings.IndexByte(domain, '@') != -1 {
		return false
	}
	dot := strings.IndexByte(domain, '.')
	return dot > 0 && dot < len(domain)-1
}

// hashPassword derives a bcrypt hash at the default cost.
func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// checkPassword reports whether the password matches the stored hash.
func checkPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
