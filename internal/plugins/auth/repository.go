package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/syphax/syphax/internal/apperror"
)

// erDupEntry is the MySQL/MariaDB error number for a unique key violation.
const erDupEntry = 1062

// isDuplicateEntry reports whether err is a unique key violation.
func isDuplicateEntry(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == erDupEntry
	}
	return err != nil && strings.Contains(err.Error(), "Duplicate entry")
}

// UserRepository defines the data access contract for user identities.
// All SQL lives in the concrete implementation -- no SQL leaks out.
//
// FindByEmail and FindByID are the authentication reads: they only match
// rows that are active and not deleted. The remaining methods are admin
// operations and see every row.
type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)

	// Admin operations.
	Create(ctx context.Context, user *User) error
	List(ctx context.Context, includeDeleted bool) ([]User, error)
	FindByNameOrEmail(ctx context.Context, nameOrEmail string) ([]User, error)
	SuggestByName(ctx context.Context, name string, limit int) ([]string, error)
	SetActive(ctx context.Context, id string, active bool) error
	MarkDeleted(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// ProgramRepository defines the data access contract for native programs.
// FindByKey and FindByID honor the same active/not-deleted rule as users.
type ProgramRepository interface {
	FindByKey(ctx context.Context, key string) (*Program, error)
	FindByID(ctx context.Context, id string) (*Program, error)

	// Admin operations.
	Create(ctx context.Context, program *Program) error
	ListByUser(ctx context.Context, userID string) ([]Program, error)
	SetActive(ctx context.Context, key string, active bool) error
}

// userColumns is the column list shared by every full-row user query.
const userColumns = `id, name, email, mobile, image, password_hash,
	                 is_active, is_deleted, created_at, updated_at`

// userRepository implements UserRepository with hand-written MariaDB queries.
type userRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new user repository backed by the given DB pool.
func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner, u *User) error {
	return row.Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.Mobile,
		&u.Image,
		&u.PasswordHash,
		&u.IsActive,
		&u.IsDeleted,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
}

// FindByEmail retrieves an active, non-deleted user by email.
// Returns apperror.NotFound if no such user exists.
func (r *userRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	query := `SELECT ` + userColumns + `
	          FROM users WHERE email = ? AND is_active = 1 AND is_deleted = 0`

	user := &User{}
	err := scanUser(r.db.QueryRowContext(ctx, query, email), user)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying user by email: %w", err)
	}

	return user, nil
}

// FindByID retrieves an active, non-deleted user by id.
// Returns apperror.NotFound if no such user exists.
func (r *userRepository) FindByID(ctx context.Context, id string) (*User, error) {
	query := `SELECT ` + userColumns + `
	          FROM users WHERE id = ? AND is_active = 1 AND is_deleted = 0`

	user := &User{}
	err := scanUser(r.db.QueryRowContext(ctx, query, id), user)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying user by id: %w", err)
	}

	return user, nil
}

// Create inserts a new user row.
func (r *userRepository) Create(ctx context.Context, user *User) error {
	query := `INSERT INTO users (id, name, email, mobile, image, password_hash,
	                             is_active, is_deleted, created_at, updated_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.Name,
		user.Email,
		user.Mobile,
		user.Image,
		user.PasswordHash,
		user.IsActive,
		user.IsDeleted,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if isDuplicateEntry(err) {
		return apperror.NewConflict("a user with this email already exists")
	}
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}

	return nil
}

// List returns users ordered by name. Rows marked deleted are skipped
// unless includeDeleted is set.
func (r *userRepository) List(ctx context.Context, includeDeleted bool) ([]User, error) {
	query := `SELECT ` + userColumns + ` FROM users`
	if !includeDeleted {
		query += ` WHERE is_deleted = 0`
	}
	query += ` ORDER BY name, email`

	return r.queryUsers(ctx, query)
}

// FindByNameOrEmail returns every user whose name or email equals the
// argument, regardless of status.
func (r *userRepository) FindByNameOrEmail(ctx context.Context, nameOrEmail string) ([]User, error) {
	query := `SELECT ` + userColumns + `
	          FROM users WHERE name = ? OR email = ? ORDER BY created_at`

	return r.queryUsers(ctx, query, nameOrEmail, nameOrEmail)
}

// SuggestByName returns up to limit user names that sound like name.
// Used to hint at typos when an admin lookup finds nothing.
func (r *userRepository) SuggestByName(ctx context.Context, name string, limit int) ([]string, error) {
	query := `SELECT name FROM users WHERE SOUNDEX(name) = SOUNDEX(?) ORDER BY name LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, name, limit)
	if err != nil {
		return nil, fmt.Errorf("suggesting user names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scanning suggestion: %w", err)
		}
		names = append(names, n)
	}

	return names, rows.Err()
}

// SetActive revokes (false) or restores (true) a user.
func (r *userRepository) SetActive(ctx context.Context, id string, active bool) error {
	query := `UPDATE users SET is_active = ?, updated_at = NOW() WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, active, id)
	if err != nil {
		return fmt.Errorf("updating is_active: %w", err)
	}

	n, _ := result.RowsAffected()
	if n == 0 {
		return apperror.NewNotFound("user not found")
	}

	return nil
}

// MarkDeleted flags a user as deleted. The row stays until Delete.
func (r *userRepository) MarkDeleted(ctx context.Context, id string) error {
	query := `UPDATE users SET is_deleted = 1, updated_at = NOW() WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("marking user deleted: %w", err)
	}

	n, _ := result.RowsAffected()
	if n == 0 {
		return apperror.NewNotFound("user not found")
	}

	return nil
}

// Delete removes a user that was previously marked deleted.
func (r *userRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM users WHERE id = ? AND is_deleted = 1`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}

	n, _ := result.RowsAffected()
	if n == 0 {
		return apperror.NewConflict("user must be marked deletable first")
	}

	return nil
}

func (r *userRepository) queryUsers(ctx context.Context, query string, args ...any) ([]User, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := scanUser(rows, &u); err != nil {
			return nil, fmt.Errorf("scanning user row: %w", err)
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

// --- Programs ---

// programColumns is the column list shared by every full-row program query.
const programColumns = `id, user_id, name, program_key, secret_hash,
	                    is_active, is_deleted, created_at, updated_at`

// programRepository implements ProgramRepository with hand-written MariaDB queries.
type programRepository struct {
	db *sql.DB
}

// NewProgramRepository creates a new program repository backed by the given DB pool.
func NewProgramRepository(db *sql.DB) ProgramRepository {
	return &programRepository{db: db}
}

func scanProgram(row rowScanner, p *Program) error {
	return row.Scan(
		&p.ID,
		&p.UserID,
		&p.Name,
		&p.Key,
		&p.SecretHash,
		&p.IsActive,
		&p.IsDeleted,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
}

// FindByKey retrieves an active, non-deleted program by its public key.
func (r *programRepository) FindByKey(ctx context.Context, key string) (*Program, error) {
	query := `SELECT ` + programColumns + `
	          FROM native_programs WHERE program_key = ? AND is_active = 1 AND is_deleted = 0`

	p := &Program{}
	err := scanProgram(r.db.QueryRowContext(ctx, query, key), p)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("program not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying program by key: %w", err)
	}

	return p, nil
}

// FindByID retrieves an active, non-deleted program by id.
func (r *programRepository) FindByID(ctx context.Context, id string) (*Program, error) {
	query := `SELECT ` + programColumns + `
	          FROM native_programs WHERE id = ? AND is_active = 1 AND is_deleted = 0`

	p := &Program{}
	err := scanProgram(r.db.QueryRowContext(ctx, query, id), p)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("program not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying program by id: %w", err)
	}

	return p, nil
}

// Create inserts a new program row.
func (r *programRepository) Create(ctx context.Context, p *Program) error {
	query := `INSERT INTO native_programs (id, user_id, name, program_key, secret_hash,
	                                       is_active, is_deleted, created_at, updated_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		p.ID,
		p.UserID,
		p.Name,
		p.Key,
		p.SecretHash,
		p.IsActive,
		p.IsDeleted,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if isDuplicateEntry(err) {
		return apperror.NewConflict("program key already registered")
	}
	if err != nil {
		return fmt.Errorf("inserting program: %w", err)
	}

	return nil
}

// ListByUser returns the programs owned by a user, newest first.
func (r *programRepository) ListByUser(ctx context.Context, userID string) ([]Program, error) {
	query := `SELECT ` + programColumns + `
	          FROM native_programs WHERE user_id = ? ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("listing programs: %w", err)
	}
	defer rows.Close()

	var programs []Program
	for rows.Next() {
		var p Program
		if err := scanProgram(rows, &p); err != nil {
			return nil, fmt.Errorf("scanning program row: %w", err)
		}
		programs = append(programs, p)
	}

	return programs, rows.Err()
}

// SetActive revokes (false) or restores (true) a program by key.
func (r *programRepository) SetActive(ctx context.Context, key string, active bool) error {
	query := `UPDATE native_programs SET is_active = ?, updated_at = NOW() WHERE program_key = ?`

	result, err := r.db.ExecContext(ctx, query, active, key)
	if err != nil {
		return fmt.Errorf("updating program is_active: %w", err)
	}

	n, _ := result.RowsAffected()
	if n == 0 {
		return apperror.NewNotFound("program not found")
	}

	return nil
}
