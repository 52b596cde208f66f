package auth

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Error(err)
		}
		db.Close()
	})
	return db, mock
}

var userCols = []string{
	"id", "name", "email", "mobile", "image", "password_hash",
	"is_active", "is_deleted", "created_at", "updated_at",
}

var programCols = []string{
	"id", "user_id", "name", "program_key", "secret_hash",
	"is_active", "is_deleted", "created_at", "updated_at",
}

func TestUserRepository_FindByEmail(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(`FROM users WHERE email = \? AND is_active = 1 AND is_deleted = 0`).
		WithArgs("alice@example.com").
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow(testUserID, "Alice", "alice@example.com", nil, "", "$2y$10$hash", true, false, now, now))

	user, err := NewUserRepository(db).FindByEmail(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.ID != testUserID || user.Mobile != nil || user.PasswordHash == nil || *user.PasswordHash != "$2y$10$hash" {
		t.Errorf("unexpected user: %+v", user)
	}
}

func TestUserRepository_FindByEmail_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(`FROM users WHERE email = \?`).
		WithArgs("ghost@example.com").
		WillReturnError(sql.ErrNoRows)

	_, err := NewUserRepository(db).FindByEmail(context.Background(), "ghost@example.com")
	assertAppError(t, err, http.StatusNotFound)
}

func TestUserRepository_FindByID_DriverError(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(`FROM users WHERE id = \? AND is_active = 1 AND is_deleted = 0`).
		WithArgs(testUserID).
		WillReturnError(errors.New("bad connection"))

	_, err := NewUserRepository(db).FindByID(context.Background(), testUserID)
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, sql.ErrNoRows) {
		t.Error("driver error must not look like not-found")
	}
}

func TestUserRepository_List_ExcludesDeleted(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now()
	mock.ExpectQuery(`FROM users WHERE is_deleted = 0 ORDER BY name, email`).
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow("u1", "Alice", "alice@example.com", "+33612345678", "", nil, true, false, now, now).
			AddRow("u2", "Bob", "bob@example.com", nil, "", nil, false, false, now, now))

	users, err := NewUserRepository(db).List(context.Background(), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(users) != 2 || users[1].IsActive {
		t.Errorf("unexpected users: %+v", users)
	}
}

func TestUserRepository_SuggestByName(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(`SOUNDEX\(name\) = SOUNDEX\(\?\)`).
		WithArgs("Alise", 5).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Alice").AddRow("Alicia"))

	names, err := NewUserRepository(db).SuggestByName(context.Background(), "Alise", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(names) != 2 || names[0] != "Alice" {
		t.Errorf("unexpected suggestions: %v", names)
	}
}

func TestUserRepository_SetActive_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec(`UPDATE users SET is_active = \?`).
		WithArgs(false, "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := NewUserRepository(db).SetActive(context.Background(), "missing", false)
	assertAppError(t, err, http.StatusNotFound)
}

func TestUserRepository_Delete_RequiresMark(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec(`DELETE FROM users WHERE id = \? AND is_deleted = 1`).
		WithArgs(testUserID).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := NewUserRepository(db).Delete(context.Background(), testUserID)
	assertAppError(t, err, http.StatusConflict)
}

func TestUserRepository_Delete(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec(`DELETE FROM users WHERE id = \? AND is_deleted = 1`).
		WithArgs(testUserID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := NewUserRepository(db).Delete(context.Background(), testUserID); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestUserRepository_Create(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now()
	hash := "$2a$10$hash"
	user := &User{ID: testUserID, Name: "Alice", Email: "alice@example.com", PasswordHash: &hash, IsActive: true, CreatedAt: now, UpdatedAt: now}

	mock.ExpectExec(`INSERT INTO users`).
		WithArgs(testUserID, "Alice", "alice@example.com", nil, "", &hash, true, false, now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := NewUserRepository(db).Create(context.Background(), user); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestProgramRepository_FindByKey(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now()
	mock.ExpectQuery(`FROM native_programs WHERE program_key = \? AND is_active = 1 AND is_deleted = 0`).
		WithArgs(testKey).
		WillReturnRows(sqlmock.NewRows(programCols).
			AddRow(testProgramID, testUserID, "Sensor bridge", testKey, "$2a$10$hash", true, false, now, now))

	p, err := NewProgramRepository(db).FindByKey(context.Background(), testKey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ID != testProgramID || p.Key != testKey {
		t.Errorf("unexpected program: %+v", p)
	}
}

func TestProgramRepository_FindByID_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(`FROM native_programs WHERE id = \?`).
		WithArgs(testProgramID).
		WillReturnRows(sqlmock.NewRows(programCols))

	_, err := NewProgramRepository(db).FindByID(context.Background(), testProgramID)
	assertAppError(t, err, http.StatusNotFound)
}

func TestProgramRepository_SetActive(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec(`UPDATE native_programs SET is_active = \?`).
		WithArgs(false, testKey).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := NewProgramRepository(db).SetActive(context.Background(), testKey, false); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestUserRepository_Create_DuplicateEmail(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec(`INSERT INTO users`).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'alice@example.com' for key 'uq_users_email'"})

	err := NewUserRepository(db).Create(context.Background(), &User{ID: testUserID, Email: "alice@example.com"})
	assertAppError(t, err, http.StatusConflict)
}
