package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"anonmsg/pkg/domain"
)

var userColumns = []string{
	"id", "username", "username_key", "password_hash", "request_title",
	"profile_picture", "plan", "hit_count", "created_at", "updated_at",
}

func newMockGormStore(t *testing.T) (*GormStore, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	db, err := openGorm(postgres.New(postgres.Config{Conn: sqlDB}))
	if err != nil {
		t.Fatalf("open gorm: %v", err)
	}
	return &GormStore{db: db}, mock
}

func TestGormStoreCreateUserMapsUniqueViolation(t *testing.T) {
	s, mock := newMockGormStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "user_models"`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "idx_user_models_username_key"})
	mock.ExpectRollback()

	_, err := s.CreateUser(context.Background(), domain.User{Username: "Alice", PasswordHash: "h"})
	if !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGormStoreCreateUserStoresUsernameKey(t *testing.T) {
	s, mock := newMockGormStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "user_models"`).
		WithArgs(
			sqlmock.AnyArg(), "Alice", "alice", "h", domain.DefaultRequestTitle,
			"https://api.dicebear.com/7.x/bottts/svg?seed=Alice", "free", int64(0),
			sqlmock.AnyArg(), sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	u, err := s.CreateUser(context.Background(), domain.User{Username: " Alice ", PasswordHash: "h"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if u.Username != "Alice" || u.ID == "" {
		t.Fatalf("unexpected user: %+v", u)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGormStoreFindUserByUsernameQueries(t *testing.T) {
	now := time.Now().UTC()
	tests := []struct {
		name          string
		caseSensitive bool
		pattern       string
	}{
		{name: "case insensitive uses folded key", pattern: `SELECT \* FROM "user_models" WHERE username_key = \$1`},
		{name: "case sensitive uses exact username", caseSensitive: true, pattern: `SELECT \* FROM "user_models" WHERE username = \$1`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, mock := newMockGormStore(t)
			mock.ExpectQuery(tc.pattern).WillReturnRows(
				sqlmock.NewRows(userColumns).
					AddRow("u-1", "Alice", "alice", "h", "title", "pic", "free", 4, now, now),
			)
			u, ok, err := s.FindUserByUsername(context.Background(), "Alice", tc.caseSensitive)
			if err != nil || !ok {
				t.Fatalf("find: ok=%v err=%v", ok, err)
			}
			if u.ID != "u-1" || u.HitCount != 4 {
				t.Fatalf("unexpected user: %+v", u)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Fatalf("unmet expectations: %v", err)
			}
		})
	}
}

func TestGormStoreFindUserByUsernameNotFound(t *testing.T) {
	s, mock := newMockGormStore(t)
	mock.ExpectQuery(`SELECT \* FROM "user_models"`).WillReturnRows(sqlmock.NewRows(userColumns))

	_, ok, err := s.FindUserByUsername(context.Background(), "nobody", false)
	if err != nil {
		t.Fatalf("expected nil error for missing user, got %v", err)
	}
	if ok {
		t.Fatalf("expected not found")
	}
}

func TestGormStoreIncrementHitCount(t *testing.T) {
	now := time.Now().UTC()
	s, mock := newMockGormStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "user_models" SET "hit_count"=hit_count \+ \$1 WHERE id = \$2`).
		WithArgs(1, "u-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery(`SELECT \* FROM "user_models" WHERE id = \$1`).WillReturnRows(
		sqlmock.NewRows(userColumns).
			AddRow("u-1", "alice", "alice", "h", "title", "pic", "free", 8, now, now),
	)

	u, ok, err := s.IncrementHitCount(context.Background(), "u-1")
	if err != nil || !ok {
		t.Fatalf("increment: ok=%v err=%v", ok, err)
	}
	if u.HitCount != 8 {
		t.Fatalf("hitCount = %d, want 8", u.HitCount)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGormStoreListMessagesForRecipientResolvesSenders(t *testing.T) {
	t1 := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	s, mock := newMockGormStore(t)
	mock.ExpectQuery(`SELECT \* FROM "message_models" WHERE recipient_id = \$1 ORDER BY created_at DESC, ?id ASC`).
		WithArgs("u-alice").
		WillReturnRows(
			sqlmock.NewRows([]string{"id", "sender_id", "recipient_id", "text", "link", "image", "created_at"}).
				AddRow("m-3", "u-bob", "u-alice", "third", "", "", t1.Add(2*time.Minute)).
				AddRow("m-2", nil, "u-alice", "second", "https://example.com", "", t1.Add(time.Minute)).
				AddRow("m-1", "u-gone", "u-alice", "first", "", "", t1),
		)
	mock.ExpectQuery(`SELECT .* FROM "user_models" WHERE id IN`).WillReturnRows(
		sqlmock.NewRows([]string{"id", "username", "profile_picture"}).
			AddRow("u-bob", "bob", "bob.png"),
	)

	msgs, err := s.ListMessagesForRecipient(context.Background(), "u-alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("len = %d, want 3", len(msgs))
	}
	if msgs[0].Sender == nil || msgs[0].Sender.Username != "bob" || msgs[0].Sender.ProfilePicture != "bob.png" {
		t.Fatalf("expected bob sender, got %+v", msgs[0].Sender)
	}
	if msgs[1].Sender != nil || msgs[1].Link != "https://example.com" {
		t.Fatalf("expected anonymous second message with link, got %+v", msgs[1])
	}
	if msgs[2].Sender != nil {
		t.Fatalf("expected dangling sender to read as anonymous, got %+v", msgs[2].Sender)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGormStoreCreateAnonymousMessage(t *testing.T) {
	s, mock := newMockGormStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "message_models"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	msg, err := s.CreateMessage(context.Background(), domain.Message{RecipientID: "u-alice", Text: "hi"})
	if err != nil {
		t.Fatalf("create message: %v", err)
	}
	if msg.ID == "" || msg.CreatedAt.IsZero() {
		t.Fatalf("expected store-assigned id and createdAt, got %+v", msg)
	}
	if msg.Sender != nil {
		t.Fatalf("expected anonymous message")
	}
	if !msg.CreatedAt.Equal(msg.CreatedAt.Truncate(time.Microsecond)) {
		t.Fatalf("createdAt %v has sub-microsecond precision postgres would drop", msg.CreatedAt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !isUniqueViolation(fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "23505"})) {
		t.Fatalf("expected wrapped 23505 to be a unique violation")
	}
	if !isUniqueViolation(gorm.ErrDuplicatedKey) {
		t.Fatalf("expected gorm.ErrDuplicatedKey to be a unique violation")
	}
	if isUniqueViolation(&pgconn.PgError{Code: "23503"}) {
		t.Fatalf("foreign key violation must not map to unique violation")
	}
	if isUniqueViolation(errors.New("boom")) {
		t.Fatalf("plain error must not map to unique violation")
	}
}
