package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"anonmsg/pkg/domain"
)

const migrateLockID int64 = 51120417

const pgUniqueViolation = "23505"

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := openGorm(postgres.Open(dsn))
	if err != nil {
		return nil, err
	}
	if err := withMigrationLock(db, migrate); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func openGorm(dialector gorm.Dialector) (*gorm.DB, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return db, nil
}

func migrate(tx *gorm.DB) error {
	if err := tx.AutoMigrate(&UserModel{}, &MessageModel{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	if err := tx.Exec(`
		DO $$
		BEGIN
			IF NOT EXISTS (
				SELECT 1 FROM information_schema.table_constraints
				WHERE table_schema = 'public'
				AND table_name = 'message_models'
				AND constraint_name = 'message_models_recipient_id_fkey'
			) THEN
				ALTER TABLE message_models
				ADD CONSTRAINT message_models_recipient_id_fkey
				FOREIGN KEY (recipient_id) REFERENCES user_models(id);
			END IF;
			IF NOT EXISTS (
				SELECT 1 FROM information_schema.table_constraints
				WHERE table_schema = 'public'
				AND table_name = 'message_models'
				AND constraint_name = 'message_models_sender_id_fkey'
			) THEN
				ALTER TABLE message_models
				ADD CONSTRAINT message_models_sender_id_fkey
				FOREIGN KEY (sender_id) REFERENCES user_models(id) ON DELETE SET NULL;
			END IF;
		END $$;
	`).Error; err != nil {
		return fmt.Errorf("ensure message foreign keys: %w", err)
	}
	return nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// CreateUser inserts a new identity. The unique index on username_key
// rejects concurrent registrations of the same name.
func (s *GormStore) CreateUser(ctx context.Context, u domain.User) (domain.User, error) {
	u = withUserDefaults(u, time.Now().UTC().Truncate(time.Microsecond))
	model := userToModel(u)
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.User{}, ErrUsernameTaken
		}
		return domain.User{}, err
	}
	return userFromModel(model), nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(ctx context.Context, id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// FindUserByUsername matches the whole username, exactly or case-folded.
func (s *GormStore) FindUserByUsername(ctx context.Context, username string, caseSensitive bool) (domain.User, bool, error) {
	tx := s.db.WithContext(ctx)
	if caseSensitive {
		tx = tx.Where("username = ?", username)
	} else {
		tx = tx.Where("username_key = ?", usernameKey(username))
	}
	var model UserModel
	if err := tx.First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// UpdateUserProfile applies non-nil profile fields.
func (s *GormStore) UpdateUserProfile(ctx context.Context, id string, update domain.ProfileUpdate) (domain.User, bool, error) {
	updates := map[string]any{"updated_at": time.Now().UTC()}
	if update.RequestTitle != nil {
		updates["request_title"] = *update.RequestTitle
	}
	if update.ProfilePicture != nil {
		updates["profile_picture"] = *update.ProfilePicture
	}
	res := s.db.WithContext(ctx).Model(&UserModel{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return domain.User{}, false, res.Error
	}
	if res.RowsAffected == 0 {
		return domain.User{}, false, nil
	}
	return s.GetUserByID(ctx, id)
}

// IncrementHitCount bumps hit_count in a single statement.
func (s *GormStore) IncrementHitCount(ctx context.Context, id string) (domain.User, bool, error) {
	res := s.db.WithContext(ctx).
		Model(&UserModel{}).
		Where("id = ?", id).
		UpdateColumn("hit_count", gorm.Expr("hit_count + ?", 1))
	if res.Error != nil {
		return domain.User{}, false, res.Error
	}
	if res.RowsAffected == 0 {
		return domain.User{}, false, nil
	}
	return s.GetUserByID(ctx, id)
}

// CreateMessage inserts a message and returns it with the sender resolved.
func (s *GormStore) CreateMessage(ctx context.Context, m domain.Message) (domain.Message, error) {
	m = withMessageDefaults(m, time.Now().UTC().Truncate(time.Microsecond))
	model := messageToModel(m)
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.Message{}, err
	}
	out := []domain.Message{messageFromModel(model)}
	if err := resolveSenders(ctx, out, s.senderProfiles); err != nil {
		return domain.Message{}, fmt.Errorf("resolve sender: %w", err)
	}
	return out[0], nil
}

// ListMessagesForRecipient returns messages newest first; equal timestamps
// keep insertion order through the time-ordered id.
func (s *GormStore) ListMessagesForRecipient(ctx context.Context, recipientID string) ([]domain.Message, error) {
	var models []MessageModel
	if err := s.db.WithContext(ctx).
		Where("recipient_id = ?", recipientID).
		Order("created_at DESC").
		Order("id ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Message, 0, len(models))
	for _, m := range models {
		res = append(res, messageFromModel(m))
	}
	if err := resolveSenders(ctx, res, s.senderProfiles); err != nil {
		return nil, fmt.Errorf("resolve senders: %w", err)
	}
	return res, nil
}

func (s *GormStore) senderProfiles(ctx context.Context, ids []string) (map[string]domain.SenderProfile, error) {
	var models []UserModel
	if err := s.db.WithContext(ctx).
		Select("id", "username", "profile_picture").
		Where("id IN ?", ids).
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make(map[string]domain.SenderProfile, len(models))
	for _, m := range models {
		out[m.ID] = senderProfile(userFromModel(m))
	}
	return out, nil
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
