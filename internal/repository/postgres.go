// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/hustlehub-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUserExists возвращается при попытке создать пользователя с занятым email или именем.
var (
	ErrUserExists = errors.New("user already exists")
	// ErrReferralCodeTaken возвращается при коллизии сгенерированного реферального кода.
	ErrReferralCodeTaken = errors.New("referral code already taken")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidPoints возвращается при неположительном начислении опыта или баллов.
	ErrInvalidPoints = errors.New("points must be positive")
	// ErrJobNotFound возвращается, если задание не найдено.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobNotOpen возвращается при отклике на закрытое задание.
	ErrJobNotOpen = errors.New("job is not open")
	// ErrJobNotCompleted возвращается при попытке оставить отзыв по незавершённому заданию.
	ErrJobNotCompleted = errors.New("job is not completed")
	// ErrNoFreelancer возвращается при завершении задания без принятого фрилансера.
	ErrNoFreelancer = errors.New("job has no accepted freelancer")
	// ErrNotJobParty возвращается, когда пользователь не является стороной задания.
	ErrNotJobParty = errors.New("user is not a party of the job")
	// ErrApplicationExists возвращается при повторном отклике на то же задание.
	ErrApplicationExists = errors.New("application already exists")
	// ErrApplicationNotFound возвращается, если отклик не найден.
	ErrApplicationNotFound = errors.New("application not found")
	// ErrApplicationNotPending возвращается при решении по уже рассмотренному отклику.
	ErrApplicationNotPending = errors.New("application is not pending")
	// ErrReferralExists возвращается, если у приглашённого уже есть входящая запись.
	ErrReferralExists = errors.New("referral already recorded for this user")
	// ErrCommissionExists возвращается, если комиссия по заданию уже зафиксирована.
	ErrCommissionExists = errors.New("commission already logged for this job")
	// ErrCommissionNotFound возвращается, если комиссия не найдена.
	ErrCommissionNotFound = errors.New("commission not found")
	// ErrCommissionNotDue возвращается при операции над уже оплаченной комиссией.
	ErrCommissionNotDue = errors.New("commission is not due")
	// ErrExcusePending возвращается при повторном заявлении, пока открыто предыдущее.
	ErrExcusePending = errors.New("pending excuse already exists")
	// ErrExcuseNotFound возвращается, если заявление не найдено.
	ErrExcuseNotFound = errors.New("excuse not found")
	// ErrExcuseNotPending возвращается при рассмотрении уже рассмотренного заявления.
	ErrExcuseNotPending = errors.New("excuse is not pending")
	// ErrReviewExists возвращается при повторном отзыве того же автора по заданию.
	ErrReviewExists = errors.New("review already exists")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет fn при ошибках сериализации, дедлоках и сетевых сбоях.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgerrcode.UniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateUser создаёт нового пользователя.
func (r *PostgresRepository) CreateUser(ctx context.Context, u *model.User) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (email, username, full_name, password_hash, role, referral_code)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		u.Email, u.Username, u.FullName, u.PasswordHash, string(u.Role), u.ReferralCode,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err, "users_referral_code_key") {
			return 0, ErrReferralCodeTaken
		}
		if isUniqueViolation(err, "") {
			return 0, fmt.Errorf("%w: %s", ErrUserExists, u.Email)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	var role string
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.FullName, &u.PasswordHash,
		&role, &u.ReferralCode, &u.XPPoints, &u.Level, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.Role = model.Role(role)
	return &u, nil
}

const userColumns = `id, email, username, full_name, password_hash, role, referral_code, xp_points, level, created_at`

// GetUserByEmail возвращает пользователя по email.
func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

// GetUserByID возвращает пользователя по идентификатору.
func (r *PostgresRepository) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	return scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// GetUserByReferralCode возвращает пользователя по его реферальному коду.
func (r *PostgresRepository) GetUserByReferralCode(ctx context.Context, code string) (*model.User, error) {
	return scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE referral_code = $1`, code))
}

func (r *PostgresRepository) insertNotification(ctx context.Context, tx pgx.Tx, n *model.Notification) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO notifications (user_id, title, message, ntype, related_id)
		 VALUES ($1, $2, $3, $4, $5)`,
		n.UserID, n.Title, n.Message, string(n.Type), n.RelatedID,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// GetNotificationsByUser возвращает уведомления пользователя, новые первыми.
func (r *PostgresRepository) GetNotificationsByUser(ctx context.Context, userID int64) ([]model.Notification, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, title, message, ntype, related_id, is_read, created_at
		 FROM notifications
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select notifications: %w", err)
	}
	defer rows.Close()

	var res []model.Notification
	for rows.Next() {
		var n model.Notification
		var ntype string
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &ntype, &n.RelatedID, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Type = model.NotificationType(ntype)
		res = append(res, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// MarkNotificationsRead помечает указанные уведомления пользователя прочитанными.
func (r *PostgresRepository) MarkNotificationsRead(ctx context.Context, userID int64, ids []int64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND id = ANY($2)`,
		userID, ids,
	)
	if err != nil {
		return fmt.Errorf("mark notifications read: %w", err)
	}
	return nil
}
