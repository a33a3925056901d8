package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/hustlehub-system/internal/model"
	"github.com/mmeshcher/hustlehub-system/internal/progression"
)

// GrantXP атомарно начисляет опыт: добавляет запись журнала, пересчитывает
// уровень по новой сумме и выдаёт бейджи за каждый пройденный уровень.
// Строка пользователя блокируется, чтобы конкурирующие начисления не
// потеряли итоговый уровень. Повторная выдача бейджа гасится уникальностью
// пары (user, badge).
func (r *PostgresRepository) GrantXP(ctx context.Context, userID, points int64, sourceJobID *int64, table *progression.Table) (*model.GrantResult, error) {
	if points <= 0 {
		return nil, ErrInvalidPoints
	}

	var res *model.GrantResult
	err := r.withRetry(ctx, func() error {
		var err error
		res, err = r.grantXP(ctx, userID, points, sourceJobID, table)
		return err
	})
	return res, err
}

func (r *PostgresRepository) grantXP(ctx context.Context, userID, points int64, sourceJobID *int64, table *progression.Table) (*model.GrantResult, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var currentXP int64
	var currentLevel int
	err = tx.QueryRow(ctx,
		`SELECT xp_points, level FROM users WHERE id = $1 FOR UPDATE`,
		userID,
	).Scan(&currentXP, &currentLevel)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lock user: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO xp_log (user_id, points, source_job_id) VALUES ($1, $2, $3)`,
		userID, points, sourceJobID,
	)
	if err != nil {
		return nil, fmt.Errorf("insert xp log: %w", err)
	}

	newXP := currentXP + points
	newLevel := table.LevelForXP(newXP)
	if newLevel < currentLevel {
		// Кэшированный уровень никогда не понижается.
		newLevel = currentLevel
	}

	var awarded []model.Badge
	for _, award := range table.CrossedAwards(currentLevel, newLevel) {
		badge, created, err := r.awardBadge(ctx, tx, userID, award.Spec)
		if err != nil {
			return nil, err
		}
		if !created {
			continue
		}

		awarded = append(awarded, badge)

		n := &model.Notification{
			UserID:    userID,
			Title:     "Level Up!",
			Message:   fmt.Sprintf("Congratulations! You've reached level %d and unlocked the %s badge.", award.Level, badge.Name),
			Type:      model.NotificationTypeLevelUp,
			RelatedID: &badge.ID,
		}
		if err := r.insertNotification(ctx, tx, n); err != nil {
			return nil, err
		}
	}

	_, err = tx.Exec(ctx,
		`UPDATE users SET xp_points = $2, level = $3 WHERE id = $1`,
		userID, newXP, newLevel,
	)
	if err != nil {
		return nil, fmt.Errorf("update user totals: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &model.GrantResult{
		NewXP:         newXP,
		NewLevel:      newLevel,
		AwardedBadges: awarded,
	}, nil
}

// awardBadge создаёт бейдж в реестре и выдаёт его пользователю, оба шага
// идемпотентны. Возвращает бейдж и признак того, что выдача произошла впервые.
func (r *PostgresRepository) awardBadge(ctx context.Context, tx pgx.Tx, userID int64, spec progression.BadgeSpec) (model.Badge, bool, error) {
	badge := model.Badge{
		Name:        spec.Name,
		Description: spec.Description,
		Icon:        spec.Icon,
		Type:        spec.Type,
	}

	err := tx.QueryRow(ctx,
		`INSERT INTO badges (name, description, icon, badge_type)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (name, badge_type) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id`,
		spec.Name, spec.Description, spec.Icon, string(spec.Type),
	).Scan(&badge.ID)
	if err != nil {
		return model.Badge{}, false, fmt.Errorf("get or create badge: %w", err)
	}

	cmdTag, err := tx.Exec(ctx,
		`INSERT INTO user_badges (user_id, badge_id) VALUES ($1, $2)
		 ON CONFLICT (user_id, badge_id) DO NOTHING`,
		userID, badge.ID,
	)
	if err != nil {
		return model.Badge{}, false, fmt.Errorf("insert user badge: %w", err)
	}

	return badge, cmdTag.RowsAffected() == 1, nil
}

// AwardAchievementBadge выдаёт пользователю бейдж достижения и создаёт
// уведомление, если выдача произошла впервые. Для бейджей уровня уведомление
// о повышении уровня создаётся в GrantXP, поэтому здесь оно не дублируется.
func (r *PostgresRepository) AwardAchievementBadge(ctx context.Context, userID int64, spec progression.BadgeSpec) (*model.Badge, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	badge, created, err := r.awardBadge(ctx, tx, userID, spec)
	if err != nil {
		return nil, false, err
	}

	if created && spec.Type != model.BadgeTypeLevel {
		n := &model.Notification{
			UserID:    userID,
			Title:     "New Badge Unlocked!",
			Message:   fmt.Sprintf("You've unlocked the '%s' badge. Congratulations!", badge.Name),
			Type:      model.NotificationTypeBadgeUnlock,
			RelatedID: &badge.ID,
		}
		if err := r.insertNotification(ctx, tx, n); err != nil {
			return nil, false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("commit tx: %w", err)
	}

	return &badge, created, nil
}

// GetXPLogByUser возвращает журнал начислений опыта пользователя.
func (r *PostgresRepository) GetXPLogByUser(ctx context.Context, userID int64) ([]model.XPLogEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, points, source_job_id, created_at
		 FROM xp_log
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select xp log: %w", err)
	}
	defer rows.Close()

	var res []model.XPLogEntry
	for rows.Next() {
		var e model.XPLogEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Points, &e.SourceJobID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan xp log entry: %w", err)
		}
		res = append(res, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// HasXPForJob сообщает, есть ли у пользователя запись в журнале опыта
// по указанной работе.
func (r *PostgresRepository) HasXPForJob(ctx context.Context, userID, jobID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM xp_log WHERE user_id = $1 AND source_job_id = $2)`,
		userID, jobID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check xp for job: %w", err)
	}
	return exists, nil
}

// ReconcileXP сверяет кэшированный счётчик опыта с суммой журнала и чинит
// расхождение. Возвращает true, если понадобился ремонт.
func (r *PostgresRepository) ReconcileXP(ctx context.Context, userID int64, table *progression.Table) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var cachedXP int64
	var cachedLevel int
	err = tx.QueryRow(ctx,
		`SELECT xp_points, level FROM users WHERE id = $1 FOR UPDATE`,
		userID,
	).Scan(&cachedXP, &cachedLevel)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrUserNotFound
		}
		return false, fmt.Errorf("lock user: %w", err)
	}

	var ledgerXP int64
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(SUM(points), 0) FROM xp_log WHERE user_id = $1`,
		userID,
	).Scan(&ledgerXP)
	if err != nil {
		return false, fmt.Errorf("sum xp log: %w", err)
	}

	ledgerLevel := table.LevelForXP(ledgerXP)
	if ledgerXP == cachedXP && ledgerLevel == cachedLevel {
		return false, nil
	}

	_, err = tx.Exec(ctx,
		`UPDATE users SET xp_points = $2, level = $3 WHERE id = $1`,
		userID, ledgerXP, ledgerLevel,
	)
	if err != nil {
		return false, fmt.Errorf("repair user totals: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit tx: %w", err)
	}

	return true, nil
}

// RecentlyActiveUsers возвращает пользователей с начислениями опыта после since.
func (r *PostgresRepository) RecentlyActiveUsers(ctx context.Context, since time.Time, limit int) ([]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT user_id FROM xp_log WHERE created_at >= $1 LIMIT $2`,
		since, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select active users: %w", err)
	}
	defer rows.Close()

	var res []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		res = append(res, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetBadgesByUser возвращает бейджи пользователя, свежие первыми.
func (r *PostgresRepository) GetBadgesByUser(ctx context.Context, userID int64) ([]model.UserBadge, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT b.id, b.name, b.description, b.icon, b.badge_type, ub.awarded_at
		 FROM user_badges ub
		 JOIN badges b ON b.id = ub.badge_id
		 WHERE ub.user_id = $1
		 ORDER BY ub.awarded_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select user badges: %w", err)
	}
	defer rows.Close()

	var res []model.UserBadge
	for rows.Next() {
		var ub model.UserBadge
		var btype string
		if err := rows.Scan(&ub.Badge.ID, &ub.Badge.Name, &ub.Badge.Description, &ub.Badge.Icon, &btype, &ub.AwardedAt); err != nil {
			return nil, fmt.Errorf("scan user badge: %w", err)
		}
		ub.Badge.Type = model.BadgeType(btype)
		res = append(res, ub)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ListBadges возвращает реестр всех известных бейджей.
func (r *PostgresRepository) ListBadges(ctx context.Context) ([]model.Badge, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, description, icon, badge_type FROM badges ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("select badges: %w", err)
	}
	defer rows.Close()

	var res []model.Badge
	for rows.Next() {
		var b model.Badge
		var btype string
		if err := rows.Scan(&b.ID, &b.Name, &b.Description, &b.Icon, &btype); err != nil {
			return nil, fmt.Errorf("scan badge: %w", err)
		}
		b.Type = model.BadgeType(btype)
		res = append(res, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
