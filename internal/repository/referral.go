package repository

import (
	"context"
	"fmt"

	"github.com/mmeshcher/hustlehub-system/internal/model"
)

// CreateReferral записывает приглашение и при успешном приглашении начисляет
// бонусные баллы пригласившему в той же транзакции. Вторая запись для того же
// приглашённого гасится уникальностью referred_user_id, баллы при этом не
// начисляются повторно.
func (r *PostgresRepository) CreateReferral(ctx context.Context, referrerID, referredUserID int64, successful bool, bonusPoints int64) (*model.Referral, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var ref model.Referral
	cmdTag, err := tx.Exec(ctx,
		`INSERT INTO referrals (referrer_id, referred_user_id, is_successful)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (referred_user_id) DO NOTHING`,
		referrerID, referredUserID, successful,
	)
	if err != nil {
		return nil, fmt.Errorf("insert referral: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		return nil, ErrReferralExists
	}

	err = tx.QueryRow(ctx,
		`SELECT id, referrer_id, referred_user_id, is_successful, created_at
		 FROM referrals WHERE referred_user_id = $1`,
		referredUserID,
	).Scan(&ref.ID, &ref.ReferrerID, &ref.ReferredUserID, &ref.IsSuccessful, &ref.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("select referral: %w", err)
	}

	if successful && bonusPoints > 0 {
		_, err = tx.Exec(ctx,
			`INSERT INTO loyalty_point_log (user_id, points, source) VALUES ($1, $2, $3)`,
			referrerID, bonusPoints, string(model.LoyaltySourceReferral),
		)
		if err != nil {
			return nil, fmt.Errorf("insert loyalty bonus: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &ref, nil
}

// GetReferralsByUser возвращает приглашения, сделанные пользователем.
func (r *PostgresRepository) GetReferralsByUser(ctx context.Context, referrerID int64) ([]model.Referral, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, referrer_id, referred_user_id, is_successful, created_at
		 FROM referrals
		 WHERE referrer_id = $1
		 ORDER BY created_at DESC`,
		referrerID,
	)
	if err != nil {
		return nil, fmt.Errorf("select referrals: %w", err)
	}
	defer rows.Close()

	var res []model.Referral
	for rows.Next() {
		var ref model.Referral
		if err := rows.Scan(&ref.ID, &ref.ReferrerID, &ref.ReferredUserID, &ref.IsSuccessful, &ref.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan referral: %w", err)
		}
		res = append(res, ref)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CreditLoyalty добавляет запись в журнал баллов лояльности.
func (r *PostgresRepository) CreditLoyalty(ctx context.Context, userID, points int64, source model.LoyaltySource) (*model.LoyaltyPointLog, error) {
	if points <= 0 {
		return nil, ErrInvalidPoints
	}

	var entry model.LoyaltyPointLog
	var src string
	err := r.pool.QueryRow(ctx,
		`INSERT INTO loyalty_point_log (user_id, points, source)
		 VALUES ($1, $2, $3)
		 RETURNING id, user_id, points, source, created_at`,
		userID, points, string(source),
	).Scan(&entry.ID, &entry.UserID, &entry.Points, &src, &entry.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("insert loyalty log: %w", err)
	}
	entry.Source = model.LoyaltySource(src)

	return &entry, nil
}

// GetLoyaltyByUser возвращает журнал баллов лояльности пользователя.
func (r *PostgresRepository) GetLoyaltyByUser(ctx context.Context, userID int64) ([]model.LoyaltyPointLog, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, points, source, created_at
		 FROM loyalty_point_log
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select loyalty log: %w", err)
	}
	defer rows.Close()

	var res []model.LoyaltyPointLog
	for rows.Next() {
		var entry model.LoyaltyPointLog
		var src string
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.Points, &src, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan loyalty entry: %w", err)
		}
		entry.Source = model.LoyaltySource(src)
		res = append(res, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetLoyaltyBalance возвращает сумму баллов лояльности пользователя.
func (r *PostgresRepository) GetLoyaltyBalance(ctx context.Context, userID int64) (int64, error) {
	var balance int64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(points), 0) FROM loyalty_point_log WHERE user_id = $1`,
		userID,
	).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("sum loyalty points: %w", err)
	}
	return balance, nil
}
