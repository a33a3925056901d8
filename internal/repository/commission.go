package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/hustlehub-system/internal/model"
)

const commissionColumns = `id, job_id, total_amount, commission_percentage, commission_amount,
	freelancer_earning, status, completion_date, due_date, has_excuse, created_at`

func scanCommission(row pgx.Row) (*model.CommissionLog, error) {
	var c model.CommissionLog
	var status string
	err := row.Scan(&c.ID, &c.JobID, &c.TotalAmountCents, &c.CommissionPercentage,
		&c.CommissionCents, &c.FreelancerCents, &status, &c.CompletionDate,
		&c.DueDate, &c.HasExcuse, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCommissionNotFound
		}
		return nil, fmt.Errorf("scan commission: %w", err)
	}
	c.Status = model.CommissionStatus(status)
	return &c, nil
}

// CompleteJobCommission завершает задание и фиксирует комиссию платформы.
// Операция идемпотентна: комиссия привязана к заданию один к одному, повторный
// вызов возвращает уже существующую запись с created=false. Суммы считаются в
// копейках: commission = total*percent/100, earning = total - commission, так
// что их сумма всегда в точности равна бюджету.
func (r *PostgresRepository) CompleteJobCommission(ctx context.Context, jobID, employerID, percent int64, dueDays int) (*model.CommissionLog, int64, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, 0, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var jobEmployerID int64
	var freelancerID *int64
	var budget int64
	var status string
	err = tx.QueryRow(ctx,
		`SELECT employer_id, freelancer_id, budget, status FROM jobs WHERE id = $1 FOR UPDATE`,
		jobID,
	).Scan(&jobEmployerID, &freelancerID, &budget, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, 0, false, ErrJobNotFound
		}
		return nil, 0, false, fmt.Errorf("lock job: %w", err)
	}

	if jobEmployerID != employerID {
		return nil, 0, false, ErrNotJobParty
	}
	if freelancerID == nil {
		return nil, 0, false, ErrNoFreelancer
	}

	if model.JobStatus(status) == model.JobStatusOpen {
		_, err = tx.Exec(ctx,
			`UPDATE jobs SET status = $2 WHERE id = $1`,
			jobID, string(model.JobStatusCompleted),
		)
		if err != nil {
			return nil, 0, false, fmt.Errorf("complete job: %w", err)
		}
	}

	commission := budget * percent / 100
	earning := budget - commission

	cmdTag, err := tx.Exec(ctx,
		`INSERT INTO commission_logs
		     (job_id, total_amount, commission_percentage, commission_amount, freelancer_earning, due_date)
		 VALUES ($1, $2, $3, $4, $5, CURRENT_DATE + $6::int)
		 ON CONFLICT (job_id) DO NOTHING`,
		jobID, budget, percent, commission, earning, dueDays,
	)
	if err != nil {
		return nil, 0, false, fmt.Errorf("insert commission: %w", err)
	}
	created := cmdTag.RowsAffected() == 1

	log, err := scanCommission(tx.QueryRow(ctx,
		`SELECT `+commissionColumns+` FROM commission_logs WHERE job_id = $1`, jobID))
	if err != nil {
		return nil, 0, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, 0, false, fmt.Errorf("commit tx: %w", err)
	}

	return log, *freelancerID, created, nil
}

// MarkCommissionPaid переводит комиссию из due в paid. Переход терминален.
func (r *PostgresRepository) MarkCommissionPaid(ctx context.Context, commissionID int64) (*model.CommissionLog, error) {
	log, err := scanCommission(r.pool.QueryRow(ctx,
		`UPDATE commission_logs SET status = $2
		 WHERE id = $1 AND status = $3
		 RETURNING `+commissionColumns,
		commissionID, string(model.CommissionStatusPaid), string(model.CommissionStatusDue)))
	if err == nil {
		return log, nil
	}
	if !errors.Is(err, ErrCommissionNotFound) {
		return nil, err
	}

	// Либо комиссии нет, либо она уже не в статусе due.
	var exists bool
	scanErr := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM commission_logs WHERE id = $1)`,
		commissionID,
	).Scan(&exists)
	if scanErr != nil {
		return nil, fmt.Errorf("check commission: %w", scanErr)
	}
	if exists {
		return nil, ErrCommissionNotDue
	}
	return nil, ErrCommissionNotFound
}

// GetCommissionsForUser возвращает комиссии, видимые пользователю в его роли:
// фрилансеру — по его заданиям, работодателю — по размещённым, админу — все.
func (r *PostgresRepository) GetCommissionsForUser(ctx context.Context, userID int64, role model.Role) ([]model.CommissionLog, error) {
	query := `SELECT c.id, c.job_id, c.total_amount, c.commission_percentage, c.commission_amount,
		 c.freelancer_earning, c.status, c.completion_date, c.due_date, c.has_excuse, c.created_at
		 FROM commission_logs c
		 JOIN jobs j ON j.id = c.job_id `
	args := []any{}

	switch role {
	case model.RoleFreelancer:
		query += `WHERE j.freelancer_id = $1 `
		args = append(args, userID)
	case model.RoleEmployer:
		query += `WHERE j.employer_id = $1 `
		args = append(args, userID)
	case model.RoleAdmin:
		// Без фильтра.
	default:
		return nil, nil
	}
	query += `ORDER BY c.created_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select commissions: %w", err)
	}
	defer rows.Close()

	var res []model.CommissionLog
	for rows.Next() {
		log, err := scanCommission(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

const excuseColumns = `id, user_id, commission_id, reason, status, created_at, reviewed_at, reviewed_by`

func scanExcuse(row pgx.Row) (*model.CommissionExcuse, error) {
	var e model.CommissionExcuse
	var status string
	err := row.Scan(&e.ID, &e.UserID, &e.CommissionID, &e.Reason, &status,
		&e.CreatedAt, &e.ReviewedAt, &e.ReviewedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExcuseNotFound
		}
		return nil, fmt.Errorf("scan excuse: %w", err)
	}
	e.Status = model.ExcuseStatus(status)
	return &e, nil
}

// CreateExcuse подаёт заявление об отсрочке комиссии. Частичный уникальный
// индекс по (user_id, status=pending) закрывает гонку между проверкой и
// вставкой: второе открытое заявление отклоняется на уровне БД.
func (r *PostgresRepository) CreateExcuse(ctx context.Context, userID, commissionID int64, reason string) (*model.CommissionExcuse, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var freelancerID *int64
	var status string
	err = tx.QueryRow(ctx,
		`SELECT j.freelancer_id, c.status
		 FROM commission_logs c
		 JOIN jobs j ON j.id = c.job_id
		 WHERE c.id = $1
		 FOR UPDATE OF c`,
		commissionID,
	).Scan(&freelancerID, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCommissionNotFound
		}
		return nil, fmt.Errorf("lock commission: %w", err)
	}

	if freelancerID == nil || *freelancerID != userID {
		return nil, ErrNotJobParty
	}
	if model.CommissionStatus(status) != model.CommissionStatusDue {
		return nil, ErrCommissionNotDue
	}

	excuse, err := scanExcuse(tx.QueryRow(ctx,
		`INSERT INTO commission_excuses (user_id, commission_id, reason)
		 VALUES ($1, $2, $3)
		 RETURNING `+excuseColumns,
		userID, commissionID, reason))
	if err != nil {
		if isUniqueViolation(err, "commission_excuses_pending_idx") {
			return nil, ErrExcusePending
		}
		return nil, err
	}

	_, err = tx.Exec(ctx,
		`UPDATE commission_logs SET has_excuse = TRUE WHERE id = $1`,
		commissionID,
	)
	if err != nil {
		return nil, fmt.Errorf("flag commission excuse: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return excuse, nil
}

// ReviewExcuse рассматривает заявление: pending -> approved|rejected.
// Поля reviewed_at и reviewed_by заполняются ровно один раз, при переходе.
// Автору заявления создаётся уведомление с решением в той же транзакции.
func (r *PostgresRepository) ReviewExcuse(ctx context.Context, excuseID int64, decision model.ExcuseStatus, reviewerID int64) (*model.CommissionExcuse, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	excuse, err := scanExcuse(tx.QueryRow(ctx,
		`UPDATE commission_excuses
		 SET status = $2, reviewed_at = now(), reviewed_by = $3
		 WHERE id = $1 AND status = $4
		 RETURNING `+excuseColumns,
		excuseID, string(decision), reviewerID, string(model.ExcuseStatusPending)))
	if err != nil {
		if !errors.Is(err, ErrExcuseNotFound) {
			return nil, err
		}

		var exists bool
		scanErr := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM commission_excuses WHERE id = $1)`,
			excuseID,
		).Scan(&exists)
		if scanErr != nil {
			return nil, fmt.Errorf("check excuse: %w", scanErr)
		}
		if exists {
			return nil, ErrExcuseNotPending
		}
		return nil, ErrExcuseNotFound
	}

	title := "Commission Excuse Rejected"
	if decision == model.ExcuseStatusApproved {
		title = "Commission Excuse Approved"
	}
	n := &model.Notification{
		UserID:    excuse.UserID,
		Title:     title,
		Message:   fmt.Sprintf("Your commission excuse has been %s.", decision),
		Type:      model.NotificationTypeCommission,
		RelatedID: &excuse.ID,
	}
	if err := r.insertNotification(ctx, tx, n); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return excuse, nil
}

// GetExcusesByUser возвращает заявления пользователя, новые первыми.
func (r *PostgresRepository) GetExcusesByUser(ctx context.Context, userID int64) ([]model.CommissionExcuse, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+excuseColumns+`
		 FROM commission_excuses
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select excuses: %w", err)
	}
	defer rows.Close()

	var res []model.CommissionExcuse
	for rows.Next() {
		e, err := scanExcuse(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// DashboardData содержит сырые агрегаты для сводки панели фрилансера.
type DashboardData struct {
	XP               int64
	Level            int
	OverdueCents     int64
	SoonestDueDate   *time.Time
	HasPendingExcuse bool
	CompletedJobs    int64
	LoyaltyBalance   int64
	LeaderboardRank  int64
	LatestBadges     []model.Badge
}

// GetDashboardData собирает агрегаты панели по пользователю.
// Просроченными считаются комиссии в статусе due с датой не позже сегодняшней.
func (r *PostgresRepository) GetDashboardData(ctx context.Context, userID int64) (*DashboardData, error) {
	d := &DashboardData{}

	err := r.pool.QueryRow(ctx,
		`SELECT xp_points, level FROM users WHERE id = $1`,
		userID,
	).Scan(&d.XP, &d.Level)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("select user: %w", err)
	}

	err = r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(c.commission_amount), 0)
		 FROM commission_logs c
		 JOIN jobs j ON j.id = c.job_id
		 WHERE j.freelancer_id = $1 AND c.status = $2 AND c.due_date <= CURRENT_DATE`,
		userID, string(model.CommissionStatusDue),
	).Scan(&d.OverdueCents)
	if err != nil {
		return nil, fmt.Errorf("sum overdue commissions: %w", err)
	}

	err = r.pool.QueryRow(ctx,
		`SELECT c.due_date
		 FROM commission_logs c
		 JOIN jobs j ON j.id = c.job_id
		 WHERE j.freelancer_id = $1 AND c.status = $2 AND c.due_date <= CURRENT_DATE
		 ORDER BY c.due_date
		 LIMIT 1`,
		userID, string(model.CommissionStatusDue),
	).Scan(&d.SoonestDueDate)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("select soonest overdue: %w", err)
	}

	err = r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM commission_excuses WHERE user_id = $1 AND status = $2)`,
		userID, string(model.ExcuseStatusPending),
	).Scan(&d.HasPendingExcuse)
	if err != nil {
		return nil, fmt.Errorf("check pending excuse: %w", err)
	}

	d.CompletedJobs, err = r.CountCompletedJobs(ctx, userID)
	if err != nil {
		return nil, err
	}

	d.LoyaltyBalance, err = r.GetLoyaltyBalance(ctx, userID)
	if err != nil {
		return nil, err
	}

	err = r.pool.QueryRow(ctx,
		`SELECT COUNT(*) + 1 FROM users WHERE xp_points > (SELECT xp_points FROM users WHERE id = $1)`,
		userID,
	).Scan(&d.LeaderboardRank)
	if err != nil {
		return nil, fmt.Errorf("leaderboard rank: %w", err)
	}

	badges, err := r.GetBadgesByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i, ub := range badges {
		if i == 3 {
			break
		}
		d.LatestBadges = append(d.LatestBadges, ub.Badge)
	}

	return d, nil
}
