package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/hustlehub-system/internal/model"
)

// CreateJob создаёт задание работодателя.
func (r *PostgresRepository) CreateJob(ctx context.Context, employerID int64, title string, budgetCents int64) (*model.Job, error) {
	var j model.Job
	var status string
	err := r.pool.QueryRow(ctx,
		`INSERT INTO jobs (employer_id, title, budget)
		 VALUES ($1, $2, $3)
		 RETURNING id, employer_id, freelancer_id, title, budget, status, created_at`,
		employerID, title, budgetCents,
	).Scan(&j.ID, &j.EmployerID, &j.FreelancerID, &j.Title, &j.BudgetCents, &status, &j.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("insert job: %w", err)
	}
	j.Status = model.JobStatus(status)
	return &j, nil
}

// GetJobByID возвращает задание по идентификатору.
func (r *PostgresRepository) GetJobByID(ctx context.Context, id int64) (*model.Job, error) {
	var j model.Job
	var status string
	err := r.pool.QueryRow(ctx,
		`SELECT id, employer_id, freelancer_id, title, budget, status, created_at
		 FROM jobs WHERE id = $1`,
		id,
	).Scan(&j.ID, &j.EmployerID, &j.FreelancerID, &j.Title, &j.BudgetCents, &status, &j.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("select job: %w", err)
	}
	j.Status = model.JobStatus(status)
	return &j, nil
}

// CreateApplication создаёт отклик фрилансера на открытое задание.
func (r *PostgresRepository) CreateApplication(ctx context.Context, jobID, freelancerID int64) (*model.JobApplication, error) {
	job, err := r.GetJobByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobStatusOpen {
		return nil, ErrJobNotOpen
	}

	var a model.JobApplication
	var status string
	err = r.pool.QueryRow(ctx,
		`INSERT INTO job_applications (job_id, freelancer_id)
		 VALUES ($1, $2)
		 RETURNING id, job_id, freelancer_id, status, applied_at`,
		jobID, freelancerID,
	).Scan(&a.ID, &a.JobID, &a.FreelancerID, &status, &a.AppliedAt)
	if err != nil {
		if isUniqueViolation(err, "") {
			return nil, ErrApplicationExists
		}
		return nil, fmt.Errorf("insert application: %w", err)
	}
	a.Status = model.ApplicationStatus(status)
	return &a, nil
}

// DecideApplication принимает или отклоняет отклик. Решение допустимо только
// из состояния pending и принадлежит работодателю задания. Принятие закрепляет
// фрилансера за заданием; в обоих случаях фрилансеру создаётся уведомление.
func (r *PostgresRepository) DecideApplication(ctx context.Context, applicationID, employerID int64, decision model.ApplicationStatus) (*model.JobApplication, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var a model.JobApplication
	var curStatus string
	var jobEmployerID int64
	var jobTitle string
	err = tx.QueryRow(ctx,
		`SELECT a.id, a.job_id, a.freelancer_id, a.status, a.applied_at, j.employer_id, j.title
		 FROM job_applications a
		 JOIN jobs j ON j.id = a.job_id
		 WHERE a.id = $1
		 FOR UPDATE OF a`,
		applicationID,
	).Scan(&a.ID, &a.JobID, &a.FreelancerID, &curStatus, &a.AppliedAt, &jobEmployerID, &jobTitle)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrApplicationNotFound
		}
		return nil, fmt.Errorf("lock application: %w", err)
	}

	if jobEmployerID != employerID {
		return nil, ErrNotJobParty
	}
	if model.ApplicationStatus(curStatus) != model.ApplicationStatusPending {
		return nil, ErrApplicationNotPending
	}

	_, err = tx.Exec(ctx,
		`UPDATE job_applications SET status = $2 WHERE id = $1`,
		applicationID, string(decision),
	)
	if err != nil {
		return nil, fmt.Errorf("update application: %w", err)
	}
	a.Status = decision

	if decision == model.ApplicationStatusAccepted {
		_, err = tx.Exec(ctx,
			`UPDATE jobs SET freelancer_id = $2 WHERE id = $1`,
			a.JobID, a.FreelancerID,
		)
		if err != nil {
			return nil, fmt.Errorf("assign freelancer: %w", err)
		}
	}

	n := &model.Notification{
		UserID:    a.FreelancerID,
		Title:     fmt.Sprintf("Application for %s %s", jobTitle, decision),
		Message:   fmt.Sprintf("Your application for the job '%s' has been %s.", jobTitle, decision),
		Type:      model.NotificationTypeJobUpdate,
		RelatedID: &a.JobID,
	}
	if err := r.insertNotification(ctx, tx, n); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &a, nil
}

// CountCompletedJobs возвращает число завершённых заданий фрилансера.
func (r *PostgresRepository) CountCompletedJobs(ctx context.Context, freelancerID int64) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM jobs WHERE freelancer_id = $1 AND status = $2`,
		freelancerID, string(model.JobStatusCompleted),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count completed jobs: %w", err)
	}
	return count, nil
}

// CreateReview создаёт отзыв по завершённому заданию и уведомляет адресата.
// Автором может быть любая из сторон задания, адресат — противоположная сторона.
func (r *PostgresRepository) CreateReview(ctx context.Context, jobID, reviewerID int64, rating int, comment string) (*model.Review, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var employerID int64
	var freelancerID *int64
	var status, title string
	var reviewerName string
	err = tx.QueryRow(ctx,
		`SELECT j.employer_id, j.freelancer_id, j.status, j.title, u.full_name
		 FROM jobs j, users u
		 WHERE j.id = $1 AND u.id = $2`,
		jobID, reviewerID,
	).Scan(&employerID, &freelancerID, &status, &title, &reviewerName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("select job: %w", err)
	}

	if model.JobStatus(status) != model.JobStatusCompleted {
		return nil, ErrJobNotCompleted
	}
	if freelancerID == nil {
		return nil, ErrNoFreelancer
	}

	var revieweeID int64
	switch reviewerID {
	case employerID:
		revieweeID = *freelancerID
	case *freelancerID:
		revieweeID = employerID
	default:
		return nil, ErrNotJobParty
	}

	var rev model.Review
	err = tx.QueryRow(ctx,
		`INSERT INTO reviews (job_id, reviewer_id, reviewee_id, rating, comment)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, job_id, reviewer_id, reviewee_id, rating, comment, created_at`,
		jobID, reviewerID, revieweeID, rating, comment,
	).Scan(&rev.ID, &rev.JobID, &rev.ReviewerID, &rev.RevieweeID, &rev.Rating, &rev.Comment, &rev.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "") {
			return nil, ErrReviewExists
		}
		return nil, fmt.Errorf("insert review: %w", err)
	}

	n := &model.Notification{
		UserID:    revieweeID,
		Title:     "You have a new review!",
		Message:   fmt.Sprintf("%s left a review for you on the job '%s'.", reviewerName, title),
		Type:      model.NotificationTypeReview,
		RelatedID: &rev.ID,
	}
	if err := r.insertNotification(ctx, tx, n); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &rev, nil
}

// CountFiveStarReviews возвращает общее число отзывов о пользователе и число
// отзывов с высшей оценкой.
func (r *PostgresRepository) CountFiveStarReviews(ctx context.Context, revieweeID int64) (total, fiveStar int64, err error) {
	err = r.pool.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE rating = 5)
		 FROM reviews WHERE reviewee_id = $1`,
		revieweeID,
	).Scan(&total, &fiveStar)
	if err != nil {
		return 0, 0, fmt.Errorf("count reviews: %w", err)
	}
	return total, fiveStar, nil
}
