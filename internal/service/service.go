// Package service реализует бизнес-логику платформы хастлхаб.
package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/mmeshcher/hustlehub-system/internal/model"
	"github.com/mmeshcher/hustlehub-system/internal/progression"
	"github.com/mmeshcher/hustlehub-system/internal/repository"
)

// ErrInvalidCredentials возвращается при неверной паре email/пароль.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidRole возвращается при регистрации с неизвестной ролью.
	ErrInvalidRole = errors.New("invalid role")
	// ErrForbidden возвращается, когда операция недоступна в роли пользователя.
	ErrForbidden = errors.New("operation is not permitted for this role")
	// ErrInvalidDecision возвращается при неизвестном решении по заявлению или отклику.
	ErrInvalidDecision = errors.New("invalid decision")
	// ErrInvalidRating возвращается при оценке вне диапазона 1..5.
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
	// ErrEmptyReason возвращается при подаче заявления без причины.
	ErrEmptyReason = errors.New("excuse reason must not be empty")
)

// Порог достижения Job Completionist: 25 завершённых заданий.
const jobCompletionistThreshold = 25

// Порог достижения Top Rated Freelancer: не меньше 10 отзывов, все с высшей оценкой.
const topRatedReviewsThreshold = 10

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error

	CreateUser(ctx context.Context, u *model.User) (int64, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	GetUserByReferralCode(ctx context.Context, code string) (*model.User, error)

	GrantXP(ctx context.Context, userID, points int64, sourceJobID *int64, table *progression.Table) (*model.GrantResult, error)
	HasXPForJob(ctx context.Context, userID, jobID int64) (bool, error)
	AwardAchievementBadge(ctx context.Context, userID int64, spec progression.BadgeSpec) (*model.Badge, bool, error)
	GetXPLogByUser(ctx context.Context, userID int64) ([]model.XPLogEntry, error)
	ReconcileXP(ctx context.Context, userID int64, table *progression.Table) (bool, error)
	RecentlyActiveUsers(ctx context.Context, since time.Time, limit int) ([]int64, error)
	GetBadgesByUser(ctx context.Context, userID int64) ([]model.UserBadge, error)
	ListBadges(ctx context.Context) ([]model.Badge, error)

	CreateReferral(ctx context.Context, referrerID, referredUserID int64, successful bool, bonusPoints int64) (*model.Referral, error)
	GetReferralsByUser(ctx context.Context, referrerID int64) ([]model.Referral, error)
	CreditLoyalty(ctx context.Context, userID, points int64, source model.LoyaltySource) (*model.LoyaltyPointLog, error)
	GetLoyaltyByUser(ctx context.Context, userID int64) ([]model.LoyaltyPointLog, error)
	GetLoyaltyBalance(ctx context.Context, userID int64) (int64, error)

	CreateJob(ctx context.Context, employerID int64, title string, budgetCents int64) (*model.Job, error)
	GetJobByID(ctx context.Context, id int64) (*model.Job, error)
	CreateApplication(ctx context.Context, jobID, freelancerID int64) (*model.JobApplication, error)
	DecideApplication(ctx context.Context, applicationID, employerID int64, decision model.ApplicationStatus) (*model.JobApplication, error)
	CountCompletedJobs(ctx context.Context, freelancerID int64) (int64, error)
	CreateReview(ctx context.Context, jobID, reviewerID int64, rating int, comment string) (*model.Review, error)
	CountFiveStarReviews(ctx context.Context, revieweeID int64) (total, fiveStar int64, err error)

	CompleteJobCommission(ctx context.Context, jobID, employerID, percent int64, dueDays int) (*model.CommissionLog, int64, bool, error)
	MarkCommissionPaid(ctx context.Context, commissionID int64) (*model.CommissionLog, error)
	GetCommissionsForUser(ctx context.Context, userID int64, role model.Role) ([]model.CommissionLog, error)
	CreateExcuse(ctx context.Context, userID, commissionID int64, reason string) (*model.CommissionExcuse, error)
	ReviewExcuse(ctx context.Context, excuseID int64, decision model.ExcuseStatus, reviewerID int64) (*model.CommissionExcuse, error)
	GetExcusesByUser(ctx context.Context, userID int64) ([]model.CommissionExcuse, error)
	GetDashboardData(ctx context.Context, userID int64) (*repository.DashboardData, error)

	GetNotificationsByUser(ctx context.Context, userID int64) ([]model.Notification, error)
	MarkNotificationsRead(ctx context.Context, userID int64, ids []int64) error
}

// Options задаёт бизнес-параметры сервиса.
type Options struct {
	CommissionPercent   int64
	CommissionDueDays   int
	CompletionXP        int64
	ReferralBonusPoints int64
}

// Service содержит бизнес-логику платформы хастлхаб.
type Service struct {
	repo  Repository
	table *progression.Table
	opts  Options
}

// NewService создаёт сервис с указанным репозиторием, таблицей прогрессии и параметрами.
func NewService(repo Repository, table *progression.Table, opts Options) *Service {
	if table == nil {
		table = progression.Default()
	}
	return &Service{
		repo:  repo,
		table: table,
		opts:  opts,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterUser регистрирует нового пользователя. Валидный реферальный код
// создаёт успешное приглашение и начисляет бонус пригласившему; неизвестный
// код регистрацию не блокирует.
func (s *Service) RegisterUser(ctx context.Context, email, username, fullName, password string, role model.Role, referralCode string) (*model.User, error) {
	switch role {
	case model.RoleFreelancer, model.RoleEmployer, model.RoleAdmin:
	default:
		return nil, ErrInvalidRole
	}

	var user *model.User
	var id int64

	// Сгенерированный код может столкнуться с существующим, тогда пробуем снова.
	for attempt := 0; attempt < 5; attempt++ {
		user = &model.User{
			Email:        email,
			Username:     username,
			FullName:     fullName,
			PasswordHash: hashPassword(email, password),
			Role:         role,
			ReferralCode: generateReferralCode(username),
		}

		var err error
		id, err = s.repo.CreateUser(ctx, user)
		if err == nil {
			break
		}
		if errors.Is(err, repository.ErrReferralCodeTaken) {
			continue
		}
		return nil, err
	}
	if id == 0 {
		return nil, fmt.Errorf("generate unique referral code: attempts exhausted")
	}
	user.ID = id
	user.Level = 1

	if referralCode != "" {
		referrer, err := s.repo.GetUserByReferralCode(ctx, referralCode)
		switch {
		case errors.Is(err, repository.ErrUserNotFound):
			// Неверный код не мешает регистрации.
		case err != nil:
			return nil, err
		default:
			_, err = s.repo.CreateReferral(ctx, referrer.ID, user.ID, true, s.opts.ReferralBonusPoints)
			if err != nil && !errors.Is(err, repository.ErrReferralExists) {
				return nil, err
			}
		}
	}

	return user, nil
}

// AuthenticateUser проверяет email и пароль пользователя и возвращает его идентификатор.
func (s *Service) AuthenticateUser(ctx context.Context, email, password string) (int64, error) {
	u, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return 0, ErrInvalidCredentials
		}
		return 0, err
	}

	hashed := hashPassword(email, password)
	if hex.EncodeToString(hashed) != hex.EncodeToString(u.PasswordHash) {
		return 0, ErrInvalidCredentials
	}

	return u.ID, nil
}

func hashPassword(email, password string) []byte {
	sum := sha256.Sum256([]byte(email + ":" + password))
	return sum[:]
}

// generateReferralCode строит код вида "username-a1b2c3" из упрощённого
// имени пользователя и случайного суффикса.
func generateReferralCode(username string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(username) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	base := b.String()
	if base == "" {
		base = "user"
	}

	suffix := make([]byte, 3)
	_, _ = rand.Read(suffix)

	return base + "-" + hex.EncodeToString(suffix)
}

// GetUser возвращает пользователя по идентификатору.
func (s *Service) GetUser(ctx context.Context, id int64) (*model.User, error) {
	return s.repo.GetUserByID(ctx, id)
}

// GrantXP начисляет пользователю опыт от имени администратора и возвращает
// новый итог, уровень и выданные бейджи.
func (s *Service) GrantXP(ctx context.Context, adminID, userID, points int64) (*model.GrantResult, error) {
	admin, err := s.repo.GetUserByID(ctx, adminID)
	if err != nil {
		return nil, err
	}
	if admin.Role != model.RoleAdmin {
		return nil, ErrForbidden
	}
	if points <= 0 {
		return nil, repository.ErrInvalidPoints
	}
	return s.repo.GrantXP(ctx, userID, points, nil, s.table)
}

// GetXPLog возвращает журнал начислений опыта пользователя.
func (s *Service) GetXPLog(ctx context.Context, userID int64) ([]model.XPLogEntry, error) {
	return s.repo.GetXPLogByUser(ctx, userID)
}

// GetUserBadges возвращает бейджи пользователя.
func (s *Service) GetUserBadges(ctx context.Context, userID int64) ([]model.UserBadge, error) {
	return s.repo.GetBadgesByUser(ctx, userID)
}

// ListBadges возвращает реестр бейджей платформы.
func (s *Service) ListBadges(ctx context.Context) ([]model.Badge, error) {
	return s.repo.ListBadges(ctx)
}

// GetReferrals возвращает приглашения пользователя.
func (s *Service) GetReferrals(ctx context.Context, userID int64) ([]model.Referral, error) {
	return s.repo.GetReferralsByUser(ctx, userID)
}

// CreditLoyalty начисляет баллы лояльности от имени администратора.
func (s *Service) CreditLoyalty(ctx context.Context, adminID, userID, points int64, source model.LoyaltySource) (*model.LoyaltyPointLog, error) {
	admin, err := s.repo.GetUserByID(ctx, adminID)
	if err != nil {
		return nil, err
	}
	if admin.Role != model.RoleAdmin {
		return nil, ErrForbidden
	}
	if points <= 0 {
		return nil, repository.ErrInvalidPoints
	}
	return s.repo.CreditLoyalty(ctx, userID, points, source)
}

// GetLoyalty возвращает журнал баллов лояльности и текущий баланс.
func (s *Service) GetLoyalty(ctx context.Context, userID int64) ([]model.LoyaltyPointLog, int64, error) {
	log, err := s.repo.GetLoyaltyByUser(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	balance, err := s.repo.GetLoyaltyBalance(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	return log, balance, nil
}

// CreateJob создаёт задание. Доступно работодателю и администратору.
func (s *Service) CreateJob(ctx context.Context, employerID int64, title string, budget float64) (*model.Job, error) {
	employer, err := s.repo.GetUserByID(ctx, employerID)
	if err != nil {
		return nil, err
	}
	if employer.Role != model.RoleEmployer && employer.Role != model.RoleAdmin {
		return nil, ErrForbidden
	}

	budgetCents := int64(math.Round(budget * 100))
	if budgetCents < 0 {
		return nil, fmt.Errorf("budget must not be negative")
	}

	return s.repo.CreateJob(ctx, employerID, title, budgetCents)
}

// GetJob возвращает задание по идентификатору.
func (s *Service) GetJob(ctx context.Context, id int64) (*model.Job, error) {
	return s.repo.GetJobByID(ctx, id)
}

// ApplyToJob создаёт отклик фрилансера на задание.
func (s *Service) ApplyToJob(ctx context.Context, jobID, freelancerID int64) (*model.JobApplication, error) {
	freelancer, err := s.repo.GetUserByID(ctx, freelancerID)
	if err != nil {
		return nil, err
	}
	if freelancer.Role != model.RoleFreelancer {
		return nil, ErrForbidden
	}
	return s.repo.CreateApplication(ctx, jobID, freelancerID)
}

// DecideApplication принимает или отклоняет отклик от имени работодателя задания.
func (s *Service) DecideApplication(ctx context.Context, applicationID, employerID int64, decision string) (*model.JobApplication, error) {
	var status model.ApplicationStatus
	switch decision {
	case string(model.ApplicationStatusAccepted):
		status = model.ApplicationStatusAccepted
	case string(model.ApplicationStatusRejected):
		status = model.ApplicationStatusRejected
	default:
		return nil, ErrInvalidDecision
	}
	return s.repo.DecideApplication(ctx, applicationID, employerID, status)
}

// CompleteJob завершает задание: фиксирует комиссию, начисляет фрилансеру
// опыт за выполненную работу и проверяет бейдж за число завершённых заданий.
// Повторный вызов по тому же заданию возвращает уже существующую комиссию
// и не порождает новых начислений.
func (s *Service) CompleteJob(ctx context.Context, jobID, employerID int64) (*model.CommissionLog, bool, error) {
	log, freelancerID, created, err := s.repo.CompleteJobCommission(ctx, jobID, employerID, s.opts.CommissionPercent, s.opts.CommissionDueDays)
	if err != nil {
		return nil, false, err
	}

	if !created {
		// Комиссия записана отдельной транзакцией от начисления опыта, поэтому
		// сбой между ними мог оставить фрилансера без записи в журнале.
		// Повторный вызов дочисляет потерянный опыт по журналу.
		if err := s.backfillCompletionXP(ctx, freelancerID, jobID); err != nil {
			return nil, false, err
		}
		return log, false, nil
	}

	if s.opts.CompletionXP > 0 {
		if _, err := s.repo.GrantXP(ctx, freelancerID, s.opts.CompletionXP, &jobID, s.table); err != nil {
			return nil, false, fmt.Errorf("grant completion xp: %w", err)
		}
	}

	if err := s.checkJobCompletionist(ctx, freelancerID); err != nil {
		return nil, false, err
	}

	return log, true, nil
}

// backfillCompletionXP начисляет опыт за завершённое задание, если записи
// о нём в журнале ещё нет. Уже начисленный опыт не дублируется.
func (s *Service) backfillCompletionXP(ctx context.Context, freelancerID, jobID int64) error {
	if s.opts.CompletionXP <= 0 {
		return nil
	}

	granted, err := s.repo.HasXPForJob(ctx, freelancerID, jobID)
	if err != nil {
		return err
	}
	if granted {
		return nil
	}

	if _, err := s.repo.GrantXP(ctx, freelancerID, s.opts.CompletionXP, &jobID, s.table); err != nil {
		return fmt.Errorf("grant completion xp: %w", err)
	}

	return s.checkJobCompletionist(ctx, freelancerID)
}

func (s *Service) checkJobCompletionist(ctx context.Context, freelancerID int64) error {
	completed, err := s.repo.CountCompletedJobs(ctx, freelancerID)
	if err != nil {
		return err
	}
	if completed >= jobCompletionistThreshold {
		return s.awardAchievement(ctx, freelancerID, "Job Completionist")
	}
	return nil
}

func (s *Service) awardAchievement(ctx context.Context, userID int64, name string) error {
	for _, spec := range progression.AchievementBadges() {
		if spec.Name != name {
			continue
		}
		if _, _, err := s.repo.AwardAchievementBadge(ctx, userID, spec); err != nil {
			return fmt.Errorf("award achievement %q: %w", name, err)
		}
		return nil
	}
	return nil
}

// MarkCommissionPaid отмечает комиссию оплаченной от имени администратора.
func (s *Service) MarkCommissionPaid(ctx context.Context, adminID, commissionID int64) (*model.CommissionLog, error) {
	admin, err := s.repo.GetUserByID(ctx, adminID)
	if err != nil {
		return nil, err
	}
	if admin.Role != model.RoleAdmin {
		return nil, ErrForbidden
	}
	return s.repo.MarkCommissionPaid(ctx, commissionID)
}

// CommissionView описывает комиссию с суммами в денежных единицах.
type CommissionView struct {
	ID                   int64
	JobID                int64
	TotalAmount          float64
	CommissionPercentage int64
	CommissionAmount     float64
	FreelancerEarning    float64
	Status               model.CommissionStatus
	CompletionDate       time.Time
	DueDate              *time.Time
	HasExcuse            bool
}

// GetCommissions возвращает комиссии, видимые пользователю.
func (s *Service) GetCommissions(ctx context.Context, userID int64) ([]CommissionView, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	logs, err := s.repo.GetCommissionsForUser(ctx, userID, user.Role)
	if err != nil {
		return nil, err
	}

	views := make([]CommissionView, 0, len(logs))
	for _, c := range logs {
		views = append(views, CommissionView{
			ID:                   c.ID,
			JobID:                c.JobID,
			TotalAmount:          float64(c.TotalAmountCents) / 100,
			CommissionPercentage: c.CommissionPercentage,
			CommissionAmount:     float64(c.CommissionCents) / 100,
			FreelancerEarning:    float64(c.FreelancerCents) / 100,
			Status:               c.Status,
			CompletionDate:       c.CompletionDate,
			DueDate:              c.DueDate,
			HasExcuse:            c.HasExcuse,
		})
	}
	return views, nil
}

// SubmitExcuse подаёт заявление об отсрочке комиссии.
func (s *Service) SubmitExcuse(ctx context.Context, userID, commissionID int64, reason string) (*model.CommissionExcuse, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, ErrEmptyReason
	}
	return s.repo.CreateExcuse(ctx, userID, commissionID, reason)
}

// ReviewExcuse рассматривает заявление от имени администратора.
func (s *Service) ReviewExcuse(ctx context.Context, excuseID, reviewerID int64, decision string) (*model.CommissionExcuse, error) {
	var status model.ExcuseStatus
	switch decision {
	case string(model.ExcuseStatusApproved):
		status = model.ExcuseStatusApproved
	case string(model.ExcuseStatusRejected):
		status = model.ExcuseStatusRejected
	default:
		return nil, ErrInvalidDecision
	}

	reviewer, err := s.repo.GetUserByID(ctx, reviewerID)
	if err != nil {
		return nil, err
	}
	if reviewer.Role != model.RoleAdmin {
		return nil, ErrForbidden
	}

	return s.repo.ReviewExcuse(ctx, excuseID, status, reviewerID)
}

// GetExcuses возвращает заявления пользователя.
func (s *Service) GetExcuses(ctx context.Context, userID int64) ([]model.CommissionExcuse, error) {
	return s.repo.GetExcusesByUser(ctx, userID)
}

// CreateReview создаёт отзыв по завершённому заданию и проверяет бейдж
// за серию отзывов с высшей оценкой у адресата.
func (s *Service) CreateReview(ctx context.Context, jobID, reviewerID int64, rating int, comment string) (*model.Review, error) {
	if rating < 1 || rating > 5 {
		return nil, ErrInvalidRating
	}

	review, err := s.repo.CreateReview(ctx, jobID, reviewerID, rating, comment)
	if err != nil {
		return nil, err
	}

	total, fiveStar, err := s.repo.CountFiveStarReviews(ctx, review.RevieweeID)
	if err != nil {
		return nil, err
	}
	if total >= topRatedReviewsThreshold && fiveStar == total {
		if err := s.awardAchievement(ctx, review.RevieweeID, "Top Rated Freelancer"); err != nil {
			return nil, err
		}
	}

	return review, nil
}

// Dashboard собирает сводку панели фрилансера.
func (s *Service) Dashboard(ctx context.Context, userID int64) (*model.Dashboard, error) {
	data, err := s.repo.GetDashboardData(ctx, userID)
	if err != nil {
		return nil, err
	}

	d := &model.Dashboard{
		Level:               data.Level,
		XP:                  data.XP,
		LatestBadges:        data.LatestBadges,
		CompletedJobsCount:  data.CompletedJobs,
		LoyaltyBalance:      data.LoyaltyBalance,
		LeaderboardRank:     data.LeaderboardRank,
		CommissionDueAmount: float64(data.OverdueCents) / 100,
	}

	if next, ok := s.table.NextLevelThreshold(data.Level); ok {
		remaining := next - data.XP
		if remaining < 0 {
			remaining = 0
		}
		d.XPToNextLevel = remaining
	}

	if data.SoonestDueDate != nil {
		days := daysUntil(*data.SoonestDueDate, time.Now().UTC())
		d.CommissionDaysLeft = &days
	}

	overdue := data.OverdueCents > 0
	d.CommissionIsSuspended = overdue && !data.HasPendingExcuse
	d.CanSubmitExcuse = overdue && !data.HasPendingExcuse

	return d, nil
}

// daysUntil возвращает число календарных дней от now до due;
// отрицательное значение означает просрочку.
func daysUntil(due, now time.Time) int {
	dueDay := time.Date(due.Year(), due.Month(), due.Day(), 0, 0, 0, 0, time.UTC)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return int(dueDay.Sub(today) / (24 * time.Hour))
}

// GetNotifications возвращает уведомления пользователя.
func (s *Service) GetNotifications(ctx context.Context, userID int64) ([]model.Notification, error) {
	return s.repo.GetNotificationsByUser(ctx, userID)
}

// MarkNotificationsRead помечает уведомления пользователя прочитанными.
func (s *Service) MarkNotificationsRead(ctx context.Context, userID int64, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	return s.repo.MarkNotificationsRead(ctx, userID, ids)
}

// StartLedgerReconciliation выполняет фоновую сверку кэшированных счётчиков
// опыта с журналом у недавно активных пользователей. Блокирует до отмены
// контекста.
func (s *Service) StartLedgerReconciliation(ctx context.Context, interval time.Duration) {
	if s.repo == nil {
		return
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.reconcileBatch(ctx, interval)
		}
	}
}

func (s *Service) reconcileBatch(ctx context.Context, window time.Duration) {
	users, err := s.repo.RecentlyActiveUsers(ctx, time.Now().Add(-2*window), 100)
	if err != nil {
		return
	}

	for _, id := range users {
		_, _ = s.repo.ReconcileXP(ctx, id, s.table)
	}
}
