// Package model содержит доменные сущности платформы хастлхаб.
package model

import "time"

// Role определяет роль пользователя на платформе.
type Role string

const (
	RoleFreelancer Role = "freelancer"
	RoleEmployer   Role = "employer"
	RoleAdmin      Role = "admin"
)

// User представляет зарегистрированного пользователя платформы.
// Поля XPPoints и Level — кэшированная проекция журнала опыта,
// обновляется транзакционно вместе с каждой записью журнала.
type User struct {
	ID           int64
	Email        string
	Username     string
	FullName     string
	PasswordHash []byte
	Role         Role
	ReferralCode string
	XPPoints     int64
	Level        int
	CreatedAt    time.Time
}

// JobStatus описывает статус задания.
type JobStatus string

const (
	JobStatusOpen      JobStatus = "open"
	JobStatusCompleted JobStatus = "completed"
)

// Job описывает задание работодателя.
type Job struct {
	ID           int64
	EmployerID   int64
	FreelancerID *int64
	Title        string
	BudgetCents  int64
	Status       JobStatus
	CreatedAt    time.Time
}

// ApplicationStatus описывает статус отклика на задание.
type ApplicationStatus string

const (
	ApplicationStatusPending  ApplicationStatus = "pending"
	ApplicationStatusAccepted ApplicationStatus = "accepted"
	ApplicationStatusRejected ApplicationStatus = "rejected"
)

// JobApplication описывает отклик фрилансера на задание.
type JobApplication struct {
	ID           int64
	JobID        int64
	FreelancerID int64
	Status       ApplicationStatus
	AppliedAt    time.Time
}

// BadgeType различает бейджи уровня и бейджи достижений.
type BadgeType string

const (
	BadgeTypeLevel       BadgeType = "level"
	BadgeTypeAchievement BadgeType = "achievement"
)

// Badge описывает именованную награду платформы.
type Badge struct {
	ID          int64
	Name        string
	Description string
	Icon        string
	Type        BadgeType
}

// UserBadge фиксирует факт выдачи бейджа пользователю.
// Пара (пользователь, бейдж) уникальна: бейдж выдаётся не более одного раза.
type UserBadge struct {
	Badge     Badge
	AwardedAt time.Time
}

// XPLogEntry — неизменяемая запись журнала начислений опыта.
type XPLogEntry struct {
	ID          int64
	UserID      int64
	Points      int64
	SourceJobID *int64
	CreatedAt   time.Time
}

// Referral описывает приглашение нового пользователя.
// У приглашённого пользователя может быть не более одной входящей записи.
type Referral struct {
	ID             int64
	ReferrerID     int64
	ReferredUserID int64
	IsSuccessful   bool
	CreatedAt      time.Time
}

// LoyaltySource определяет источник начисления баллов лояльности.
type LoyaltySource string

const (
	LoyaltySourceJob      LoyaltySource = "job"
	LoyaltySourceReferral LoyaltySource = "referral"
	LoyaltySourceAdmin    LoyaltySource = "admin_credit"
)

// LoyaltyPointLog — неизменяемая запись журнала баллов лояльности.
type LoyaltyPointLog struct {
	ID        int64
	UserID    int64
	Points    int64
	Source    LoyaltySource
	CreatedAt time.Time
}

// CommissionStatus описывает статус комиссии платформы.
type CommissionStatus string

const (
	CommissionStatusDue  CommissionStatus = "due"
	CommissionStatusPaid CommissionStatus = "paid"
)

// CommissionLog описывает комиссию платформы по завершённому заданию.
// Запись создаётся один раз на задание, суммы после расчёта не меняются.
type CommissionLog struct {
	ID                   int64
	JobID                int64
	TotalAmountCents     int64
	CommissionPercentage int64
	CommissionCents      int64
	FreelancerCents      int64
	Status               CommissionStatus
	CompletionDate       time.Time
	DueDate              *time.Time
	HasExcuse            bool
	CreatedAt            time.Time
}

// ExcuseStatus описывает статус заявления об отсрочке комиссии.
type ExcuseStatus string

const (
	ExcuseStatusPending  ExcuseStatus = "pending"
	ExcuseStatusApproved ExcuseStatus = "approved"
	ExcuseStatusRejected ExcuseStatus = "rejected"
)

// CommissionExcuse описывает заявление фрилансера об отсрочке комиссии.
// Переходы pending -> approved и pending -> rejected терминальны.
type CommissionExcuse struct {
	ID           int64
	UserID       int64
	CommissionID *int64
	Reason       string
	Status       ExcuseStatus
	CreatedAt    time.Time
	ReviewedAt   *time.Time
	ReviewedBy   *int64
}

// NotificationType определяет тип уведомления.
type NotificationType string

const (
	NotificationTypeJobUpdate   NotificationType = "job_update"
	NotificationTypeCommission  NotificationType = "commission"
	NotificationTypeReview      NotificationType = "review"
	NotificationTypeBadgeUnlock NotificationType = "badge_unlock"
	NotificationTypeLevelUp     NotificationType = "level_up"
	NotificationTypeSystem      NotificationType = "system"
)

// Notification описывает уведомление пользователя.
type Notification struct {
	ID        int64
	UserID    int64
	Title     string
	Message   string
	Type      NotificationType
	RelatedID *int64
	IsRead    bool
	CreatedAt time.Time
}

// Review описывает отзыв по завершённому заданию.
type Review struct {
	ID         int64
	JobID      int64
	ReviewerID int64
	RevieweeID int64
	Rating     int
	Comment    string
	CreatedAt  time.Time
}

// GrantResult описывает итог начисления опыта.
type GrantResult struct {
	NewXP         int64
	NewLevel      int
	AwardedBadges []Badge
}

// Dashboard содержит сводку для панели фрилансера.
type Dashboard struct {
	Level                 int
	XP                    int64
	XPToNextLevel         int64
	LatestBadges          []Badge
	CompletedJobsCount    int64
	LoyaltyBalance        int64
	LeaderboardRank       int64
	CommissionDueAmount   float64
	CommissionDaysLeft    *int
	CommissionIsSuspended bool
	CanSubmitExcuse       bool
}
