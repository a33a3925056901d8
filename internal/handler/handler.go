// Package handler содержит HTTP-обработчики API сервиса хастлхаб.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/hustlehub-system/internal/middleware"
	"github.com/mmeshcher/hustlehub-system/internal/model"
	"github.com/mmeshcher/hustlehub-system/internal/repository"
	"github.com/mmeshcher/hustlehub-system/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, email, username, fullName, password string, role model.Role, referralCode string) (*model.User, error)
	AuthenticateUser(ctx context.Context, email, password string) (int64, error)

	Dashboard(ctx context.Context, userID int64) (*model.Dashboard, error)
	GetUserBadges(ctx context.Context, userID int64) ([]model.UserBadge, error)
	ListBadges(ctx context.Context) ([]model.Badge, error)
	GrantXP(ctx context.Context, adminID, userID, points int64) (*model.GrantResult, error)
	GetXPLog(ctx context.Context, userID int64) ([]model.XPLogEntry, error)
	GetReferrals(ctx context.Context, userID int64) ([]model.Referral, error)
	CreditLoyalty(ctx context.Context, adminID, userID, points int64, source model.LoyaltySource) (*model.LoyaltyPointLog, error)
	GetLoyalty(ctx context.Context, userID int64) ([]model.LoyaltyPointLog, int64, error)
	GetNotifications(ctx context.Context, userID int64) ([]model.Notification, error)
	MarkNotificationsRead(ctx context.Context, userID int64, ids []int64) error

	CreateJob(ctx context.Context, employerID int64, title string, budget float64) (*model.Job, error)
	GetJob(ctx context.Context, id int64) (*model.Job, error)
	ApplyToJob(ctx context.Context, jobID, freelancerID int64) (*model.JobApplication, error)
	DecideApplication(ctx context.Context, applicationID, employerID int64, decision string) (*model.JobApplication, error)
	CompleteJob(ctx context.Context, jobID, employerID int64) (*model.CommissionLog, bool, error)
	CreateReview(ctx context.Context, jobID, reviewerID int64, rating int, comment string) (*model.Review, error)

	GetCommissions(ctx context.Context, userID int64) ([]service.CommissionView, error)
	MarkCommissionPaid(ctx context.Context, adminID, commissionID int64) (*model.CommissionLog, error)
	SubmitExcuse(ctx context.Context, userID, commissionID int64, reason string) (*model.CommissionExcuse, error)
	ReviewExcuse(ctx context.Context, excuseID, reviewerID int64, decision string) (*model.CommissionExcuse, error)
	GetExcuses(ctx context.Context, userID int64) ([]model.CommissionExcuse, error)
}

// Handler реализует HTTP-обработчики API сервиса хастлхаб.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response error", zap.Error(err))
	}
}

func urlParamInt64(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

type registerRequest struct {
	Email        string `json:"email"`
	Username     string `json:"username"`
	FullName     string `json:"full_name"`
	Password     string `json:"password"`
	Role         string `json:"role"`
	ReferralCode string `json:"referral_code"`
}

type authResponse struct {
	Token string `json:"token"`
}

// Register обрабатывает регистрацию нового пользователя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Email == "" || req.Username == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	user, err := h.service.RegisterUser(r.Context(), req.Email, req.Username, req.FullName, req.Password, model.Role(req.Role), req.ReferralCode)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrUserExists):
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
		case errors.Is(err, service.ErrInvalidRole):
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		default:
			h.logger.Error("register user error", zap.Error(err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	token := h.authMiddleware.SetAuthCookie(w, user.ID)
	h.writeJSON(w, http.StatusCreated, authResponse{Token: token})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login выполняет аутентификацию пользователя и выпуск токена.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Email == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID, err := h.service.AuthenticateUser(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.logger.Error("login user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	token := h.authMiddleware.SetAuthCookie(w, userID)
	h.writeJSON(w, http.StatusOK, authResponse{Token: token})
}

type badgeResponse struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Type        string `json:"type"`
}

type dashboardResponse struct {
	Level                 int             `json:"level"`
	XP                    int64           `json:"xp"`
	XPToNextLevel         int64           `json:"xp_to_next_level"`
	LatestBadges          []badgeResponse `json:"latest_badges"`
	CompletedJobsCount    int64           `json:"completed_jobs_count"`
	LoyaltyBalance        int64           `json:"loyalty_balance"`
	LeaderboardRank       int64           `json:"leaderboard_rank"`
	CommissionDueAmount   float64         `json:"commission_due_amount"`
	CommissionDaysLeft    *int            `json:"commission_days_left"`
	CommissionIsSuspended bool            `json:"commission_is_suspended"`
	CanSubmitExcuse       bool            `json:"can_submit_excuse"`
}

func toBadgeResponses(badges []model.Badge) []badgeResponse {
	resp := make([]badgeResponse, 0, len(badges))
	for _, b := range badges {
		resp = append(resp, badgeResponse{
			Name:        b.Name,
			Description: b.Description,
			Icon:        b.Icon,
			Type:        string(b.Type),
		})
	}
	return resp
}

// GetDashboard возвращает сводку панели текущего пользователя.
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	d, err := h.service.Dashboard(r.Context(), userID)
	if err != nil {
		h.logger.Error("get dashboard error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, dashboardResponse{
		Level:                 d.Level,
		XP:                    d.XP,
		XPToNextLevel:         d.XPToNextLevel,
		LatestBadges:          toBadgeResponses(d.LatestBadges),
		CompletedJobsCount:    d.CompletedJobsCount,
		LoyaltyBalance:        d.LoyaltyBalance,
		LeaderboardRank:       d.LeaderboardRank,
		CommissionDueAmount:   d.CommissionDueAmount,
		CommissionDaysLeft:    d.CommissionDaysLeft,
		CommissionIsSuspended: d.CommissionIsSuspended,
		CanSubmitExcuse:       d.CanSubmitExcuse,
	})
}

type userBadgeResponse struct {
	badgeResponse
	AwardedAt string `json:"awarded_at"`
}

// GetUserBadges возвращает бейджи текущего пользователя.
func (h *Handler) GetUserBadges(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	badges, err := h.service.GetUserBadges(r.Context(), userID)
	if err != nil {
		h.logger.Error("get user badges error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(badges) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]userBadgeResponse, 0, len(badges))
	for _, ub := range badges {
		resp = append(resp, userBadgeResponse{
			badgeResponse: badgeResponse{
				Name:        ub.Badge.Name,
				Description: ub.Badge.Description,
				Icon:        ub.Badge.Icon,
				Type:        string(ub.Badge.Type),
			},
			AwardedAt: ub.AwardedAt.Format(time.RFC3339),
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// ListBadges возвращает реестр бейджей платформы.
func (h *Handler) ListBadges(w http.ResponseWriter, r *http.Request) {
	badges, err := h.service.ListBadges(r.Context())
	if err != nil {
		h.logger.Error("list badges error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, toBadgeResponses(badges))
}

type xpLogResponse struct {
	Points      int64  `json:"points"`
	SourceJobID *int64 `json:"source_job_id"`
	CreatedAt   string `json:"created_at"`
}

// GetXPLog возвращает журнал начислений опыта текущего пользователя.
func (h *Handler) GetXPLog(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	entries, err := h.service.GetXPLog(r.Context(), userID)
	if err != nil {
		h.logger.Error("get xp log error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(entries) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]xpLogResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, xpLogResponse{
			Points:      e.Points,
			SourceJobID: e.SourceJobID,
			CreatedAt:   e.CreatedAt.Format(time.RFC3339),
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type grantXPRequest struct {
	Points int64 `json:"points"`
}

type grantXPResponse struct {
	XP            int64           `json:"xp"`
	Level         int             `json:"level"`
	AwardedBadges []badgeResponse `json:"awarded_badges"`
}

// GrantXP начисляет опыт пользователю от имени администратора.
func (h *Handler) GrantXP(w http.ResponseWriter, r *http.Request) {
	adminID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	targetID, ok := urlParamInt64(r, "userID")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req grantXPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	res, err := h.service.GrantXP(r.Context(), adminID, targetID, req.Points)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrForbidden):
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		case errors.Is(err, repository.ErrInvalidPoints):
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		case errors.Is(err, repository.ErrUserNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		default:
			h.logger.Error("grant xp error", zap.Error(err), zap.Int64("userID", targetID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	h.writeJSON(w, http.StatusOK, grantXPResponse{
		XP:            res.NewXP,
		Level:         res.NewLevel,
		AwardedBadges: toBadgeResponses(res.AwardedBadges),
	})
}

type referralResponse struct {
	ReferredUserID int64  `json:"referred_user_id"`
	IsSuccessful   bool   `json:"is_successful"`
	CreatedAt      string `json:"created_at"`
}

// GetReferrals возвращает приглашения текущего пользователя.
func (h *Handler) GetReferrals(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	referrals, err := h.service.GetReferrals(r.Context(), userID)
	if err != nil {
		h.logger.Error("get referrals error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(referrals) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]referralResponse, 0, len(referrals))
	for _, ref := range referrals {
		resp = append(resp, referralResponse{
			ReferredUserID: ref.ReferredUserID,
			IsSuccessful:   ref.IsSuccessful,
			CreatedAt:      ref.CreatedAt.Format(time.RFC3339),
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type creditLoyaltyRequest struct {
	Points int64 `json:"points"`
}

// CreditLoyalty начисляет баллы лояльности пользователю от имени администратора.
func (h *Handler) CreditLoyalty(w http.ResponseWriter, r *http.Request) {
	adminID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	targetID, ok := urlParamInt64(r, "userID")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req creditLoyaltyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	_, err := h.service.CreditLoyalty(r.Context(), adminID, targetID, req.Points, model.LoyaltySourceAdmin)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrForbidden):
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		case errors.Is(err, repository.ErrInvalidPoints):
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		case errors.Is(err, repository.ErrUserNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		default:
			h.logger.Error("credit loyalty error", zap.Error(err), zap.Int64("userID", targetID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusOK)
}

type loyaltyEntryResponse struct {
	Points    int64  `json:"points"`
	Source    string `json:"source"`
	CreatedAt string `json:"created_at"`
}

type loyaltyResponse struct {
	Balance int64                  `json:"balance"`
	Entries []loyaltyEntryResponse `json:"entries"`
}

// GetLoyalty возвращает журнал баллов лояльности и баланс текущего пользователя.
func (h *Handler) GetLoyalty(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	entries, balance, err := h.service.GetLoyalty(r.Context(), userID)
	if err != nil {
		h.logger.Error("get loyalty error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(entries) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := loyaltyResponse{Balance: balance, Entries: make([]loyaltyEntryResponse, 0, len(entries))}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, loyaltyEntryResponse{
			Points:    e.Points,
			Source:    string(e.Source),
			CreatedAt: e.CreatedAt.Format(time.RFC3339),
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type notificationResponse struct {
	ID        int64  `json:"id"`
	Type      string `json:"type"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	IsRead    bool   `json:"is_read"`
	CreatedAt string `json:"created_at"`
}

// GetNotifications возвращает уведомления текущего пользователя.
func (h *Handler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	notifications, err := h.service.GetNotifications(r.Context(), userID)
	if err != nil {
		h.logger.Error("get notifications error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(notifications) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]notificationResponse, 0, len(notifications))
	for _, n := range notifications {
		resp = append(resp, notificationResponse{
			ID:        n.ID,
			Type:      string(n.Type),
			Title:     n.Title,
			Message:   n.Message,
			IsRead:    n.IsRead,
			CreatedAt: n.CreatedAt.Format(time.RFC3339),
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type markReadRequest struct {
	IDs []int64 `json:"ids"`
}

// MarkNotificationsRead помечает уведомления текущего пользователя прочитанными.
func (h *Handler) MarkNotificationsRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req markReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.MarkNotificationsRead(r.Context(), userID, req.IDs); err != nil {
		h.logger.Error("mark notifications read error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}
