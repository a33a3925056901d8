package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/hustlehub-system/internal/middleware"
	"github.com/mmeshcher/hustlehub-system/internal/model"
	"github.com/mmeshcher/hustlehub-system/internal/repository"
	"github.com/mmeshcher/hustlehub-system/internal/service"
)

type stubService struct {
	registerUser *model.User
	registerErr  error

	authUserID int64
	authErr    error

	dashboard    *model.Dashboard
	dashboardErr error

	userBadges    []model.UserBadge
	userBadgesErr error

	allBadges []model.Badge

	grantResult *model.GrantResult
	grantErr    error

	xpLog []model.XPLogEntry

	referrals []model.Referral

	creditLoyaltyErr error

	loyaltyEntries []model.LoyaltyPointLog
	loyaltyBalance int64

	notifications []model.Notification
	markReadErr   error

	createdJob   *model.Job
	createJobErr error

	job    *model.Job
	jobErr error

	application *model.JobApplication
	applyErr    error

	decidedApp *model.JobApplication
	decideErr  error

	completedLog     *model.CommissionLog
	completedCreated bool
	completeErr      error

	review    *model.Review
	reviewErr error

	commissions []service.CommissionView

	paidLog *model.CommissionLog
	payErr  error

	excuse          *model.CommissionExcuse
	submitExcuseErr error
	reviewedExcuse  *model.CommissionExcuse
	reviewExcuseErr error
	excuses         []model.CommissionExcuse
}

func (s *stubService) RegisterUser(ctx context.Context, email, username, fullName, password string, role model.Role, referralCode string) (*model.User, error) {
	return s.registerUser, s.registerErr
}

func (s *stubService) AuthenticateUser(ctx context.Context, email, password string) (int64, error) {
	return s.authUserID, s.authErr
}

func (s *stubService) Dashboard(ctx context.Context, userID int64) (*model.Dashboard, error) {
	return s.dashboard, s.dashboardErr
}

func (s *stubService) GetUserBadges(ctx context.Context, userID int64) ([]model.UserBadge, error) {
	return s.userBadges, s.userBadgesErr
}

func (s *stubService) ListBadges(ctx context.Context) ([]model.Badge, error) {
	return s.allBadges, nil
}

func (s *stubService) GrantXP(ctx context.Context, adminID, userID, points int64) (*model.GrantResult, error) {
	return s.grantResult, s.grantErr
}

func (s *stubService) GetXPLog(ctx context.Context, userID int64) ([]model.XPLogEntry, error) {
	return s.xpLog, nil
}

func (s *stubService) GetReferrals(ctx context.Context, userID int64) ([]model.Referral, error) {
	return s.referrals, nil
}

func (s *stubService) CreditLoyalty(ctx context.Context, adminID, userID, points int64, source model.LoyaltySource) (*model.LoyaltyPointLog, error) {
	return nil, s.creditLoyaltyErr
}

func (s *stubService) GetLoyalty(ctx context.Context, userID int64) ([]model.LoyaltyPointLog, int64, error) {
	return s.loyaltyEntries, s.loyaltyBalance, nil
}

func (s *stubService) GetNotifications(ctx context.Context, userID int64) ([]model.Notification, error) {
	return s.notifications, nil
}

func (s *stubService) MarkNotificationsRead(ctx context.Context, userID int64, ids []int64) error {
	return s.markReadErr
}

func (s *stubService) CreateJob(ctx context.Context, employerID int64, title string, budget float64) (*model.Job, error) {
	return s.createdJob, s.createJobErr
}

func (s *stubService) GetJob(ctx context.Context, id int64) (*model.Job, error) {
	return s.job, s.jobErr
}

func (s *stubService) ApplyToJob(ctx context.Context, jobID, freelancerID int64) (*model.JobApplication, error) {
	return s.application, s.applyErr
}

func (s *stubService) DecideApplication(ctx context.Context, applicationID, employerID int64, decision string) (*model.JobApplication, error) {
	return s.decidedApp, s.decideErr
}

func (s *stubService) CompleteJob(ctx context.Context, jobID, employerID int64) (*model.CommissionLog, bool, error) {
	return s.completedLog, s.completedCreated, s.completeErr
}

func (s *stubService) CreateReview(ctx context.Context, jobID, reviewerID int64, rating int, comment string) (*model.Review, error) {
	return s.review, s.reviewErr
}

func (s *stubService) GetCommissions(ctx context.Context, userID int64) ([]service.CommissionView, error) {
	return s.commissions, nil
}

func (s *stubService) MarkCommissionPaid(ctx context.Context, adminID, commissionID int64) (*model.CommissionLog, error) {
	return s.paidLog, s.payErr
}

func (s *stubService) SubmitExcuse(ctx context.Context, userID, commissionID int64, reason string) (*model.CommissionExcuse, error) {
	return s.excuse, s.submitExcuseErr
}

func (s *stubService) ReviewExcuse(ctx context.Context, excuseID, reviewerID int64, decision string) (*model.CommissionExcuse, error) {
	return s.reviewedExcuse, s.reviewExcuseErr
}

func (s *stubService) GetExcuses(ctx context.Context, userID int64) ([]model.CommissionExcuse, error) {
	return s.excuses, nil
}

func newTestHandler(t *testing.T, svc Service) (*Handler, *middleware.AuthMiddleware) {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	auth := middleware.NewAuthMiddleware("test-secret")

	return NewHandler(svc, logger, auth), auth
}

func doRequest(t *testing.T, h *Handler, auth *middleware.AuthMiddleware, method, path string, body any, userID int64) *http.Response {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if userID != 0 {
		req.Header.Set("Authorization", "Bearer "+auth.IssueToken(userID))
	}

	rec := httptest.NewRecorder()
	h.SetupRouter().ServeHTTP(rec, req)
	return rec.Result()
}

func TestRegister_Success(t *testing.T) {
	svc := &stubService{
		registerUser: &model.User{ID: 42, Email: "ann@example.com", Username: "ann"},
	}
	h, auth := newTestHandler(t, svc)

	body := registerRequest{
		Email:    "ann@example.com",
		Username: "ann",
		Password: "pass",
		Role:     "freelancer",
	}

	res := doRequest(t, h, auth, http.MethodPost, "/api/user/register", body, 0)
	defer res.Body.Close()

	if res.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusCreated)
	}

	var resp authResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("empty token in register response")
	}
}

func TestRegister_Conflict(t *testing.T) {
	svc := &stubService{registerErr: repository.ErrUserExists}
	h, auth := newTestHandler(t, svc)

	body := registerRequest{Email: "ann@example.com", Username: "ann", Password: "pass"}

	res := doRequest(t, h, auth, http.MethodPost, "/api/user/register", body, 0)
	defer res.Body.Close()

	if res.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusConflict)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	svc := &stubService{authErr: service.ErrInvalidCredentials}
	h, auth := newTestHandler(t, svc)

	body := loginRequest{Email: "ann@example.com", Password: "wrong"}

	res := doRequest(t, h, auth, http.MethodPost, "/api/user/login", body, 0)
	defer res.Body.Close()

	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnauthorized)
	}
}

func TestProtectedRoute_RequiresToken(t *testing.T) {
	h, auth := newTestHandler(t, &stubService{})

	res := doRequest(t, h, auth, http.MethodGet, "/api/user/dashboard", nil, 0)
	defer res.Body.Close()

	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnauthorized)
	}
}

func TestGetDashboard(t *testing.T) {
	daysLeft := -3
	svc := &stubService{
		dashboard: &model.Dashboard{
			Level:                 4,
			XP:                    450,
			XPToNextLevel:         150,
			LatestBadges:          []model.Badge{{Name: "Contender", Type: model.BadgeTypeLevel}},
			CompletedJobsCount:    6,
			LoyaltyBalance:        200,
			LeaderboardRank:       11,
			CommissionDueAmount:   30.50,
			CommissionDaysLeft:    &daysLeft,
			CommissionIsSuspended: true,
			CanSubmitExcuse:       true,
		},
	}
	h, auth := newTestHandler(t, svc)

	res := doRequest(t, h, auth, http.MethodGet, "/api/user/dashboard", nil, 7)
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var resp dashboardResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Level != 4 || resp.XP != 450 || resp.XPToNextLevel != 150 {
		t.Errorf("progress fields = %d/%d/%d, want 4/450/150", resp.Level, resp.XP, resp.XPToNextLevel)
	}
	if resp.CommissionDaysLeft == nil || *resp.CommissionDaysLeft != -3 {
		t.Errorf("days left = %v, want -3", resp.CommissionDaysLeft)
	}
	if !resp.CommissionIsSuspended || !resp.CanSubmitExcuse {
		t.Error("suspension flags lost in response")
	}
	if len(resp.LatestBadges) != 1 || resp.LatestBadges[0].Name != "Contender" {
		t.Errorf("latest badges = %v", resp.LatestBadges)
	}
}

func TestGetUserBadges_NoContent(t *testing.T) {
	h, auth := newTestHandler(t, &stubService{})

	res := doRequest(t, h, auth, http.MethodGet, "/api/user/badges", nil, 7)
	defer res.Body.Close()

	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusNoContent)
	}
}

func TestCompleteJob_CreatedAndReplay(t *testing.T) {
	log := &model.CommissionLog{
		ID:                   1,
		JobID:                10,
		TotalAmountCents:     15000,
		CommissionPercentage: 20,
		CommissionCents:      3000,
		FreelancerCents:      12000,
		Status:               model.CommissionStatusDue,
		CompletionDate:       time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
	}

	svc := &stubService{completedLog: log, completedCreated: true}
	h, auth := newTestHandler(t, svc)

	res := doRequest(t, h, auth, http.MethodPost, "/api/jobs/10/complete", nil, 7)
	defer res.Body.Close()
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("first completion status = %d, want %d", res.StatusCode, http.StatusCreated)
	}

	var resp commissionResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.CommissionAmount != 30.00 || resp.FreelancerEarning != 120.00 {
		t.Errorf("split = %.2f/%.2f, want 30.00/120.00", resp.CommissionAmount, resp.FreelancerEarning)
	}

	svc.completedCreated = false
	res2 := doRequest(t, h, auth, http.MethodPost, "/api/jobs/10/complete", nil, 7)
	defer res2.Body.Close()
	if res2.StatusCode != http.StatusOK {
		t.Fatalf("replay status = %d, want %d", res2.StatusCode, http.StatusOK)
	}
}

func TestCompleteJob_NoFreelancer(t *testing.T) {
	svc := &stubService{completeErr: repository.ErrNoFreelancer}
	h, auth := newTestHandler(t, svc)

	res := doRequest(t, h, auth, http.MethodPost, "/api/jobs/10/complete", nil, 7)
	defer res.Body.Close()

	if res.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusConflict)
	}
}

func TestApplyToJob_Duplicate(t *testing.T) {
	svc := &stubService{applyErr: repository.ErrApplicationExists}
	h, auth := newTestHandler(t, svc)

	res := doRequest(t, h, auth, http.MethodPost, "/api/jobs/10/applications", nil, 7)
	defer res.Body.Close()

	if res.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusConflict)
	}
}

func TestGrantXP_InvalidPoints(t *testing.T) {
	svc := &stubService{grantErr: repository.ErrInvalidPoints}
	h, auth := newTestHandler(t, svc)

	res := doRequest(t, h, auth, http.MethodPost, "/api/users/5/xp", grantXPRequest{Points: -1}, 7)
	defer res.Body.Close()

	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestSubmitExcuse_AlreadyPending(t *testing.T) {
	svc := &stubService{submitExcuseErr: repository.ErrExcusePending}
	h, auth := newTestHandler(t, svc)

	res := doRequest(t, h, auth, http.MethodPost, "/api/commissions/3/excuses", excuseRequest{Reason: "hardship"}, 7)
	defer res.Body.Close()

	if res.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusConflict)
	}
}

func TestSubmitExcuse_BlankReason(t *testing.T) {
	svc := &stubService{submitExcuseErr: service.ErrEmptyReason}
	h, auth := newTestHandler(t, svc)

	res := doRequest(t, h, auth, http.MethodPost, "/api/commissions/3/excuses", excuseRequest{Reason: "   "}, 7)
	defer res.Body.Close()

	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestReviewExcuse_Forbidden(t *testing.T) {
	svc := &stubService{reviewExcuseErr: service.ErrForbidden}
	h, auth := newTestHandler(t, svc)

	res := doRequest(t, h, auth, http.MethodPost, "/api/excuses/3/review", decisionRequest{Decision: "approved"}, 7)
	defer res.Body.Close()

	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusForbidden)
	}
}

func TestPayCommission_NotDue(t *testing.T) {
	svc := &stubService{payErr: repository.ErrCommissionNotDue}
	h, auth := newTestHandler(t, svc)

	res := doRequest(t, h, auth, http.MethodPost, "/api/commissions/3/pay", nil, 7)
	defer res.Body.Close()

	if res.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusConflict)
	}
}

func TestGetJob_NotFound(t *testing.T) {
	svc := &stubService{jobErr: repository.ErrJobNotFound}
	h, auth := newTestHandler(t, svc)

	res := doRequest(t, h, auth, http.MethodGet, "/api/jobs/99", nil, 7)
	defer res.Body.Close()

	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusNotFound)
	}
}

func TestListBadges_Public(t *testing.T) {
	svc := &stubService{allBadges: []model.Badge{{Name: "Rookie", Type: model.BadgeTypeLevel}}}
	h, auth := newTestHandler(t, svc)

	res := doRequest(t, h, auth, http.MethodGet, "/api/badges", nil, 0)
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var resp []badgeResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp) != 1 || resp[0].Name != "Rookie" {
		t.Errorf("badges = %v, want [Rookie]", resp)
	}
}
