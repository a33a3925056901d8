package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/hustlehub-system/internal/middleware"
	"github.com/mmeshcher/hustlehub-system/internal/model"
	"github.com/mmeshcher/hustlehub-system/internal/repository"
	"github.com/mmeshcher/hustlehub-system/internal/service"
)

type createJobRequest struct {
	Title  string  `json:"title"`
	Budget float64 `json:"budget"`
}

type jobResponse struct {
	ID           int64   `json:"id"`
	EmployerID   int64   `json:"employer_id"`
	FreelancerID *int64  `json:"freelancer_id"`
	Title        string  `json:"title"`
	Budget       float64 `json:"budget"`
	Status       string  `json:"status"`
	CreatedAt    string  `json:"created_at"`
}

// CreateJob создаёт задание от имени текущего работодателя.
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Title == "" || req.Budget < 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	job, err := h.service.CreateJob(r.Context(), userID, req.Title, req.Budget)
	if err != nil {
		if errors.Is(err, service.ErrForbidden) {
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}
		h.logger.Error("create job error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusCreated, jobResponse{
		ID:           job.ID,
		EmployerID:   job.EmployerID,
		FreelancerID: job.FreelancerID,
		Title:        job.Title,
		Budget:       float64(job.BudgetCents) / 100,
		Status:       string(job.Status),
		CreatedAt:    job.CreatedAt.Format(time.RFC3339),
	})
}

// GetJob возвращает задание по идентификатору.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := urlParamInt64(r, "jobID")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	job, err := h.service.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get job error", zap.Error(err), zap.Int64("jobID", jobID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, jobResponse{
		ID:           job.ID,
		EmployerID:   job.EmployerID,
		FreelancerID: job.FreelancerID,
		Title:        job.Title,
		Budget:       float64(job.BudgetCents) / 100,
		Status:       string(job.Status),
		CreatedAt:    job.CreatedAt.Format(time.RFC3339),
	})
}

type applicationResponse struct {
	ID           int64  `json:"id"`
	JobID        int64  `json:"job_id"`
	FreelancerID int64  `json:"freelancer_id"`
	Status       string `json:"status"`
	AppliedAt    string `json:"applied_at"`
}

// ApplyToJob создаёт отклик текущего фрилансера на задание.
func (h *Handler) ApplyToJob(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	jobID, ok := urlParamInt64(r, "jobID")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	app, err := h.service.ApplyToJob(r.Context(), jobID, userID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrForbidden):
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		case errors.Is(err, repository.ErrJobNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, repository.ErrJobNotOpen), errors.Is(err, repository.ErrApplicationExists):
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
		default:
			h.logger.Error("apply to job error", zap.Error(err), zap.Int64("jobID", jobID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	h.writeJSON(w, http.StatusCreated, applicationResponse{
		ID:           app.ID,
		JobID:        app.JobID,
		FreelancerID: app.FreelancerID,
		Status:       string(app.Status),
		AppliedAt:    app.AppliedAt.Format(time.RFC3339),
	})
}

type decisionRequest struct {
	Decision string `json:"decision"`
}

// DecideApplication принимает или отклоняет отклик от имени работодателя.
func (h *Handler) DecideApplication(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	applicationID, ok := urlParamInt64(r, "applicationID")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	app, err := h.service.DecideApplication(r.Context(), applicationID, userID, req.Decision)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidDecision):
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		case errors.Is(err, repository.ErrApplicationNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, repository.ErrNotJobParty):
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		case errors.Is(err, repository.ErrApplicationNotPending):
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
		default:
			h.logger.Error("decide application error", zap.Error(err), zap.Int64("applicationID", applicationID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	h.writeJSON(w, http.StatusOK, applicationResponse{
		ID:           app.ID,
		JobID:        app.JobID,
		FreelancerID: app.FreelancerID,
		Status:       string(app.Status),
		AppliedAt:    app.AppliedAt.Format(time.RFC3339),
	})
}

type commissionResponse struct {
	ID                   int64   `json:"id"`
	JobID                int64   `json:"job_id"`
	TotalAmount          float64 `json:"total_amount"`
	CommissionPercentage int64   `json:"commission_percentage"`
	CommissionAmount     float64 `json:"commission_amount"`
	FreelancerEarning    float64 `json:"freelancer_earning"`
	Status               string  `json:"status"`
	CompletionDate       string  `json:"completion_date"`
	DueDate              *string `json:"due_date"`
	HasExcuse            bool    `json:"has_excuse"`
}

func toCommissionResponse(c service.CommissionView) commissionResponse {
	resp := commissionResponse{
		ID:                   c.ID,
		JobID:                c.JobID,
		TotalAmount:          c.TotalAmount,
		CommissionPercentage: c.CommissionPercentage,
		CommissionAmount:     c.CommissionAmount,
		FreelancerEarning:    c.FreelancerEarning,
		Status:               string(c.Status),
		CompletionDate:       c.CompletionDate.Format("2006-01-02"),
		HasExcuse:            c.HasExcuse,
	}
	if c.DueDate != nil {
		due := c.DueDate.Format("2006-01-02")
		resp.DueDate = &due
	}
	return resp
}

// CompleteJob завершает задание от имени работодателя и фиксирует комиссию.
// Повторное завершение возвращает существующую комиссию со статусом 200.
func (h *Handler) CompleteJob(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	jobID, ok := urlParamInt64(r, "jobID")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	log, created, err := h.service.CompleteJob(r.Context(), jobID, userID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrJobNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, repository.ErrNotJobParty):
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		case errors.Is(err, repository.ErrNoFreelancer):
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
		default:
			h.logger.Error("complete job error", zap.Error(err), zap.Int64("jobID", jobID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}

	h.writeJSON(w, status, toCommissionResponse(service.CommissionView{
		ID:                   log.ID,
		JobID:                log.JobID,
		TotalAmount:          float64(log.TotalAmountCents) / 100,
		CommissionPercentage: log.CommissionPercentage,
		CommissionAmount:     float64(log.CommissionCents) / 100,
		FreelancerEarning:    float64(log.FreelancerCents) / 100,
		Status:               log.Status,
		CompletionDate:       log.CompletionDate,
		DueDate:              log.DueDate,
		HasExcuse:            log.HasExcuse,
	}))
}

type reviewRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

type reviewResponse struct {
	ID         int64  `json:"id"`
	JobID      int64  `json:"job_id"`
	RevieweeID int64  `json:"reviewee_id"`
	Rating     int    `json:"rating"`
	Comment    string `json:"comment"`
	CreatedAt  string `json:"created_at"`
}

// CreateReview создаёт отзыв по завершённому заданию.
func (h *Handler) CreateReview(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	jobID, ok := urlParamInt64(r, "jobID")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	review, err := h.service.CreateReview(r.Context(), jobID, userID, req.Rating, req.Comment)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRating):
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		case errors.Is(err, repository.ErrJobNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, repository.ErrNotJobParty):
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		case errors.Is(err, repository.ErrJobNotCompleted), errors.Is(err, repository.ErrReviewExists):
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
		default:
			h.logger.Error("create review error", zap.Error(err), zap.Int64("jobID", jobID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	h.writeJSON(w, http.StatusCreated, reviewResponse{
		ID:         review.ID,
		JobID:      review.JobID,
		RevieweeID: review.RevieweeID,
		Rating:     review.Rating,
		Comment:    review.Comment,
		CreatedAt:  review.CreatedAt.Format(time.RFC3339),
	})
}

// GetCommissions возвращает комиссии, видимые текущему пользователю.
func (h *Handler) GetCommissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	views, err := h.service.GetCommissions(r.Context(), userID)
	if err != nil {
		h.logger.Error("get commissions error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(views) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]commissionResponse, 0, len(views))
	for _, c := range views {
		resp = append(resp, toCommissionResponse(c))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// PayCommission отмечает комиссию оплаченной от имени администратора.
func (h *Handler) PayCommission(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	commissionID, ok := urlParamInt64(r, "commissionID")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	log, err := h.service.MarkCommissionPaid(r.Context(), userID, commissionID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrForbidden):
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		case errors.Is(err, repository.ErrCommissionNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, repository.ErrCommissionNotDue):
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
		default:
			h.logger.Error("pay commission error", zap.Error(err), zap.Int64("commissionID", commissionID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	h.writeJSON(w, http.StatusOK, toCommissionResponse(service.CommissionView{
		ID:                   log.ID,
		JobID:                log.JobID,
		TotalAmount:          float64(log.TotalAmountCents) / 100,
		CommissionPercentage: log.CommissionPercentage,
		CommissionAmount:     float64(log.CommissionCents) / 100,
		FreelancerEarning:    float64(log.FreelancerCents) / 100,
		Status:               log.Status,
		CompletionDate:       log.CompletionDate,
		DueDate:              log.DueDate,
		HasExcuse:            log.HasExcuse,
	}))
}

type excuseRequest struct {
	Reason string `json:"reason"`
}

type excuseResponse struct {
	ID           int64   `json:"id"`
	CommissionID *int64  `json:"commission_id"`
	Reason       string  `json:"reason"`
	Status       string  `json:"status"`
	CreatedAt    string  `json:"created_at"`
	ReviewedAt   *string `json:"reviewed_at"`
}

func toExcuseResponse(e *model.CommissionExcuse) excuseResponse {
	resp := excuseResponse{
		ID:           e.ID,
		CommissionID: e.CommissionID,
		Reason:       e.Reason,
		Status:       string(e.Status),
		CreatedAt:    e.CreatedAt.Format(time.RFC3339),
	}
	if e.ReviewedAt != nil {
		reviewed := e.ReviewedAt.Format(time.RFC3339)
		resp.ReviewedAt = &reviewed
	}
	return resp
}

// SubmitExcuse подаёт заявление об отсрочке комиссии от текущего фрилансера.
func (h *Handler) SubmitExcuse(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	commissionID, ok := urlParamInt64(r, "commissionID")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req excuseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Reason == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	excuse, err := h.service.SubmitExcuse(r.Context(), userID, commissionID, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmptyReason):
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		case errors.Is(err, repository.ErrCommissionNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, repository.ErrNotJobParty):
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		case errors.Is(err, repository.ErrCommissionNotDue), errors.Is(err, repository.ErrExcusePending):
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
		default:
			h.logger.Error("submit excuse error", zap.Error(err), zap.Int64("commissionID", commissionID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	h.writeJSON(w, http.StatusCreated, toExcuseResponse(excuse))
}

// ReviewExcuse рассматривает заявление от имени администратора.
func (h *Handler) ReviewExcuse(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	excuseID, ok := urlParamInt64(r, "excuseID")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	excuse, err := h.service.ReviewExcuse(r.Context(), excuseID, userID, req.Decision)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidDecision):
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		case errors.Is(err, service.ErrForbidden):
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		case errors.Is(err, repository.ErrExcuseNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, repository.ErrExcuseNotPending):
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
		default:
			h.logger.Error("review excuse error", zap.Error(err), zap.Int64("excuseID", excuseID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	h.writeJSON(w, http.StatusOK, toExcuseResponse(excuse))
}

// GetExcuses возвращает заявления текущего пользователя.
func (h *Handler) GetExcuses(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	excuses, err := h.service.GetExcuses(r.Context(), userID)
	if err != nil {
		h.logger.Error("get excuses error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(excuses) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]excuseResponse, 0, len(excuses))
	for i := range excuses {
		resp = append(resp, toExcuseResponse(&excuses[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}
