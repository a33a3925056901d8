package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	custommiddleware "github.com/mmeshcher/hustlehub-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса хастлхаб.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/user/register", h.Register)
		r.Post("/user/login", h.Login)
		r.Get("/badges", h.ListBadges)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/user/dashboard", h.GetDashboard)
			r.Get("/user/badges", h.GetUserBadges)
			r.Get("/user/xp", h.GetXPLog)
			r.Get("/user/loyalty", h.GetLoyalty)
			r.Get("/user/referrals", h.GetReferrals)
			r.Get("/user/notifications", h.GetNotifications)
			r.Post("/user/notifications/read", h.MarkNotificationsRead)

			r.Post("/users/{userID}/xp", h.GrantXP)
			r.Post("/users/{userID}/loyalty", h.CreditLoyalty)

			r.Post("/jobs", h.CreateJob)
			r.Get("/jobs/{jobID}", h.GetJob)
			r.Post("/jobs/{jobID}/applications", h.ApplyToJob)
			r.Post("/jobs/{jobID}/complete", h.CompleteJob)
			r.Post("/jobs/{jobID}/reviews", h.CreateReview)
			r.Post("/applications/{applicationID}/decision", h.DecideApplication)

			r.Get("/commissions", h.GetCommissions)
			r.Post("/commissions/{commissionID}/pay", h.PayCommission)
			r.Post("/commissions/{commissionID}/excuses", h.SubmitExcuse)
			r.Get("/excuses", h.GetExcuses)
			r.Post("/excuses/{excuseID}/review", h.ReviewExcuse)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
