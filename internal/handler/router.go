package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/vestetec-system/internal/middleware"
	"github.com/mmeshcher/vestetec-system/internal/token"
)

const requestTimeout = 30 * time.Second

// SetupRouter настраивает HTTP-маршруты и middleware.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(custommiddleware.Logger(h.logger))
	r.Use(chimiddleware.Timeout(requestTimeout))
	r.Use(custommiddleware.GzipMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		h.writeJSON(w, http.StatusOK, "ok", nil)
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/students/register", h.RegisterStudent)
		r.Post("/students/login", h.LoginStudent)

		r.Route("/verification", func(r chi.Router) {
			r.Post("/send-code", h.SendCode)
			r.Post("/verify-email", h.VerifyEmail)
			r.Get("/status/{email}", h.VerificationStatus)
			r.Post("/resend-code", h.ResendCode)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)
			r.Use(custommiddleware.RequireRole(token.RoleStudent))

			r.Post("/", h.CreateOrder)
			r.Get("/", h.ListStudentOrders)
			r.Get("/{id}", h.GetStudentOrder)
			r.Put("/{id}/cancel", h.CancelOrder)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/auth/login", h.LoginAdmin)

			r.Group(func(r chi.Router) {
				r.Use(h.authMiddleware.Middleware)
				r.Use(custommiddleware.RequireRole(token.RoleAdmin))

				r.Post("/auth/logout", h.LogoutAdmin)
				r.Post("/auth/refresh", h.RefreshAdmin)
				r.Get("/auth/validate", h.ValidateAdmin)

				r.Get("/orders", h.ListOrders)
				r.Get("/orders/stats", h.OrderStats)
				r.Put("/orders/status", h.UpdateOrderStatus)
				r.Get("/orders/{id}", h.GetOrder)
				r.Get("/orders/{id}/exists", h.OrderExists)
				r.Get("/orders/{id}/can-modify", h.CanModifyOrder)
				r.Put("/orders/{id}/delivery-date", h.UpdateDeliveryDate)
				r.Delete("/orders/{id}", h.DeleteOrder)

				r.Post("/schools", createNamed(h, h.service.CreateSchool, "school created"))
				r.Post("/categories", createNamed(h, h.service.CreateCategory, "category created"))
				r.Post("/models", createNamed(h, h.service.CreateGarmentModel, "model created"))
				r.Post("/fabrics", createNamed(h, h.service.CreateFabric, "fabric created"))
				r.Post("/products", h.CreateProduct)
				r.Get("/products/{id}", h.GetProduct)
				r.Put("/products/{id}/price", h.UpdateProductPrice)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.fail(w, http.StatusNotFound, http.StatusText(http.StatusNotFound))
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		h.fail(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
	})

	return r
}
