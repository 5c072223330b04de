package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"pharmapos/backend/internal/billing"
	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/service"
	"pharmapos/backend/internal/store"
	"pharmapos/backend/internal/upstream"
)

const maxJSONBodyBytes = 1 << 20

type Options struct {
	AllowedOrigin string
	LoginAttempts int
	LoginWindow   time.Duration
	Logger        logrus.FieldLogger
}

type API struct {
	service        *service.Service
	auth           *AuthManager
	allowedOrigins []string
	loginLimiter   *clientLimiter
	validate       *validator.Validate
	logger         logrus.FieldLogger
}

func New(svc *service.Service, auth *AuthManager, opts Options) *API {
	if opts.LoginAttempts < 1 {
		opts.LoginAttempts = 5
	}
	if opts.LoginWindow <= 0 {
		opts.LoginWindow = time.Minute
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &API{
		service:        svc,
		auth:           auth,
		allowedOrigins: splitOrigins(opts.AllowedOrigin),
		loginLimiter:   newClientLimiter(opts.LoginAttempts, opts.LoginWindow),
		validate:       newValidator(),
		logger:         logger.WithField("module", "httpapi"),
	}
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(securityHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: a.allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(limitJSONBody)
	r.Use(a.requestLogger)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, errors.New("not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
	})

	r.Get("/healthz", a.handleHealth)
	r.Post("/api/v1/auth/login", a.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(a.requireAuth(domain.RoleCashier, domain.RoleAdmin))

		r.Get("/api/v1/payment-methods", a.handlePaymentMethods)
		r.Get("/api/v1/medicines", a.handleMedicineSearch)

		r.Route("/api/v1/billing", func(r chi.Router) {
			r.Post("/sessions", a.handleCreateSession)
			r.Route("/sessions/{sessionID}", func(r chi.Router) {
				r.Get("/", a.handleGetSession)
				r.Delete("/", a.handleDiscardSession)
				r.Put("/customer", a.handleSetCustomer)
				r.Post("/items", a.handleAddItem)
				r.Patch("/items/{productID}", a.handleUpdateQty)
				r.Delete("/items/{productID}", a.handleRemoveItem)
				r.Post("/payment/start", a.handleStartPayment)
				r.Post("/payment/method", a.handleSelectMethod)
				r.Put("/payment/cash", a.handleCashTender)
				r.Post("/payment/confirm", a.handleConfirmPayment)
				r.Post("/payment/cancel", a.handleCancelPayment)
				r.Get("/payment/qr.png", a.handlePaymentQR)
				r.Post("/hold", a.handleHoldSession)
			})
			r.Get("/held", a.handleListHeld)
			r.Post("/held/{holdID}/resume", a.handleResumeHeld)
			r.Delete("/held/{holdID}", a.handleDiscardHeld)
		})

		r.Route("/api/v1/invoices/{invoiceID}", func(r chi.Router) {
			r.Get("/", a.handleGetInvoice)
			r.Get("/print", a.handleInvoicePrint)
			r.Get("/pdf", a.handleInvoicePDF)
			r.Get("/escpos", a.handleInvoiceEscpos)
			r.Get("/xlsx", a.handleInvoiceXLSX)
		})
	})

	r.With(a.requireAuth(domain.RoleAdmin)).Get("/api/v1/audit-logs", a.handleAuditLogs)

	return r
}

func (a *API) requireAuth(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authorization := strings.TrimSpace(r.Header.Get("Authorization"))
			if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
				writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
				return
			}

			token := strings.TrimSpace(authorization[len("Bearer "):])
			actor, err := a.auth.ParseToken(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, err)
				return
			}

			if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
				writeError(w, http.StatusForbidden, errors.New("forbidden role"))
				return
			}

			next.ServeHTTP(w, r.WithContext(service.WithActor(r.Context(), actor)))
		})
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		next.ServeHTTP(w, r)
	})
}

func limitJSONBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if (r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		startedAt := time.Now()
		next.ServeHTTP(ww, r)
		a.logger.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"duration_ms": time.Since(startedAt).Milliseconds(),
		}).Info("request")
	})
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":              true,
		"active_sessions": a.service.ActiveSessions(),
		"at":              time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if !a.decodeValid(w, r, &req) {
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) || errors.Is(err, ErrInactiveAccount) {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		a.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	from, err := parseTimeParam(query.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("from must be RFC3339 or YYYY-MM-DD"))
		return
	}
	to, err := parseTimeParam(query.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("to must be RFC3339 or YYYY-MM-DD"))
		return
	}
	limit := parsePositiveLimit(query.Get("limit"), 100, 500)

	logs, err := a.service.ListAuditLogs(r.Context(), strings.TrimSpace(query.Get("location_id")), from, to, limit)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

// decodeValid decodes and validates a JSON body, writing a 400 on failure.
func (a *API) decodeValid(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := decodeJSON(r, dest); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	return a.validStruct(w, dest)
}

// decodeOptional accepts an empty body as the zero value.
func (a *API) decodeOptional(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := decodeJSON(r, dest); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	return a.validStruct(w, dest)
}

func (a *API) validStruct(w http.ResponseWriter, dest any) bool {
	err := a.validate.Struct(dest)
	if err == nil {
		return true
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	fields := make(map[string]string, len(validationErrors))
	for _, ve := range validationErrors {
		fields[ve.Field()] = ve.Tag()
	}
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"error":  "validation failed",
		"fields": fields,
	})
	return false
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	return v
}

// writeServiceError maps domain errors onto HTTP statuses. Only messages
// meant for the operator are passed through.
func (a *API) writeServiceError(w http.ResponseWriter, err error) {
	status, msg := classifyError(err)
	if status >= http.StatusInternalServerError {
		a.logger.WithError(err).WithField("status", status).Error("request failed")
	}
	writeJSON(w, status, map[string]any{"error": msg})
}

func classifyError(err error) (int, string) {
	var rejected *service.RejectedError
	var respErr *upstream.ResponseError

	switch {
	case errors.As(err, &rejected):
		return http.StatusUnprocessableEntity, rejected.Body
	case errors.Is(err, billing.ErrSessionNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, service.ErrAdminRequired):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, store.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, billing.ErrPrecondition),
		errors.Is(err, billing.ErrInvalidTender),
		errors.Is(err, billing.ErrInvalidPhone),
		errors.Is(err, service.ErrUnknownPaymentMethod):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, billing.ErrInvalidTransition),
		errors.Is(err, billing.ErrPaymentExpired),
		errors.Is(err, billing.ErrPaymentPending),
		errors.Is(err, billing.ErrSessionLocked),
		errors.Is(err, store.ErrConflict):
		return http.StatusConflict, err.Error()
	case errors.Is(err, service.ErrInvoiceUnconfirmed):
		return http.StatusBadGateway, service.ErrInvoiceUnconfirmed.Error()
	case errors.Is(err, service.ErrPaymentFailed):
		return http.StatusBadGateway, service.ErrPaymentFailed.Error()
	case errors.As(err, &respErr):
		if respErr.Status == http.StatusNotFound {
			return http.StatusNotFound, "not found in pharmacy backend"
		}
		return http.StatusBadGateway, "pharmacy backend error"
	case errors.Is(err, upstream.ErrNotConfigured), errors.Is(err, upstream.ErrNoCredentials):
		return http.StatusServiceUnavailable, "pharmacy backend is not configured"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func parseTimeParam(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, origin := range strings.Split(raw, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies stay generic; 4xx messages are operator-facing.
	msg := err.Error()
	if status >= 500 {
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
