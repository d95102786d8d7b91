// Package assignments exposes the dispatch engine over HTTP.
package assignments

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kilianp07/jobroute/core/dispatch"
	"github.com/kilianp07/jobroute/core/logger"
	"github.com/kilianp07/jobroute/core/model"
	"github.com/kilianp07/jobroute/core/performance"
	"github.com/kilianp07/jobroute/core/reconcile"
	"github.com/kilianp07/jobroute/core/store"
)

// Dispatcher is the coordinator surface used by the API.
type Dispatcher interface {
	Assign(ctx context.Context, bookingID string, method model.AssignmentMethod, manualProviderID string) (dispatch.AssignmentResult, error)
	Respond(ctx context.Context, assignmentID, providerID string, decision model.Decision, reason string) (dispatch.AssignmentResult, error)
	Query(ctx context.Context, q store.AssignmentQuery) ([]model.Assignment, int, error)
}

// Bookings looks bookings up for ownership checks.
type Bookings interface {
	GetBooking(ctx context.Context, id string) (model.Booking, error)
}

// Reconciler runs an on-demand sweep.
type Reconciler interface {
	Sweep(ctx context.Context) (reconcile.Report, error)
}

// Performance recomputes scores and records completed and cancelled jobs.
type Performance interface {
	RescoreAll(ctx context.Context) (performance.RescoreReport, error)
	RecordCompletion(ctx context.Context, c performance.Completion) error
	RecordCancellation(ctx context.Context, providerID string) error
}

// Handler serves the assignment routes.
type Handler struct {
	dispatch Dispatcher
	bookings Bookings
	recon    Reconciler
	perf     Performance
	audit    AuditLog
	log      logger.Logger
}

// NewHandler builds a Handler.
func NewHandler(d Dispatcher, b Bookings, r Reconciler, p Performance, log logger.Logger) *Handler {
	return &Handler{dispatch: d, bookings: b, recon: r, perf: p, log: logger.OrNop(log)}
}

// NewRouter mounts the routes behind auth on a new gin engine.
func NewRouter(h *Handler, auth *Authenticator) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	h.Register(r.Group("/api", auth.Middleware()))
	return r
}

// Register mounts the routes on g, which must carry the auth middleware.
func (h *Handler) Register(g *gin.RouterGroup) {
	g.POST("/bookings/:id/assign", RequireRole(store.RoleAdmin, store.RoleCustomer), h.assign)
	g.POST("/assignments/:id/respond", RequireRole(store.RoleProvider), h.respond)
	g.GET("/assignments", h.list)

	admin := g.Group("/admin", RequireRole(store.RoleAdmin))
	admin.POST("/reconcile", h.reconcile)
	admin.POST("/rescore", h.rescore)
	admin.POST("/providers/:id/completions", h.completion)
	admin.POST("/providers/:id/cancellations", h.cancellation)
	if h.audit != nil {
		admin.GET("/audit", h.auditLog)
	}
}

type assignRequest struct {
	Method     string `json:"method"`
	ProviderID string `json:"provider_id"`
}

// POST /api/bookings/:id/assign
func (h *Handler) assign(c *gin.Context) {
	var in assignRequest
	if err := bindOptionalJSON(c, &in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	method, err := model.ParseAssignmentMethod(in.Method)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id := c.Param("id")
	if callerRole(c) == store.RoleCustomer {
		if method == model.MethodManual {
			c.JSON(http.StatusForbidden, gin.H{"error": "manual assignment is reserved to administrators"})
			return
		}
		b, err := h.bookings.GetBooking(c.Request.Context(), id)
		switch {
		case errors.Is(err, store.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "booking not found"})
			return
		case err != nil:
			h.fail(c, err)
			return
		case b.CustomerID != callerID(c):
			c.JSON(http.StatusForbidden, gin.H{"error": "booking belongs to another customer"})
			return
		}
	}
	res, err := h.dispatch.Assign(c.Request.Context(), id, method, in.ProviderID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type respondRequest struct {
	Decision model.Decision `json:"decision" binding:"required"`
	Reason   string         `json:"reason"`
}

// POST /api/assignments/:id/respond
func (h *Handler) respond(c *gin.Context) {
	var in respondRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.dispatch.Respond(c.Request.Context(), c.Param("id"), callerID(c), in.Decision, in.Reason)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type listResponse struct {
	Items    []model.Assignment `json:"items"`
	Total    int                `json:"total"`
	Page     int                `json:"page"`
	PageSize int                `json:"page_size"`
}

// GET /api/assignments?role=&identity=&status=&page=&page_size=
//
// Non-admin callers are pinned to their own role and identity.
func (h *Handler) list(c *gin.Context) {
	q := store.AssignmentQuery{Role: callerRole(c), Identity: callerID(c)}
	if q.Role == store.RoleAdmin {
		q.Role = store.Role(c.DefaultQuery("role", string(store.RoleAdmin)))
		q.Identity = c.Query("identity")
	}
	for _, s := range c.QueryArray("status") {
		for _, part := range strings.Split(s, ",") {
			st, err := model.ParseAssignmentStatus(strings.TrimSpace(part))
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			q.Statuses = append(q.Statuses, st)
		}
	}
	var err error
	if q.Page, err = intQuery(c, "page"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if q.PageSize, err = intQuery(c, "page_size"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	items, total, err := h.dispatch.Query(c.Request.Context(), q)
	if err != nil {
		h.fail(c, err)
		return
	}
	q.Normalize()
	if items == nil {
		items = []model.Assignment{}
	}
	c.JSON(http.StatusOK, listResponse{Items: items, Total: total, Page: q.Page, PageSize: q.PageSize})
}

// POST /api/admin/reconcile
func (h *Handler) reconcile(c *gin.Context) {
	rep, err := h.recon.Sweep(c.Request.Context())
	if err != nil {
		h.log.Errorw("forced reconcile reported errors", err, map[string]any{"expired": rep.Expired, "errors": rep.Errors})
	}
	c.JSON(http.StatusOK, rep)
}

// POST /api/admin/rescore
func (h *Handler) rescore(c *gin.Context) {
	rep, err := h.perf.RescoreAll(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

type completionRequest struct {
	BookingID     string    `json:"booking_id" binding:"required"`
	Rating        float64   `json:"rating"`
	OnTime        bool      `json:"on_time"`
	DistanceMiles float64   `json:"distance_miles"`
	CompletedAt   time.Time `json:"completed_at"`
}

// POST /api/admin/providers/:id/completions
func (h *Handler) completion(c *gin.Context) {
	var in completionRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	comp := performance.Completion{
		ProviderID:    c.Param("id"),
		BookingID:     in.BookingID,
		Rating:        in.Rating,
		OnTime:        in.OnTime,
		DistanceMiles: in.DistanceMiles,
		CompletedAt:   in.CompletedAt,
	}
	if err := comp.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := h.perf.RecordCompletion(c.Request.Context(), comp)
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "provider not found"})
	case err != nil:
		h.fail(c, err)
	default:
		c.Status(http.StatusNoContent)
	}
}

// POST /api/admin/providers/:id/cancellations
func (h *Handler) cancellation(c *gin.Context) {
	err := h.perf.RecordCancellation(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "provider not found"})
	case err != nil:
		h.fail(c, err)
	default:
		c.Status(http.StatusNoContent)
	}
}

// fail maps dispatch error kinds onto HTTP statuses.
func (h *Handler) fail(c *gin.Context, err error) {
	kind := dispatch.KindOf(err)
	status := StatusOf(kind)
	if status >= http.StatusInternalServerError {
		h.log.Errorw("request failed", err, map[string]any{"path": c.FullPath()})
	}
	c.JSON(status, gin.H{"error": err.Error(), "kind": kind})
}

// StatusOf returns the HTTP status of an error kind.
func StatusOf(k dispatch.Kind) int {
	switch k {
	case dispatch.KindValidation:
		return http.StatusBadRequest
	case dispatch.KindNotFound:
		return http.StatusNotFound
	case dispatch.KindPermission:
		return http.StatusForbidden
	case dispatch.KindStateConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func intQuery(c *gin.Context, key string) (int, error) {
	s := c.Query(key)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errors.New(key + " must be a non-negative integer")
	}
	return n, nil
}

// bindOptionalJSON decodes the body when there is one.
func bindOptionalJSON(c *gin.Context, v any) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	return c.ShouldBindJSON(v)
}
