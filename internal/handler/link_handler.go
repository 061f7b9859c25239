package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "github.com/edgelink/shortener/internal/errors"
	"github.com/edgelink/shortener/internal/lifecycle"
	"github.com/edgelink/shortener/internal/logger"
	"github.com/edgelink/shortener/internal/model"
	"github.com/edgelink/shortener/internal/ratelimit"
	"github.com/edgelink/shortener/internal/routing"
	"github.com/edgelink/shortener/internal/service"
)

const (
	// OwnerHeader carries the caller identity set by the API gateway.
	OwnerHeader    = "X-Owner-ID"
	PasswordHeader = "X-Link-Password"

	unlockOperation = "unlock"
	visitorMaxAge   = 365 * 24 * 60 * 60
)

type Options struct {
	RedirectStatus int
	VisitorCookie  string
	SecureCookie   bool
	// Limiter and UnlockRule throttle password attempts per slug and client.
	Limiter    *ratelimit.Limiter
	UnlockRule ratelimit.Rule
}

// Middlewares are attached to route groups by Register. Nil entries are
// skipped.
type Middlewares struct {
	Create gin.HandlerFunc
	API    gin.HandlerFunc
}

type LinkHandler struct {
	links    *service.LinkService
	contexts *routing.ContextBuilder
	opts     Options
	log      logger.Logger
}

func NewLinkHandler(links *service.LinkService, contexts *routing.ContextBuilder, opts Options, log logger.Logger) *LinkHandler {
	if opts.RedirectStatus == 0 {
		opts.RedirectStatus = http.StatusMovedPermanently
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &LinkHandler{links: links, contexts: contexts, opts: opts, log: log}
}

// Register mounts the creation, owner API and redirect routes. The redirect
// routes go last so static paths registered by the caller take precedence.
func (h *LinkHandler) Register(router *gin.Engine, mw Middlewares) {
	create := chain(mw.Create, h.Create)
	router.POST("/create", create...)

	api := router.Group("/api")
	if mw.API != nil {
		api.Use(mw.API)
	}
	{
		api.POST("/shorten", create...)

		api.GET("/links/:slug", h.GetLink)
		api.PATCH("/links/:slug", h.UpdateLink)
		api.DELETE("/links/:slug", h.DeleteLink)

		api.GET("/links/:slug/routing", h.GetRouting)
		api.POST("/links/:slug/routing/:type", h.SetRouting)
		api.DELETE("/links/:slug/routing/:type", h.DeleteRouting)

		api.POST("/links/:slug/ab-test", h.SetABTest)
		api.GET("/links/:slug/ab-test", h.GetABTest)
		api.DELETE("/links/:slug/ab-test", h.DeleteABTest)

		api.GET("/stats/:slug", h.Stats)

		api.POST("/webhooks", h.CreateWebhook)
		api.GET("/webhooks", h.ListWebhooks)
		api.DELETE("/webhooks/:id", h.DeleteWebhook)
	}

	router.GET("/:slug", h.Redirect)
	router.POST("/:slug", h.Unlock)
}

func chain(mw gin.HandlerFunc, handler gin.HandlerFunc) []gin.HandlerFunc {
	if mw == nil {
		return []gin.HandlerFunc{handler}
	}
	return []gin.HandlerFunc{mw, handler}
}

func (h *LinkHandler) Create(c *gin.Context) {
	var req model.CreateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c, "Invalid JSON format")
		return
	}

	response, err := h.links.Create(c.Request.Context(), &req, ownerID(c))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response)
}

// Redirect answers GET /:slug. The password may come in X-Link-Password.
func (h *LinkHandler) Redirect(c *gin.Context) {
	h.serve(c, c.GetHeader(PasswordHeader))
}

// Unlock answers POST /:slug with a password from a form or JSON body.
func (h *LinkHandler) Unlock(c *gin.Context) {
	var password string
	if strings.HasPrefix(c.ContentType(), "application/json") {
		var body struct {
			Password string `json:"password"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			invalidRequest(c, "Invalid JSON format")
			return
		}
		password = body.Password
	} else {
		password = c.PostForm("password")
	}
	if password == "" {
		password = c.GetHeader(PasswordHeader)
	}

	h.serve(c, password)
}

// serve resolves slug for the request. Every supplied password counts against
// the unlock limit for slug and client, whichever method carried it.
func (h *LinkHandler) serve(c *gin.Context, credential string) {
	slugStr := c.Param("slug")
	if credential != "" && !h.allowUnlock(c, slugStr) {
		return
	}
	h.ensureVisitor(c)

	rc := h.contexts.Build(c.Request, slugStr, c.ClientIP(), time.Now())
	result, err := h.links.Redirect(c.Request.Context(), slugStr, rc, credential)
	if err != nil {
		h.handleError(c, err)
		return
	}

	switch d := result.Decision; d.Outcome {
	case lifecycle.Redirect:
		// Каждый переход должен доходить до сервиса: маршрут зависит от запроса
		c.Header("Cache-Control", "private, no-store")
		c.Redirect(h.opts.RedirectStatus, result.URL)
	case lifecycle.Gone:
		c.JSON(http.StatusGone, gin.H{
			"error":   "link_gone",
			"reason":  d.Reason,
			"message": "Link is no longer available",
		})
	case lifecycle.Forbidden:
		status := http.StatusForbidden
		if d.Reason == lifecycle.ReasonPasswordRequired {
			status = http.StatusUnauthorized
		}
		c.JSON(status, gin.H{
			"error":   d.Reason,
			"message": "Link is password protected",
		})
	default:
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "link_not_found",
			"message": "Link not found",
		})
	}
}

func (h *LinkHandler) allowUnlock(c *gin.Context, slugStr string) bool {
	if h.opts.Limiter == nil {
		return true
	}
	d := h.opts.Limiter.Check(c.Request.Context(), unlockOperation, slugStr+"|"+c.ClientIP(), h.opts.UnlockRule)
	if d.Allowed {
		return true
	}
	c.Header("Retry-After", strconv.Itoa(d.RetryAfter))
	c.JSON(http.StatusTooManyRequests, gin.H{
		"error":       "rate limit exceeded",
		"retry_after": d.RetryAfter,
	})
	return false
}

// ensureVisitor gives first-time visitors a stable id cookie and makes it
// visible to the current request, so bucketing is sticky from the first hit.
func (h *LinkHandler) ensureVisitor(c *gin.Context) {
	name := h.opts.VisitorCookie
	if name == "" {
		return
	}
	if v, err := c.Cookie(name); err == nil && v != "" {
		return
	}

	id := uuid.NewString()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, id, visitorMaxAge, "/", "", h.opts.SecureCookie, true)
	c.Request.AddCookie(&http.Cookie{Name: name, Value: id})
}

func (h *LinkHandler) GetLink(c *gin.Context) {
	response, err := h.links.Get(c.Request.Context(), c.Param("slug"), ownerID(c))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

func (h *LinkHandler) UpdateLink(c *gin.Context) {
	var req model.UpdateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c, "Invalid JSON format")
		return
	}

	response, err := h.links.Update(c.Request.Context(), c.Param("slug"), ownerID(c), &req)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

func (h *LinkHandler) DeleteLink(c *gin.Context) {
	if err := h.links.Delete(c.Request.Context(), c.Param("slug"), ownerID(c)); err != nil {
		h.handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *LinkHandler) Stats(c *gin.Context) {
	stats, err := h.links.Stats(c.Request.Context(), c.Param("slug"), ownerID(c))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *LinkHandler) GetRouting(c *gin.Context) {
	slugStr := c.Param("slug")
	cfg, err := h.links.GetRouting(c.Request.Context(), slugStr, ownerID(c))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"slug": slugStr, "routing": cfg})
}

// SetRouting replaces one tier. Map tiers accept {"routes": {...}} or the
// flat form {"mobile": "..."}; the time tier takes {"rules": [...]}.
func (h *LinkHandler) SetRouting(c *gin.Context) {
	ctx := c.Request.Context()
	slugStr := c.Param("slug")
	typ := model.RoutingType(c.Param("type"))
	owner := ownerID(c)

	switch typ {
	case model.RoutingTime:
		var req model.TimeRoutingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			invalidRequest(c, "Invalid JSON format")
			return
		}
		rules, err := h.links.SetTimeRules(ctx, slugStr, owner, req.Rules)
		if err != nil {
			h.handleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"slug": slugStr, "type": typ, "rules": rules})

	case model.RoutingABTest:
		h.SetABTest(c)

	default:
		routes, err := bindRoutes(c)
		if err != nil {
			invalidRequest(c, err.Error())
			return
		}
		stored, err := h.links.SetRouteMap(ctx, slugStr, owner, typ, routes)
		if err != nil {
			h.handleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"slug": slugStr, "type": typ, "routes": stored})
	}
}

func (h *LinkHandler) DeleteRouting(c *gin.Context) {
	typ := model.RoutingType(c.Param("type"))
	if err := h.links.DeleteRouting(c.Request.Context(), c.Param("slug"), ownerID(c), typ); err != nil {
		h.handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *LinkHandler) SetABTest(c *gin.Context) {
	var req model.ABTestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c, "Invalid JSON format")
		return
	}

	test, err := h.links.SetABTest(c.Request.Context(), c.Param("slug"), ownerID(c), req)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, test)
}

func (h *LinkHandler) GetABTest(c *gin.Context) {
	results, err := h.links.GetABResults(c.Request.Context(), c.Param("slug"), ownerID(c))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

func (h *LinkHandler) DeleteABTest(c *gin.Context) {
	if err := h.links.DeleteABTest(c.Request.Context(), c.Param("slug"), ownerID(c)); err != nil {
		h.handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *LinkHandler) CreateWebhook(c *gin.Context) {
	var req model.CreateWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c, "Invalid JSON format")
		return
	}

	hook, err := h.links.CreateWebhook(c.Request.Context(), ownerID(c), &req)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"webhook": hook})
}

func (h *LinkHandler) ListWebhooks(c *gin.Context) {
	hooks, err := h.links.ListWebhooks(c.Request.Context(), ownerID(c))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"webhooks": hooks})
}

func (h *LinkHandler) DeleteWebhook(c *gin.Context) {
	if err := h.links.DeleteWebhook(c.Request.Context(), ownerID(c), c.Param("id")); err != nil {
		h.handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleError обрабатывает ошибки и возвращает соответствующие HTTP коды
func (h *LinkHandler) handleError(c *gin.Context, err error) {
	// Проверяем ValidationError
	if apperrors.IsValidationError(err) {
		validationErr := apperrors.GetValidationError(err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": validationErr.Message,
			"field":   validationErr.Field,
		})
		return
	}

	switch {
	case errors.Is(err, apperrors.ErrInvalidSlugFormat), errors.Is(err, apperrors.ErrReservedSlug):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_slug",
			"message": err.Error(),
		})
		return

	case errors.Is(err, apperrors.ErrSlugTaken):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "slug_taken",
			"message": "Slug is already taken",
		})
		return

	case errors.Is(err, apperrors.ErrAllocationExhausted):
		// Повторная попытка почти наверняка пройдет
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "allocation_exhausted",
			"message": "Could not allocate a slug, please retry",
		})
		return

	case errors.Is(err, apperrors.ErrStoreUnavailable):
		h.log.Error("Store unavailable",
			logger.String("path", c.FullPath()),
			logger.Error(err),
		)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "store_unavailable",
			"message": "Service temporarily unavailable",
		})
		return

	case errors.Is(err, apperrors.ErrLinkNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "link_not_found",
			"message": "Link not found",
		})
		return

	case errors.Is(err, apperrors.ErrABTestNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "ab_test_not_found",
			"message": "No A/B test is configured for this link",
		})
		return

	case errors.Is(err, apperrors.ErrWebhookNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "webhook_not_found",
			"message": "Webhook not found",
		})
		return
	}

	// Проверяем BusinessError
	if apperrors.IsBusinessError(err) {
		businessErr := apperrors.GetBusinessError(err)
		status := http.StatusInternalServerError
		if businessErr.Code == "WEBHOOKS_DISABLED" {
			status = http.StatusNotImplemented
		}
		c.JSON(status, gin.H{
			"error":   "business_error",
			"message": businessErr.Message,
			"code":    businessErr.Code,
		})
		return
	}

	// Неизвестная ошибка
	h.log.Error("Unhandled error",
		logger.String("path", c.FullPath()),
		logger.Error(err),
	)
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "internal_error",
		"message": "An unexpected error occurred",
	})
}

func invalidRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "invalid_request",
		"message": message,
	})
}

func ownerID(c *gin.Context) string {
	return strings.TrimSpace(c.GetHeader(OwnerHeader))
}

func bindRoutes(c *gin.Context) (map[string]string, error) {
	var body map[string]json.RawMessage
	if err := c.ShouldBindJSON(&body); err != nil {
		return nil, errors.New("invalid JSON format")
	}

	flat := body
	if nested, ok := body["routes"]; ok {
		flat = nil
		if err := json.Unmarshal(nested, &flat); err != nil {
			return nil, errors.New("routes must be an object")
		}
	}

	routes := make(map[string]string, len(flat))
	for key, raw := range flat {
		var target string
		if err := json.Unmarshal(raw, &target); err != nil {
			return nil, fmt.Errorf("route %q must map to a URL string", key)
		}
		routes[key] = target
	}
	return routes, nil
}
