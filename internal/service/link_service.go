package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/edgelink/shortener/internal/errors"
	"github.com/edgelink/shortener/internal/lifecycle"
	"github.com/edgelink/shortener/internal/logger"
	"github.com/edgelink/shortener/internal/metrics"
	"github.com/edgelink/shortener/internal/model"
	"github.com/edgelink/shortener/internal/repository"
	"github.com/edgelink/shortener/internal/routing"
	"github.com/edgelink/shortener/internal/slug"
	"github.com/edgelink/shortener/internal/utils"
)

// ClickRecorder accepts click events without blocking.
type ClickRecorder interface {
	Record(event model.ClickEvent) bool
}

// VariantCounter reads per-variant click totals of an A/B test.
type VariantCounter interface {
	VariantCounts(ctx context.Context, testID string) (map[string]int64, error)
}

// RedirectResult is what the transport needs to answer a redirect request.
// URL and Tier are set only when the decision allows the redirect.
type RedirectResult struct {
	Decision lifecycle.Decision
	URL      string
	Tier     model.RoutingType
	Variant  string
}

type LinkService struct {
	links        repository.LinkRepository
	webhooks     repository.WebhookRepository
	allocator    *slug.Allocator
	validator    *routing.Validator
	clicks       ClickRecorder
	variants     VariantCounter
	metrics      *metrics.Metrics
	log          logger.Logger
	baseURL      string
	storeTimeout time.Duration
	now          func() time.Time
}

type Option func(*LinkService)

func WithWebhooks(repo repository.WebhookRepository) Option {
	return func(s *LinkService) { s.webhooks = repo }
}

func WithVariantCounter(vc VariantCounter) Option {
	return func(s *LinkService) { s.variants = vc }
}

func WithValidator(v *routing.Validator) Option {
	return func(s *LinkService) { s.validator = v }
}

func WithStoreTimeout(d time.Duration) Option {
	return func(s *LinkService) { s.storeTimeout = d }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *LinkService) { s.metrics = m }
}

func WithLogger(log logger.Logger) Option {
	return func(s *LinkService) { s.log = log }
}

func WithClock(now func() time.Time) Option {
	return func(s *LinkService) { s.now = now }
}

func NewLinkService(links repository.LinkRepository, allocator *slug.Allocator, clicks ClickRecorder, baseURL string, opts ...Option) *LinkService {
	s := &LinkService{
		links:     links,
		allocator: allocator,
		clicks:    clicks,
		baseURL:   strings.TrimRight(baseURL, "/"),
		log:       logger.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.validator == nil {
		s.validator = routing.NewValidator(s.baseURL)
	}
	return s
}

// Create validates the request, then reserves a slug and stores the link in
// one step.
func (s *LinkService) Create(ctx context.Context, req *model.CreateLinkRequest, ownerID string) (*model.LinkResponse, error) {
	now := s.now().UTC()
	destination := utils.SanitizeInput(req.URL)
	customSlug := strings.TrimSpace(req.CustomSlug)

	var domain *string
	if d := utils.HostOf(req.CustomDomain); d != "" {
		domain = &d
	}
	self := routing.Self{Slug: customSlug}
	if domain != nil {
		self.Domain = *domain
	}

	if err := s.validator.Target("url", destination, self); err != nil {
		return nil, err
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(now) {
		return nil, apperrors.NewValidationError("expires_at", "expiration must be in the future")
	}
	if req.MaxClicks != nil && *req.MaxClicks < 1 {
		return nil, apperrors.NewValidationError("max_clicks", "max_clicks must be at least 1")
	}

	routingCfg, err := s.validator.Config(req.Routing, self, now)
	if err != nil {
		return nil, err
	}

	link := &model.Link{
		Destination:  destination,
		CreatedAt:    now,
		UpdatedAt:    now,
		MaxClicks:    req.MaxClicks,
		Active:       true,
		CustomDomain: domain,
		Routing:      routingCfg,
	}
	if req.ExpiresAt != nil {
		t := req.ExpiresAt.UTC()
		link.ExpiresAt = &t
	}
	if ownerID != "" {
		link.OwnerID = &ownerID
	}
	if req.Password != "" {
		hash, err := lifecycle.HashPassword(req.Password)
		if err != nil {
			return nil, err
		}
		link.PasswordHash = &hash
	}

	ctx, cancel := s.storeCtx(ctx)
	defer cancel()

	// Сгенерированный slug не должен замыкать ссылку саму на себя
	pointsBack := func(candidate string) bool {
		return s.validator.PointsBack(destination, routingCfg, routing.Self{Slug: candidate, Domain: self.Domain})
	}
	if _, err := s.allocator.Allocate(ctx, link, customSlug, pointsBack); err != nil {
		return nil, err
	}

	s.log.Info("Link created",
		logger.String("slug", link.Slug),
		logger.Bool("custom", customSlug != ""),
		logger.Bool("protected", link.HasPassword()),
	)
	return s.toResponse(link), nil
}

// Redirect runs the lifecycle guard, then the resolver, then hands one click
// event to the accountant. A missing link is a NotFound decision, not an
// error; only store failures are returned as errors.
func (s *LinkService) Redirect(ctx context.Context, slugStr string, rc model.RequestContext, credential string) (*RedirectResult, error) {
	if rc.Now.IsZero() {
		rc.Now = s.now().UTC()
	}

	var link *model.Link
	if slug.IsWellFormed(slugStr) {
		var err error
		link, err = s.load(ctx, slugStr)
		if err != nil && !errors.Is(err, apperrors.ErrLinkNotFound) {
			return nil, err
		}
	}

	decision := lifecycle.Evaluate(link, rc.Now, credential)
	s.metrics.Redirect(decision.Outcome.String())
	if !decision.Allowed() {
		return &RedirectResult{Decision: decision}, nil
	}

	res := routing.Resolve(link, rc)
	s.metrics.RoutingTier(string(res.Tier))

	s.clicks.Record(model.ClickEvent{
		ID:          uuid.NewString(),
		Slug:        link.Slug,
		OwnerID:     link.Owner(),
		ResolvedURL: res.URL,
		Tier:        string(res.Tier),
		Variant:     res.Variant,
		TestID:      res.TestID,
		Context:     rc,
		Timestamp:   rc.Now,
	})

	return &RedirectResult{
		Decision: decision,
		URL:      res.URL,
		Tier:     res.Tier,
		Variant:  res.Variant,
	}, nil
}

func (s *LinkService) Get(ctx context.Context, slugStr, ownerID string) (*model.LinkResponse, error) {
	link, err := s.owned(ctx, slugStr, ownerID)
	if err != nil {
		return nil, err
	}
	return s.toResponse(link), nil
}

// Update applies a partial update. A zero expires_at, a max_clicks of 0 and
// an empty password each remove the corresponding restriction.
func (s *LinkService) Update(ctx context.Context, slugStr, ownerID string, req *model.UpdateLinkRequest) (*model.LinkResponse, error) {
	link, err := s.owned(ctx, slugStr, ownerID)
	if err != nil {
		return nil, err
	}

	if req.Destination != nil {
		destination := utils.SanitizeInput(*req.Destination)
		if err := s.validator.Target("destination", destination, selfOf(link)); err != nil {
			return nil, err
		}
		link.Destination = destination
	}
	if req.Active != nil {
		link.Active = *req.Active
	}
	if req.ExpiresAt != nil {
		if req.ExpiresAt.IsZero() {
			link.ExpiresAt = nil
		} else {
			t := req.ExpiresAt.UTC()
			link.ExpiresAt = &t
		}
	}
	if req.MaxClicks != nil {
		switch n := *req.MaxClicks; {
		case n < 0:
			return nil, apperrors.NewValidationError("max_clicks", "max_clicks cannot be negative")
		case n == 0:
			link.MaxClicks = nil
		default:
			link.MaxClicks = &n
		}
	}
	if req.Password != nil {
		if *req.Password == "" {
			link.PasswordHash = nil
		} else {
			hash, err := lifecycle.HashPassword(*req.Password)
			if err != nil {
				return nil, err
			}
			link.PasswordHash = &hash
		}
	}
	link.UpdatedAt = s.now().UTC()

	ctx, cancel := s.storeCtx(ctx)
	defer cancel()

	if err := s.links.Update(ctx, link); err != nil {
		return nil, err
	}
	return s.toResponse(link), nil
}

func (s *LinkService) Delete(ctx context.Context, slugStr, ownerID string) error {
	if _, err := s.owned(ctx, slugStr, ownerID); err != nil {
		return err
	}

	ctx, cancel := s.storeCtx(ctx)
	defer cancel()

	if err := s.links.Delete(ctx, slugStr); err != nil {
		return err
	}
	s.log.Info("Link deleted", logger.String("slug", slugStr))
	return nil
}

// Stats reports the click count and whether the link still redirects.
func (s *LinkService) Stats(ctx context.Context, slugStr, ownerID string) (*model.StatsResponse, error) {
	link, err := s.owned(ctx, slugStr, ownerID)
	if err != nil {
		return nil, err
	}

	status := "active"
	if d := lifecycle.Evaluate(link, s.now(), ""); d.Outcome == lifecycle.Gone {
		status = d.Reason
	}
	return &model.StatsResponse{
		Slug:       link.Slug,
		ClickCount: link.ClickCount,
		Status:     status,
	}, nil
}

func (s *LinkService) GetRouting(ctx context.Context, slugStr, ownerID string) (*model.RoutingConfig, error) {
	link, err := s.owned(ctx, slugStr, ownerID)
	if err != nil {
		return nil, err
	}
	if link.Routing == nil {
		return &model.RoutingConfig{}, nil
	}
	return link.Routing, nil
}

// SetRouteMap replaces the device, geo or referrer tier and returns the
// stored (normalized) map.
func (s *LinkService) SetRouteMap(ctx context.Context, slugStr, ownerID string, typ model.RoutingType, routes map[string]string) (map[string]string, error) {
	switch typ {
	case model.RoutingDevice, model.RoutingGeo, model.RoutingReferrer:
	default:
		return nil, apperrors.NewValidationError("type", fmt.Sprintf("unsupported routing type %q", typ))
	}

	link, err := s.owned(ctx, slugStr, ownerID)
	if err != nil {
		return nil, err
	}

	normalized, err := s.validator.RouteMap(typ, routes, selfOf(link))
	if err != nil {
		return nil, err
	}
	if err := s.setTier(ctx, slugStr, typ, normalized); err != nil {
		return nil, err
	}
	return normalized, nil
}

func (s *LinkService) SetTimeRules(ctx context.Context, slugStr, ownerID string, rules []model.TimeRule) ([]model.TimeRule, error) {
	link, err := s.owned(ctx, slugStr, ownerID)
	if err != nil {
		return nil, err
	}

	checked, err := s.validator.TimeRules(rules, selfOf(link))
	if err != nil {
		return nil, err
	}
	if err := s.setTier(ctx, slugStr, model.RoutingTime, checked); err != nil {
		return nil, err
	}
	return checked, nil
}

// DeleteRouting removes one tier. Removing a tier that is not set is not an
// error.
func (s *LinkService) DeleteRouting(ctx context.Context, slugStr, ownerID string, typ model.RoutingType) error {
	switch typ {
	case model.RoutingDevice, model.RoutingGeo, model.RoutingReferrer, model.RoutingTime, model.RoutingABTest:
	default:
		return apperrors.NewValidationError("type", fmt.Sprintf("unsupported routing type %q", typ))
	}

	if _, err := s.owned(ctx, slugStr, ownerID); err != nil {
		return err
	}
	return s.setTier(ctx, slugStr, typ, nil)
}

// SetABTest starts a new test. The previous test, if any, is replaced and its
// visitors are bucketed afresh under the new id.
func (s *LinkService) SetABTest(ctx context.Context, slugStr, ownerID string, req model.ABTestRequest) (*model.ABTest, error) {
	link, err := s.owned(ctx, slugStr, ownerID)
	if err != nil {
		return nil, err
	}

	test, err := s.validator.BuildABTest(req, selfOf(link), s.now())
	if err != nil {
		return nil, err
	}
	if err := s.setTier(ctx, slugStr, model.RoutingABTest, test); err != nil {
		return nil, err
	}

	s.log.Info("A/B test started",
		logger.String("slug", slugStr),
		logger.String("test_id", test.ID),
		logger.Int("variants", len(test.Variants)),
	)
	return test, nil
}

// GetABResults returns the running test with per-variant clicks. Counters are
// best effort; a counter backend failure reports zeros.
func (s *LinkService) GetABResults(ctx context.Context, slugStr, ownerID string) (*model.ABTestResults, error) {
	link, err := s.owned(ctx, slugStr, ownerID)
	if err != nil {
		return nil, err
	}
	if link.Routing == nil || link.Routing.ABTest == nil {
		return nil, apperrors.ErrABTestNotFound
	}
	test := link.Routing.ABTest

	clicks := make(map[string]int64, len(test.Variants))
	for _, v := range test.Variants {
		clicks[v.Name] = 0
	}
	if s.variants != nil {
		counts, err := s.variants.VariantCounts(ctx, test.ID)
		if err != nil {
			s.log.Warn("Failed to read variant counters",
				logger.String("test_id", test.ID),
				logger.Error(err),
			)
		}
		for name, n := range counts {
			if _, ok := clicks[name]; ok {
				clicks[name] = n
			}
		}
	}

	return &model.ABTestResults{
		TestID:   test.ID,
		Variants: test.Variants,
		Clicks:   clicks,
	}, nil
}

func (s *LinkService) DeleteABTest(ctx context.Context, slugStr, ownerID string) error {
	return s.DeleteRouting(ctx, slugStr, ownerID, model.RoutingABTest)
}

func (s *LinkService) setTier(ctx context.Context, slugStr string, typ model.RoutingType, value any) error {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.links.SetRoutingTier(ctx, slugStr, typ, value)
}

func (s *LinkService) load(ctx context.Context, slugStr string) (*model.Link, error) {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.links.Get(ctx, slugStr)
}

// owned loads a link on behalf of ownerID. Links of other owners and
// anonymous links look exactly like missing ones.
func (s *LinkService) owned(ctx context.Context, slugStr, ownerID string) (*model.Link, error) {
	link, err := s.load(ctx, slugStr)
	if err != nil {
		return nil, err
	}
	if ownerID == "" || link.Owner() != ownerID {
		return nil, fmt.Errorf("link with slug '%s': %w", slugStr, apperrors.ErrLinkNotFound)
	}
	return link, nil
}

func (s *LinkService) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.storeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.storeTimeout)
}

func (s *LinkService) toResponse(link *model.Link) *model.LinkResponse {
	return &model.LinkResponse{
		Slug:         link.Slug,
		ShortURL:     s.buildShortURL(link),
		Destination:  link.Destination,
		ClickCount:   link.ClickCount,
		Active:       link.Active,
		Protected:    link.HasPassword(),
		ExpiresAt:    link.ExpiresAt,
		MaxClicks:    link.MaxClicks,
		CustomDomain: link.CustomDomain,
		CreatedAt:    link.CreatedAt,
	}
}

func (s *LinkService) buildShortURL(link *model.Link) string {
	if link.CustomDomain != nil && *link.CustomDomain != "" {
		return fmt.Sprintf("https://%s/%s", *link.CustomDomain, link.Slug)
	}
	return fmt.Sprintf("%s/%s", s.baseURL, link.Slug)
}

func selfOf(link *model.Link) routing.Self {
	self := routing.Self{Slug: link.Slug}
	if link.CustomDomain != nil {
		self.Domain = *link.CustomDomain
	}
	return self
}
