package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Siddarth2230/shortlink/internal/models"
	"github.com/Siddarth2230/shortlink/internal/repository"
	"github.com/Siddarth2230/shortlink/pkg/cache"
	"github.com/Siddarth2230/shortlink/pkg/idgen"
	"github.com/Siddarth2230/shortlink/pkg/metrics"
)

var (
	ErrInvalidURL       = errors.New("invalid URL: must start with http:// or https://")
	ErrNotFound         = errors.New("short code not found")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrGenExhausted     = idgen.ErrGenExhausted
)

// maxSaveAttempts bounds retries when a freshly checked code loses a
// unique-constraint race on insert.
const maxSaveAttempts = 3

const (
	defaultVisitLimit = 50
	maxVisitLimit     = 500
)

var tracer = otel.Tracer("github.com/Siddarth2230/shortlink/internal/service")

// Store is the durable, authoritative side of the service.
type Store interface {
	Save(ctx context.Context, link *models.ShortLink) error
	FindByCode(ctx context.Context, code string) (*models.ShortLink, error)
	DeleteByCode(ctx context.Context, code string) error
	ListVisits(ctx context.Context, code string, limit int) ([]models.Visit, error)
	DeleteExpired(ctx context.Context, cutoff time.Time) ([]string, error)
	Ping(ctx context.Context) error
}

// Cache is the fast, non-authoritative code -> URL layer.
type Cache interface {
	Get(ctx context.Context, code string) (string, error)
	Set(ctx context.Context, code, url string, ttl time.Duration) error
	SetDefault(ctx context.Context, code, url string) error
	Delete(ctx context.Context, code string) error
	Ping(ctx context.Context) error
}

type CodeGenerator interface {
	GenerateUnique(ctx context.Context, minLength int) (string, error)
}

// VisitDispatcher hands a visit to background recording. It must not block.
type VisitDispatcher interface {
	Submit(code string, rc *models.RequestContext) bool
}

type Config struct {
	BaseURL      string
	CodeLength   int
	StoreTimeout time.Duration
}

// LinkService provides URL shortening, resolution and stats.
type LinkService struct {
	store     Store
	cache     Cache
	generator CodeGenerator
	visits    VisitDispatcher
	cfg       Config
	logger    *zap.Logger
	now       func() time.Time
}

func NewLinkService(store Store, c Cache, gen CodeGenerator, visits VisitDispatcher, cfg Config, logger *zap.Logger) *LinkService {
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 2 * time.Second
	}
	if cfg.CodeLength <= 0 {
		cfg.CodeLength = idgen.DefaultLength
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LinkService{
		store:     store,
		cache:     c,
		generator: gen,
		visits:    visits,
		cfg:       cfg,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create validates originalURL, stores it under a fresh code and primes the cache.
func (s *LinkService) Create(ctx context.Context, originalURL string, expiresAt *time.Time) (resp *models.ShortenResponse, err error) {
	ctx, span := tracer.Start(ctx, "LinkService.Create")
	defer func() { endSpan(span, err) }()

	if err := validateURL(originalURL); err != nil {
		return nil, err
	}
	if expiresAt != nil {
		t := expiresAt.UTC()
		expiresAt = &t
	}

	for attempt := 1; attempt <= maxSaveAttempts; attempt++ {
		code, err := s.generateCode(ctx)
		if err != nil {
			return nil, err
		}

		link := &models.ShortLink{
			Code:        code,
			OriginalURL: originalURL,
			CreatedAt:   s.now(),
			ExpiresAt:   expiresAt,
		}

		err = s.withStoreTimeout(ctx, func(ctx context.Context) error {
			return s.store.Save(ctx, link)
		})
		if errors.Is(err, repository.ErrDuplicateCode) {
			metrics.CodeEscalations.Inc()
			s.logger.Warn("save race on generated code, retrying",
				zap.String("code", code), zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return nil, s.storeError("save", err)
		}

		span.SetAttributes(attribute.String("shortlink.code", code))
		s.cacheLink(ctx, link, s.now())
		metrics.LinksCreated.Inc()

		return &models.ShortenResponse{
			Code:        link.Code,
			ShortURL:    s.shortURL(link.Code),
			OriginalURL: link.OriginalURL,
			ExpiresAt:   link.ExpiresAt,
		}, nil
	}

	return nil, ErrGenExhausted
}

// Resolve returns the destination for code, or ErrNotFound for unknown and
// expired codes alike. A live cache entry is trusted as is: its TTL never
// outlives the link's expiry. Every successful resolution dispatches a visit.
func (s *LinkService) Resolve(ctx context.Context, code string, rc *models.RequestContext) (dest string, err error) {
	ctx, span := tracer.Start(ctx, "LinkService.Resolve", trace.WithAttributes(attribute.String("shortlink.code", code)))
	defer func() { endSpan(span, err) }()

	if !idgen.Valid(code) {
		metrics.Resolutions.WithLabelValues("not_found").Inc()
		return "", ErrNotFound
	}

	// ===== CACHE LAYER =====
	cached, cacheErr := s.cache.Get(ctx, code)
	if cacheErr == nil {
		span.SetAttributes(attribute.Bool("shortlink.cache_hit", true))
		metrics.Resolutions.WithLabelValues("cache_hit").Inc()
		s.dispatchVisit(code, rc)
		return cached, nil
	}
	if !errors.Is(cacheErr, cache.ErrCacheMiss) {
		s.logger.Warn("cache unavailable, falling back to store", zap.String("code", code), zap.Error(cacheErr))
	}

	// ===== STORE =====
	link, err := s.findLink(ctx, code)
	if err != nil {
		metrics.Resolutions.WithLabelValues("error").Inc()
		return "", err
	}
	if link == nil {
		metrics.Resolutions.WithLabelValues("not_found").Inc()
		return "", ErrNotFound
	}

	now := s.now()
	if link.Expired(now) {
		metrics.Resolutions.WithLabelValues("expired").Inc()
		return "", ErrNotFound
	}

	s.cacheLink(ctx, link, now)
	metrics.Resolutions.WithLabelValues("store_hit").Inc()
	s.dispatchVisit(code, rc)
	return link.OriginalURL, nil
}

// Stats reads the authoritative record for code. Expired links are reported
// as not found, like in Resolve.
func (s *LinkService) Stats(ctx context.Context, code string) (resp *models.StatsResponse, err error) {
	ctx, span := tracer.Start(ctx, "LinkService.Stats", trace.WithAttributes(attribute.String("shortlink.code", code)))
	defer func() { endSpan(span, err) }()

	if !idgen.Valid(code) {
		return nil, ErrNotFound
	}

	link, err := s.findLink(ctx, code)
	if err != nil {
		return nil, err
	}
	if link == nil || link.Expired(s.now()) {
		return nil, ErrNotFound
	}

	return &models.StatsResponse{
		Code:        link.Code,
		OriginalURL: link.OriginalURL,
		ClickCount:  link.ClickCount,
		CreatedAt:   link.CreatedAt,
		ExpiresAt:   link.ExpiresAt,
	}, nil
}

// Delete removes the link and its cache entry. Its visits are kept.
func (s *LinkService) Delete(ctx context.Context, code string) error {
	if !idgen.Valid(code) {
		return ErrNotFound
	}

	err := s.withStoreTimeout(ctx, func(ctx context.Context) error {
		return s.store.DeleteByCode(ctx, code)
	})
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return s.storeError("delete", err)
	}

	if err := s.cache.Delete(ctx, code); err != nil {
		// the entry dies with its TTL anyway
		s.logger.Warn("cache invalidation failed", zap.String("code", code), zap.Error(err))
	}
	return nil
}

// Visits lists the most recent visits recorded for code.
func (s *LinkService) Visits(ctx context.Context, code string, limit int) ([]models.Visit, error) {
	if !idgen.Valid(code) {
		return nil, ErrNotFound
	}
	if limit <= 0 {
		limit = defaultVisitLimit
	}
	if limit > maxVisitLimit {
		limit = maxVisitLimit
	}

	var visits []models.Visit
	err := s.withStoreTimeout(ctx, func(ctx context.Context) error {
		var err error
		visits, err = s.store.ListVisits(ctx, code, limit)
		return err
	})
	if err != nil {
		return nil, s.storeError("list visits", err)
	}
	return visits, nil
}

// PurgeExpired deletes links that expired more than grace ago.
func (s *LinkService) PurgeExpired(ctx context.Context, grace time.Duration) (int, error) {
	cutoff := s.now().Add(-grace)

	var codes []string
	err := s.withStoreTimeout(ctx, func(ctx context.Context) error {
		var err error
		codes, err = s.store.DeleteExpired(ctx, cutoff)
		return err
	})
	if err != nil {
		return 0, s.storeError("purge expired", err)
	}

	for _, code := range codes {
		_ = s.cache.Delete(ctx, code)
	}
	return len(codes), nil
}

// RunPurger calls PurgeExpired every interval until ctx is done.
func (s *LinkService) RunPurger(ctx context.Context, interval, grace time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.PurgeExpired(ctx, grace)
			if err != nil {
				s.logger.Error("expired link purge failed", zap.Error(err))
				continue
			}
			if n > 0 {
				s.logger.Info("purged expired links", zap.Int("count", n))
			}
		}
	}
}

// Health reports "ok" or the failure for each dependency.
func (s *LinkService) Health(ctx context.Context) (healthy bool, status map[string]string) {
	status = map[string]string{"store": "ok", "cache": "ok"}
	healthy = true

	if err := s.withStoreTimeout(ctx, s.store.Ping); err != nil {
		status["store"] = err.Error()
		healthy = false
	}
	if err := s.cache.Ping(ctx); err != nil {
		// cache loss only degrades latency
		status["cache"] = err.Error()
	}
	return healthy, status
}

func (s *LinkService) generateCode(ctx context.Context) (string, error) {
	var code string
	err := s.withStoreTimeout(ctx, func(ctx context.Context) error {
		var err error
		code, err = s.generator.GenerateUnique(ctx, s.cfg.CodeLength)
		return err
	})
	if errors.Is(err, idgen.ErrGenExhausted) {
		s.logger.Error("short code generation exhausted", zap.Int("length", s.cfg.CodeLength))
		return "", ErrGenExhausted
	}
	if err != nil {
		return "", s.storeError("check code", err)
	}
	return code, nil
}

func (s *LinkService) findLink(ctx context.Context, code string) (*models.ShortLink, error) {
	var link *models.ShortLink
	err := s.withStoreTimeout(ctx, func(ctx context.Context) error {
		var err error
		link, err = s.store.FindByCode(ctx, code)
		return err
	})
	if err != nil {
		return nil, s.storeError("find", err)
	}
	return link, nil
}

// cacheLink writes link through to the cache with a TTL that ends no later
// than its expiry. Links that are already expired are never cached.
func (s *LinkService) cacheLink(ctx context.Context, link *models.ShortLink, now time.Time) {
	var err error
	if link.ExpiresAt == nil {
		err = s.cache.SetDefault(ctx, link.Code, link.OriginalURL)
	} else {
		ttl := link.ExpiresAt.Sub(now)
		if ttl <= 0 {
			return
		}
		err = s.cache.Set(ctx, link.Code, link.OriginalURL, ttl)
	}
	if err != nil {
		s.logger.Warn("cache write failed", zap.String("code", link.Code), zap.Error(err))
	}
}

func (s *LinkService) dispatchVisit(code string, rc *models.RequestContext) {
	if s.visits == nil {
		return
	}
	s.visits.Submit(code, rc)
}

func (s *LinkService) withStoreTimeout(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	return fn(ctx)
}

func (s *LinkService) storeError(op string, err error) error {
	s.logger.Error("store operation failed", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}

func (s *LinkService) shortURL(code string) string {
	if s.cfg.BaseURL == "" {
		return code
	}
	return fmt.Sprintf("%s/%s", s.cfg.BaseURL, code)
}

// validateURL requires an http(s) scheme prefix and a host.
func validateURL(raw string) error {
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return ErrInvalidURL
	}
	parsed, err := url.ParseRequestURI(raw)
	if err != nil || parsed.Host == "" {
		return ErrInvalidURL
	}
	return nil
}

func endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
