package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/libstats-api/pkg/errors"
)

const (
	cacheKeyUserRecipients  = "recipients:users"
	cacheKeyAdminRecipients = "recipients:admins"
)

type contactSource interface {
	ListActiveContactEmails(ctx context.Context) ([]string, error)
}

type adminSource interface {
	ListAdminEmails(ctx context.Context) ([]string, error)
}

// RecipientCache abstracts the cache backing recipient lookups.
type RecipientCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// RecipientService resolves notification audiences, caching the lists since
// they change far less often than the sweep runs. A nil cache disables
// caching entirely.
type RecipientService struct {
	libraries contactSource
	admins    adminSource
	cache     RecipientCache
	ttl       time.Duration
	logger    *zap.Logger
}

// NewRecipientService constructs a recipient service.
func NewRecipientService(libraries contactSource, admins adminSource, cache RecipientCache, ttl time.Duration, logger *zap.Logger) *RecipientService {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecipientService{libraries: libraries, admins: admins, cache: cache, ttl: ttl, logger: logger}
}

// ActiveUserRecipients returns contact addresses of active libraries.
func (s *RecipientService) ActiveUserRecipients(ctx context.Context) ([]string, error) {
	return s.cached(ctx, cacheKeyUserRecipients, s.libraries.ListActiveContactEmails)
}

// AdminRecipients returns addresses of active administrator accounts.
func (s *RecipientService) AdminRecipients(ctx context.Context) ([]string, error) {
	return s.cached(ctx, cacheKeyAdminRecipients, s.admins.ListAdminEmails)
}

// Invalidate drops the cached audience lists so the next resolution hits the
// stores. Each sweep pass starts with an invalidation: a pass must never
// notify an audience staler than its own cadence.
func (s *RecipientService) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, cacheKeyUserRecipients, cacheKeyAdminRecipients); err != nil {
		s.logger.Warn("recipient cache invalidation failed", zap.Error(err))
	}
}

func (s *RecipientService) cached(ctx context.Context, key string, load func(context.Context) ([]string, error)) ([]string, error) {
	if s.cache != nil {
		var emails []string
		err := s.cache.Get(ctx, key, &emails)
		if err == nil {
			return emails, nil
		}
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("recipient cache lookup failed", zap.String("key", key), zap.Error(err))
		}
	}

	emails, err := load(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, emails, s.ttl); err != nil {
			s.logger.Warn("recipient cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return emails, nil
}
