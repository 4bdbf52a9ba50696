package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"eventDesk/internal/cache"
	"eventDesk/internal/mapper"
	"eventDesk/internal/repo"
	"eventDesk/pkg/validator"
)

type service struct {
	repo      repo.Repository
	cache     *cache.LocalCache
	notifiers []Notifier
	mailer    Mailer
	log       *zerolog.Logger
	now       func() time.Time
}

type Option func(*service)

// WithNotifiers registers receivers of change announcements.
func WithNotifiers(n ...Notifier) Option {
	return func(s *service) { s.notifiers = append(s.notifiers, n...) }
}

func WithMailer(m Mailer) Option {
	return func(s *service) { s.mailer = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

func NewService(r repo.Repository, c *cache.LocalCache, logger *zerolog.Logger, opts ...Option) Service {
	s := &service{
		repo:  r,
		cache: c,
		log:   logger,
		now:   clock,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) validate(ctx context.Context, v any) error {
	if err := validator.Validate(ctx, v); err != nil {
		return fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	return nil
}

// validatePatch checks a patch after blank optional fields have been
// turned into clears, so "" is accepted for any optional field.
func validatePatch[T any](ctx context.Context, s *service, m *mapper.FieldMapper, patch T) (mapper.Record, error) {
	fields, err := mapper.Encode(patch)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	fields = m.Normalize(fields)
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: nothing to update", ErrValidationFailed)
	}
	var check T
	if err := mapper.Decode(fields, &check); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	if err := s.validate(ctx, check); err != nil {
		return nil, err
	}
	return fields, nil
}

func (s *service) requireRemote() error {
	if !s.repo.Available() {
		return repo.ErrRemoteUnavailable
	}
	return nil
}

func (s *service) notify(ctx context.Context, col cache.Collection) {
	for _, n := range s.notifiers {
		n.Notify(ctx, string(col))
	}
}

// mirror logs instead of failing: the remote write already succeeded and
// the next sync overwrites the cache anyway.
func (s *service) mirror(col cache.Collection, err error) {
	if err != nil {
		s.log.Warn().Err(err).Str("collection", string(col)).Msg("failed to mirror write into cache")
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, repo.ErrNotFound)
}
