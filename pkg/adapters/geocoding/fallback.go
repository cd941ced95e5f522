package geocoding

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/nemaec/nemaec-engine/pkg/apperrors"
	"github.com/nemaec/nemaec-engine/pkg/metrics"
	"github.com/nemaec/nemaec-engine/pkg/models"
)

// FallbackProvider asks primary first and answers from fallback when primary
// reports itself unavailable. Not-found and canceled requests are returned
// as they are.
type FallbackProvider struct {
	primary  Provider
	fallback Provider
	logger   *zap.Logger
}

func NewFallbackProvider(primary, fallback Provider, logger *zap.Logger) *FallbackProvider {
	return &FallbackProvider{
		primary:  primary,
		fallback: fallback,
		logger:   logger.Named("geocoding"),
	}
}

var _ Provider = (*FallbackProvider)(nil)

func (p *FallbackProvider) Name() string { return p.primary.Name() }

func (p *FallbackProvider) Search(ctx context.Context, query string) ([]models.Place, error) {
	places, err := p.primary.Search(ctx, query)
	if !p.shouldFallBack(err) {
		return places, err
	}
	p.logFallback(opSearch, err)
	return p.fallback.Search(ctx, query)
}

func (p *FallbackProvider) Details(ctx context.Context, placeID string) (*models.Place, error) {
	// Ids handed out by the local dataset are never known to the primary.
	if strings.HasPrefix(placeID, LocalPlacePrefix) {
		return p.fallback.Details(ctx, placeID)
	}
	place, err := p.primary.Details(ctx, placeID)
	if !p.shouldFallBack(err) {
		return place, err
	}
	p.logFallback(opDetails, err)
	return p.fallback.Details(ctx, placeID)
}

func (p *FallbackProvider) shouldFallBack(err error) bool {
	return err != nil && errors.Is(err, apperrors.ErrProviderUnavailable)
}

func (p *FallbackProvider) logFallback(op string, err error) {
	metrics.GeocodingLookups.WithLabelValues(p.fallback.Name(), op, metrics.LookupResultFallback).Inc()
	p.logger.Warn("Geocoding provider unavailable, using fallback",
		zap.String("provider", p.primary.Name()),
		zap.String("fallback", p.fallback.Name()),
		zap.String("operation", op),
		zap.Error(err))
}
