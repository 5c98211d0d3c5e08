package trips

import (
	"context"

	"github.com/Domenick1991/tripbooking/internal/domain"
	"github.com/sirupsen/logrus"
)

type TripUseCase interface {
	List(ctx context.Context) ([]domain.Trip, error)
	GetByID(ctx context.Context, id string) (*domain.Trip, error)
}

// Source is the inventory service.
type Source interface {
	Trips(ctx context.Context) ([]domain.Trip, error)
	Trip(ctx context.Context, tripID string) (*domain.Trip, error)
}

type TripCache interface {
	GetTrips(ctx context.Context) ([]domain.Trip, error)
	SetTrips(ctx context.Context, trips []domain.Trip) error
}

type TripService struct {
	source Source
	cache  TripCache
	logger *logrus.Logger
}

func NewTripService(source Source, cache TripCache, logger *logrus.Logger) *TripService {
	return &TripService{source: source, cache: cache, logger: logger}
}

// List serves the catalogue from cache when it can. Cache errors only cost a
// trip to the inventory service.
func (s *TripService) List(ctx context.Context) ([]domain.Trip, error) {
	if s.cache != nil {
		cached, err := s.cache.GetTrips(ctx)
		if err != nil {
			s.logger.WithError(err).Warn("Trip cache read failed")
		} else if cached != nil {
			return cached, nil
		}
	}

	trips, err := s.source.Trips(ctx)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetTrips(ctx, trips); err != nil {
			s.logger.WithError(err).Warn("Trip cache write failed")
		}
	}
	return trips, nil
}

// GetByID always asks the inventory service; prices and departure times used
// for booking must be current.
func (s *TripService) GetByID(ctx context.Context, id string) (*domain.Trip, error) {
	return s.source.Trip(ctx, id)
}

var _ TripUseCase = (*TripService)(nil)
