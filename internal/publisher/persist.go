package publisher

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"presenced/internal/domain"
	"presenced/internal/repository"
)

// HistoryWriter appends cycle sightings to the presence history
type HistoryWriter struct {
	store  repository.HistoryStore
	logger zerolog.Logger
}

// NewHistoryWriter creates a writer over store
func NewHistoryWriter(store repository.HistoryStore, logger zerolog.Logger) *HistoryWriter {
	return &HistoryWriter{store: store, logger: logger}
}

// Persist inserts one history row per sighting. A failed insert is logged
// and the remaining sightings are still written.
func (w *HistoryWriter) Persist(ctx context.Context, sightings []domain.Sighting) error {
	var errs []error
	for _, sighting := range sightings {
		err := w.store.InsertSighting(ctx, sighting)
		switch {
		case err == nil:
			continue
		case errors.Is(err, repository.ErrNotLoggable):
			// Privacy level changed since the lookup
			w.logger.Debug().Err(err).Str("mac", sighting.HardwareAddress).Msg("registry refused sighting")
		default:
			w.logger.Error().Err(err).Str("mac", sighting.HardwareAddress).Msg("failed to insert sighting")
		}
		errs = append(errs, fmt.Errorf("%s: %w", sighting.HardwareAddress, err))
	}
	return errors.Join(errs...)
}

// RecordUnassigned notes sightings of unregistered addresses so they can be
// offered for assignment
func (w *HistoryWriter) RecordUnassigned(ctx context.Context, sightings []domain.Sighting) error {
	var errs []error
	for _, sighting := range sightings {
		if err := w.store.RecordUnassigned(ctx, sighting); err != nil {
			w.logger.Debug().Err(err).Str("mac", sighting.HardwareAddress).Msg("failed to record unassigned sighting")
			errs = append(errs, fmt.Errorf("%s: %w", sighting.HardwareAddress, err))
		}
	}
	return errors.Join(errs...)
}
