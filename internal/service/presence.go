package service

//go:generate mockgen -destination=mock_service.go -package=service presenced/internal/service Publisher,Persister
//go:generate mockgen -destination=mock_source.go -package=service presenced/internal/adapter StationSource

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"presenced/internal/adapter"
	"presenced/internal/domain"
	"presenced/internal/repository"
)

// Publisher delivers a cycle's summary to the retained channel. Every topic
// is attempted; the returned error joins the per-topic failures.
type Publisher interface {
	Publish(ctx context.Context, result domain.AggregationResult) error
}

// Persister writes a cycle's sightings to the presence history. Every
// sighting is attempted; the returned error joins the per-sighting failures.
type Persister interface {
	Persist(ctx context.Context, sightings []domain.Sighting) error
	RecordUnassigned(ctx context.Context, sightings []domain.Sighting) error
}

// Snapshot is the outcome of the last successful cycle
type Snapshot struct {
	CycleID   string                   `json:"cycle_id"`
	Result    domain.AggregationResult `json:"result"`
	UpdatedAt time.Time                `json:"updated_at"`
}

// CycleReport summarises one cycle for the caller
type CycleReport struct {
	CycleID    string
	Started    time.Time
	Duration   time.Duration
	Stations   int
	Result     domain.AggregationResult
	Logged     int
	Unassigned int
	PublishErr error
	PersistErr error
}

// PresenceService runs aggregation cycles and remembers the last result
type PresenceService struct {
	source        adapter.StationSource
	lookup        repository.DeviceLookup
	publisher     Publisher
	persister     Persister
	eventBus      *EventBus
	anonymousName string
	now           func() time.Time
	logger        zerolog.Logger

	mu   sync.RWMutex
	last *Snapshot
}

// NewPresenceService creates a presence service
func NewPresenceService(source adapter.StationSource, lookup repository.DeviceLookup,
	publisher Publisher, persister Persister, eventBus *EventBus,
	anonymousName string, logger zerolog.Logger) *PresenceService {
	if anonymousName == "" {
		anonymousName = domain.DefaultAnonymousName
	}
	if eventBus == nil {
		eventBus = NewEventBus()
	}

	return &PresenceService{
		source:        source,
		lookup:        lookup,
		publisher:     publisher,
		persister:     persister,
		eventBus:      eventBus,
		anonymousName: anonymousName,
		now:           time.Now,
		logger:        logger,
	}
}

// RunCycle performs one fetch, aggregate, publish and persist pass. A
// station source failure aborts the cycle before anything is published or
// persisted. Publish and persist failures are reported but do not fail the
// cycle.
func (s *PresenceService) RunCycle(ctx context.Context) (*CycleReport, error) {
	report := &CycleReport{
		CycleID: uuid.New().String(),
		Started: s.now(),
	}

	log := s.logger.With().
		Str("cycle_id", report.CycleID).
		Time("cycle_started", report.Started).
		Logger()

	stations, err := s.source.FetchStations(ctx)
	if err != nil {
		log.Error().Err(err).Str("source", s.source.Name()).Msg("station source failed, skipping cycle")
		s.eventBus.Publish(Event{
			Type:    EventCycleFailed,
			Payload: map[string]string{"cycle_id": report.CycleID, "error": err.Error()},
		})
		return report, fmt.Errorf("fetch stations: %w", err)
	}
	report.Stations = len(stations)

	agg := Aggregate(ctx, stations, s.lookup, report.Started, s.anonymousName, log)
	report.Result = agg.Result
	report.Logged = len(agg.Loggable)
	report.Unassigned = len(agg.Unassigned)

	if report.PublishErr = s.publisher.Publish(ctx, agg.Result); report.PublishErr != nil {
		log.Warn().Err(report.PublishErr).Msg("summary publish incomplete")
	}

	if report.PersistErr = s.persister.Persist(ctx, agg.Loggable); report.PersistErr != nil {
		log.Warn().Err(report.PersistErr).Msg("history persist incomplete")
	}

	if err := s.persister.RecordUnassigned(ctx, agg.Unassigned); err != nil {
		log.Debug().Err(err).Msg("unassigned recording incomplete")
	}

	snapshot := &Snapshot{
		CycleID:   report.CycleID,
		Result:    agg.Result,
		UpdatedAt: report.Started,
	}
	s.mu.Lock()
	s.last = snapshot
	s.mu.Unlock()

	s.eventBus.Publish(Event{Type: EventPresenceUpdated, Payload: snapshot})

	report.Duration = s.now().Sub(report.Started)
	log.Info().
		Int("stations", report.Stations).
		Uint64("device_count", agg.Result.DeviceCount).
		Uint64("member_count", agg.Result.MemberCount).
		Bool("space_occupied", agg.Result.SpaceOccupied).
		Int("unassigned", report.Unassigned).
		Dur("duration", report.Duration).
		Msg("presence cycle complete")

	return report, nil
}

// LastSnapshot returns the last successful cycle's result, or nil before the first
func (s *PresenceService) LastSnapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return nil
	}
	snapshot := *s.last
	snapshot.Result.MemberNames = make([]string, len(s.last.Result.MemberNames))
	copy(snapshot.Result.MemberNames, s.last.Result.MemberNames)
	return &snapshot
}
