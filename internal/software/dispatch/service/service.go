package service

import (
	"trip-dispatch/internal/general/config"
	"trip-dispatch/internal/general/logger"
	"trip-dispatch/internal/general/positions"
	"trip-dispatch/internal/general/rabbitmq"
	"trip-dispatch/internal/ports"
)

const producerName = "dispatch"

// Service implements the dispatch core: trip intake, eligibility matching,
// atomic acceptance, worker cancellation with per-route blacklisting, and
// search session tracking.
type Service struct {
	logger    *logger.Logger
	cfg       *config.Config
	uow       ports.UnitOfWork
	trips     ports.TripRepository
	stops     ports.StopRepository
	workers   ports.WorkerRepository
	blacklist ports.BlacklistRepository
	notifier  ports.Notifier
	publisher ports.EventPublisher

	sessions  *SessionTracker
	offers    *offerLog
	positions *positions.Cache // optional; enriches driver_found pushes
	mq        *rabbitmq.Client // optional; used by background consumers
}

// compile-time check against the service port
var _ ports.DispatchService = (*Service)(nil)

// New constructs the dispatch service.
func New(
	logger *logger.Logger,
	cfg *config.Config,
	uow ports.UnitOfWork,
	trips ports.TripRepository,
	stops ports.StopRepository,
	workers ports.WorkerRepository,
	blacklist ports.BlacklistRepository,
	notifier ports.Notifier,
	publisher ports.EventPublisher,
	sessions *SessionTracker,
	posCache *positions.Cache,
	mq *rabbitmq.Client,
) *Service {
	s := &Service{
		logger:    logger,
		cfg:       cfg,
		uow:       uow,
		trips:     trips,
		stops:     stops,
		workers:   workers,
		blacklist: blacklist,
		notifier:  notifier,
		publisher: publisher,
		sessions:  sessions,
		offers:    newOfferLog(),
		positions: posCache,
		mq:        mq,
	}

	// a search that dies out releases its offer bookkeeping; otherwise the
	// per-trip worker sets for never-accepted trips accumulate forever
	if sessions != nil {
		sessions.OnTimeout(func(tripID string) { s.offers.clear(tripID) })
	}

	return s
}
