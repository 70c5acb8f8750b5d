package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"kitchenboard/internal/logging"
)

// DefaultCheckInterval is the period between two scheduler ticks.
const DefaultCheckInterval = time.Hour

// Phase is one step of a scheduler tick.
type Phase int

const (
	PhaseExpirationCheck Phase = iota
	PhaseRecreate
	PhaseSweep
)

func (p Phase) String() string {
	switch p {
	case PhaseExpirationCheck:
		return "expiration_check"
	case PhaseRecreate:
		return "recreate"
	case PhaseSweep:
		return "sweep"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// tickPhases is the fixed order every tick runs in.
var tickPhases = []Phase{PhaseExpirationCheck, PhaseRecreate, PhaseSweep}

// NotificationService drives the background maintenance of the board:
// reminders, recurring task renewal and cleanup of old tasks.
type NotificationService struct {
	expiration *ExpirationChecker
	recurrence *RecurrenceProcessor
	retention  *RetentionSweeper
	scheduler  *SchedulerService
	interval   time.Duration
	log        zerolog.Logger

	tickMu sync.Mutex
}

func NewNotificationService(expiration *ExpirationChecker, recurrence *RecurrenceProcessor, retention *RetentionSweeper, scheduler *SchedulerService, interval time.Duration, log zerolog.Logger) *NotificationService {
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	return &NotificationService{
		expiration: expiration,
		recurrence: recurrence,
		retention:  retention,
		scheduler:  scheduler,
		interval:   interval,
		log:        log.With().Str("component", "notification").Logger(),
	}
}

// Start runs one tick synchronously, then schedules a tick every interval.
// The returned id is passed to Stop. Each call arms an independent timer.
func (s *NotificationService) Start(ctx context.Context) (cron.EntryID, error) {
	s.Tick(ctx)

	id, err := s.scheduler.ScheduleInterval(s.interval, func() { s.Tick(ctx) })
	if err != nil {
		return 0, fmt.Errorf("schedule notification ticks: %w", err)
	}
	s.scheduler.Start()

	s.log.Info().Dur("interval", s.interval).Time("next_run", s.scheduler.NextRun(id)).
		Msg("notification service started")
	return id, nil
}

// Stop prevents further ticks of the timer id. A tick in progress completes.
func (s *NotificationService) Stop(id cron.EntryID) {
	s.scheduler.Remove(id)
	s.log.Info().Msg("notification service stopped")
}

// Tick runs every phase once, in order. A failing or panicking phase does not
// prevent the following ones. Ticks never run concurrently.
func (s *NotificationService) Tick(ctx context.Context) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	runID := uuid.NewString()
	ctx = withRunID(ctx, runID)
	log := s.log.With().Str("run_id", runID).Logger()

	start := time.Now()
	for _, phase := range tickPhases {
		if ctx.Err() != nil {
			log.Warn().Err(ctx.Err()).Stringer("phase", phase).Msg("tick aborted")
			return
		}
		s.runPhase(ctx, log, phase)
	}
	log.Debug().Float64("duration_ms", logging.Since(start)).Msg("tick finished")
}

func (s *NotificationService) runPhase(ctx context.Context, log zerolog.Logger, phase Phase) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Stringer("phase", phase).Msg("phase panicked")
		}
	}()

	switch phase {
	case PhaseExpirationCheck:
		s.expiration.Run(ctx)
	case PhaseRecreate:
		s.recurrence.Run(ctx)
	case PhaseSweep:
		s.retention.Run(ctx)
	}
}
