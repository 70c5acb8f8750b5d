// Package notifier delivers task reminders to staff over email and Telegram.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ErrNoChannel is returned when no configured channel can reach the recipient.
var ErrNoChannel = errors.New("no notification channel for recipient")

// ExpirationNotice describes a reminder about a task close to or past its due date.
type ExpirationNotice struct {
	RecipientEmail      string
	RecipientTelegramID *int64
	TaskTitle           string
	TaskID              uint
	DueDate             time.Time
	AssignedTo          string
	RestaurantName      string
	Overdue             bool
}

// Notifier sends expiration reminders.
type Notifier interface {
	SendExpirationNotification(ctx context.Context, n ExpirationNotice) error
}

// Channel is a single delivery transport.
type Channel interface {
	Name() string
	Accepts(n ExpirationNotice) bool
	Send(ctx context.Context, n ExpirationNotice) error
}

// Multi fans a notice out to every channel that accepts the recipient. It
// succeeds when at least one channel delivered.
type Multi struct {
	channels []Channel
	limiter  *rate.Limiter
	timeout  time.Duration
	log      zerolog.Logger
}

// NewMulti builds a fan-out notifier. ratePerSec bounds outbound sends across
// all channels and timeout bounds every single send.
func NewMulti(channels []Channel, ratePerSec int, timeout time.Duration, log zerolog.Logger) *Multi {
	if ratePerSec <= 0 {
		ratePerSec = 5
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Multi{
		channels: channels,
		limiter:  rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
		timeout:  timeout,
		log:      log.With().Str("component", "notifier").Logger(),
	}
}

func (m *Multi) SendExpirationNotification(ctx context.Context, n ExpirationNotice) error {
	var (
		errs                 []error
		attempted, delivered int
	)
	for _, ch := range m.channels {
		if !ch.Accepts(n) {
			continue
		}
		attempted++
		if err := m.send(ctx, ch, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
			continue
		}
		delivered++
		m.log.Debug().Str("channel", ch.Name()).Uint("task_id", n.TaskID).Msg("notice delivered")
	}
	switch {
	case attempted == 0:
		return ErrNoChannel
	case delivered > 0:
		for _, err := range errs {
			m.log.Warn().Err(err).Uint("task_id", n.TaskID).Msg("channel failed")
		}
		return nil
	default:
		return errors.Join(errs...)
	}
}

func (m *Multi) send(ctx context.Context, ch Channel, n ExpirationNotice) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	if err := m.limiter.Wait(ctx); err != nil {
		return err
	}
	return ch.Send(ctx, n)
}
