package auth

import (
	"context"
	"fmt"
	"math"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// RecoveryOutcome is what a recovery pass found.
type RecoveryOutcome string

const (
	RecoveryNone    RecoveryOutcome = "none"
	RecoveryPartial RecoveryOutcome = "partial"
	RecoveryFull    RecoveryOutcome = "full"
)

// RecoveryResult reports what was persisted.
type RecoveryResult struct {
	Outcome RecoveryOutcome
	Record  *PendingBookingRecord
	Flag    *PendingBookingFlag
}

// Recovery reconciles an unfinished checkout with tab storage after login.
type Recovery struct {
	checker      PendingBookingChecker
	bookings     *BookingStore
	logger       Logger
	now          func() time.Time
	activitySink ActivitySink
}

// RecoveryOption customizes Recovery.
type RecoveryOption func(*Recovery)

// WithRecoveryClock injects a custom clock (useful for tests).
func WithRecoveryClock(clock func() time.Time) RecoveryOption {
	return func(r *Recovery) {
		if clock != nil {
			r.now = clock
		}
	}
}

// WithRecoveryLogger overrides the logger.
func WithRecoveryLogger(logger Logger) RecoveryOption {
	return func(r *Recovery) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRecoveryActivitySink sets the sink notified of recovered bookings.
func WithRecoveryActivitySink(sink ActivitySink) RecoveryOption {
	return func(r *Recovery) {
		r.activitySink = normalizeActivitySink(sink)
	}
}

// NewRecovery returns a recovery pass writing into bookings.
func NewRecovery(checker PendingBookingChecker, bookings *BookingStore, opts ...RecoveryOption) *Recovery {
	r := &Recovery{
		checker:      checker,
		bookings:     bookings,
		logger:       defLogger{},
		now:          time.Now,
		activitySink: noopActivitySink{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Run checks for a pending booking and persists what it finds. It never
// fails: any error degrades to RecoveryNone so login is not blocked.
func (r *Recovery) Run(ctx context.Context, accessToken string, user *User) RecoveryResult {
	if r == nil || r.checker == nil || r.bookings == nil {
		return RecoveryResult{Outcome: RecoveryNone}
	}

	payload, err := r.checker.CheckPendingBooking(ctx, accessToken)
	if err != nil {
		var conflict *PendingBookingConflict
		if goerrors.As(err, &conflict) {
			return r.persistSummary(ctx, user, conflict.Summary)
		}
		r.logger.Warn("pending booking check failed", "error", err)
		return RecoveryResult{Outcome: RecoveryNone}
	}

	if payload == nil {
		return RecoveryResult{Outcome: RecoveryNone}
	}

	now := r.now()
	if !payload.PaymentDeadline.IsZero() && !now.Before(payload.PaymentDeadline) {
		r.logger.Debug("pending booking already expired", "booking_id", payload.BookingID)
		return RecoveryResult{Outcome: RecoveryNone}
	}

	if !payload.complete() {
		return r.persistSummary(ctx, user, PendingBookingSummary{
			MovieName:        payload.MovieName,
			RemainingMinutes: RemainingMinutes(payload.PaymentDeadline, now),
		})
	}

	return r.persistFull(ctx, user, payload, now)
}

func (r *Recovery) persistSummary(ctx context.Context, user *User, summary PendingBookingSummary) RecoveryResult {
	if summary.RemainingMinutes <= 0 && summary.MovieName == "" {
		return RecoveryResult{Outcome: RecoveryNone}
	}

	flag := PendingBookingFlag{
		MovieName:        summary.MovieName,
		RemainingMinutes: summary.RemainingMinutes,
		Message:          summary.Message,
	}
	if flag.Message == "" {
		flag.Message = pendingMessage(summary.MovieName, summary.RemainingMinutes)
	}

	if err := r.bookings.SetFlag(ctx, flag); err != nil {
		r.logger.Warn("failed to persist pending booking flag", "error", err)
		return RecoveryResult{Outcome: RecoveryNone}
	}

	r.record(ctx, ActivityEventBookingFlagged, user, map[string]any{
		"movie_name":        flag.MovieName,
		"remaining_minutes": flag.RemainingMinutes,
	})

	return RecoveryResult{Outcome: RecoveryPartial, Flag: &flag}
}

func (r *Recovery) persistFull(ctx context.Context, user *User, payload *PendingBookingPayload, now time.Time) RecoveryResult {
	remaining := RemainingMinutes(payload.PaymentDeadline, now)

	record := &PendingBookingRecord{
		BookingID:        payload.BookingID,
		MovieID:          payload.MovieID,
		ShowtimeID:       payload.ShowtimeID,
		MovieName:        payload.MovieName,
		SelectedSeats:    append([]Seat(nil), payload.Seats...),
		TotalPrice:       payload.TotalPrice,
		RoomName:         payload.RoomName,
		CinemaName:       payload.CinemaName,
		ShowtimeStart:    payload.StartTime,
		ExpiresAt:        payload.PaymentDeadline,
		RemainingMinutes: remaining,
		Recovered:        true,
		Version:          now.UnixNano(),
	}

	if err := r.bookings.PutRecord(ctx, record); err != nil {
		r.logger.Warn("failed to persist pending booking record", "error", err)
		return RecoveryResult{Outcome: RecoveryNone}
	}

	bookingID, showtimeID, movieID := record.BookingID, record.ShowtimeID, record.MovieID
	flag := PendingBookingFlag{
		MovieName:        record.MovieName,
		RemainingMinutes: remaining,
		Message:          pendingMessage(record.MovieName, remaining),
		BookingID:        &bookingID,
		ShowtimeID:       &showtimeID,
		MovieID:          &movieID,
	}

	if err := r.bookings.SetFlag(ctx, flag); err != nil {
		r.logger.Warn("failed to persist pending booking flag", "error", err)
	}

	r.record(ctx, ActivityEventBookingRecovered, user, map[string]any{
		"booking_id":        record.BookingID,
		"showtime_id":       record.ShowtimeID,
		"remaining_minutes": remaining,
	})

	return RecoveryResult{Outcome: RecoveryFull, Record: record, Flag: &flag}
}

func (r *Recovery) record(ctx context.Context, eventType ActivityEventType, user *User, metadata map[string]any) {
	event := ActivityEvent{
		EventType:  eventType,
		Metadata:   metadata,
		OccurredAt: r.now(),
	}
	if user != nil {
		event.UserID = user.ID
		event.Role = user.Role
	}
	if err := normalizeActivitySink(r.activitySink).Record(ctx, event); err != nil {
		r.logger.Warn("activity sink record error: %v", err)
	}
}

// RemainingMinutes rounds the time left before deadline up to whole
// minutes. It never returns a negative value.
func RemainingMinutes(deadline, now time.Time) int {
	if deadline.IsZero() {
		return 0
	}
	left := deadline.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(float64(left.Milliseconds()) / 60000))
}

func pendingMessage(movieName string, minutes int) string {
	if movieName == "" {
		return fmt.Sprintf("You have an unfinished booking. %d minutes left to complete payment.", minutes)
	}
	return fmt.Sprintf("You have an unfinished booking for %s. %d minutes left to complete payment.", movieName, minutes)
}
