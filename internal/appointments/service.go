package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/medicare-assistant/internal/appointment"
	"github.com/wolfman30/medicare-assistant/internal/capacity"
	"github.com/wolfman30/medicare-assistant/internal/identity"
	"github.com/wolfman30/medicare-assistant/internal/observability/metrics"
	"github.com/wolfman30/medicare-assistant/pkg/logging"
)

var appointmentsTracer = otel.Tracer("medicare.internal.appointments")

// DefaultStoreTimeout bounds every store round-trip when no timeout is configured.
const DefaultStoreTimeout = 5 * time.Second

// Event kinds published after successful writes.
const (
	EventBooked    = "appointment.booked"
	EventCancelled = "appointment.cancelled"
	EventDeleted   = "appointment.deleted"
)

// EventPublisher announces appointment changes to downstream consumers.
type EventPublisher interface {
	PublishAppointment(ctx context.Context, kind string, rec appointment.Record) error
}

// Notifier tells the patient about a booking or cancellation.
type Notifier interface {
	AppointmentBooked(ctx context.Context, to identity.User, rec appointment.Record) error
	AppointmentCancelled(ctx context.Context, to identity.User, rec appointment.Record) error
}

// Option customizes a Service.
type Option func(*Service)

func WithLogger(logger *logging.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithEvents(publisher EventPublisher) Option {
	return func(s *Service) { s.events = publisher }
}

func WithNotifier(notifier Notifier) Option {
	return func(s *Service) { s.notifier = notifier }
}

func WithMetrics(m *metrics.ConversationMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithTimeout bounds each store call. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// Service keeps the record store and capacity ledger consistent.
type Service struct {
	store    Store
	ledger   capacity.Ledger
	events   EventPublisher
	notifier Notifier
	metrics  *metrics.ConversationMetrics
	logger   *logging.Logger
	timeout  time.Duration
	now      func() time.Time
}

// NewService constructs an appointments service.
func NewService(store Store, ledger capacity.Ledger, opts ...Option) *Service {
	if store == nil {
		panic("appointments: store required")
	}
	if ledger == nil {
		panic("appointments: capacity ledger required")
	}
	s := &Service{
		store:   store,
		ledger:  ledger,
		logger:  logging.Default(),
		timeout: DefaultStoreTimeout,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Reserve atomically claims one slot in department for apptType.
func (s *Service) Reserve(ctx context.Context, department string, apptType appointment.Type, limit int) (capacity.Entry, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	start := time.Now()
	entry, err := s.ledger.Reserve(ctx, department, apptType, limit)
	s.metrics.ObserveStore("capacity_reserve", start, ignoreCapacity(err))
	if err != nil {
		var capErr *appointment.CapacityError
		if errors.As(err, &capErr) {
			s.metrics.ObserveCapacityRejection(capacity.Key(department))
			return entry, &appointment.CapacityError{Department: department, Limit: capErr.Limit}
		}
		return entry, err
	}
	return entry, nil
}

// Release returns one slot to department.
func (s *Service) Release(ctx context.Context, department string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	start := time.Now()
	_, err := s.ledger.Release(ctx, department)
	s.metrics.ObserveStore("capacity_release", start, err)
	return err
}

// Book persists draft as a confirmed appointment owned by user.
func (s *Service) Book(ctx context.Context, user identity.User, draft appointment.Draft, attachments []appointment.Attachment) (appointment.Record, error) {
	if user.ID == "" {
		return appointment.Record{}, appointment.ErrAuthRequired
	}
	if draft.AppointmentNumber == "" || draft.Department == "" {
		return appointment.Record{}, fmt.Errorf("appointments: draft has no reservation: %w", appointment.ErrValidation)
	}
	ctx, span := appointmentsTracer.Start(ctx, "appointments.book")
	defer span.End()
	span.SetAttributes(
		attribute.String("medicare.appointment_number", draft.AppointmentNumber),
		attribute.String("medicare.department", draft.Department),
	)

	rec := appointment.RecordFromDraft(user.ID, draft, attachments)
	rec.CreatedAt = s.now()

	storeCtx, cancel := s.bound(ctx)
	start := time.Now()
	rec, err := s.store.Create(storeCtx, rec)
	cancel()
	s.metrics.ObserveStore("create", start, err)
	if err != nil {
		span.RecordError(err)
		return appointment.Record{}, err
	}
	s.metrics.ObserveBooking(string(rec.Type))
	s.logger.Info("appointment booked", "owner_id", user.ID, "appointment_id", rec.ID, "appointment_number", rec.AppointmentNumber)

	s.publish(ctx, EventBooked, rec)
	if s.notifier != nil {
		if err := s.notifier.AppointmentBooked(ctx, user, rec); err != nil {
			s.logger.Warn("booking notification failed", "appointment_id", rec.ID, "error", err)
		}
	}
	return rec, nil
}

// Cancel marks the user's appointment cancelled and frees its capacity slot.
func (s *Service) Cancel(ctx context.Context, user identity.User, number, reason string) (appointment.Record, error) {
	if user.ID == "" {
		return appointment.Record{}, appointment.ErrAuthRequired
	}
	ctx, span := appointmentsTracer.Start(ctx, "appointments.cancel")
	defer span.End()
	span.SetAttributes(attribute.String("medicare.appointment_number", number))

	storeCtx, cancel := s.bound(ctx)
	defer cancel()

	start := time.Now()
	rec, err := s.store.FindByNumber(storeCtx, user.ID, number)
	s.metrics.ObserveStore("find_by_number", start, ignoreNotFound(err))
	if err != nil {
		if errors.Is(err, appointment.ErrNotFound) {
			s.metrics.ObserveCancellation("not_found")
		}
		return appointment.Record{}, err
	}
	if rec.Status == appointment.StatusCancelled {
		s.metrics.ObserveCancellation("already_cancelled")
		return rec, appointment.ErrAlreadyCancelled
	}

	update := appointment.StatusUpdate{
		Status:             appointment.StatusCancelled,
		CancellationReason: reason,
		CancelledAt:        s.now(),
	}
	start = time.Now()
	err = s.store.UpdateStatus(storeCtx, user.ID, rec.ID, update)
	s.metrics.ObserveStore("update_status", start, ignoreNotFound(ignoreAlreadyCancelled(err)))
	switch {
	case errors.Is(err, appointment.ErrAlreadyCancelled):
		// Another request cancelled it between the lookup and the update.
		s.metrics.ObserveCancellation("already_cancelled")
		return rec, err
	case errors.Is(err, appointment.ErrNotFound):
		s.metrics.ObserveCancellation("not_found")
		return appointment.Record{}, err
	case err != nil:
		span.RecordError(err)
		return appointment.Record{}, err
	}
	rec.Status = update.Status
	rec.CancellationReason = update.CancellationReason
	rec.CancelledAt = &update.CancelledAt

	if err := s.Release(ctx, rec.Department); err != nil {
		s.logger.Error("capacity release failed after cancellation", "appointment_id", rec.ID, "department", rec.Department, "error", err)
	}
	s.metrics.ObserveCancellation("cancelled")
	s.logger.Info("appointment cancelled", "owner_id", user.ID, "appointment_id", rec.ID, "appointment_number", rec.AppointmentNumber)

	s.publish(ctx, EventCancelled, rec)
	if s.notifier != nil {
		if err := s.notifier.AppointmentCancelled(ctx, user, rec); err != nil {
			s.logger.Warn("cancellation notification failed", "appointment_id", rec.ID, "error", err)
		}
	}
	return rec, nil
}

// Revoke deletes a record that was booked by a chat turn whose session could not be
// saved. The slot stays reserved by the unbooked draft, so the ledger is untouched.
func (s *Service) Revoke(ctx context.Context, user identity.User, recordID string) error {
	if user.ID == "" {
		return appointment.ErrAuthRequired
	}
	storeCtx, cancel := s.bound(ctx)
	defer cancel()

	start := time.Now()
	rec, err := s.store.Delete(storeCtx, user.ID, recordID)
	s.metrics.ObserveStore("delete", start, ignoreNotFound(err))
	if err != nil {
		return err
	}
	s.logger.Warn("appointment booking revoked", "owner_id", user.ID, "appointment_id", rec.ID, "appointment_number", rec.AppointmentNumber)
	s.publish(ctx, EventDeleted, rec)
	return nil
}

// Delete removes a record. Capacity is released unless the record was already cancelled.
func (s *Service) Delete(ctx context.Context, ownerID, recordID string) error {
	storeCtx, cancel := s.bound(ctx)
	defer cancel()

	start := time.Now()
	rec, err := s.store.Delete(storeCtx, ownerID, recordID)
	s.metrics.ObserveStore("delete", start, ignoreNotFound(err))
	if err != nil {
		return err
	}
	if rec.Status != appointment.StatusCancelled {
		if err := s.Release(ctx, rec.Department); err != nil {
			s.logger.Error("capacity release failed after delete", "appointment_id", rec.ID, "error", err)
		}
	}
	s.logger.Info("appointment deleted", "owner_id", ownerID, "appointment_id", recordID)
	s.publish(ctx, EventDeleted, rec)
	return nil
}

func (s *Service) ListForUser(ctx context.Context, ownerID string) ([]appointment.Record, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.store.ListForUser(ctx, ownerID)
}

func (s *Service) ListAll(ctx context.Context) ([]appointment.Record, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.store.ListAll(ctx)
}

// Capacity returns a snapshot of every ledger entry.
func (s *Service) Capacity(ctx context.Context) ([]capacity.Entry, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.ledger.List(ctx)
}

func (s *Service) publish(ctx context.Context, kind string, rec appointment.Record) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishAppointment(ctx, kind, rec); err != nil {
		s.logger.Warn("appointment event publish failed", "kind", kind, "appointment_id", rec.ID, "error", err)
	}
}

func (s *Service) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func ignoreCapacity(err error) error {
	if errors.Is(err, appointment.ErrCapacityExceeded) {
		return nil
	}
	return err
}

func ignoreAlreadyCancelled(err error) error {
	if errors.Is(err, appointment.ErrAlreadyCancelled) {
		return nil
	}
	return err
}

func ignoreNotFound(err error) error {
	if errors.Is(err, appointment.ErrNotFound) {
		return nil
	}
	return err
}
