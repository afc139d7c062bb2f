package appointments

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/medicare-assistant/internal/appointment"
	"github.com/wolfman30/medicare-assistant/internal/capacity"
	"github.com/wolfman30/medicare-assistant/internal/identity"
	"github.com/wolfman30/medicare-assistant/pkg/logging"
)

type recordingPublisher struct {
	mu    sync.Mutex
	kinds []string
	err   error
}

func (p *recordingPublisher) PublishAppointment(_ context.Context, kind string, _ appointment.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.kinds = append(p.kinds, kind)
	return p.err
}

type recordingNotifier struct {
	booked    []appointment.Record
	cancelled []appointment.Record
}

func (n *recordingNotifier) AppointmentBooked(_ context.Context, _ identity.User, rec appointment.Record) error {
	n.booked = append(n.booked, rec)
	return nil
}

func (n *recordingNotifier) AppointmentCancelled(_ context.Context, _ identity.User, rec appointment.Record) error {
	n.cancelled = append(n.cancelled, rec)
	return errors.New("smtp down")
}

type failingStore struct {
	*MemoryStore
}

func (failingStore) Create(context.Context, appointment.Record) (appointment.Record, error) {
	return appointment.Record{}, errors.New("connection refused")
}

type blockingStore struct {
	*MemoryStore
}

func (blockingStore) Create(ctx context.Context, _ appointment.Record) (appointment.Record, error) {
	<-ctx.Done()
	return appointment.Record{}, ctx.Err()
}

// lookupBarrier holds every FindByNumber caller until n of them have read the record,
// so racing cancellations all see it confirmed.
type lookupBarrier struct {
	*MemoryStore
	arrived sync.WaitGroup
}

func newLookupBarrier(n int) *lookupBarrier {
	b := &lookupBarrier{MemoryStore: NewMemoryStore()}
	b.arrived.Add(n)
	return b
}

func (b *lookupBarrier) FindByNumber(ctx context.Context, ownerID, number string) (appointment.Record, error) {
	rec, err := b.MemoryStore.FindByNumber(ctx, ownerID, number)
	b.arrived.Done()
	b.arrived.Wait()
	return rec, err
}

func newTestService(t *testing.T) (*Service, *capacity.MemoryLedger, *recordingPublisher, *recordingNotifier) {
	t.Helper()
	ledger := capacity.NewMemoryLedger()
	pub := &recordingPublisher{}
	notifier := &recordingNotifier{}
	svc := NewService(NewMemoryStore(), ledger,
		WithLogger(logging.Discard()),
		WithEvents(pub),
		WithNotifier(notifier),
	)
	return svc, ledger, pub, notifier
}

func bookedDraft(number string) appointment.Draft {
	d := appointment.NewDraft()
	d.FullName = "Jane Doe"
	d.Age = "30"
	d.DateOfBirth = "01/02/1996"
	d.BloodGroup = "O+"
	d.Symptoms = "headache"
	d.Type = appointment.TypeMRI
	d.Department = "Neurology"
	d.AppointmentNumber = number
	d.Stage = appointment.StagePaymentConfirmation
	return d
}

func TestService_BookAndCancelReleasesCapacity(t *testing.T) {
	svc, ledger, pub, notifier := newTestService(t)
	ctx := context.Background()
	user := identity.User{ID: "user-1", Email: "jane@example.com"}

	_, err := svc.Reserve(ctx, "Neurology", appointment.TypeMRI, 100)
	require.NoError(t, err)

	rec, err := svc.Book(ctx, user, bookedDraft("AP-12345"), []appointment.Attachment{{Name: "scan.pdf"}})
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusConfirmed, rec.Status)
	assert.Equal(t, appointment.TypeMRI, rec.Type)
	assert.NotEmpty(t, rec.ID)
	require.Len(t, notifier.booked, 1)

	cancelled, err := svc.Cancel(ctx, user, "AP-12345", "feeling better")
	require.NoError(t, err, "notifier failures must not fail the cancellation")
	assert.Equal(t, appointment.StatusCancelled, cancelled.Status)
	assert.Equal(t, "feeling better", cancelled.CancellationReason)
	require.NotNil(t, cancelled.CancelledAt)

	entry, _, err := ledger.Get(ctx, "neurology")
	require.NoError(t, err)
	assert.Equal(t, 0, entry.ActiveCount)

	_, err = svc.Cancel(ctx, user, "AP-12345", "again")
	assert.True(t, errors.Is(err, appointment.ErrAlreadyCancelled))
	entry, _, _ = ledger.Get(ctx, "neurology")
	assert.Equal(t, 0, entry.ActiveCount)

	assert.Equal(t, []string{EventBooked, EventCancelled}, pub.kinds)
}

func TestService_CancelNotFoundAndOtherOwner(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Book(ctx, identity.User{ID: "owner"}, bookedDraft("AP-11111"), nil)
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, identity.User{ID: "someone-else"}, "AP-11111", "reason")
	assert.True(t, errors.Is(err, appointment.ErrNotFound))

	_, err = svc.Cancel(ctx, identity.User{}, "AP-11111", "reason")
	assert.True(t, errors.Is(err, appointment.ErrAuthRequired))
}

func TestService_BookRequiresReservation(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	d := bookedDraft("")
	_, err := svc.Book(context.Background(), identity.User{ID: "u"}, d, nil)
	assert.True(t, errors.Is(err, appointment.ErrValidation))
}

func TestService_BookStoreErrorPropagates(t *testing.T) {
	svc := NewService(failingStore{NewMemoryStore()}, capacity.NewMemoryLedger(), WithLogger(logging.Discard()))
	_, err := svc.Book(context.Background(), identity.User{ID: "u"}, bookedDraft("AP-10000"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestService_BookBoundedByStoreTimeout(t *testing.T) {
	svc := NewService(blockingStore{NewMemoryStore()}, capacity.NewMemoryLedger(),
		WithLogger(logging.Discard()), WithTimeout(20*time.Millisecond))

	start := time.Now()
	_, err := svc.Book(context.Background(), identity.User{ID: "u1"}, bookedDraft("AP-22222"), nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestService_ConcurrentCancelReleasesOnce(t *testing.T) {
	const racers = 2
	ctx := context.Background()
	ledger := capacity.NewMemoryLedger()
	svc := NewService(newLookupBarrier(racers), ledger, WithLogger(logging.Discard()))
	user := identity.User{ID: "user-1"}

	for i := 0; i < 3; i++ {
		_, err := svc.Reserve(ctx, "Neurology", appointment.TypeMRI, 100)
		require.NoError(t, err)
	}
	_, err := svc.Book(ctx, user, bookedDraft("AP-12345"), nil)
	require.NoError(t, err)

	errs := make([]error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Cancel(ctx, user, "AP-12345", "schedule conflict")
		}(i)
	}
	wg.Wait()

	var succeeded, already int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, appointment.ErrAlreadyCancelled):
			already++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, already)

	entry, _, err := ledger.Get(ctx, "neurology")
	require.NoError(t, err)
	assert.Equal(t, 2, entry.ActiveCount)
}

func TestService_CancelAndDeleteRaceReleasesOnce(t *testing.T) {
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		ledger := capacity.NewMemoryLedger()
		svc := NewService(NewMemoryStore(), ledger, WithLogger(logging.Discard()))
		user := identity.User{ID: "user-1"}

		_, err := svc.Reserve(ctx, "Neurology", appointment.TypeMRI, 100)
		require.NoError(t, err)
		_, err = svc.Reserve(ctx, "Neurology", appointment.TypeMRI, 100)
		require.NoError(t, err)
		rec, err := svc.Book(ctx, user, bookedDraft("AP-12345"), nil)
		require.NoError(t, err)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = svc.Cancel(ctx, user, "AP-12345", "moving")
		}()
		go func() {
			defer wg.Done()
			_ = svc.Delete(ctx, "user-1", rec.ID)
		}()
		wg.Wait()

		entry, _, err := ledger.Get(ctx, "neurology")
		require.NoError(t, err)
		require.Equal(t, 1, entry.ActiveCount, "iteration %d", i)
	}
}

func TestMemoryStore_UpdateStatusRejectsRepeat(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	rec, err := store.Create(ctx, appointment.Record{OwnerID: "u1", AppointmentNumber: "AP-10000", Status: appointment.StatusConfirmed})
	require.NoError(t, err)

	update := appointment.StatusUpdate{Status: appointment.StatusCancelled, CancellationReason: "r", CancelledAt: time.Now()}
	require.NoError(t, store.UpdateStatus(ctx, "u1", rec.ID, update))
	assert.ErrorIs(t, store.UpdateStatus(ctx, "u1", rec.ID, update), appointment.ErrAlreadyCancelled)
	assert.ErrorIs(t, store.UpdateStatus(ctx, "u2", rec.ID, update), appointment.ErrNotFound)

	deleted, err := store.Delete(ctx, "u1", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCancelled, deleted.Status)
	_, err = store.Delete(ctx, "u1", rec.ID)
	assert.ErrorIs(t, err, appointment.ErrNotFound)
}

func TestService_ReserveReportsDepartmentAndLimit(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.Reserve(ctx, "Pediatrics", appointment.TypeDoctor, 1)
	require.NoError(t, err)

	_, err = svc.Reserve(ctx, "Pediatrics", appointment.TypeDoctor, 1)
	var capErr *appointment.CapacityError
	require.True(t, errors.As(err, &capErr))
	assert.Equal(t, "Pediatrics", capErr.Department)
	assert.Equal(t, 1, capErr.Limit)
}

func TestService_DeleteReleasesUnlessCancelled(t *testing.T) {
	svc, ledger, pub, _ := newTestService(t)
	ctx := context.Background()
	user := identity.User{ID: "user-1"}

	for _, number := range []string{"AP-10001", "AP-10002"} {
		_, err := svc.Reserve(ctx, "Neurology", appointment.TypeMRI, 100)
		require.NoError(t, err)
		_, err = svc.Book(ctx, user, bookedDraft(number), nil)
		require.NoError(t, err)
	}
	cancelled, err := svc.Cancel(ctx, user, "AP-10001", "moving")
	require.NoError(t, err)

	recs, err := svc.ListForUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, recs, 2)

	require.NoError(t, svc.Delete(ctx, "user-1", cancelled.ID))
	entry, _, _ := ledger.Get(ctx, "neurology")
	assert.Equal(t, 1, entry.ActiveCount, "deleting a cancelled record must not release twice")

	for _, rec := range recs {
		if rec.ID != cancelled.ID {
			require.NoError(t, svc.Delete(ctx, "user-1", rec.ID))
		}
	}
	entry, _, _ = ledger.Get(ctx, "neurology")
	assert.Equal(t, 0, entry.ActiveCount)

	all, err := svc.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	err = svc.Delete(ctx, "user-1", "missing")
	assert.True(t, errors.Is(err, appointment.ErrNotFound))
	assert.Contains(t, pub.kinds, EventDeleted)
}

func TestService_RevokeKeepsReservation(t *testing.T) {
	svc, ledger, pub, _ := newTestService(t)
	ctx := context.Background()
	user := identity.User{ID: "user-1"}

	_, err := svc.Reserve(ctx, "Neurology", appointment.TypeMRI, 100)
	require.NoError(t, err)
	rec, err := svc.Book(ctx, user, bookedDraft("AP-10001"), nil)
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Revoke(ctx, identity.User{}, rec.ID), appointment.ErrAuthRequired)
	assert.ErrorIs(t, svc.Revoke(ctx, identity.User{ID: "user-2"}, rec.ID), appointment.ErrNotFound)

	require.NoError(t, svc.Revoke(ctx, user, rec.ID))
	recs, err := svc.ListForUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, recs)
	entry, _, _ := ledger.Get(ctx, "neurology")
	assert.Equal(t, 1, entry.ActiveCount)
	assert.Contains(t, pub.kinds, EventDeleted)
}

func TestService_PublishFailureDoesNotFailBooking(t *testing.T) {
	svc, _, pub, _ := newTestService(t)
	pub.err = errors.New("queue unavailable")
	_, err := svc.Book(context.Background(), identity.User{ID: "u"}, bookedDraft("AP-20000"), nil)
	assert.NoError(t, err)
}
