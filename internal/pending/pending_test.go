package pending

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func newTestManager(ttl time.Duration) *Manager {
	return NewManager(ttl, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func createOp(t *testing.T, m *Manager, actorID string) *Operation {
	t.Helper()
	op, err := m.Create(context.Background(), &CreateRequest{
		OperationType: "create_appointment",
		ToolName:      "create_appointment",
		ActorID:       actorID,
		PatientID:     "patient-1",
		Args:          map[string]any{"appointment_type": "follow_up"},
		RiskLevel:     "medium",
	})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	return op
}

func TestCreate_SetsIDAndExpiry(t *testing.T) {
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	m := newTestManager(30 * time.Minute).WithClock(func() time.Time { return base })

	op := createOp(t, m, "user-1")

	if op.ID == "" {
		t.Error("Create() returned empty id")
	}
	if op.Status != StatusPending {
		t.Errorf("status = %v, want pending", op.Status)
	}
	if got, want := op.ExpiresAt, base.Add(30*time.Minute); !got.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", got, want)
	}
}

func TestCreate_DistinctIDs(t *testing.T) {
	m := newTestManager(0)
	a := createOp(t, m, "user-1")
	b := createOp(t, m, "user-1")
	if a.ID == b.ID {
		t.Errorf("two operations share id %q", a.ID)
	}
}

func TestValidateAndConsume(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(time.Hour)
	op := createOp(t, m, "user-1")

	got, err := m.ValidateAndConsume(ctx, op.ID, "user-1")
	if err != nil {
		t.Fatalf("ValidateAndConsume() error: %v", err)
	}
	if got.Status != StatusApproved {
		t.Errorf("status = %v, want approved", got.Status)
	}
	if got.ConfirmedBy != "user-1" {
		t.Errorf("ConfirmedBy = %q, want user-1", got.ConfirmedBy)
	}
}

func TestValidateAndConsume_SecondAttemptFails(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(time.Hour)
	op := createOp(t, m, "user-1")

	if _, err := m.ValidateAndConsume(ctx, op.ID, "user-1"); err != nil {
		t.Fatalf("first consume error: %v", err)
	}
	if _, err := m.ValidateAndConsume(ctx, op.ID, "user-1"); !errors.Is(err, ErrAlreadyResolved) {
		t.Errorf("second consume error = %v, want ErrAlreadyResolved", err)
	}
}

func TestValidateAndConsume_ActorMismatch(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(time.Hour)
	op := createOp(t, m, "user-1")

	if _, err := m.ValidateAndConsume(ctx, op.ID, "user-2"); !errors.Is(err, ErrActorMismatch) {
		t.Errorf("consume by other actor error = %v, want ErrActorMismatch", err)
	}

	// The mismatch must not burn the operation for the owner.
	if _, err := m.ValidateAndConsume(ctx, op.ID, "user-1"); err != nil {
		t.Errorf("owner consume after mismatch error: %v", err)
	}
}

func TestValidateAndConsume_Expired(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	now := base
	m := newTestManager(time.Hour).WithClock(func() time.Time { return now })
	op := createOp(t, m, "user-1")

	now = base.Add(time.Hour + time.Second)

	if _, err := m.ValidateAndConsume(ctx, op.ID, "user-1"); !errors.Is(err, ErrExpired) {
		t.Fatalf("consume past expiry error = %v, want ErrExpired", err)
	}

	got, err := m.Get(ctx, op.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.Status != StatusExpired {
		t.Errorf("status after expired consume = %v, want expired", got.Status)
	}
}

func TestValidateAndConsume_NotFound(t *testing.T) {
	m := newTestManager(time.Hour)
	if _, err := m.ValidateAndConsume(context.Background(), "no-such-id", "user-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("consume unknown id error = %v, want ErrNotFound", err)
	}
}

func TestValidateAndConsume_OneWinnerUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(time.Hour)
	op := createOp(t, m, "user-1")

	const attempts = 32
	var wg sync.WaitGroup
	wins := make(chan struct{}, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.ValidateAndConsume(ctx, op.ID, "user-1"); err == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	n := 0
	for range wins {
		n++
	}
	if n != 1 {
		t.Errorf("%d consume attempts succeeded, want exactly 1", n)
	}
}

func TestGet_LazyExpiry(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	now := base
	m := newTestManager(time.Minute).WithClock(func() time.Time { return now })
	op := createOp(t, m, "user-1")

	now = base.Add(2 * time.Minute)

	got, err := m.Get(ctx, op.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.Status != StatusExpired {
		t.Errorf("status = %v, want expired", got.Status)
	}
}

func TestReject(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(time.Hour)
	op := createOp(t, m, "user-1")

	if err := m.Reject(ctx, op.ID, "user-1"); err != nil {
		t.Fatalf("Reject() error: %v", err)
	}

	got, err := m.Get(ctx, op.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.Status != StatusRejected {
		t.Errorf("status = %v, want rejected", got.Status)
	}

	if _, err := m.ValidateAndConsume(ctx, op.ID, "user-1"); !errors.Is(err, ErrAlreadyResolved) {
		t.Errorf("consume after reject error = %v, want ErrAlreadyResolved", err)
	}
}

func TestExpireOldAndDeleteResolved(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	now := base
	m := newTestManager(time.Minute).WithClock(func() time.Time { return now })

	stale := createOp(t, m, "user-1")
	now = base.Add(time.Hour)
	fresh := createOp(t, m, "user-1")

	if err := m.ExpireOld(ctx); err != nil {
		t.Fatalf("ExpireOld() error: %v", err)
	}
	if got, _ := m.Get(ctx, stale.ID); got.Status != StatusExpired {
		t.Errorf("stale status = %v, want expired", got.Status)
	}
	if got, _ := m.Get(ctx, fresh.ID); got.Status != StatusPending {
		t.Errorf("fresh status = %v, want pending", got.Status)
	}

	now = base.Add(80 * time.Hour)
	if err := m.DeleteResolved(ctx, 72*time.Hour); err != nil {
		t.Fatalf("DeleteResolved() error: %v", err)
	}
	if _, err := m.Get(ctx, stale.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("stale after prune error = %v, want ErrNotFound", err)
	}
	// Still pending: retention never touches unresolved operations.
	if _, err := m.Get(ctx, fresh.ID); err != nil {
		t.Errorf("fresh after prune error: %v", err)
	}
}

func TestStatusRoundTrip(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusApproved, StatusRejected, StatusExpired} {
		if got := ParseStatus(s.String()); got != s {
			t.Errorf("ParseStatus(%q) = %v, want %v", s.String(), got, s)
		}
	}
}
