package security

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core"
)

// fakeRepository honors the single-row-per-(email, type) upsert contract.
type fakeRepository struct {
	attempts []LoginAttempt
	lockouts map[string]Lockout // keyed by email + ":" + type
}

var _ Repository = (*fakeRepository)(nil)

func newFakeRepository() *fakeRepository {
	return &fakeRepository{lockouts: make(map[string]Lockout)}
}

func lockoutKey(email string, typ LockoutType) string {
	return email + ":" + string(typ)
}

func (repo *fakeRepository) CreateLoginAttempt(ctx context.Context, attempt LoginAttempt) error {
	repo.attempts = append(repo.attempts, attempt)
	return nil
}

func (repo *fakeRepository) CountFailedAttempts(ctx context.Context, email string, since time.Time) (int, error) {
	var count int
	for _, a := range repo.attempts {
		if a.Email == email && !a.Success && !a.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (repo *fakeRepository) UpsertLockout(ctx context.Context, email string, typ LockoutType, until time.Time) (Lockout, error) {
	key := lockoutKey(email, typ)
	now := time.Now().UTC()
	lockout, ok := repo.lockouts[key]
	if !ok {
		lockout = Lockout{
			ID:          uuid.New().String(),
			Email:       email,
			LockoutType: typ,
			CreatedAt:   now,
		}
	}
	lockout.LockedUntil = until
	lockout.AttemptCount++
	lockout.UnlockedAt = null.Time{}
	lockout.UpdatedAt = now
	repo.lockouts[key] = lockout
	return lockout, nil
}

func (repo *fakeRepository) GetLockout(ctx context.Context, email string, typ LockoutType) (Lockout, error) {
	if lockout, ok := repo.lockouts[lockoutKey(email, typ)]; ok {
		return lockout, nil
	}
	return Lockout{}, ErrNotFound
}

func (repo *fakeRepository) ReleaseLockout(ctx context.Context, email string, typ LockoutType, at time.Time) error {
	key := lockoutKey(email, typ)
	lockout, ok := repo.lockouts[key]
	if !ok {
		return ErrNotFound
	}
	lockout.UnlockedAt = null.TimeFrom(at)
	repo.lockouts[key] = lockout
	return nil
}

type fakeAuditTrail struct {
	entries []core.AuditEntry
}

func (a *fakeAuditTrail) Record(ctx context.Context, entry core.AuditEntry) error {
	a.entries = append(a.entries, entry)
	return nil
}

type nopLogger struct{}

func (nopLogger) Debug(msg string, args ...interface{}) {}
func (nopLogger) Info(msg string, args ...interface{})  {}
func (nopLogger) Warn(msg string, args ...interface{})  {}
func (nopLogger) Error(msg string, args ...interface{}) {}
func (nopLogger) Fatal(msg string, args ...interface{}) {}

var testConf = core.SecurityConfig{
	FailedLoginWindow:    30 * time.Minute,
	FailedLoginThreshold: 5,
	LockoutDuration:      30 * time.Minute,
}

func setup(t *testing.T) (*service, *fakeRepository, *fakeAuditTrail) {
	t.Helper()
	repo := newFakeRepository()
	audit := &fakeAuditTrail{}
	svc := NewService(repo, testConf, audit, nopLogger{}).(*service)
	return svc, repo, audit
}

const email = "awe@test.cd"

func TestService_RegisterAttempt(t *testing.T) {
	t.Run("failures below the threshold do not lock", func(t *testing.T) {
		svc, _, _ := setup(t)
		ctx := context.Background()

		for i := 0; i < testConf.FailedLoginThreshold-1; i++ {
			locked, err := svc.RegisterAttempt(ctx, email, "10.0.0.1", false)
			if err != nil {
				t.Fatalf("RegisterAttempt() failed, %v", err)
			}
			if locked {
				t.Fatalf("locked after %d failures", i+1)
			}
		}
		isLocked, err := svc.IsLockedOut(ctx, email)
		if err != nil {
			t.Fatalf("IsLockedOut() failed, %v", err)
		}
		if isLocked {
			t.Error("IsLockedOut() = true, want false")
		}
	})

	t.Run("threshold failure locks the account", func(t *testing.T) {
		svc, repo, _ := setup(t)
		ctx := context.Background()

		var locked bool
		var err error
		for i := 0; i < testConf.FailedLoginThreshold; i++ {
			locked, err = svc.RegisterAttempt(ctx, email, "10.0.0.1", false)
			if err != nil {
				t.Fatalf("RegisterAttempt() failed, %v", err)
			}
		}
		if !locked {
			t.Fatal("RegisterAttempt() locked = false, want true")
		}

		isLocked, err := svc.IsLockedOut(ctx, email)
		if err != nil {
			t.Fatalf("IsLockedOut() failed, %v", err)
		}
		if !isLocked {
			t.Error("IsLockedOut() = false, want true")
		}

		// a single row, not one per trigger
		if len(repo.lockouts) != 1 {
			t.Errorf("lockout rows = %d, want 1", len(repo.lockouts))
		}
	})

	t.Run("successful attempt never locks", func(t *testing.T) {
		svc, _, _ := setup(t)
		ctx := context.Background()

		for i := 0; i < testConf.FailedLoginThreshold+2; i++ {
			locked, err := svc.RegisterAttempt(ctx, email, "10.0.0.1", true)
			if err != nil {
				t.Fatalf("RegisterAttempt() failed, %v", err)
			}
			if locked {
				t.Fatal("RegisterAttempt() locked = true, want false")
			}
		}
	})

	t.Run("failures outside the window do not count", func(t *testing.T) {
		svc, _, _ := setup(t)
		ctx := context.Background()

		start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
		now := start
		svc.nowFunc = func() time.Time { return now }

		// 4 old failures, then the window slides past them
		for i := 0; i < testConf.FailedLoginThreshold-1; i++ {
			if _, err := svc.RegisterAttempt(ctx, email, "10.0.0.1", false); err != nil {
				t.Fatalf("RegisterAttempt() failed, %v", err)
			}
		}
		now = start.Add(testConf.FailedLoginWindow + time.Minute)

		locked, err := svc.RegisterAttempt(ctx, email, "10.0.0.1", false)
		if err != nil {
			t.Fatalf("RegisterAttempt() failed, %v", err)
		}
		if locked {
			t.Error("RegisterAttempt() locked = true, want false")
		}

		count, err := svc.FailedLoginCount(ctx, email)
		if err != nil {
			t.Fatalf("FailedLoginCount() failed, %v", err)
		}
		if count != 1 {
			t.Errorf("FailedLoginCount() = %d, want 1", count)
		}
	})

	t.Run("repeated triggers extend the same lockout", func(t *testing.T) {
		svc, repo, _ := setup(t)
		ctx := context.Background()

		start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
		now := start
		svc.nowFunc = func() time.Time { return now }

		if _, err := svc.Lock(ctx, email, LockoutAccount); err != nil {
			t.Fatalf("Lock() failed, %v", err)
		}
		first := repo.lockouts[lockoutKey(email, LockoutAccount)]

		now = start.Add(10 * time.Minute)
		if _, err := svc.Lock(ctx, email, LockoutAccount); err != nil {
			t.Fatalf("Lock() failed, %v", err)
		}
		second := repo.lockouts[lockoutKey(email, LockoutAccount)]

		if second.ID != first.ID {
			t.Error("second trigger created a new row")
		}
		if second.AttemptCount != 2 {
			t.Errorf("AttemptCount = %d, want 2", second.AttemptCount)
		}
		if !second.LockedUntil.After(first.LockedUntil) {
			t.Error("LockedUntil not extended")
		}
	})
}

func TestService_lockoutExpiry(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()

	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	now := start
	svc.nowFunc = func() time.Time { return now }

	if _, err := svc.Lock(ctx, email, LockoutAccount); err != nil {
		t.Fatalf("Lock() failed, %v", err)
	}

	isLocked, err := svc.IsLockedOut(ctx, email)
	if err != nil {
		t.Fatalf("IsLockedOut() failed, %v", err)
	}
	if !isLocked {
		t.Error("IsLockedOut() = false, want true")
	}

	now = start.Add(testConf.LockoutDuration + time.Second)
	isLocked, err = svc.IsLockedOut(ctx, email)
	if err != nil {
		t.Fatalf("IsLockedOut() failed, %v", err)
	}
	if isLocked {
		t.Error("IsLockedOut() = true after expiry, want false")
	}
}

func TestService_Unlock(t *testing.T) {
	svc, _, audit := setup(t)
	ctx := context.Background()

	t.Run("unknown lockout", func(t *testing.T) {
		if err := svc.Unlock(ctx, "admin-1", email, LockoutAccount); errors.Cause(err) != ErrNotFound {
			t.Errorf("Unlock() error = %v, want %v", err, ErrNotFound)
		}
	})

	t.Run("manual unlock releases and audits", func(t *testing.T) {
		if _, err := svc.Lock(ctx, email, LockoutAccount); err != nil {
			t.Fatalf("Lock() failed, %v", err)
		}

		if err := svc.Unlock(ctx, "admin-1", email, LockoutAccount); err != nil {
			t.Fatalf("Unlock() failed, %v", err)
		}

		isLocked, err := svc.IsLockedOut(ctx, email)
		if err != nil {
			t.Fatalf("IsLockedOut() failed, %v", err)
		}
		if isLocked {
			t.Error("IsLockedOut() = true after unlock, want false")
		}

		if len(audit.entries) != 1 {
			t.Fatalf("audit entries = %d, want 1", len(audit.entries))
		}
		entry := audit.entries[0]
		if entry.Action != "lockout.release" || entry.ActorID != "admin-1" {
			t.Errorf("audit entry = %+v", entry)
		}
	})

	t.Run("relock after unlock clears the manual release", func(t *testing.T) {
		locked, err := svc.Lock(ctx, email, LockoutAccount)
		if err != nil {
			t.Fatalf("Lock() failed, %v", err)
		}
		if locked.UnlockedAt.Valid {
			t.Error("UnlockedAt still set after relock")
		}

		isLocked, err := svc.IsLockedOut(ctx, email)
		if err != nil {
			t.Fatalf("IsLockedOut() failed, %v", err)
		}
		if !isLocked {
			t.Error("IsLockedOut() = false, want true")
		}
	})
}

func TestService_emailNormalization(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()

	if _, err := svc.RegisterAttempt(ctx, "  AWE@Test.CD ", "10.0.0.1", false); err != nil {
		t.Fatalf("RegisterAttempt() failed, %v", err)
	}
	count, err := svc.FailedLoginCount(ctx, email)
	if err != nil {
		t.Fatalf("FailedLoginCount() failed, %v", err)
	}
	if count != 1 {
		t.Errorf("FailedLoginCount() = %d, want 1", count)
	}
}
