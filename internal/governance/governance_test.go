package governance

import (
	"path/filepath"
	"sync"
	"testing"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "governance.db")
	s, err := New(dbPath, "Asia/Kolkata", 5, 3)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCheckDailyLimit_AllowsUnderQuota(t *testing.T) {
	s := newTestService(t)

	limits := s.CheckDailyLimit("alice@example.com", ActionEmail)
	if !limits.Allowed || limits.Remaining != 5 || limits.Max != 5 {
		t.Errorf("unexpected limits: %+v", limits)
	}
}

func TestIncrementUsage_DecreasesRemaining(t *testing.T) {
	s := newTestService(t)

	for i := 0; i < 3; i++ {
		if err := s.IncrementUsage("alice@example.com", ActionEmail); err != nil {
			t.Fatalf("IncrementUsage: %v", err)
		}
	}

	limits := s.CheckDailyLimit("alice@example.com", ActionEmail)
	if limits.Remaining != 2 {
		t.Errorf("expected 2 remaining, got %d", limits.Remaining)
	}
}

func TestCheckDailyLimit_BlocksAtMax(t *testing.T) {
	s := newTestService(t)

	for i := 0; i < 5; i++ {
		if err := s.IncrementUsage("alice@example.com", ActionEmail); err != nil {
			t.Fatalf("IncrementUsage: %v", err)
		}
	}

	limits := s.CheckDailyLimit("alice@example.com", ActionEmail)
	if limits.Allowed {
		t.Error("expected quota exhausted to block")
	}
	if limits.Remaining != 0 {
		t.Errorf("expected 0 remaining, got %d", limits.Remaining)
	}
}

func TestIncrementUsage_IndependentCountersPerKind(t *testing.T) {
	s := newTestService(t)

	_ = s.IncrementUsage("alice@example.com", ActionEmail)
	_ = s.IncrementUsage("alice@example.com", ActionTicket)
	_ = s.IncrementUsage("alice@example.com", ActionTicket)

	limits := s.GetRemainingLimits("alice@example.com")
	if limits.EmailsRemaining != 4 {
		t.Errorf("expected 4 emails remaining, got %d", limits.EmailsRemaining)
	}
	if limits.TicketsRemaining != 1 {
		t.Errorf("expected 1 ticket remaining, got %d", limits.TicketsRemaining)
	}
}

func TestIncrementUsage_IndependentUsersDoNotShareCounters(t *testing.T) {
	s := newTestService(t)

	for i := 0; i < 5; i++ {
		_ = s.IncrementUsage("alice@example.com", ActionEmail)
	}

	bobLimits := s.CheckDailyLimit("bob@example.com", ActionEmail)
	if !bobLimits.Allowed || bobLimits.Remaining != 5 {
		t.Errorf("expected bob's quota unaffected by alice's usage, got %+v", bobLimits)
	}
}

func TestIncrementUsage_ConcurrentIncrementsNeverLoseACount(t *testing.T) {
	s := newTestService(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.IncrementUsage("alice@example.com", ActionTicket)
		}()
	}
	wg.Wait()

	limits := s.GetRemainingLimits("alice@example.com")
	if limits.TicketsRemaining != 0 {
		t.Errorf("expected all 20 increments (capped display at max 3) counted, remaining=%d", limits.TicketsRemaining)
	}
}

func TestLogActivity_AndRecentActivity(t *testing.T) {
	s := newTestService(t)

	s.LogActivity("alice@example.com", ActivityEmailSent, "sent email to prof")
	s.LogActivity("alice@example.com", ActivityTicketCreated, "filed a ticket")

	entries, err := s.RecentActivity("alice@example.com", 10)
	if err != nil {
		t.Fatalf("RecentActivity: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
}

func TestGetRemainingLimits_NoUsageYet(t *testing.T) {
	s := newTestService(t)

	limits := s.GetRemainingLimits("fresh@example.com")
	if limits.EmailsRemaining != 5 || limits.TicketsRemaining != 3 {
		t.Errorf("unexpected defaults: %+v", limits)
	}
}
