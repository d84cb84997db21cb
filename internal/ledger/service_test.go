package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/felixgeelhaar/progression/internal/domain"
)

var testDay = time.Date(2026, 4, 20, 10, 0, 0, 0, time.UTC)

func setupService(t *testing.T) (*Service, *memStore, *mockHistory) {
	t.Helper()
	store := newMemStore()
	history := &mockHistory{}
	svc := NewService(store, history, Config{
		Retry:  RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:    func() time.Time { return testDay },
	})
	return svc, store, history
}

func TestService_GetProgressZeroState(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()

	p, err := svc.GetProgress(ctx, domain.PersonalIdentity("u1"))
	if err != nil {
		t.Fatalf("GetProgress() error = %v", err)
	}
	if p.Exists || p.TotalXP != 0 || p.Level != 1 || p.XPToNextLevel != 100 {
		t.Errorf("GetProgress() = %+v; want zero-state", p)
	}
}

func TestService_NotConfigured(t *testing.T) {
	svc := NewService(nil, nil, Config{})
	ctx := context.Background()
	id := domain.PersonalIdentity("u1")

	p, err := svc.GetProgress(ctx, id)
	if err != nil {
		t.Fatalf("GetProgress() error = %v", err)
	}
	if p.Level != 1 {
		t.Errorf("Level = %d; want 1", p.Level)
	}
	if _, err := svc.GetStreak(ctx, id); err != nil {
		t.Errorf("GetStreak() error = %v", err)
	}

	if _, err := svc.Award(ctx, id, 10, "test"); !errors.Is(err, domain.ErrNotConfigured) {
		t.Errorf("Award() error = %v; want ErrNotConfigured", err)
	}
	if _, err := svc.RecordStudyEvent(ctx, id, testDay); !errors.Is(err, domain.ErrNotConfigured) {
		t.Errorf("RecordStudyEvent() error = %v; want ErrNotConfigured", err)
	}
	if _, err := svc.DeleteProgress(ctx, "u1"); !errors.Is(err, domain.ErrNotConfigured) {
		t.Errorf("DeleteProgress() error = %v; want ErrNotConfigured", err)
	}
}

func TestService_AwardValidation(t *testing.T) {
	svc, store, _ := setupService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
	}{
		{"negative xp", func() error {
			_, err := svc.Award(ctx, domain.PersonalIdentity("u1"), -1, "oops")
			return err
		}},
		{"empty user", func() error {
			_, err := svc.Award(ctx, domain.Identity{}, 10, "x")
			return err
		}},
		{"empty reason", func() error {
			_, err := svc.Award(ctx, domain.PersonalIdentity("u1"), 10, " ")
			return err
		}},
		{"unknown difficulty", func() error {
			_, err := svc.AwardProblemXP(ctx, domain.PersonalIdentity("u1"), "legendary", 0)
			return err
		}},
		{"negative hints", func() error {
			_, err := svc.AwardProblemXP(ctx, domain.PersonalIdentity("u1"), domain.DifficultyMiddle, -1)
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, domain.ErrValidation) {
				t.Errorf("error = %v; want ErrValidation", err)
			}
		})
	}

	if store.insertXPCalls != 0 {
		t.Errorf("validation failures reached storage: %d inserts", store.insertXPCalls)
	}
}

func TestService_LevelBoundary(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()
	id := domain.PersonalIdentity("u1")

	threshold := domain.ThresholdForLevel(2)
	for i := 1; i <= 10; i++ {
		res, err := svc.AwardProblemXP(ctx, id, domain.DifficultyMiddle, 0)
		if err != nil {
			t.Fatalf("AwardProblemXP() #%d error = %v", i, err)
		}
		if res.XPGained != 15 {
			t.Fatalf("XPGained = %d; want 15", res.XPGained)
		}

		crossed := res.NewTotal >= threshold && res.NewTotal-res.XPGained < threshold
		if res.LeveledUp != crossed {
			t.Errorf("award #%d (total %d): LeveledUp = %v; want %v", i, res.NewTotal, res.LeveledUp, crossed)
		}
		if crossed && (i != 7 || res.NewLevel != 2) {
			t.Errorf("crossed on award #%d to level %d; want #7 to level 2", i, res.NewLevel)
		}
	}

	p, err := svc.GetProgress(ctx, id)
	if err != nil {
		t.Fatalf("GetProgress() error = %v", err)
	}
	if p.TotalXP != 150 || p.Level != 2 || p.XPToNextLevel != 200 {
		t.Errorf("progress = total %d level %d next %d; want 150, 2, 200", p.TotalXP, p.Level, p.XPToNextLevel)
	}
	if len(p.History) != 10 {
		t.Errorf("len(History) = %d; want 10", len(p.History))
	}
}

func TestService_AwardLoginBonus(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()
	id := domain.PersonalIdentity("u1")

	first, err := svc.AwardLoginBonus(ctx, id, true)
	if err != nil {
		t.Fatalf("AwardLoginBonus(true) error = %v", err)
	}
	if first.XPGained != 60 {
		t.Errorf("XPGained = %d; want 60", first.XPGained)
	}

	daily, err := svc.AwardLoginBonus(ctx, id, false)
	if err != nil {
		t.Fatalf("AwardLoginBonus(false) error = %v", err)
	}
	if daily.XPGained != 10 || daily.NewTotal != 70 {
		t.Errorf("daily = %+v; want 10 gained, 70 total", daily)
	}

	p, _ := svc.GetProgress(ctx, id)
	if p.History[0].Reason != ReasonFirstLogin || p.History[1].Reason != ReasonDailyLogin {
		t.Errorf("reasons = %q, %q", p.History[0].Reason, p.History[1].Reason)
	}
}

func TestService_ProfilesAreIsolated(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()
	personal := domain.PersonalIdentity("parent")
	kid := domain.Identity{UserID: "parent", ProfileID: "kid-1"}

	if _, err := svc.Award(ctx, personal, 40, "test"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Award(ctx, kid, 25, "test"); err != nil {
		t.Fatal(err)
	}

	p, _ := svc.GetProgress(ctx, personal)
	k, _ := svc.GetProgress(ctx, kid)
	if p.TotalXP != 40 || k.TotalXP != 25 {
		t.Errorf("personal = %d, kid = %d; want 40, 25", p.TotalXP, k.TotalXP)
	}

	kid2 := domain.Identity{UserID: "parent", ProfileID: "kid-2"}
	other, _ := svc.GetProgress(ctx, kid2)
	if !other.Exists || !other.Inherited || other.TotalXP != 40 {
		t.Errorf("profile without a row = %+v; want the personal 40 XP, inherited", other)
	}
	if other.Identity != kid2 {
		t.Errorf("Identity = %v; want %v", other.Identity, kid2)
	}

	// The first write gives the profile its own row; the personal row is untouched.
	if _, err := svc.Award(ctx, kid2, 5, "test"); err != nil {
		t.Fatal(err)
	}
	other, _ = svc.GetProgress(ctx, kid2)
	p, _ = svc.GetProgress(ctx, personal)
	if other.Inherited || other.TotalXP != 5 || p.TotalXP != 40 {
		t.Errorf("kid-2 = %d (inherited %v), personal = %d; want 5, false, 40", other.TotalXP, other.Inherited, p.TotalXP)
	}
}

func TestService_GetStreakFallsBackToPersonal(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()
	kid := domain.Identity{UserID: "u1", ProfileID: "kid"}

	if _, err := svc.RecordStudyEvent(ctx, domain.PersonalIdentity("u1"), testDay); err != nil {
		t.Fatal(err)
	}

	got, err := svc.GetStreak(ctx, kid)
	if err != nil {
		t.Fatalf("GetStreak() error = %v", err)
	}
	if !got.Inherited || got.CurrentStreak != 1 || got.Identity != kid {
		t.Errorf("GetStreak() = %+v; want inherited personal streak for %v", got, kid)
	}

	res, err := svc.RecordStudyEvent(ctx, kid, testDay)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != domain.StreakStarted || res.Identity != kid {
		t.Errorf("RecordStudyEvent() = %+v; want a new streak for the profile", res)
	}
}

func TestService_NullProfileIsPersonal(t *testing.T) {
	svc, store, _ := setupService(t)
	ctx := context.Background()
	spellings := []domain.Identity{
		{UserID: "u1"},
		{UserID: "u1", ProfileID: "null"},
		{UserID: " u1 ", ProfileID: "undefined"},
	}

	for _, id := range spellings {
		if _, err := svc.Award(ctx, id, 10, "test"); err != nil {
			t.Fatalf("Award(%+v) error = %v", id, err)
		}
		if _, err := svc.RecordStudyEvent(ctx, id, testDay); err != nil {
			t.Fatalf("RecordStudyEvent(%+v) error = %v", id, err)
		}
	}

	p, err := svc.GetProgress(ctx, domain.Identity{UserID: "u1", ProfileID: "null"})
	if err != nil {
		t.Fatal(err)
	}
	if p.TotalXP != 30 || p.Identity != domain.PersonalIdentity("u1") {
		t.Errorf("GetProgress() = %d for %v; want 30 for u1", p.TotalXP, p.Identity)
	}
	if rows := store.xpRows(domain.PersonalIdentity("u1")); len(rows) != 1 || rows[0].Identity.ProfileID != "" {
		t.Errorf("xp rows = %d; want one row with an absent profile", len(rows))
	}
	if rows := store.streakRows(domain.PersonalIdentity("u1")); len(rows) != 1 {
		t.Errorf("streak rows = %d; want 1", len(rows))
	}
}

func TestService_ConcurrentAwards(t *testing.T) {
	const writers = 12
	const delta = 15

	store := newMemStore()
	svc := NewService(store, nil, Config{
		Retry:  RetryConfig{MaxAttempts: writers, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	id := domain.Identity{UserID: "u1", ProfileID: "kid"}

	// Hold every writer at its first insert so all of them race as
	// first-writers against the unique key.
	var arrived sync.WaitGroup
	arrived.Add(writers)
	release := make(chan struct{})
	var inserts atomic.Int32
	store.insertXPFn = func(*domain.XPRecord) error {
		if inserts.Add(1) <= writers {
			arrived.Done()
			<-release
		}
		return nil
	}
	go func() {
		arrived.Wait()
		close(release)
	}()

	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Award(context.Background(), id, delta, "race"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("Award() error = %v", err)
	}

	rows := store.xpRows(id)
	if len(rows) != 1 {
		t.Fatalf("rows = %d; want exactly 1", len(rows))
	}
	if rows[0].TotalXP != writers*delta {
		t.Errorf("TotalXP = %d; want %d", rows[0].TotalXP, writers*delta)
	}
	if len(rows[0].History) != writers {
		t.Errorf("len(History) = %d; want %d", len(rows[0].History), writers)
	}
	if rows[0].Level != domain.LevelFor(writers*delta) {
		t.Errorf("Level = %d; want %d", rows[0].Level, domain.LevelFor(writers*delta))
	}
}

func TestService_ConcurrentFirstStudyEvents(t *testing.T) {
	const writers = 8
	svc, store, _ := setupService(t)
	svc.retry.MaxAttempts = writers
	id := domain.PersonalIdentity("u1")

	var wg sync.WaitGroup
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.RecordStudyEvent(context.Background(), id, testDay); err != nil {
				t.Errorf("RecordStudyEvent() error = %v", err)
			}
		}()
	}
	wg.Wait()

	rows := store.streakRows(id)
	if len(rows) != 1 {
		t.Fatalf("rows = %d; want exactly 1", len(rows))
	}
	if rows[0].CurrentStreak != 1 {
		t.Errorf("CurrentStreak = %d; want 1", rows[0].CurrentStreak)
	}
}

func TestService_ConflictExhausted(t *testing.T) {
	svc, store, _ := setupService(t)
	ctx := context.Background()
	id := domain.PersonalIdentity("u1")

	if _, err := svc.Award(ctx, id, 10, "seed"); err != nil {
		t.Fatal(err)
	}
	store.updateXPFn = func(*domain.XPRecord) error { return domain.ErrStaleWrite }
	store.updateXPCalls = 0

	_, err := svc.Award(ctx, id, 10, "contended")
	if !errors.Is(err, domain.ErrConflictExhausted) {
		t.Fatalf("Award() error = %v; want ErrConflictExhausted", err)
	}
	var opErr *domain.OpError
	if !errors.As(err, &opErr) || opErr.Op != "award" || opErr.Identity != id {
		t.Errorf("error should carry op and identity, got %v", err)
	}
	if store.updateXPCalls != 3 {
		t.Errorf("update attempts = %d; want 3", store.updateXPCalls)
	}

	p, _ := svc.GetProgress(ctx, id)
	if p.TotalXP != 10 {
		t.Errorf("TotalXP = %d; want 10 (no partial write)", p.TotalXP)
	}
}

func TestService_TransientErrorNotRetried(t *testing.T) {
	svc, store, _ := setupService(t)
	ctx := context.Background()
	ioErr := errors.New("disk I/O error")
	store.insertXPFn = func(*domain.XPRecord) error { return ioErr }

	_, err := svc.Award(ctx, domain.PersonalIdentity("u1"), 10, "test")
	if !errors.Is(err, ioErr) {
		t.Fatalf("Award() error = %v; want %v", err, ioErr)
	}
	if errors.Is(err, domain.ErrConflictExhausted) {
		t.Error("transient error reported as conflict")
	}
	if store.insertXPCalls != 1 {
		t.Errorf("insert attempts = %d; want 1", store.insertXPCalls)
	}
}

func TestService_GetProgressStoreError(t *testing.T) {
	svc, store, _ := setupService(t)
	store.listXPFn = func(context.Context, string) error { return errors.New("connection reset") }

	_, err := svc.GetProgress(context.Background(), domain.PersonalIdentity("u1"))
	var opErr *domain.OpError
	if !errors.As(err, &opErr) || opErr.Op != "get progress" {
		t.Errorf("GetProgress() error = %v; want OpError", err)
	}
}

func TestService_OwnerRaceTolerated(t *testing.T) {
	svc, store, _ := setupService(t)
	store.createOwnerFn = func(string) error { return domain.ErrDuplicate }

	if _, err := svc.Award(context.Background(), domain.PersonalIdentity("u1"), 10, "test"); err != nil {
		t.Fatalf("Award() error = %v", err)
	}
}

func TestService_OwnerFailureSurfaces(t *testing.T) {
	svc, store, _ := setupService(t)
	store.createOwnerFn = func(string) error { return errors.New("read-only database") }

	if _, err := svc.Award(context.Background(), domain.PersonalIdentity("u1"), 10, "test"); err == nil {
		t.Fatal("Award() should fail when the owner profile cannot be created")
	}
	if store.insertXPCalls != 0 {
		t.Errorf("insert attempts = %d; want 0", store.insertXPCalls)
	}
}

func TestService_RecordStudyEvent(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()
	id := domain.PersonalIdentity("u1")

	steps := []struct {
		date        time.Time
		wantOutcome domain.StreakOutcome
		wantCurrent int
		wantLongest int
	}{
		{testDay, domain.StreakStarted, 1, 1},
		{testDay, domain.StreakNoop, 1, 1},
		{testDay.AddDate(0, 0, 1), domain.StreakContinued, 2, 2},
		{testDay.AddDate(0, 0, 1).Add(3 * time.Hour), domain.StreakNoop, 2, 2},
		{testDay.AddDate(0, 0, 3), domain.StreakReset, 1, 2},
	}

	for i, s := range steps {
		res, err := svc.RecordStudyEvent(ctx, id, s.date)
		if err != nil {
			t.Fatalf("step %d: RecordStudyEvent() error = %v", i, err)
		}
		if res.Outcome != s.wantOutcome || res.CurrentStreak != s.wantCurrent || res.LongestStreak != s.wantLongest {
			t.Errorf("step %d: got %s %d/%d; want %s %d/%d", i,
				res.Outcome, res.CurrentStreak, res.LongestStreak,
				s.wantOutcome, s.wantCurrent, s.wantLongest)
		}
	}

	got, err := svc.GetStreak(ctx, id)
	if err != nil {
		t.Fatalf("GetStreak() error = %v", err)
	}
	if got.CurrentStreak != 1 || got.LongestStreak != 2 {
		t.Errorf("GetStreak() = %d/%d; want 1/2", got.CurrentStreak, got.LongestStreak)
	}
}

func TestService_RecordStudyEventDefaultsToToday(t *testing.T) {
	svc, _, _ := setupService(t)

	res, err := svc.RecordStudyEvent(context.Background(), domain.PersonalIdentity("u1"), time.Time{})
	if err != nil {
		t.Fatalf("RecordStudyEvent() error = %v", err)
	}
	if res.LastStudyDate == nil || !res.LastStudyDate.Equal(domain.DateOf(testDay)) {
		t.Errorf("LastStudyDate = %v; want %v", res.LastStudyDate, domain.DateOf(testDay))
	}
}

func TestService_CompleteProblem(t *testing.T) {
	svc, _, history := setupService(t)
	ctx := context.Background()
	id := domain.PersonalIdentity("u1")

	missed, err := svc.CompleteProblem(ctx, domain.ProblemAttempt{
		Identity: id, Subject: "Geometry", Difficulty: domain.DifficultyHigh,
	})
	if err != nil {
		t.Fatalf("CompleteProblem(unsolved) error = %v", err)
	}
	if missed.Award != nil || missed.Streak != nil {
		t.Error("unsolved attempt should not award XP or study credit")
	}

	solved, err := svc.CompleteProblem(ctx, domain.ProblemAttempt{
		Identity: id, Subject: "algebra", Difficulty: domain.DifficultyHigh, Solved: true, HintsUsed: 1,
	})
	if err != nil {
		t.Fatalf("CompleteProblem(solved) error = %v", err)
	}
	if solved.Award == nil || solved.Award.XPGained != 18 {
		t.Errorf("Award = %+v; want 18 XP", solved.Award)
	}
	if solved.Streak == nil || solved.Streak.CurrentStreak != 1 {
		t.Errorf("Streak = %+v; want current 1", solved.Streak)
	}

	if len(history.attempts) != 2 {
		t.Fatalf("recorded attempts = %d; want 2", len(history.attempts))
	}
	if history.attempts[0].Subject != "geometry" {
		t.Errorf("Subject = %q; want normalized %q", history.attempts[0].Subject, "geometry")
	}
	if history.attempts[0].ID == "" {
		t.Error("attempt should be assigned an id")
	}
}

func TestService_CompleteProblemReplayResumesAward(t *testing.T) {
	svc, store, history := setupService(t)
	ctx := context.Background()
	ioErr := errors.New("disk I/O error")
	attempt := domain.ProblemAttempt{
		ID: "evt-1", Identity: domain.PersonalIdentity("u1"), Subject: "algebra",
		Difficulty: domain.DifficultyMiddle, Solved: true, CreatedAt: testDay,
	}

	store.insertXPFn = func(*domain.XPRecord) error { return ioErr }
	if _, err := svc.CompleteProblem(ctx, attempt); !errors.Is(err, ioErr) {
		t.Fatalf("first CompleteProblem() error = %v; want %v", err, ioErr)
	}
	if len(history.attempts) != 1 {
		t.Fatalf("recorded attempts = %d; want 1", len(history.attempts))
	}

	store.insertXPFn = nil
	out, err := svc.CompleteProblem(ctx, attempt)
	if err != nil {
		t.Fatalf("replayed CompleteProblem() error = %v", err)
	}
	if out.Award == nil || out.Award.XPGained != 15 {
		t.Errorf("Award = %+v; want 15 XP", out.Award)
	}
	if out.Streak == nil || out.Streak.CurrentStreak != 1 {
		t.Errorf("Streak = %+v; want current 1", out.Streak)
	}

	p, _ := svc.GetProgress(ctx, attempt.Identity)
	if p.TotalXP != 15 {
		t.Errorf("TotalXP = %d; want 15", p.TotalXP)
	}
	if len(p.History) != 1 || p.History[0].AttemptID != "evt-1" {
		t.Errorf("History = %+v; want one entry for evt-1", p.History)
	}
}

func TestService_CompleteProblemReplayAfterSuccess(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()
	id := domain.PersonalIdentity("u1")
	attempt := domain.ProblemAttempt{
		ID: "evt-1", Identity: id, Subject: "algebra",
		Difficulty: domain.DifficultyMiddle, Solved: true, CreatedAt: testDay,
	}

	if _, err := svc.CompleteProblem(ctx, attempt); err != nil {
		t.Fatal(err)
	}
	// The streak moves on before the first delivery is repeated.
	if _, err := svc.RecordStudyEvent(ctx, id, testDay.AddDate(0, 0, 1)); err != nil {
		t.Fatal(err)
	}

	_, err := svc.CompleteProblem(ctx, attempt)
	if !errors.Is(err, domain.ErrDuplicate) {
		t.Fatalf("replayed CompleteProblem() error = %v; want ErrDuplicate", err)
	}

	p, _ := svc.GetProgress(ctx, id)
	if p.TotalXP != 15 {
		t.Errorf("TotalXP = %d; want 15 (no double award)", p.TotalXP)
	}
	st, _ := svc.GetStreak(ctx, id)
	if st.CurrentStreak != 2 {
		t.Errorf("CurrentStreak = %d; want 2 (replay must not reset)", st.CurrentStreak)
	}
}

func TestService_CompleteProblemUnsolvedDuplicate(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()
	attempt := domain.ProblemAttempt{
		ID: "evt-2", Identity: domain.PersonalIdentity("u1"), Subject: "algebra",
		Difficulty: domain.DifficultyMiddle,
	}

	if _, err := svc.CompleteProblem(ctx, attempt); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CompleteProblem(ctx, attempt); !errors.Is(err, domain.ErrDuplicate) {
		t.Errorf("replayed CompleteProblem() error = %v; want ErrDuplicate", err)
	}
}

func TestService_CompleteProblemValidation(t *testing.T) {
	svc, _, history := setupService(t)

	_, err := svc.CompleteProblem(context.Background(), domain.ProblemAttempt{
		Identity: domain.PersonalIdentity("u1"), Subject: "", Difficulty: domain.DifficultyMiddle,
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("CompleteProblem() error = %v; want ErrValidation", err)
	}
	if len(history.attempts) != 0 {
		t.Error("invalid attempt was recorded")
	}
}

func TestService_DeleteProgress(t *testing.T) {
	svc, store, history := setupService(t)
	ctx := context.Background()
	personal := domain.PersonalIdentity("u1")
	kid := domain.Identity{UserID: "u1", ProfileID: "kid"}
	other := domain.PersonalIdentity("u2")

	for _, id := range []domain.Identity{personal, kid, other} {
		if _, err := svc.CompleteProblem(ctx, domain.ProblemAttempt{
			Identity: id, Subject: "algebra", Difficulty: domain.DifficultyMiddle, Solved: true,
		}); err != nil {
			t.Fatal(err)
		}
	}

	res, err := svc.DeleteProgress(ctx, "u1")
	if err != nil {
		t.Fatalf("DeleteProgress() error = %v", err)
	}
	if res.XPRecords != 2 || res.StreakRecords != 2 || res.ProblemAttempts != 2 {
		t.Errorf("DeleteProgress() = %+v; want 2 of each", res)
	}

	if p, _ := svc.GetProgress(ctx, kid); p.Exists {
		t.Error("kid progress should be gone")
	}
	if p, _ := svc.GetProgress(ctx, other); p.TotalXP != 15 {
		t.Errorf("other user TotalXP = %d; want 15", p.TotalXP)
	}
	if len(store.xpRows(other)) != 1 || len(history.attempts) != 1 {
		t.Error("other user's rows should be untouched")
	}

	if _, err := svc.DeleteProgress(ctx, "  "); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("DeleteProgress(blank) error = %v; want ErrValidation", err)
	}
}

func TestService_DefaultTimeoutApplied(t *testing.T) {
	svc, store, _ := setupService(t)
	ctx := context.Background()

	var hadDeadline bool
	store.listXPFn = func(ctx context.Context, _ string) error {
		_, hadDeadline = ctx.Deadline()
		return nil
	}
	if _, err := svc.Award(ctx, domain.PersonalIdentity("u1"), 5, "test"); err != nil {
		t.Fatal(err)
	}
	if !hadDeadline {
		t.Error("store call should run under the default operation timeout")
	}

	// A caller deadline that has already passed surfaces as a context error.
	expired, cancel := context.WithDeadline(ctx, time.Now().Add(-time.Second))
	defer cancel()
	store.listXPFn = func(ctx context.Context, _ string) error { return ctx.Err() }
	_, err := svc.Award(expired, domain.PersonalIdentity("u1"), 5, "test")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Award() error = %v; want DeadlineExceeded", err)
	}
}
