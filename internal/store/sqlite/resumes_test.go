package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"pdvledger/backend/internal/store"
)

func TestResumeAccumulatesDeltas(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	resume, err := s.FindOrCreateResume(ctx, "01")
	if err != nil {
		t.Fatalf("find or create: %v", err)
	}
	if !resume.AmountSettled.IsZero() || !resume.AmountUnsettled.IsZero() {
		t.Fatalf("new resume should start at zero: %+v", resume)
	}

	if err := s.IncrementResume(ctx, resume.ID, dec("10"), dec("0")); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if err := s.IncrementResume(ctx, resume.ID, dec("3"), dec("5")); err != nil {
		t.Fatalf("increment: %v", err)
	}

	got, err := s.FindResumeByID(ctx, resume.ID)
	if err != nil {
		t.Fatalf("find resume: %v", err)
	}
	if !got.AmountSettled.Equal(dec("13")) || !got.AmountUnsettled.Equal(dec("5")) {
		t.Fatalf("expected (13, 5), got (%s, %s)", got.AmountSettled, got.AmountUnsettled)
	}

	again, err := s.FindOrCreateResume(ctx, "01")
	if err != nil {
		t.Fatalf("second find or create: %v", err)
	}
	if again.ID != resume.ID {
		t.Fatalf("expected same resume for same day, got %s and %s", resume.ID, again.ID)
	}
}

func TestResumeAcceptsNegativeDelta(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	resume, err := s.FindOrCreateResume(ctx, "03")
	if err != nil {
		t.Fatalf("find or create: %v", err)
	}
	if err := s.IncrementResume(ctx, resume.ID, dec("-2.5"), dec("0")); err != nil {
		t.Fatalf("increment: %v", err)
	}
	got, _ := s.FindResumeByID(ctx, resume.ID)
	if !got.AmountSettled.Equal(dec("-2.5")) {
		t.Fatalf("expected -2.5, got %s", got.AmountSettled)
	}
}

func TestIncrementUnknownResume(t *testing.T) {
	s := newTestStore(t)
	err := s.IncrementResume(context.Background(), "missing", dec("1"), dec("1"))
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.FindResumeByID(context.Background(), "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResumeDayBoundary(t *testing.T) {
	clk := &mutableClock{now: time.Date(2024, 1, 10, 23, 59, 59, 0, time.Local)}
	s := newTestStore(t, WithClock(clk))
	ctx := context.Background()

	before, err := s.FindOrCreateResume(ctx, "01")
	if err != nil {
		t.Fatalf("find or create before midnight: %v", err)
	}

	clk.Set(time.Date(2024, 1, 11, 0, 0, 1, 0, time.Local))
	after, err := s.FindOrCreateResume(ctx, "01")
	if err != nil {
		t.Fatalf("find or create after midnight: %v", err)
	}
	if after.ID == before.ID {
		t.Fatalf("expected a fresh resume after the day boundary")
	}

	today, err := s.ListTodayResumes(ctx)
	if err != nil {
		t.Fatalf("list today: %v", err)
	}
	if len(today) != 1 || today[0].ID != after.ID {
		t.Fatalf("expected only the new day's resume, got %+v", today)
	}
}

func TestListTodayResumesOrderedByCode(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, code := range []string{"04", "01", "03"} {
		if _, err := s.FindOrCreateResume(ctx, code); err != nil {
			t.Fatalf("find or create %s: %v", code, err)
		}
	}
	resumes, err := s.ListTodayResumes(ctx)
	if err != nil {
		t.Fatalf("list today: %v", err)
	}
	if len(resumes) != 3 || resumes[0].MethodCode != "01" || resumes[1].MethodCode != "03" || resumes[2].MethodCode != "04" {
		t.Fatalf("unexpected order: %+v", resumes)
	}
}

func TestConcurrentFindOrCreateYieldsOneRow(t *testing.T) {
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "resume.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	const callers = 12
	var wg sync.WaitGroup
	ids := make(chan string, callers)
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resume, err := s.FindOrCreateResume(context.Background(), "01")
			if err != nil {
				errs <- err
				return
			}
			ids <- resume.ID
		}()
	}
	wg.Wait()
	close(ids)
	close(errs)

	for err := range errs {
		t.Fatalf("concurrent find or create: %v", err)
	}
	seen := map[string]struct{}{}
	for id := range ids {
		seen[id] = struct{}{}
	}
	if len(seen) != 1 {
		t.Fatalf("expected one resume id across callers, got %d", len(seen))
	}
	if got := countRows(t, s, "daily_resume"); got != 1 {
		t.Fatalf("expected one daily_resume row, got %d", got)
	}
}

func TestPurgeResumesOlderThan(t *testing.T) {
	clk := &mutableClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.Local)}
	s := newTestStore(t, WithClock(clk))
	ctx := context.Background()

	for _, code := range []string{"01", "03"} {
		if _, err := s.FindOrCreateResume(ctx, code); err != nil {
			t.Fatalf("seed old resume: %v", err)
		}
	}
	clk.Set(time.Date(2024, 1, 20, 12, 0, 0, 0, time.Local))
	if _, err := s.FindOrCreateResume(ctx, "01"); err != nil {
		t.Fatalf("seed recent resume: %v", err)
	}

	deleted, err := s.PurgeResumesOlderThan(ctx, 7)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 purged, got %d", deleted)
	}
	if got := countRows(t, s, "daily_resume"); got != 1 {
		t.Fatalf("expected 1 remaining resume, got %d", got)
	}

	if _, err := s.PurgeResumesOlderThan(ctx, -1); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for negative days, got %v", err)
	}
}
