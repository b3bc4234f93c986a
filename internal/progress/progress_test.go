package progress

import (
	"strings"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// Tracker Tests
// =============================================================================

func TestTrackerConcurrentAdvance(t *testing.T) {
	var mu sync.Mutex
	var calls int
	var lastCompleted, lastTotal int

	tracker := NewTracker(func(completed, total int) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if completed > lastCompleted {
			lastCompleted = completed
		}
		if total > lastTotal {
			lastTotal = total
		}
		if completed > total {
			t.Errorf("callback saw completed %d > total %d", completed, total)
		}
	})

	tracker.AddTotal(100)

	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.Advance(1)
		}()
	}
	wg.Wait()

	completed, total := tracker.Snapshot()
	if completed != 100 || total != 100 {
		t.Errorf("Snapshot() = %d/%d, want 100/100", completed, total)
	}

	mu.Lock()
	defer mu.Unlock()
	if calls != 101 {
		t.Errorf("callback calls = %d, want 101", calls)
	}
	if lastCompleted != 100 || lastTotal != 100 {
		t.Errorf("callback max = %d/%d, want 100/100", lastCompleted, lastTotal)
	}
}

func TestTrackerTotalGrowsMidRun(t *testing.T) {
	tracker := NewTracker(nil)

	tracker.AddTotal(2)
	tracker.Advance(1)
	tracker.AddTotal(3)
	tracker.Advance(2)

	completed, total := tracker.Snapshot()
	if completed != 3 || total != 5 {
		t.Errorf("Snapshot() = %d/%d, want 3/5", completed, total)
	}

	tracker.AddTotal(0)
	tracker.AddTotal(-4)
	tracker.Advance(0)
	if c, tot := tracker.Snapshot(); c != 3 || tot != 5 {
		t.Errorf("non-positive updates changed counters to %d/%d", c, tot)
	}

	tracker.Reset()
	if c, tot := tracker.Snapshot(); c != 0 || tot != 0 {
		t.Errorf("Reset() left %d/%d", c, tot)
	}
}

func TestTrackerCallbackMayReenter(t *testing.T) {
	var tracker *Tracker
	done := make(chan struct{})
	tracker = NewTracker(func(completed, total int) {
		// Would deadlock if the lock were held while calling back.
		tracker.Snapshot()
		if completed == 1 {
			close(done)
		}
	})

	go tracker.Advance(1)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("callback re-entry deadlocked")
	}
}

// =============================================================================
// Reporter Tests
// =============================================================================

func TestOrderedDropsStaleUpdates(t *testing.T) {
	type update struct{ completed, total int }
	var got []update

	cb := Ordered(func(completed, total int) {
		got = append(got, update{completed, total})
	})

	for _, u := range []update{{0, 4}, {2, 4}, {1, 4}, {2, 4}, {2, 6}, {2, 5}, {6, 6}, {5, 6}} {
		cb(u.completed, u.total)
	}

	want := []update{{0, 4}, {2, 4}, {2, 6}, {6, 6}}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("update %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestOrderedTrackerNeverGoesBackwards(t *testing.T) {
	var last int
	tracker := NewTracker(Ordered(func(completed, total int) {
		if completed < last {
			t.Errorf("completed went from %d to %d", last, completed)
		}
		last = completed
	}))
	tracker.AddTotal(200)

	var wg sync.WaitGroup
	for range 200 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.Advance(1)
		}()
	}
	wg.Wait()

	if last != 200 {
		t.Errorf("last completed = %d, want 200", last)
	}
}

func TestProgressReporterFanOut(t *testing.T) {
	pr := NewProgressReporter()
	a := pr.Subscribe()
	b := pr.Subscribe()

	update := &SweepProgress{Phase: PhaseDeleting, Completed: 1, Total: 4}
	pr.UpdateSweepProgress(update)

	for _, ch := range []<-chan any{a, b} {
		select {
		case got := <-ch:
			if got != update {
				t.Errorf("received %v, want %v", got, update)
			}
		default:
			t.Error("subscriber did not receive update")
		}
	}

	if pr.GetSweepProgress() != update {
		t.Error("GetSweepProgress() did not return latest update")
	}

	pr.Unsubscribe(a)
	if _, ok := <-a; ok {
		t.Error("unsubscribed channel should be closed")
	}
}

func TestProgressReporterDropsWhenFull(t *testing.T) {
	pr := NewProgressReporter()
	pr.Subscribe()

	for i := range 100 {
		pr.UpdateScanProgress(&ScanProgress{Phase: PhaseDiscovering, CandidatesFound: i})
	}

	if got := pr.GetScanProgress().CandidatesFound; got != 99 {
		t.Errorf("latest scan progress = %d, want 99", got)
	}
}

func TestFormatSweepProgress(t *testing.T) {
	tests := []struct {
		name     string
		progress *SweepProgress
		contains string
	}{
		{"nil", nil, "Preparing"},
		{"live deleting", &SweepProgress{Phase: PhaseDeleting, Completed: 5, Total: 10}, "Removing... 5/10 items (50%)"},
		{"dry run", &SweepProgress{Phase: PhaseDeleting, Completed: 1, Total: 4, DryRun: true}, "Checking... 1/4"},
		{"escalating", &SweepProgress{Phase: PhaseEscalating}, "administrator"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatSweepProgress(tt.progress); !strings.Contains(got, tt.contains) {
				t.Errorf("FormatSweepProgress() = %q, want to contain %q", got, tt.contains)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0s"},
		{1500 * time.Millisecond, "2s"},
		{61 * time.Second, "1m1s"},
		{3725 * time.Second, "1h2m5s"},
	}

	for _, tt := range tests {
		if got := FormatDuration(tt.d); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
