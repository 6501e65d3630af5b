package recovery

import (
	"testing"
	"time"
)

// TestDecide tests the classification-to-action policy.
func TestDecide(t *testing.T) {
	tests := []struct {
		name       string
		retryCount int
		class      Classification
		meta       Metadata
		want       Action
	}{
		{
			name:  "transient under budget retries",
			class: ClassTransient,
			want:  ActionRetry,
		},
		{
			name:       "transient at budget blocks",
			retryCount: 3,
			class:      ClassTransient,
			want:       ActionBlock,
		},
		{
			name:       "transient over budget blocks",
			retryCount: 7,
			class:      ClassTransient,
			want:       ActionBlock,
		},
		{
			name:  "dependency missing with named dep parks",
			class: ClassDependencyMissing,
			meta:  Metadata{MissingDependency: "schema"},
			want:  ActionAwaitDep,
		},
		{
			name:  "dependency missing without named dep retries",
			class: ClassDependencyMissing,
			want:  ActionRetry,
		},
		{
			name:       "dependency missing without named dep at budget blocks",
			retryCount: 3,
			class:      ClassDependencyMissing,
			want:       ActionBlock,
		},
		{
			name:  "capability mismatch widens",
			class: ClassCapabilityMismatch,
			want:  ActionWiden,
		},
		{
			name:       "capability mismatch widens regardless of budget",
			retryCount: 9,
			class:      ClassCapabilityMismatch,
			want:       ActionWiden,
		},
		{
			name:  "unrecoverable blocks immediately",
			class: ClassUnrecoverable,
			want:  ActionBlock,
		},
		{
			name:  "cancelled blocks",
			class: ClassCancelled,
			want:  ActionBlock,
		},
		{
			name:  "unknown classification blocks",
			class: Classification("gremlins"),
			want:  ActionBlock,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(3, DefaultRetryConfig(), nil)
			d := c.Decide("task-1", tt.retryCount, tt.class, tt.meta)

			if d.Action != tt.want {
				t.Errorf("Decide() action = %v, want %v", d.Action, tt.want)
			}
			if tt.want == ActionRetry && d.Delay <= 0 {
				t.Errorf("Decide() retry delay = %v, want positive", d.Delay)
			}
			if tt.want == ActionAwaitDep && d.AwaitDep != tt.meta.MissingDependency {
				t.Errorf("Decide() await dep = %q, want %q", d.AwaitDep, tt.meta.MissingDependency)
			}
		})
	}
}

// TestRetryBudgetSequence walks a task through its full transient
// budget: three failures retry, the fourth blocks.
func TestRetryBudgetSequence(t *testing.T) {
	c := New(3, DefaultRetryConfig(), nil)

	for retryCount := 0; retryCount < 3; retryCount++ {
		d := c.Decide("flaky", retryCount, ClassTransient, Metadata{})
		if d.Action != ActionRetry {
			t.Fatalf("failure with retryCount %d: action = %v, want ActionRetry", retryCount, d.Action)
		}
	}
	d := c.Decide("flaky", 3, ClassTransient, Metadata{})
	if d.Action != ActionBlock {
		t.Fatalf("fourth failure: action = %v, want ActionBlock", d.Action)
	}
}

// TestBackoffGrows tests that consecutive retry delays for the same
// task grow exponentially (within jitter bounds).
func TestBackoffGrows(t *testing.T) {
	cfg := RetryConfig{
		InitialInterval:     100 * time.Millisecond,
		MaxInterval:         10 * time.Second,
		Multiplier:          2.0,
		RandomizationFactor: 0, // deterministic for the test
	}
	c := New(10, cfg, nil)

	var delays []time.Duration
	for i := 0; i < 4; i++ {
		d := c.Decide("slow", i, ClassTransient, Metadata{})
		delays = append(delays, d.Delay)
	}

	for i := 1; i < len(delays); i++ {
		if delays[i] <= delays[i-1] {
			t.Errorf("delay %d (%v) did not grow past delay %d (%v)", i, delays[i], i-1, delays[i-1])
		}
	}
}

// TestBackoffIsPerTask tests that one task's backoff state does not
// bleed into another's, and that Forget resets it.
func TestBackoffIsPerTask(t *testing.T) {
	cfg := RetryConfig{
		InitialInterval:     100 * time.Millisecond,
		MaxInterval:         10 * time.Second,
		Multiplier:          2.0,
		RandomizationFactor: 0,
	}
	c := New(10, cfg, nil)

	// Advance task A twice.
	c.Decide("a", 0, ClassTransient, Metadata{})
	second := c.Decide("a", 1, ClassTransient, Metadata{}).Delay

	// A fresh task starts at the initial interval.
	fresh := c.Decide("b", 0, ClassTransient, Metadata{}).Delay
	if fresh >= second {
		t.Errorf("fresh task delay %v not below advanced task delay %v", fresh, second)
	}

	// Forget resets A to the initial interval.
	c.Forget("a")
	reset := c.Decide("a", 0, ClassTransient, Metadata{}).Delay
	if reset != fresh {
		t.Errorf("delay after Forget = %v, want %v", reset, fresh)
	}
}

// TestClassificationValid tests the recognized classification set.
func TestClassificationValid(t *testing.T) {
	valid := []Classification{
		ClassTransient, ClassDependencyMissing, ClassCapabilityMismatch,
		ClassUnrecoverable, ClassCancelled,
	}
	for _, c := range valid {
		if !c.Valid() {
			t.Errorf("Valid(%q) = false, want true", c)
		}
	}
	for _, c := range []Classification{"", "timeout", "TRANSIENT"} {
		if c.Valid() {
			t.Errorf("Valid(%q) = true, want false", c)
		}
	}
}

// TestBreakerQuarantine tests that consecutive failures trip the
// worker's breaker and a quiet period restores it.
func TestBreakerQuarantine(t *testing.T) {
	r := NewBreakerRegistry(BreakerConfig{
		ConsecutiveFailures: 3,
		OpenTimeout:         50 * time.Millisecond,
	}, nil)

	if !r.Available("w1") {
		t.Fatal("fresh worker should be available")
	}

	r.Record("w1", true)
	r.Record("w1", true)
	if !r.Available("w1") {
		t.Fatal("worker quarantined before the trip threshold")
	}

	r.Record("w1", true)
	if r.Available("w1") {
		t.Fatal("worker still available after trip threshold")
	}

	// Other workers are unaffected.
	if !r.Available("w2") {
		t.Error("unrelated worker quarantined")
	}

	// After the open timeout the breaker half-opens and admits a probe.
	time.Sleep(80 * time.Millisecond)
	if !r.Available("w1") {
		t.Fatal("worker not probing after the open timeout")
	}

	// A successful probe closes the breaker again.
	r.Record("w1", false)
	if !r.Available("w1") {
		t.Error("worker not restored after a successful probe")
	}
}

// TestBreakerSuccessResetsCount tests that a success between failures
// resets the consecutive counter.
func TestBreakerSuccessResetsCount(t *testing.T) {
	r := NewBreakerRegistry(BreakerConfig{
		ConsecutiveFailures: 3,
		OpenTimeout:         time.Minute,
	}, nil)

	r.Record("w1", true)
	r.Record("w1", true)
	r.Record("w1", false)
	r.Record("w1", true)
	r.Record("w1", true)

	if !r.Available("w1") {
		t.Error("breaker tripped despite an intervening success")
	}
}
