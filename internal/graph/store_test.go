package graph

import (
	"errors"
	"strings"
	"testing"
	"time"
)

// TestStoreAdd tests task insertion with various graph structures.
func TestStoreAdd(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(s *Store) error
		wantErr error
	}{
		{
			name: "linear chain",
			setup: func(s *Store) error {
				if err := s.Add(&Task{ID: "A"}); err != nil {
					return err
				}
				if err := s.Add(&Task{ID: "B", DependsOn: []string{"A"}}); err != nil {
					return err
				}
				return s.Add(&Task{ID: "C", DependsOn: []string{"B"}})
			},
		},
		{
			name: "diamond",
			setup: func(s *Store) error {
				s.Add(&Task{ID: "A"})
				s.Add(&Task{ID: "B", DependsOn: []string{"A"}})
				s.Add(&Task{ID: "C", DependsOn: []string{"A"}})
				return s.Add(&Task{ID: "D", DependsOn: []string{"B", "C"}})
			},
		},
		{
			name: "duplicate ID",
			setup: func(s *Store) error {
				s.Add(&Task{ID: "A"})
				return s.Add(&Task{ID: "A"})
			},
			wantErr: ErrDuplicateTask,
		},
		{
			name: "unknown dependency",
			setup: func(s *Store) error {
				return s.Add(&Task{ID: "A", DependsOn: []string{"nonexistent"}})
			},
			wantErr: ErrUnknownDependency,
		},
		{
			name: "self-loop",
			setup: func(s *Store) error {
				return s.Add(&Task{ID: "A", DependsOn: []string{"A"}})
			},
			wantErr: ErrUnknownDependency,
		},
		{
			name: "verification link to existing verification task",
			setup: func(s *Store) error {
				s.Add(&Task{ID: "ver", Kind: KindVerification})
				return s.Add(&Task{ID: "impl", Kind: KindImplementation, VerifiedBy: "ver"})
			},
		},
		{
			name: "verification link to missing task",
			setup: func(s *Store) error {
				return s.Add(&Task{ID: "impl", Kind: KindImplementation, VerifiedBy: "nope"})
			},
			wantErr: ErrUnknownDependency,
		},
		{
			name: "verification link to wrong kind",
			setup: func(s *Store) error {
				s.Add(&Task{ID: "infra", Kind: KindInfra})
				return s.Add(&Task{ID: "impl", Kind: KindImplementation, VerifiedBy: "infra"})
			},
			wantErr: ErrUnknownDependency,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore()
			err := tt.setup(s)

			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Add() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Add() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// TestStoreTransitions enumerates the status machine: every (from, to)
// pair either succeeds, no-ops, or fails with ErrInvalidTransition.
func TestStoreTransitions(t *testing.T) {
	all := []Status{
		StatusPending, StatusReady, StatusAssigned, StatusRunning,
		StatusComplete, StatusFailed, StatusBlocked,
	}
	allowed := map[Status]map[Status]bool{
		StatusPending:  {StatusReady: true, StatusBlocked: true},
		StatusReady:    {StatusAssigned: true, StatusBlocked: true},
		StatusAssigned: {StatusRunning: true, StatusBlocked: true},
		StatusRunning:  {StatusComplete: true, StatusFailed: true},
		StatusFailed:   {StatusPending: true, StatusBlocked: true},
	}

	for _, from := range all {
		for _, to := range all {
			t.Run(from.String()+"_to_"+to.String(), func(t *testing.T) {
				s := NewStore()
				if err := s.Add(&Task{ID: "A", Status: from}); err != nil {
					t.Fatalf("Add() error = %v", err)
				}

				ev, err := s.UpdateStatus("A", to, "")
				switch {
				case from == to:
					// Duplicate delivery: no error, no event appended.
					if err != nil {
						t.Errorf("UpdateStatus() error = %v, want nil for no-op", err)
					}
					if ev.TaskID != "" {
						t.Errorf("UpdateStatus() emitted event %+v for no-op", ev)
					}
					if len(s.Events("A")) != 0 {
						t.Error("no-op transition appended to event log")
					}
				case allowed[from][to]:
					if err != nil {
						t.Errorf("UpdateStatus() error = %v, want nil", err)
					}
					if ev.From != from || ev.To != to {
						t.Errorf("event = %s -> %s, want %s -> %s", ev.From, ev.To, from, to)
					}
					got, _ := s.Get("A")
					if got.Status != to {
						t.Errorf("status = %v, want %v", got.Status, to)
					}
				default:
					if !errors.Is(err, ErrInvalidTransition) {
						t.Errorf("UpdateStatus() error = %v, want ErrInvalidTransition", err)
					}
					got, _ := s.Get("A")
					if got.Status != from {
						t.Errorf("rejected transition mutated status to %v", got.Status)
					}
					if len(s.Events("A")) != 0 {
						t.Error("rejected transition appended to event log")
					}
				}
			})
		}
	}
}

// TestStoreEventLog tests ordering and per-task slicing of the log.
func TestStoreEventLog(t *testing.T) {
	s := NewStore()
	s.Add(&Task{ID: "A"})
	s.Add(&Task{ID: "B"})

	s.UpdateStatus("A", StatusReady, "")
	s.UpdateStatus("B", StatusReady, "")
	s.UpdateStatus("A", StatusAssigned, "")
	s.UpdateStatus("A", StatusRunning, "")
	s.UpdateStatus("A", StatusFailed, "transient")

	allEvents := s.AllEvents()
	if len(allEvents) != 5 {
		t.Fatalf("AllEvents() returned %d events, want 5", len(allEvents))
	}
	for i, ev := range allEvents {
		if ev.Seq != int64(i) {
			t.Errorf("event %d has seq %d, want %d", i, ev.Seq, i)
		}
	}

	aEvents := s.Events("A")
	if len(aEvents) != 4 {
		t.Fatalf("Events(A) returned %d events, want 4", len(aEvents))
	}
	wantA := []Status{StatusReady, StatusAssigned, StatusRunning, StatusFailed}
	for i, ev := range aEvents {
		if ev.To != wantA[i] {
			t.Errorf("A event %d: to = %v, want %v", i, ev.To, wantA[i])
		}
	}
	if aEvents[3].Classification != "transient" {
		t.Errorf("failure classification = %q, want %q", aEvents[3].Classification, "transient")
	}
}

// TestStoreGet tests snapshot isolation.
func TestStoreGet(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		s := NewStore()
		_, err := s.Get("nope")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Get() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("returned task is a copy", func(t *testing.T) {
		s := NewStore()
		s.Add(&Task{ID: "A", DependsOn: nil})
		s.Add(&Task{ID: "B", DependsOn: []string{"A"}})

		got, _ := s.Get("B")
		got.Status = StatusBlocked
		got.DependsOn[0] = "mutated"

		fresh, _ := s.Get("B")
		if fresh.Status != StatusPending {
			t.Error("mutating a snapshot leaked into the store")
		}
		if fresh.DependsOn[0] != "A" {
			t.Error("mutating a snapshot's dependency slice leaked into the store")
		}
	})
}

// TestStoreDependents tests the reverse edge index.
func TestStoreDependents(t *testing.T) {
	s := NewStore()
	s.Add(&Task{ID: "A"})
	s.Add(&Task{ID: "B", DependsOn: []string{"A"}})
	s.Add(&Task{ID: "C", DependsOn: []string{"A"}})
	s.Add(&Task{ID: "D", DependsOn: []string{"B"}})

	deps := s.Dependents("A")
	if len(deps) != 2 {
		t.Fatalf("Dependents(A) = %v, want 2 entries", deps)
	}
	found := map[string]bool{}
	for _, id := range deps {
		found[id] = true
	}
	if !found["B"] || !found["C"] {
		t.Errorf("Dependents(A) = %v, want B and C", deps)
	}
	if got := s.Dependents("D"); len(got) != 0 {
		t.Errorf("Dependents(D) = %v, want empty", got)
	}
}

// TestStoreAwaiting tests parking failed tasks on a missing dependency.
func TestStoreAwaiting(t *testing.T) {
	s := NewStore()
	s.Add(&Task{ID: "schema"})
	s.Add(&Task{ID: "api", Status: StatusFailed})
	s.Add(&Task{ID: "ui", Status: StatusFailed})

	s.SetAwaitDep("api", "schema")

	waiting := s.Awaiting("schema")
	if len(waiting) != 1 || waiting[0].ID != "api" {
		t.Fatalf("Awaiting(schema) = %v, want [api]", waiting)
	}

	// Clearing the marker removes the task from the waiting set.
	s.SetAwaitDep("api", "")
	if got := s.Awaiting("schema"); len(got) != 0 {
		t.Errorf("Awaiting(schema) after clear = %v, want empty", got)
	}
}

// TestStoreMutators tests the small field mutators.
func TestStoreMutators(t *testing.T) {
	s := NewStore()
	s.Add(&Task{ID: "A"})

	if err := s.SetWorker("A", "w1"); err != nil {
		t.Fatalf("SetWorker() error = %v", err)
	}
	got, _ := s.Get("A")
	if got.Worker != "w1" {
		t.Errorf("worker = %q, want %q", got.Worker, "w1")
	}

	notBefore := time.Now().Add(time.Second)
	s.SetRetry("A", 2, notBefore)
	s.SetWidened("A")
	s.ClearWorker("A")

	got, _ = s.Get("A")
	if got.RetryCount != 2 {
		t.Errorf("retry count = %d, want 2", got.RetryCount)
	}
	if !got.NotBefore.Equal(notBefore) {
		t.Errorf("not before = %v, want %v", got.NotBefore, notBefore)
	}
	if !got.Widened {
		t.Error("widened = false, want true")
	}
	if got.Worker != "" {
		t.Errorf("worker = %q, want empty after clear", got.Worker)
	}

	if err := s.SetWorker("nope", "w1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetWorker(missing) error = %v, want ErrNotFound", err)
	}
}

// TestStoreCountByStatus tests the progress tally.
func TestStoreCountByStatus(t *testing.T) {
	s := NewStore()
	s.Add(&Task{ID: "A", Status: StatusComplete})
	s.Add(&Task{ID: "B", Status: StatusRunning})
	s.Add(&Task{ID: "C", Status: StatusPending})
	s.Add(&Task{ID: "D", Status: StatusPending})
	s.Add(&Task{ID: "E", Status: StatusBlocked})

	c := s.CountByStatus()
	if c.Total != 5 || c.Pending != 2 || c.Running != 1 || c.Complete != 1 || c.Blocked != 1 {
		t.Errorf("CountByStatus() = %+v", c)
	}
}

// TestStoreRestoreEvent tests startup replay of historical events.
func TestStoreRestoreEvent(t *testing.T) {
	s := NewStore()
	s.Add(&Task{ID: "A", Status: StatusComplete})

	s.RestoreEvent(ExecutionEvent{TaskID: "A", From: StatusPending, To: StatusReady})
	s.RestoreEvent(ExecutionEvent{TaskID: "A", From: StatusRunning, To: StatusComplete})

	events := s.Events("A")
	if len(events) != 2 {
		t.Fatalf("Events(A) returned %d events, want 2", len(events))
	}
	if events[0].Seq != 0 || events[1].Seq != 1 {
		t.Errorf("restored events got seqs %d, %d; want 0, 1", events[0].Seq, events[1].Seq)
	}

	// New events continue the sequence.
	s.Add(&Task{ID: "B"})
	ev, err := s.UpdateStatus("B", StatusReady, "")
	if err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}
	if ev.Seq != 2 {
		t.Errorf("next seq = %d, want 2", ev.Seq)
	}
}

// TestParseRoundTrips tests the wire-name conversions.
func TestParseRoundTrips(t *testing.T) {
	for _, k := range []Kind{KindVerification, KindImplementation, KindInfra} {
		got, ok := ParseKind(k.String())
		if !ok || got != k {
			t.Errorf("ParseKind(%q) = %v, %v", k.String(), got, ok)
		}
	}
	for _, s := range []Status{
		StatusPending, StatusReady, StatusAssigned, StatusRunning,
		StatusComplete, StatusFailed, StatusBlocked,
	} {
		got, ok := ParseStatus(s.String())
		if !ok || got != s {
			t.Errorf("ParseStatus(%q) = %v, %v", s.String(), got, ok)
		}
	}
	if _, ok := ParseKind("bogus"); ok {
		t.Error("ParseKind accepted a bogus kind")
	}
	if _, ok := ParseStatus("bogus"); ok {
		t.Error("ParseStatus accepted a bogus status")
	}
	if !StatusComplete.Terminal() || !StatusBlocked.Terminal() {
		t.Error("complete and blocked should be terminal")
	}
	if StatusFailed.Terminal() {
		t.Error("failed should not be terminal")
	}
}

// TestStoreErrorMessages checks that errors name the offending task.
func TestStoreErrorMessages(t *testing.T) {
	s := NewStore()
	err := s.Add(&Task{ID: "child", DependsOn: []string{"missing"}})
	if err == nil || !strings.Contains(err.Error(), "missing") {
		t.Errorf("error %v does not name the missing dependency", err)
	}
}
