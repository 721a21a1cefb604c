package task

import "testing"

func TestSettleFulfillsResumedTask(t *testing.T) {
	tk := New(nil, nil, nil)
	tk.Settle(42, nil)

	<-tk.Done()
	if tk.State() != Fulfilled {
		t.Fatalf("expected Fulfilled, got %s", tk.State())
	}
	if tk.Outcome().Result != 42 {
		t.Fatalf("expected result 42, got %v", tk.Outcome().Result)
	}
}

func TestPauseDefersFulfillment(t *testing.T) {
	tk := New(nil, nil, nil)
	if err := tk.Pause(); err != nil {
		t.Fatalf("pause failed: %v", err)
	}

	tk.Settle("done", nil)
	if tk.State() != Paused {
		t.Fatalf("expected task to remain Paused while fulfillment is deferred, got %s", tk.State())
	}

	if err := tk.Resume(); err != nil {
		t.Fatalf("resume failed: %v", err)
	}

	<-tk.Done()
	if tk.State() != Fulfilled {
		t.Fatalf("expected Fulfilled after resume, got %s", tk.State())
	}
	if tk.Outcome().Result != "done" {
		t.Fatalf("expected deferred result to survive resume, got %v", tk.Outcome().Result)
	}
}

func TestCancelWithoutHandlerSettlesImmediately(t *testing.T) {
	tk := New(nil, nil, nil)
	if err := tk.Cancel(); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	<-tk.Done()
	if tk.State() != Cancelled {
		t.Fatalf("expected Cancelled, got %s", tk.State())
	}
}

func TestCancelRaceSurfacesAsRejected(t *testing.T) {
	var tk *Task
	tk = New(nil, nil, func() error {
		// The underlying work settles naturally while the cancel handler
		// is still executing - a programming error per §4.1.
		tk.Settle("raced", nil)
		return nil
	})

	if err := tk.Cancel(); err != nil {
		t.Fatalf("cancel returned unexpected error: %v", err)
	}
	<-tk.Done()
	if tk.State() != Rejected {
		t.Fatalf("expected Rejected due to cancel race, got %s", tk.State())
	}
	if tk.Outcome().Err != ErrCancelRace {
		t.Fatalf("expected ErrCancelRace, got %v", tk.Outcome().Err)
	}
}

func TestOperationsOnTerminalTaskFailPrecondition(t *testing.T) {
	tk := New(nil, nil, nil)
	tk.Settle(nil, nil)
	<-tk.Done()

	if err := tk.Pause(); err != ErrPrecondition {
		t.Fatalf("expected ErrPrecondition from Pause on terminal task, got %v", err)
	}
	if err := tk.Resume(); err != ErrPrecondition {
		t.Fatalf("expected ErrPrecondition from Resume on terminal task, got %v", err)
	}
	if err := tk.Cancel(); err != ErrPrecondition {
		t.Fatalf("expected ErrPrecondition from Cancel on terminal task, got %v", err)
	}
}

func TestResumeWithoutPauseFailsPrecondition(t *testing.T) {
	tk := New(nil, nil, nil)
	if err := tk.Resume(); err != ErrPrecondition {
		t.Fatalf("expected ErrPrecondition, got %v", err)
	}
}

func TestProgressDropsWhilePaused(t *testing.T) {
	tk := New(nil, nil, nil)
	received := make(chan interface{}, 1)
	go func() {
		for ev := range tk.OnProgress() {
			received <- ev.Args[0]
		}
	}()

	if err := tk.Pause(); err != nil {
		t.Fatalf("pause failed: %v", err)
	}
	tk.Progress(1)

	select {
	case v := <-received:
		t.Fatalf("expected no progress while paused, got %v", v)
	default:
	}
}
