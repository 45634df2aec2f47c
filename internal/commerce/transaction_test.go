package commerce

import (
	"context"
	"errors"
	"testing"

	domain "github.com/partner-storefront/api/internal/domain"
)

type recordingUnit struct {
	name        string
	executeErr  error
	rollbackErr error
	log         *[]string
}

func (u *recordingUnit) Execute(ctx context.Context) error {
	*u.log = append(*u.log, "execute:"+u.name)
	return u.executeErr
}

func (u *recordingUnit) Rollback(ctx context.Context) error {
	*u.log = append(*u.log, "rollback:"+u.name)
	return u.rollbackErr
}

func TestSequenceExecutesInOrder(t *testing.T) {
	var log []string
	seq, err := NewSequence(nil,
		&recordingUnit{name: "a", log: &log},
		&recordingUnit{name: "b", log: &log},
		&recordingUnit{name: "c", log: &log},
	)
	if err != nil {
		t.Fatalf("NewSequence: %v", err)
	}
	if err := seq.Execute(context.Background()); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	want := []string{"execute:a", "execute:b", "execute:c"}
	assertLog(t, log, want)
}

func TestSequenceRollsBackExecutedPrefixInReverse(t *testing.T) {
	var log []string
	boom := errors.New("step c failed")
	seq, err := NewSequence(nil,
		&recordingUnit{name: "a", log: &log},
		&recordingUnit{name: "b", log: &log},
		&recordingUnit{name: "c", executeErr: boom, log: &log},
		&recordingUnit{name: "d", log: &log},
	)
	if err != nil {
		t.Fatalf("NewSequence: %v", err)
	}
	if got := seq.Execute(context.Background()); !errors.Is(got, boom) {
		t.Fatalf("Execute error = %v, want %v", got, boom)
	}
	want := []string{"execute:a", "execute:b", "execute:c", "rollback:b", "rollback:a"}
	assertLog(t, log, want)
}

func TestSequenceSwallowsNonFatalRollbackErrors(t *testing.T) {
	var log []string
	boom := errors.New("step c failed")
	seq, err := NewSequence(nil,
		&recordingUnit{name: "a", log: &log},
		&recordingUnit{name: "b", rollbackErr: errors.New("cleanup hiccup"), log: &log},
		&recordingUnit{name: "c", executeErr: boom, log: &log},
	)
	if err != nil {
		t.Fatalf("NewSequence: %v", err)
	}
	if got := seq.Execute(context.Background()); !errors.Is(got, boom) {
		t.Fatalf("Execute error = %v, want original %v", got, boom)
	}
	// Unit a still unwinds even though b's rollback failed.
	want := []string{"execute:a", "execute:b", "execute:c", "rollback:b", "rollback:a"}
	assertLog(t, log, want)
}

func TestSequenceFatalRollbackErrorOutranksOriginal(t *testing.T) {
	var log []string
	fatal := domain.NewError(domain.ErrorFatal, "rollback corrupted state")
	seq, err := NewSequence(nil,
		&recordingUnit{name: "a", log: &log},
		&recordingUnit{name: "b", rollbackErr: fatal, log: &log},
		&recordingUnit{name: "c", executeErr: errors.New("step c failed"), log: &log},
	)
	if err != nil {
		t.Fatalf("NewSequence: %v", err)
	}
	got := seq.Execute(context.Background())
	if !domain.IsFatal(got) {
		t.Fatalf("Execute error = %v, want fatal rollback error", got)
	}
	// Unit a must not roll back after the fatal failure.
	want := []string{"execute:a", "execute:b", "execute:c", "rollback:b"}
	assertLog(t, log, want)
}

func TestSequenceRollbackAfterSuccessUnwindsEverything(t *testing.T) {
	var log []string
	seq, err := NewSequence(nil,
		&recordingUnit{name: "a", log: &log},
		&recordingUnit{name: "b", log: &log},
	)
	if err != nil {
		t.Fatalf("NewSequence: %v", err)
	}
	if err := seq.Execute(context.Background()); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if err := seq.Rollback(context.Background()); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	want := []string{"execute:a", "execute:b", "rollback:b", "rollback:a"}
	assertLog(t, log, want)

	// A second rollback finds nothing executed.
	log = log[:0]
	if err := seq.Rollback(context.Background()); err != nil {
		t.Fatalf("second Rollback: %v", err)
	}
	assertLog(t, log, nil)
}

func TestNewSequenceRejectsEmptyAndNilUnits(t *testing.T) {
	if _, err := NewSequence(nil); err == nil {
		t.Fatal("expected error for empty sequence")
	}
	var log []string
	if _, err := NewSequence(nil, &recordingUnit{name: "a", log: &log}, nil); err == nil {
		t.Fatal("expected error for nil unit")
	}
}

func assertLog(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("log = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("log[%d] = %q, want %q (full log %v)", i, got[i], want[i], got)
		}
	}
}
