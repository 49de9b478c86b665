package recovery_test

import (
	"errors"
	"sync"
	"testing"

	"reflow/recovery"
)

func TestStrictStrategy(t *testing.T) {
	s := recovery.NewStrictStrategy()
	got := s.OnError(errors.New("boom"), recovery.Location{Page: 1, Component: "extract"})
	if got != recovery.ActionFail {
		t.Errorf("action = %v, want ActionFail", got)
	}
}

func TestLenientStrategy(t *testing.T) {
	s := recovery.NewLenientStrategy()

	if got := s.OnError(errors.New("boom"), recovery.Location{Page: 3, Component: "extract"}); got != recovery.ActionSkip {
		t.Errorf("action = %v, want ActionSkip", got)
	}
	errs := s.Errors()
	if len(errs) != 1 {
		t.Fatalf("error count = %d, want 1", len(errs))
	}
	if want := "[extract] page 3: boom"; errs[0].Error() != want {
		t.Errorf("error = %q, want %q", errs[0], want)
	}
}

func TestLenientStrategyConcurrent(t *testing.T) {
	s := recovery.NewLenientStrategy()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(page int) {
			defer wg.Done()
			s.OnError(errors.New("x"), recovery.Location{Page: page, Component: "extract"})
		}(i)
	}
	wg.Wait()
	if got := len(s.Errors()); got != 20 {
		t.Errorf("error count = %d, want 20", got)
	}
}
