package accuracy

import "testing"

func TestNewStartsAtDefault(t *testing.T) {
	e := New()
	if v := e.Value(); v != Default {
		t.Fatalf("Value() = %d, want %d", v, Default)
	}
}

func TestObserveTightensMonotonically(t *testing.T) {
	e := New()

	e.Observe(1001) // odd -> tighten to 1
	if v := e.Value(); v != 1 {
		t.Fatalf("after odd mtime, Value() = %d, want 1", v)
	}

	// Once at 1ms, nothing can widen it back out.
	e.Observe(2000)
	if v := e.Value(); v != 1 {
		t.Fatalf("accuracy widened: Value() = %d, want 1", v)
	}
}

func TestObserveIgnoresZeroMtime(t *testing.T) {
	e := New()
	e.Observe(0)
	if v := e.Value(); v != Default {
		t.Fatalf("zero mtime changed accuracy: Value() = %d, want %d", v, Default)
	}
}

func TestObserveStepsThroughGranularities(t *testing.T) {
	e := New()

	e.Observe(2000) // divisible by 2000 -> no change
	if v := e.Value(); v != Default {
		t.Fatalf("Value() = %d, want %d", v, Default)
	}

	e.Observe(1000) // not divisible by 2000 -> tighten to 1000
	if v := e.Value(); v != 1000 {
		t.Fatalf("Value() = %d, want 1000", v)
	}

	e.Observe(100) // divisible by 20 but not by 200 -> tighten to 100
	if v := e.Value(); v != 100 {
		t.Fatalf("Value() = %d, want 100", v)
	}

	e.Observe(30) // not divisible by 20 -> tighten to 10
	if v := e.Value(); v != 10 {
		t.Fatalf("Value() = %d, want 10", v)
	}

	e.Observe(3) // odd -> tighten to 1
	if v := e.Value(); v != 1 {
		t.Fatalf("Value() = %d, want 1", v)
	}
}

func TestObserveConcurrentNeverWidens(t *testing.T) {
	e := New()
	done := make(chan struct{})
	for i := 0; i < 50; i++ {
		go func(n int) {
			e.Observe(int64(n))
			done <- struct{}{}
		}(i)
	}
	for i := 0; i < 50; i++ {
		<-done
	}
	if v := e.Value(); v < 1 || v > Default {
		t.Fatalf("Value() out of range: %d", v)
	}
}
