package shuttle

import (
	"testing"
)

func TestCounter(t *testing.T) {
	counter := NewCounter()
	if c := counter.Read(); c != 0 {
		t.Fatalf("counter should be 0, but was %d", c)
	}
	counter.Add(1)
	if c := counter.Read(); c != 1 {
		t.Fatalf("counter should be 1, but was %d", c)
	}
	counter.Add(2)
	c, since := counter.ReadAndReset()
	if c != 3 {
		t.Fatalf("counter should have been 3, but was %d", c)
	}
	if since.IsZero() {
		t.Fatal("expected the time of the previous reset")
	}
	if c := counter.Read(); c != 0 {
		t.Fatalf("counter should be have been 0 after read/reset, but was %d", c)
	}
	counter.Add(4)
	if c := counter.AllTime(); c != 7 {
		t.Fatalf("all time count should be 7, but was %d", c)
	}
}
