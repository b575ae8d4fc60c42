package history

import (
	"errors"
	"testing"
)

func TestEventOK(t *testing.T) {
	if !(Event{Type: EventInstall}).OK() {
		t.Fatal("event without error should be ok")
	}
	e := Event{Type: EventStartup, Error: errors.New("boom").Error()}
	if e.OK() {
		t.Fatal("event with error should not be ok")
	}
}

func TestFilterEffectiveLimit(t *testing.T) {
	cases := []struct {
		in   int
		want int
	}{
		{0, DefaultLimit},
		{-3, DefaultLimit},
		{5, 5},
	}
	for _, c := range cases {
		if got := (Filter{Limit: c.in}).EffectiveLimit(); got != c.want {
			t.Fatalf("limit %d: got %d want %d", c.in, got, c.want)
		}
	}
}
