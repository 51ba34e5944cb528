package model

import (
	"math/rand"
	"testing"
)

func TestAggregateStatus(t *testing.T) {
	tests := []struct {
		name     string
		children []RunStatus
		want     RunStatus
	}{
		{name: "empty is passed", children: nil, want: StatusPassed},
		{name: "all passed", children: []RunStatus{StatusPassed, StatusPassed}, want: StatusPassed},
		{name: "failed beats passed", children: []RunStatus{StatusPassed, StatusFailed}, want: StatusFailed},
		{name: "timeout beats failed", children: []RunStatus{StatusFailed, StatusTimeout}, want: StatusTimeout},
		{name: "error beats timeout", children: []RunStatus{StatusTimeout, StatusError, StatusPassed}, want: StatusError},
		{name: "aborted beats everything", children: []RunStatus{StatusError, StatusAborted, StatusTimeout}, want: StatusAborted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AggregateStatus(tt.children); got != tt.want {
				t.Errorf("AggregateStatus(%v) = %s, want %s", tt.children, got, tt.want)
			}
		})
	}
}

func TestAggregateStatusOrderInvariant(t *testing.T) {
	children := []RunStatus{StatusPassed, StatusFailed, StatusTimeout, StatusError, StatusPassed}
	want := AggregateStatus(children)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := append([]RunStatus(nil), children...)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})
		if got := AggregateStatus(shuffled); got != want {
			t.Fatalf("aggregation changed under reordering: %s vs %s", got, want)
		}
	}
}

func TestUnknownStatusRanksHighest(t *testing.T) {
	if got := AggregateStatus([]RunStatus{StatusAborted, RunStatus("Corrupt")}); got != RunStatus("Corrupt") {
		t.Errorf("unknown status should win aggregation, got %s", got)
	}
}
