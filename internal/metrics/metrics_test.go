package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew_Registers(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.QueueDepth.Set(3)
	m.MatchesCreated.Inc()
	m.GamesFinished.WithLabelValues(OutcomeTie).Inc()
	m.Events.WithLabelValues("submitGuess").Add(2)

	if got := testutil.ToFloat64(m.QueueDepth); got != 3 {
		t.Errorf("queue depth = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.MatchesCreated); got != 1 {
		t.Errorf("matches created = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.GamesFinished.WithLabelValues(OutcomeTie)); got != 1 {
		t.Errorf("games finished{tie} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Events.WithLabelValues("submitGuess")); got != 2 {
		t.Errorf("events{submitGuess} = %v, want 2", got)
	}

	n, err := testutil.GatherAndCount(reg)
	if err != nil {
		t.Fatal(err)
	}
	if n == 0 {
		t.Error("no metrics gathered")
	}
}

func TestNew_DoubleRegisterPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	defer func() {
		if recover() == nil {
			t.Error("registering twice should panic")
		}
	}()
	New(reg)
}
