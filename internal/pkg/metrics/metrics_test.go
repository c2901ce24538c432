package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSetState(t *testing.T) {
	all := []string{"idle", "fetching", "published"}

	SetState("fetching", all)
	SetState("published", all)

	for state, want := range map[string]float64{"idle": 0, "fetching": 0, "published": 1} {
		if got := testutil.ToFloat64(PollerState.WithLabelValues(state)); got != want {
			t.Errorf("poller_state{state=%q} = %v, want %v", state, got, want)
		}
	}
}

func TestRegistryGathers(t *testing.T) {
	PollCyclesTotal.WithLabelValues("success").Inc()

	if n, err := testutil.GatherAndCount(Registry, "zeeho_widget_poll_cycles_total"); err != nil || n == 0 {
		t.Fatalf("GatherAndCount() = %d, %v", n, err)
	}
}
