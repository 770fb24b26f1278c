package internaldefs

import (
	"strings"
	"testing"

	"github.com/MrEthical07/credkit"
)

func TestCounterDefsUniqueAndComplete(t *testing.T) {
	seenID := map[credkit.MetricID]bool{}
	seenName := map[string]bool{}
	for _, def := range CounterDefs {
		if seenID[def.ID] || seenName[def.Name] {
			t.Fatalf("duplicate counter definition %s", def.Name)
		}
		seenID[def.ID] = true
		seenName[def.Name] = true
		if !strings.HasPrefix(def.Name, "credkit_") || !strings.HasSuffix(def.Name, "_total") {
			t.Fatalf("counter %q does not follow naming", def.Name)
		}
	}

	snap := credkit.NewMetrics(credkit.MetricsConfig{Enabled: true}).Snapshot()
	for id := range snap.Counters {
		if !seenID[id] {
			t.Fatalf("metric id %d has no exporter definition", id)
		}
	}
}

func TestCumulativeBuckets(t *testing.T) {
	got := CumulativeBuckets(NormalizeBuckets([]uint64{1, 2, 3}))
	want := [8]uint64{1, 3, 6, 6, 6, 6, 6, 6}
	if got != want {
		t.Fatalf("got %v want %v", got, want)
	}
	if len(HistogramUpperBounds)+1 != len(HistogramBoundSuffix) {
		t.Fatal("bounds and suffixes disagree")
	}
}
