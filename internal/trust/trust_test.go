package trust

import (
	"math"
	"testing"

	"go.uber.org/zap"
)

func TestPriorReliability(t *testing.T) {
	bk := NewBook(zap.NewNop())

	if got, want := bk.Reliability("fresh"), 0.7; math.Abs(got-want) > 1e-12 {
		t.Errorf("prior reliability = %v, want %v", got, want)
	}
	if got, want := bk.Logit("fresh"), math.Log(0.7/0.3); math.Abs(got-want) > 1e-12 {
		t.Errorf("prior logit = %v, want %v", got, want)
	}
}

func TestUpdateShiftsReliability(t *testing.T) {
	bk := NewBook(zap.NewNop())

	bk.Update("scout", true)
	if got, want := bk.Reliability("scout"), 8.0/11.0; math.Abs(got-want) > 1e-12 {
		t.Errorf("after one success = %v, want %v", got, want)
	}

	bk.Update("scout", false)
	bk.Update("scout", false)
	if got, want := bk.Reliability("scout"), 8.0/13.0; math.Abs(got-want) > 1e-12 {
		t.Errorf("after two failures = %v, want %v", got, want)
	}
}

func TestRepeatedFailuresDriveReliabilityDown(t *testing.T) {
	bk := NewBook(zap.NewNop())

	for i := 0; i < 50; i++ {
		bk.Update("liar", false)
	}

	r := bk.Reliability("liar")
	if r >= 0.2 {
		t.Errorf("reliability after 50 failures = %v, want < 0.2", r)
	}
	if bk.Logit("liar") >= 0 {
		t.Errorf("logit should be negative for an unreliable source, got %v", bk.Logit("liar"))
	}
}

func TestForgettingBoundsCounts(t *testing.T) {
	bk := NewBook(zap.NewNop())
	bk.Forgetting = 0.9

	for i := 0; i < 1000; i++ {
		bk.Update("chatty", true)
	}

	alpha, beta := bk.Counts("chatty")
	// Geometric series limit: sum of rho^k approaches 1/(1-rho) = 10.
	if alpha > 11 {
		t.Errorf("alpha should be bounded by the forgetting limit, got %v", alpha)
	}
	if beta > DefaultPriorBeta {
		t.Errorf("beta should only shrink under successes, got %v", beta)
	}

	// A forgetful book recovers: a burned source regains trust faster
	// than a pure-count book would.
	for i := 0; i < 60; i++ {
		bk.Update("chatty", false)
	}
	low := bk.Reliability("chatty")
	for i := 0; i < 60; i++ {
		bk.Update("chatty", true)
	}
	if got := bk.Reliability("chatty"); got <= low {
		t.Errorf("reliability should recover after renewed successes: low %v, now %v", low, got)
	}
}

func TestFloorPreventsFrozenPosterior(t *testing.T) {
	bk := NewBook(zap.NewNop())
	bk.Forgetting = 0.5

	for i := 0; i < 100; i++ {
		bk.Update("liar", false)
	}

	alpha, _ := bk.Counts("liar")
	if alpha < DefaultFloor {
		t.Errorf("alpha fell below the floor: %v", alpha)
	}
	if math.IsInf(bk.Logit("liar"), 0) {
		t.Error("logit must stay finite")
	}
}

func TestLogitClipping(t *testing.T) {
	if math.IsInf(Logit(0), 0) || math.IsInf(Logit(1), 0) {
		t.Fatal("logit must clip extreme reliabilities")
	}
	if got := Logit(0.5); math.Abs(got) > 1e-12 {
		t.Errorf("Logit(0.5) = %v, want 0", got)
	}
	if Logit(0.9) <= 0 || Logit(0.1) >= 0 {
		t.Error("logit sign should follow reliability above or below one half")
	}
}

func TestSourcesSorted(t *testing.T) {
	bk := NewBook(zap.NewNop())
	bk.Update("b", true)
	bk.Update("a", false)
	bk.Update("c", true)

	got := bk.Sources()
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("sources = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sources = %v, want %v", got, want)
		}
	}
}
