package env

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"go.uber.org/zap"

	"github.com/x0rium/robust-semantic-agent/internal/domain"
	"github.com/x0rium/robust-semantic-agent/internal/semantics"
)

func newEnv(seed uint64) *ForbiddenCircle {
	return NewForbiddenCircle(rand.New(rand.NewPCG(seed, seed+1)), zap.NewNop())
}

func TestResetSpawnsOnAnnulus(t *testing.T) {
	e := newEnv(1)

	for trial := 0; trial < 50; trial++ {
		obs := e.Reset()
		if len(obs) != 2 {
			t.Fatalf("observation dim = %d, want 2", len(obs))
		}
		r := math.Hypot(e.state[0], e.state[1])
		if r < 0.5-1e-12 || r > 1.0+1e-12 {
			t.Fatalf("spawn radius = %v, want within [0.5, 1]", r)
		}
		if e.InObstacle(e.state) {
			t.Fatal("spawned inside the obstacle")
		}
	}
}

func TestStepIntegratesAndClips(t *testing.T) {
	e := newEnv(2)
	e.Reset()
	e.state = []float64{0.5, 0.5}

	out, err := e.Step([]float64{1, -1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Oversized action clips per component to 0.15, dt scales by 0.1.
	if math.Abs(out.State[0]-0.515) > 1e-12 {
		t.Errorf("x = %v, want 0.515", out.State[0])
	}
	if math.Abs(out.State[1]-0.485) > 1e-12 {
		t.Errorf("y = %v, want 0.485", out.State[1])
	}
}

func TestStepRewardIsNegativeGoalDistance(t *testing.T) {
	e := newEnv(3)
	e.Reset()
	e.state = []float64{0.8, -0.2}

	out, err := e.Step([]float64{0, 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(out.Reward-(-1.0)) > 1e-12 {
		t.Errorf("reward = %v, want -1", out.Reward)
	}
	if out.Done || out.GoalReached || out.Violated {
		t.Errorf("mid-episode step should not terminate: %+v", out)
	}
}

func TestGoalTerminatesWithBonus(t *testing.T) {
	e := newEnv(4)
	e.Reset()
	e.state = []float64{0.79, 0.8}

	out, err := e.Step([]float64{0.1, 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Done || !out.GoalReached {
		t.Fatalf("expected goal termination, got %+v", out)
	}
	if out.Reward < 9.9 {
		t.Errorf("reward = %v, want close to +10", out.Reward)
	}
}

func TestViolationPenalisesWithoutTerminating(t *testing.T) {
	e := newEnv(5)
	e.Reset()
	e.state = []float64{0.25, 0}

	out, err := e.Step([]float64{0, 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Violated {
		t.Fatal("state inside the obstacle must flag a violation")
	}
	if out.Done {
		t.Error("violations do not end the episode")
	}
	wantReward := -e.distToGoal(e.state) - ViolationPenalty
	if math.Abs(out.Reward-wantReward) > 1e-12 {
		t.Errorf("reward = %v, want %v", out.Reward, wantReward)
	}
}

func TestHorizonTerminates(t *testing.T) {
	e := newEnv(6)
	e.Reset()
	e.state = []float64{-0.9, -0.9}

	var done bool
	for i := 0; i < e.Horizon; i++ {
		out, err := e.Step([]float64{0, 0})
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		done = out.Done
		if done && i < e.Horizon-1 {
			t.Fatalf("terminated early at step %d: %+v", i, out)
		}
	}
	if !done {
		t.Error("episode must end at the horizon")
	}
}

func TestStepInputValidation(t *testing.T) {
	t.Run("before reset", func(t *testing.T) {
		e := newEnv(7)
		if _, err := e.Step([]float64{0, 0}); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
	t.Run("wrong dimension", func(t *testing.T) {
		e := newEnv(8)
		e.Reset()
		if _, err := e.Step([]float64{0}); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
	t.Run("non-finite", func(t *testing.T) {
		e := newEnv(9)
		e.Reset()
		if _, err := e.Step([]float64{math.NaN(), 0}); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestObserveNoiseScaling(t *testing.T) {
	e := newEnv(10)
	e.Reset()
	e.state = []float64{0.3, -0.4}

	exact := e.Observe(0)
	if exact[0] != 0.3 || exact[1] != -0.4 {
		t.Errorf("noiseless observation = %v, want the true state", exact)
	}

	noisy := e.Observe(0.1)
	if noisy[0] == 0.3 && noisy[1] == -0.4 {
		t.Error("noisy observation should differ from the true state")
	}
}

func TestGossipEmitsContradiction(t *testing.T) {
	e := newEnv(11)
	e.Reset()
	e.GossipProb = 1
	e.BeaconProb = 0

	out, err := e.Step([]float64{0, 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Claims) != 1 {
		t.Fatalf("claims = %d, want exactly the gossip claim", len(out.Claims))
	}

	c := out.Claims[0]
	if c.Status != semantics.Both || c.Source != "gossip" {
		t.Errorf("gossip claim = %+v, want contradictory status from gossip", c)
	}
	if !c.Region([]float64{0, 1}) || c.Region([]float64{0, -1}) {
		t.Error("gossip region must be the northern half-plane")
	}
}

func TestGossipDisabled(t *testing.T) {
	e := newEnv(12)
	e.Reset()
	e.GossipProb = 0
	e.BeaconProb = 0

	for i := 0; i < 20; i++ {
		out, err := e.Step([]float64{0, 0})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(out.Claims) != 0 {
			t.Fatalf("claims emitted with both sources disabled: %+v", out.Claims)
		}
		if out.Done {
			break
		}
	}
}

func TestBeaconScoresFollowTrueState(t *testing.T) {
	e := newEnv(13)
	e.Reset()
	e.GossipProb = 0
	e.BeaconProb = 1

	e.state = []float64{0.5, 0.5}
	out, err := e.Step([]float64{0, 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Claims) != 1 {
		t.Fatalf("claims = %d, want the beacon claim", len(out.Claims))
	}

	c := out.Claims[0]
	if !c.Scored || c.Source != "beacon" {
		t.Fatalf("beacon claim = %+v, want scored claim from beacon", c)
	}
	if c.Support <= c.Counter {
		t.Errorf("east of the meridian support %v should exceed counter %v", c.Support, c.Counter)
	}

	e.state = []float64{-0.5, 0.5}
	out, err = e.Step([]float64{0, 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c = out.Claims[0]
	if c.Counter <= c.Support {
		t.Errorf("west of the meridian counter %v should exceed support %v", c.Counter, c.Support)
	}
}

func TestBarrierIsMarginInflated(t *testing.T) {
	e := newEnv(14)
	b := e.Barrier()

	// Radius 0.3 plus margin 0.1: the boundary sits at 0.4.
	if got := b.Value([]float64{0.4, 0}); math.Abs(got) > 1e-12 {
		t.Errorf("barrier at inflated boundary = %v, want 0", got)
	}
	if b.Value([]float64{0.35, 0}) <= 0 {
		t.Error("inside the margin band should be positive (unsafe)")
	}
	if b.Value([]float64{0.5, 0}) >= 0 {
		t.Error("outside the inflated circle should be negative (safe)")
	}

	grad := b.Gradient([]float64{0.4, 0})
	if math.Abs(grad[0]-(-0.8)) > 1e-12 || math.Abs(grad[1]) > 1e-12 {
		t.Errorf("gradient = %v, want (-0.8, 0)", grad)
	}
}

func TestStepOutcomeCopiesState(t *testing.T) {
	e := newEnv(15)
	e.Reset()

	out, err := e.Step([]float64{0.1, 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out.State[0] = 99
	if e.state[0] == 99 {
		t.Error("mutating the outcome state must not touch the environment")
	}
}
