package jobs

import (
	"math/rand"
	"testing"
)

func TestRegistryNamesScopedPerInstance(t *testing.T) {
	st := newTestStorage("storage1")
	r1 := NewRegistry()
	r2 := NewRegistry()

	a := r1.Add(New(10, st, 0, 10, box("A", 1), PosterSystem))
	b := r1.Add(New(10, st, 0, 10, box("A", 1), PosterSystem))
	c := r2.Add(New(10, st, 0, 10, box("A", 1), PosterSystem))

	if a != "job0" || b != "job1" {
		t.Fatalf("r1 names = %s, %s", a, b)
	}
	if c != "job0" {
		t.Fatalf("r2 must have its own counter, got %s", c)
	}
	if r1.Lookup("job1") == nil {
		t.Fatalf("lookup miss for job1")
	}
	if r1.Lookup("job9") != nil {
		t.Fatalf("lookup of unknown job must be nil")
	}
}

func TestRegistryActivatesAndTerminatesByStep(t *testing.T) {
	st := newTestStorage("storage1")
	r := NewRegistry()
	early := New(10, st, 5, 20, box("A", 1), PosterSystem)
	late := New(10, st, 30, 60, box("A", 1), PosterSystem)
	r.Add(early)
	r.Add(late)

	r.OnStepStart(4)
	if early.Status() != StatusFuture || late.Status() != StatusFuture {
		t.Fatalf("nothing should activate before beginStep")
	}

	r.OnStepStart(5)
	if early.Status() != StatusActive {
		t.Fatalf("early = %s, want ACTIVE", early.Status())
	}
	if late.Status() != StatusFuture {
		t.Fatalf("late = %s, want FUTURE", late.Status())
	}

	early.Deliver("A", 1, "X")
	r.OnStepStart(21)
	if early.Status() != StatusEnded {
		t.Fatalf("early = %s, want ENDED after window", early.Status())
	}
	if st.credit("X", "A") != 1 {
		t.Fatalf("partial not returned on termination")
	}
	if late.Status() != StatusActive {
		t.Fatalf("late = %s, want ACTIVE at step 21", late.Status())
	}
}

func TestRegistryTickIdempotent(t *testing.T) {
	st := newTestStorage("storage1")
	r := NewRegistry()
	j := New(10, st, 5, 10, box("A", 2), PosterSystem)
	r.Add(j)

	r.OnStepStart(6)
	r.OnStepStart(6)
	r.OnStepStart(5) // clock replays out of order
	if j.Status() != StatusActive {
		t.Fatalf("status = %s, want ACTIVE", j.Status())
	}

	j.Deliver("A", 1, "Y")
	r.OnStepStart(11)
	r.OnStepStart(11)
	if j.Status() != StatusEnded {
		t.Fatalf("status = %s, want ENDED", j.Status())
	}
	if st.credit("Y", "A") != 1 {
		t.Fatalf("partial must be returned exactly once, got %d", st.credit("Y", "A"))
	}
}

func TestRegistryCompletedJobNotTerminated(t *testing.T) {
	st := newTestStorage("storage1")
	r := NewRegistry()
	j := New(10, st, 0, 10, box("A", 1), PosterSystem)
	r.Add(j)
	r.OnStepStart(0)
	j.Deliver("A", 1, "X")
	if !j.CheckCompletion("X") {
		t.Fatalf("complete")
	}
	r.OnStepStart(11)
	if j.Status() != StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", j.Status())
	}
}

func TestGeneratorDeterministicFromSeed(t *testing.T) {
	st := newTestStorage("storage1")
	cfg := GeneratorConfig{
		Rate:      1.0,
		RewardMin: 5, RewardMax: 10,
		WindowMin: 50, WindowMax: 100,
		TypesMin: 1, TypesMax: 3,
		AmountMin: 1, AmountMax: 4,
	}
	pool := []string{"A", "B", "C", "D"}

	run := func(seed int64) []Data {
		reg := NewRegistry()
		g := NewGenerator(cfg, pool, []DeliveredSink{st}, rand.New(rand.NewSource(seed)))
		var out []Data
		for step := 0; step < 20; step++ {
			if j := g.Step(step, reg); j != nil {
				out = append(out, j.Data(false, true))
			}
		}
		return out
	}

	a := run(7)
	b := run(7)
	if len(a) == 0 {
		t.Fatalf("rate 1.0 must generate jobs")
	}
	if len(a) != len(b) {
		t.Fatalf("runs differ: %d vs %d jobs", len(a), len(b))
	}
	for i := range a {
		if a[i].Name != b[i].Name || a[i].Reward != b[i].Reward || a[i].EndStep != b[i].EndStep {
			t.Fatalf("job %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
	for _, d := range a {
		if d.Poster != PosterSystem {
			t.Fatalf("generator jobs must be system-posted, got %q", d.Poster)
		}
		if d.BeginStep > d.EndStep {
			t.Fatalf("window inverted: %+v", d)
		}
	}
}
