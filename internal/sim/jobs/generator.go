package jobs

import (
	"math/rand"

	"cityhaul.ai/internal/sim/items"
)

// GeneratorConfig bounds the system-posted jobs a simulation creates.
type GeneratorConfig struct {
	// Probability of posting a new job on any given step, in [0,1].
	Rate float64
	// Reward per required item unit, drawn from [RewardMin, RewardMax].
	RewardMin int
	RewardMax int
	// Delivery window length in steps, drawn from [WindowMin, WindowMax].
	WindowMin int
	WindowMax int
	// Number of distinct item types per job, drawn from [TypesMin, TypesMax].
	TypesMin int
	TypesMax int
	// Amount per item type, drawn from [AmountMin, AmountMax].
	AmountMin int
	AmountMax int
}

// Generator posts system jobs on a tuning-driven cadence. The RNG is injected
// so matches replay deterministically from a seed.
type Generator struct {
	cfg      GeneratorConfig
	itemPool []string
	storages []DeliveredSink
	rng      *rand.Rand
}

func NewGenerator(cfg GeneratorConfig, itemPool []string, storages []DeliveredSink, rng *rand.Rand) *Generator {
	return &Generator{cfg: cfg, itemPool: itemPool, storages: storages, rng: rng}
}

// Step possibly creates one new FUTURE job for the given step and registers
// it. Returns the job, or nil when nothing was posted.
func (g *Generator) Step(step int, reg *Registry) *Job {
	if len(g.itemPool) == 0 || len(g.storages) == 0 {
		return nil
	}
	if g.rng.Float64() >= g.cfg.Rate {
		return nil
	}

	required := items.NewBox()
	units := 0
	types := g.between(g.cfg.TypesMin, g.cfg.TypesMax)
	for i := 0; i < types; i++ {
		item := g.itemPool[g.rng.Intn(len(g.itemPool))]
		n := g.between(g.cfg.AmountMin, g.cfg.AmountMax)
		required.Store(item, n)
		units += n
	}
	if required.IsEmpty() {
		return nil
	}

	storage := g.storages[g.rng.Intn(len(g.storages))]
	reward := units * g.between(g.cfg.RewardMin, g.cfg.RewardMax)
	begin := step + 1
	end := begin + g.between(g.cfg.WindowMin, g.cfg.WindowMax)

	j := New(reward, storage, begin, end, required, PosterSystem)
	reg.Add(j)
	return j
}

func (g *Generator) between(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + g.rng.Intn(hi-lo+1)
}
