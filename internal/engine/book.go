package engine

import (
	"math"

	"github.com/google/btree"

	"github.com/openwager/wagerbook/internal/domain"
)

// LiquidityKey identifies a price level on one outcome.
type LiquidityKey struct {
	Outcome int
	Price   domain.Price
}

// LiquidityEntry is an aggregated amount of unmatched stake resting at one
// (outcome, price) on one side of the book. Entries with a non-empty
// Sources list are cross-matched liquidity derived from levels on other
// outcomes; they are recomputed, never adjusted in place.
type LiquidityEntry struct {
	Outcome int
	Price   domain.Price
	Stake   int64
	Sources []LiquidityKey
}

// sourcesOrd gives sourced entries a stable sort position after the direct
// entry at the same (outcome, price). Direct entries always order first.
func sourcesOrd(sources []LiquidityKey) int {
	ord := 0
	for _, s := range sources {
		ord += s.Outcome + 1
	}
	return ord
}

// compareSources orders source lists lexicographically for a deterministic
// tiebreak between derived entries with equal sourcesOrd.
func compareSources(a, b []LiquidityKey) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i].Outcome != b[i].Outcome {
			return a[i].Outcome - b[i].Outcome
		}
		if a[i].Price != b[i].Price {
			return int(a[i].Price - b[i].Price)
		}
	}
	return len(a) - len(b)
}

// forLess orders the for side: outcome ascending, price ascending (best
// price for an incoming against order first), direct before derived.
func forLess(a, b LiquidityEntry) bool {
	if a.Outcome != b.Outcome {
		return a.Outcome < b.Outcome
	}
	if a.Price != b.Price {
		return a.Price < b.Price
	}
	if oa, ob := sourcesOrd(a.Sources), sourcesOrd(b.Sources); oa != ob {
		return oa < ob
	}
	return compareSources(a.Sources, b.Sources) < 0
}

// againstLess orders the against side: outcome ascending, price descending
// (best price for an incoming for order first), direct before derived.
func againstLess(a, b LiquidityEntry) bool {
	if a.Outcome != b.Outcome {
		return a.Outcome < b.Outcome
	}
	if a.Price != b.Price {
		return a.Price > b.Price
	}
	if oa, ob := sourcesOrd(a.Sources), sourcesOrd(b.Sources); oa != ob {
		return oa < ob
	}
	return compareSources(a.Sources, b.Sources) < 0
}

// crossRegistration remembers a derived entry so it can be recomputed when
// any of its source levels change.
type crossRegistration struct {
	side    domain.Side // side the derived entry rests on
	key     LiquidityKey
	sources []LiquidityKey
}

// LiquidityBook holds all resting unmatched stake for one market, one
// btree per side, plus the registry of derived cross-matched entries.
// Callers serialize access through the owning market engine.
type LiquidityBook struct {
	forSide     *btree.BTreeG[LiquidityEntry]
	againstSide *btree.BTreeG[LiquidityEntry]
	cross       []crossRegistration
}

// NewLiquidityBook creates an empty book.
func NewLiquidityBook() *LiquidityBook {
	const degree = 32
	return &LiquidityBook{
		forSide:     btree.NewG[LiquidityEntry](degree, forLess),
		againstSide: btree.NewG[LiquidityEntry](degree, againstLess),
	}
}

func (b *LiquidityBook) tree(side domain.Side) *btree.BTreeG[LiquidityEntry] {
	if side == domain.SideFor {
		return b.forSide
	}
	return b.againstSide
}

// Get returns the direct (sourceless) entry at (outcome, price), if any.
func (b *LiquidityBook) Get(side domain.Side, outcome int, price domain.Price) (LiquidityEntry, bool) {
	return b.tree(side).Get(LiquidityEntry{Outcome: outcome, Price: price})
}

func (b *LiquidityBook) getWithSources(side domain.Side, key LiquidityKey, sources []LiquidityKey) (LiquidityEntry, bool) {
	return b.tree(side).Get(LiquidityEntry{Outcome: key.Outcome, Price: key.Price, Sources: sources})
}

// Add inserts direct liquidity, aggregating with any existing direct entry
// at the same (outcome, price). Stake must be positive.
func (b *LiquidityBook) Add(side domain.Side, outcome int, price domain.Price, stake int64) {
	tree := b.tree(side)
	probe := LiquidityEntry{Outcome: outcome, Price: price}
	if existing, ok := tree.Get(probe); ok {
		existing.Stake += stake
		tree.ReplaceOrInsert(existing)
	} else {
		probe.Stake = stake
		tree.ReplaceOrInsert(probe)
	}
	b.recomputeDependents(side, LiquidityKey{Outcome: outcome, Price: price})
}

// Remove takes stake away from the entry at (outcome, price, sources),
// deleting it when it reaches zero. Removing more than is present, or from
// a missing entry, fails with ErrInsufficientLiquidity.
func (b *LiquidityBook) Remove(side domain.Side, outcome int, price domain.Price, sources []LiquidityKey, stake int64) error {
	tree := b.tree(side)
	probe := LiquidityEntry{Outcome: outcome, Price: price, Sources: sources}
	existing, ok := tree.Get(probe)
	if !ok || existing.Stake < stake {
		return domain.ErrInsufficientLiquidity
	}
	existing.Stake -= stake
	if existing.Stake == 0 {
		tree.Delete(existing)
	} else {
		tree.ReplaceOrInsert(existing)
	}
	b.recomputeDependents(side, LiquidityKey{Outcome: outcome, Price: price})
	return nil
}

// set writes an absolute stake for a derived entry, inserting, replacing,
// or deleting as needed. Zero-stake entries leave the tree but stay
// registered so a later source change can revive them.
func (b *LiquidityBook) set(side domain.Side, key LiquidityKey, sources []LiquidityKey, stake int64) {
	tree := b.tree(side)
	probe := LiquidityEntry{Outcome: key.Outcome, Price: key.Price, Sources: sources}
	if stake == 0 {
		tree.Delete(probe)
		return
	}
	probe.Stake = stake
	tree.ReplaceOrInsert(probe)
}

// UpdateCrossLiquidity derives liquidity for one outcome from the given
// source levels on the other outcomes and registers it for recomputation.
// sourceSide is the side the source levels rest on; the derived entry
// rests on the opposite side of the target outcome. The target price must
// equal the arbitrage-consistent cross price of the sources.
func (b *LiquidityBook) UpdateCrossLiquidity(outcomeCount int, sourceSide domain.Side, sources []LiquidityKey, target LiquidityKey) error {
	prices := make([]domain.Price, len(sources))
	for i, s := range sources {
		prices[i] = s.Price
	}
	crossPrice, err := CrossPrice(outcomeCount, prices)
	if err != nil {
		return err
	}
	if crossPrice != target.Price {
		return domain.ErrNoViableCrossLiquidity
	}

	derivedSide := domain.SideAgainst
	if sourceSide == domain.SideAgainst {
		derivedSide = domain.SideFor
	}

	// Register once; repeated updates for the same target recompute.
	registered := false
	for _, reg := range b.cross {
		if reg.side == derivedSide && reg.key == target && compareSources(reg.sources, sources) == 0 {
			registered = true
			break
		}
	}
	if !registered {
		cp := make([]LiquidityKey, len(sources))
		copy(cp, sources)
		b.cross = append(b.cross, crossRegistration{side: derivedSide, key: target, sources: cp})
	}

	b.recompute(derivedSide, target, sources)
	return nil
}

// recompute sets a derived entry to the minimum deliverable stake across
// its sources, scaled by the price ratio of each source to the target.
func (b *LiquidityBook) recompute(derivedSide domain.Side, target LiquidityKey, sources []LiquidityKey) {
	sourceSide := domain.SideFor
	if derivedSide == domain.SideFor {
		sourceSide = domain.SideAgainst
	}

	stake := int64(math.MaxInt64)
	for _, src := range sources {
		var available int64
		if entry, ok := b.Get(sourceSide, src.Outcome, src.Price); ok {
			available = entry.Stake
		}
		s := domain.StakeCross(available, src.Price, target.Price)
		if s < stake {
			stake = s
		}
	}
	b.set(derivedSide, target, sources, stake)
}

// recomputeDependents refreshes every derived entry that lists the changed
// level among its sources.
func (b *LiquidityBook) recomputeDependents(changedSide domain.Side, changed LiquidityKey) {
	for _, reg := range b.cross {
		sourceSide := domain.SideFor
		if reg.side == domain.SideFor {
			sourceSide = domain.SideAgainst
		}
		if sourceSide != changedSide {
			continue
		}
		for _, src := range reg.sources {
			if src == changed {
				b.recompute(reg.side, reg.key, reg.sources)
				break
			}
		}
	}
}

// EntriesFor iterates the entries of one outcome on one side, best price
// first, stopping when fn returns false.
func (b *LiquidityBook) EntriesFor(side domain.Side, outcome int, fn func(LiquidityEntry) bool) {
	pivot := LiquidityEntry{Outcome: outcome}
	if side == domain.SideAgainst {
		pivot.Price = domain.Price(math.MaxInt64)
	}
	b.tree(side).AscendGreaterOrEqual(pivot, func(e LiquidityEntry) bool {
		if e.Outcome != outcome {
			return false
		}
		return fn(e)
	})
}

// Snapshot returns all entries of both sides in book order.
func (b *LiquidityBook) Snapshot() (forSide, againstSide []LiquidityEntry) {
	b.forSide.Ascend(func(e LiquidityEntry) bool {
		forSide = append(forSide, e)
		return true
	})
	b.againstSide.Ascend(func(e LiquidityEntry) bool {
		againstSide = append(againstSide, e)
		return true
	})
	return forSide, againstSide
}

// DirectStakeTotal sums the stake of all direct entries on one side.
// Derived entries are excluded: their stake is a view over the sources.
func (b *LiquidityBook) DirectStakeTotal(side domain.Side) int64 {
	var total int64
	b.tree(side).Ascend(func(e LiquidityEntry) bool {
		if len(e.Sources) == 0 {
			total += e.Stake
		}
		return true
	})
	return total
}
