// Package primecache holds the small primes used as trial divisors. The
// cache is bounded by a ceiling: primes above it are counted but never
// stored, since they are too large to divide anything the search will
// reach for a long time.
package primecache

import (
	"math"
	"slices"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// DefaultCeiling is the default largest prime that is stored.
const DefaultCeiling = 2_000_000

// SeedMax is the largest seed prime. Every prime up to it is always stored.
const SeedMax = 47

// SeedPrimes are the primes every cache starts with.
var SeedPrimes = []uint64{2, 3, 5, 7, 11, 13, 17, 19, 23, 29, 31, 37, 41, 43, 47}

// Reader is the read-only view handed to code outside the coordinator.
type Reader interface {
	PrimesUpTo(max uint64) []uint64
	Count() uint64
	Largest() uint64
	Len() int
	Ceiling() uint64
}

type Cache struct {
	sync.RWMutex
	primes  []uint64
	ceiling uint64

	count   uint64
	largest uint64
}

func New(ceiling uint64) *Cache {
	if ceiling == 0 {
		ceiling = DefaultCeiling
	}
	c := &Cache{ceiling: ceiling}
	c.reset()
	return c
}

func (c *Cache) reset() {
	c.primes = slices.Clone(SeedPrimes)
	c.count = 0
	c.largest = 0
}

// Reset restores the seed primes and forgets all discoveries.
func (c *Cache) Reset() {
	c.Lock()
	defer c.Unlock()
	c.reset()
	log.Debug().Msg("prime-cache-reset")
}

// PrimesUpTo returns a copy of every stored prime <= max, in ascending order.
func (c *Cache) PrimesUpTo(max uint64) []uint64 {
	c.RLock()
	defer c.RUnlock()
	idx := sort.Search(len(c.primes), func(i int) bool {
		return c.primes[i] > max
	})
	return slices.Clone(c.primes[:idx])
}

// AddPrimes records a batch of discovered primes. Count and Largest take
// the whole batch into account; only primes at or below the ceiling are
// stored. Batches may arrive out of order, so anything that doesn't extend
// the stored tail is merged in.
func (c *Cache) AddPrimes(newPrimes []uint64) {
	if len(newPrimes) == 0 {
		return
	}
	c.Lock()
	defer c.Unlock()

	c.count += uint64(len(newPrimes))
	c.largest = max(c.largest, slices.Max(newPrimes))

	storable := lo.Filter(newPrimes, func(p uint64, _ int) bool {
		return p <= c.ceiling
	})
	if len(storable) == 0 {
		return
	}
	if !slices.IsSorted(storable) {
		slices.Sort(storable)
	}
	storable = slices.Compact(storable)

	if storable[0] > c.primes[len(c.primes)-1] {
		c.primes = append(c.primes, storable...)
		return
	}
	c.primes = merge(c.primes, storable)
	log.Debug().Int("added", len(storable)).Int("stored", len(c.primes)).Msg("prime-cache-merge")
}

// merge combines two ascending, duplicate-free slices.
func merge(a, b []uint64) []uint64 {
	out := make([]uint64, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			out = append(out, a[i])
			i++
		case a[i] > b[j]:
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}

// Count is the number of primes ever passed to AddPrimes, stored or not.
func (c *Cache) Count() uint64 {
	c.RLock()
	defer c.RUnlock()
	return c.count
}

// Largest is the largest prime ever passed to AddPrimes.
func (c *Cache) Largest() uint64 {
	c.RLock()
	defer c.RUnlock()
	return c.largest
}

// Len is the number of stored primes, seeds included.
func (c *Cache) Len() int {
	c.RLock()
	defer c.RUnlock()
	return len(c.primes)
}

func (c *Cache) Ceiling() uint64 {
	return c.ceiling
}

// EstimatedBytes is an upper bound on the memory needed to store every
// prime up to ceiling, using the Rosser-Schoenfeld bound on pi(x).
func EstimatedBytes(ceiling uint64) uint64 {
	if ceiling < 17 {
		return uint64(len(SeedPrimes)) * 8
	}
	x := float64(ceiling)
	pi := 1.25506 * x / math.Log(x)
	return uint64(math.Ceil(pi)) * 8
}
