package money

import (
	"fmt"
	"math/big"
	"sort"
)

// Weight is one named bucket in a proportional allocation.
type Weight struct {
	Key    string
	Weight int64
}

// AllocateByWeight splits total across the given buckets in proportion to
// their weights using the largest-remainder method, so that the returned
// values always sum to total exactly. Ties on the fractional remainder break
// by lexicographic key order, making the result a pure function of its
// inputs. A zero weight yields a zero allocation but the key still appears
// in the result. Negative totals are allocated on the magnitude and the
// results re-negated.
func AllocateByWeight(total Cents, weights []Weight) (map[string]Cents, error) {
	if len(weights) == 0 {
		return nil, fmt.Errorf("allocate: no weights given")
	}

	var sum int64
	seen := make(map[string]bool, len(weights))
	for _, w := range weights {
		if w.Weight < 0 {
			return nil, fmt.Errorf("allocate: negative weight %d for key %q", w.Weight, w.Key)
		}
		if seen[w.Key] {
			return nil, fmt.Errorf("allocate: duplicate key %q", w.Key)
		}
		seen[w.Key] = true
		sum += w.Weight
	}
	if sum == 0 {
		return nil, fmt.Errorf("allocate: total weight is zero")
	}

	out := make(map[string]Cents, len(weights))
	if total == 0 {
		for _, w := range weights {
			out[w.Key] = 0
		}
		return out, nil
	}

	neg := total < 0
	mag := int64(total)
	if neg {
		mag = -mag
	}

	type share struct {
		key  string
		rem  int64 // fractional remainder numerator, denominator sum
	}

	// mag*weight can overflow int64, so the product runs through big.Int.
	// Quotient and remainder both fit: the quotient is at most mag and the
	// remainder is less than sum.
	magBig := big.NewInt(mag)
	sumBig := big.NewInt(sum)

	var distributed int64
	shares := make([]share, 0, len(weights))
	for _, w := range weights {
		prod := new(big.Int).Mul(magBig, big.NewInt(w.Weight))
		quo, rem := new(big.Int).QuoRem(prod, sumBig, new(big.Int))
		base := quo.Int64()
		out[w.Key] = Cents(base)
		distributed += base
		shares = append(shares, share{key: w.Key, rem: rem.Int64()})
	}

	sort.Slice(shares, func(i, j int) bool {
		if shares[i].rem != shares[j].rem {
			return shares[i].rem > shares[j].rem
		}
		return shares[i].key < shares[j].key
	})

	for i := int64(0); i < mag-distributed; i++ {
		out[shares[i].key]++
	}

	if neg {
		for k := range out {
			out[k] = -out[k]
		}
	}

	// The postcondition is structural; a violation here is a bug.
	var check Cents
	for _, v := range out {
		check += v
	}
	if check != total {
		return nil, fmt.Errorf("allocate: distributed %d does not sum to total %d", check, total)
	}

	return out, nil
}
