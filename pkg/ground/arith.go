package ground

import (
	"math/bits"

	"github.com/go-air/gini/logic"
	"github.com/go-air/gini/z"
)

// Term is one weighted literal of a linear objective.
type Term struct {
	Lit    z.Lit
	Weight int64
}

// weightedSum returns the binary representation, least significant bit
// first, of the sum of the weights of the true terms. Columns are compressed
// with full and half adders until each holds a single literal.
func weightedSum(c *logic.C, terms []Term) []z.Lit {
	var columns [][]z.Lit
	for _, term := range terms {
		if term.Weight <= 0 {
			continue
		}
		weight := uint64(term.Weight)
		for j := 0; weight != 0; j, weight = j+1, weight>>1 {
			if weight&1 == 0 {
				continue
			}
			for len(columns) <= j {
				columns = append(columns, nil)
			}
			columns[j] = append(columns[j], term.Lit)
		}
	}

	sum := make([]z.Lit, 0, len(columns)+1)
	for j := 0; j < len(columns); j++ {
		column := columns[j]
		for len(column) > 1 {
			var s, carry z.Lit
			if len(column) >= 3 {
				s, carry = fullAdder(c, column[0], column[1], column[2])
				column = append(column[3:], s)
			} else {
				s, carry = halfAdder(c, column[0], column[1])
				column = append(column[2:], s)
			}
			if j+1 == len(columns) {
				columns = append(columns, nil)
			}
			columns[j+1] = append(columns[j+1], carry)
		}
		if len(column) == 0 {
			sum = append(sum, c.F)
		} else {
			sum = append(sum, column[0])
		}
	}
	return sum
}

func fullAdder(c *logic.C, a, b, d z.Lit) (z.Lit, z.Lit) {
	ab := c.Xor(a, b)
	return c.Xor(ab, d), c.Or(c.And(a, b), c.And(d, ab))
}

func halfAdder(c *logic.C, a, b z.Lit) (z.Lit, z.Lit) {
	return c.Xor(a, b), c.And(a, b)
}

// atMost returns a literal true iff the number encoded by sum is <= k.
func atMost(c *logic.C, sum []z.Lit, k int64) z.Lit {
	if k < 0 {
		return c.F
	}
	if bits.Len64(uint64(k)) > len(sum) {
		return c.T
	}
	r := c.T
	for j, b := range sum {
		if (k>>j)&1 == 1 {
			r = c.Or(b.Not(), r)
		} else {
			r = c.And(b.Not(), r)
		}
	}
	return r
}

// less returns a literal true iff a < b, both little endian and of equal width.
func less(c *logic.C, a, b []z.Lit) z.Lit {
	r := c.F
	for j := range a {
		r = c.Or(c.And(a[j].Not(), b[j]), c.And(c.Xor(a[j], b[j]).Not(), r))
	}
	return r
}

// atMostOne forbids every pair for short lists and falls back to a sorting
// network beyond that.
func atMostOne(c *logic.C, ms []z.Lit) z.Lit {
	if len(ms) > pairwiseLimit {
		return c.CardSort(ms).Leq(1)
	}
	r := c.T
	for i := range ms {
		for j := i + 1; j < len(ms); j++ {
			r = c.And(r, c.And(ms[i], ms[j]).Not())
		}
	}
	return r
}

const pairwiseLimit = 8
