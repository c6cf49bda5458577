package reconcile

import "sort"

// LIS returns the indices of a longest strictly increasing subsequence of
// seq, in ascending order. Negative entries mark positions with no old index
// and are never part of the result.
//
// It runs in O(n log n): tails[k] is the index of the smallest value ending
// an increasing run of length k+1, found by binary search.
func LIS(seq []int) []int {
	tails := make([]int, 0, len(seq))
	prev := make([]int, len(seq))

	for i, v := range seq {
		if v < 0 {
			continue
		}
		k := sort.Search(len(tails), func(m int) bool {
			return seq[tails[m]] >= v
		})
		if k > 0 {
			prev[i] = tails[k-1]
		} else {
			prev[i] = -1
		}
		if k == len(tails) {
			tails = append(tails, i)
		} else {
			tails[k] = i
		}
	}

	out := make([]int, len(tails))
	if len(tails) == 0 {
		return out
	}
	for j, at := len(tails)-1, tails[len(tails)-1]; j >= 0; j-- {
		out[j] = at
		at = prev[at]
	}
	return out
}
