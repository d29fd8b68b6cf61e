package node

// Compare orders two fixed-width keys lexicographically, matching the
// byte order keys are stored in.
func Compare(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// BinarySearch looks for key among the first count entries, comparing
// with cmp(i). It returns m >= 0 when entries[m] == key, and the bit
// complement ^m of the first index whose key is greater than key when
// no exact match exists. cmp(i) must return the same sign convention as
// Compare (negative if entries[i] < key, zero if equal, positive if
// greater) and must be monotonic over [0, count).
func BinarySearch(count int, cmp func(i int) int) int {
	l, r := 0, count
	for l < r {
		mid := l + (r-l)/2
		c := cmp(mid)
		switch {
		case c == 0:
			return mid
		case c < 0:
			l = mid + 1
		default:
			r = mid
		}
	}
	return ^l
}

// LowerBound returns the first index i in [0, count) with cmp(i) >= 0,
// or count if no such index exists. Shares BinarySearch's midpoint rule
// so duplicate-key ties break consistently across both primitives.
func LowerBound(count int, cmp func(i int) int) int {
	l, r := 0, count
	for l < r {
		mid := l + (r-l)/2
		if cmp(mid) < 0 {
			l = mid + 1
		} else {
			r = mid
		}
	}
	return l
}

// UpperBound returns the first index i in [0, count) with cmp(i) > 0,
// or count if no such index exists.
func UpperBound(count int, cmp func(i int) int) int {
	l, r := 0, count
	for l < r {
		mid := l + (r-l)/2
		if cmp(mid) <= 0 {
			l = mid + 1
		} else {
			r = mid
		}
	}
	return l
}

// EntryCompare builds a cmp closure over n's entries for the primitives
// above, comparing entries[i].Key against key.
func EntryCompare(n *Node, key []byte) func(i int) int {
	return func(i int) int {
		return Compare(n.Entries[i].Key, key)
	}
}
