package bptreedb

import "github.com/oda/bptreedb/internal/node"

// comparePair orders (key, val) against the pair stored at entries[i],
// key first then value, matching the tree's pair ordering.
func comparePair(key []byte, val uint32, entryKey []byte, entryVal uint32) int {
	if c := node.Compare(key, entryKey); c != 0 {
		return c
	}
	switch {
	case val < entryVal:
		return -1
	case val > entryVal:
		return 1
	default:
		return 0
	}
}

// entryPairCmp builds a cmp closure comparing entries[i]'s pair against
// (key, val), in the sign convention node.BinarySearch/LowerBound expect:
// negative when entries[i] < (key,val).
func entryPairCmp(entries []node.Entry, key []byte, val uint32) func(i int) int {
	return func(i int) int {
		return comparePair(entries[i].Key, entries[i].Value, key, val)
	}
}
