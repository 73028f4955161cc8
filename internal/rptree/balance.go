package rptree

import "github.com/intellect4all/numstore/internal/page"

// leafDeficitFudge resolves how many bytes a leaf below half-full should
// try to borrow from a donor sibling: never more than the deficit itself,
// and never so much that the donor drops below half-full in turn
// (spec.md §4.5 "Delete/Take" rebalancing: "borrow the smaller of the
// deficit and what the donor can spare while staying half full").
func leafDeficitFudge(deficit, donorUsed int) int {
	spare := donorUsed - page.DLCapacity/2
	if spare < 0 {
		spare = 0
	}
	if deficit < spare {
		return deficit
	}
	return spare
}
