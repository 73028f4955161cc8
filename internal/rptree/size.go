package rptree

import "github.com/intellect4all/numstore/internal/page"

// Size returns the total byte length of the rope rooted at pg0: the root
// page is either a single DATA_LIST leaf (Used()) or an INNER_NODE, whose
// TotalBytes() is already maintained as the running sum of descendant
// byte counts (spec.md §4.5's key-propagation invariant P2). Used by
// `ds append` to find the offset one past the dataset's current end.
func (t *Tree) Size(pg0 page.Num) (int64, error) {
	h, err := t.p.GetAsRoot(pg0, page.MaskOf(page.TypeInnerNode, page.TypeDataList))
	if err != nil {
		return 0, err
	}
	defer t.p.Release(h, page.MaskOf(page.TypeInnerNode, page.TypeDataList))

	if h.Buf().Type() == page.TypeInnerNode {
		return int64(page.InnerNode{Buf: h.Buf()}.TotalBytes()), nil
	}
	return int64(page.DataList{Buf: h.Buf()}.Used()), nil
}
