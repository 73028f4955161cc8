package page

// VarTail is reserved for a future per-variable tail-pointer cache (an
// optimization spec.md's §9 Open Questions neither mandates nor rules
// out). This implementation declares the tag so page_validate's closed
// type set is complete, but no code path allocates TypeVarTail pages —
// see DESIGN.md.
type VarTail struct{ Buf *Buf }

func InitVarTail(b *Buf) VarTail {
	b.SetType(TypeVarTail)
	return VarTail{b}
}
