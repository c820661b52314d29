package items

import "sort"

// Box is a multiset of item types. The zero value is empty and usable.
// Boxes only ever grow; returns/settlement are modeled by crediting a
// different box, never by subtracting from this one.
type Box struct {
	counts map[string]int
}

func NewBox() *Box {
	return &Box{counts: map[string]int{}}
}

// Store adds n of item. Non-positive amounts and empty item names are ignored.
func (b *Box) Store(item string, n int) {
	if item == "" || n <= 0 {
		return
	}
	if b.counts == nil {
		b.counts = map[string]int{}
	}
	b.counts[item] += n
}

func (b *Box) Count(item string) int {
	if b == nil || b.counts == nil {
		return 0
	}
	return b.counts[item]
}

// Add stores the full contents of other into b.
func (b *Box) Add(other *Box) {
	if other == nil {
		return
	}
	for item, n := range other.counts {
		b.Store(item, n)
	}
}

// IsSubset reports whether every item in b is covered by other at or above
// b's count. An empty box is a subset of anything.
func (b *Box) IsSubset(other *Box) bool {
	if b == nil {
		return true
	}
	for item, n := range b.counts {
		if n <= 0 {
			continue
		}
		if other.Count(item) < n {
			return false
		}
	}
	return true
}

func (b *Box) IsEmpty() bool {
	if b == nil {
		return true
	}
	for _, n := range b.counts {
		if n > 0 {
			return false
		}
	}
	return true
}

// Types returns the item types present with a positive count, sorted.
func (b *Box) Types() []string {
	if b == nil {
		return nil
	}
	out := make([]string, 0, len(b.counts))
	for item, n := range b.counts {
		if n > 0 {
			out = append(out, item)
		}
	}
	sort.Strings(out)
	return out
}

// Stack is one item type with its amount, used in reporting snapshots.
type Stack struct {
	Item  string `json:"item"`
	Count int    `json:"count"`
}

// Stacks returns a sorted snapshot of the box with zero entries filtered.
func (b *Box) Stacks() []Stack {
	types := b.Types()
	out := make([]Stack, 0, len(types))
	for _, item := range types {
		out = append(out, Stack{Item: item, Count: b.counts[item]})
	}
	return out
}

// Clone returns an independent copy of the box.
func (b *Box) Clone() *Box {
	c := NewBox()
	c.Add(b)
	return c
}
