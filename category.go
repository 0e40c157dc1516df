package simcore

import (
	"fmt"
	"math/bits"
	"sort"
	"strings"
)

// AllCategoriesID matches every category.
const AllCategoriesID uint32 = 0xFFFFFFFF

// DefaultCategory is used for objects registered without a category.
const DefaultCategory = "Default"

// maxCategories is the number of bits a category may occupy. The top bit is
// reserved so that a single category never collides with AllCategoriesID.
const maxCategories = 31

type categoryEntry struct {
	id       uint32
	occupied bool
}

// categoryTable maps category names to single-bit ids. It is not safe for
// concurrent use; the Registry guards it.
type categoryTable struct {
	entries map[string]*categoryEntry
	next    uint32
}

func newCategoryTable() categoryTable {
	return categoryTable{entries: make(map[string]*categoryEntry), next: 1}
}

// register returns the bit of name, allocating one if needed. A free bit left by
// an unoccupied category is reused before a new bit is shifted in.
func (t *categoryTable) register(name string) (uint32, error) {
	if e, ok := t.entries[name]; ok {
		e.occupied = true
		return e.id, nil
	}

	if free, ok := t.lowestUnoccupied(); ok {
		id := t.entries[free].id
		delete(t.entries, free)
		t.entries[name] = &categoryEntry{id: id, occupied: true}
		return id, nil
	}

	if len(t.entries) >= maxCategories || t.next == 0 || t.next > 1<<(maxCategories-1) {
		return 0, withMetadata(CodeCategoryExhausted,
			fmt.Sprintf("simcore: no category bit left for %q", name),
			map[string]string{"category": name})
	}
	id := t.next
	t.next <<= 1
	t.entries[name] = &categoryEntry{id: id, occupied: true}
	return id, nil
}

func (t *categoryTable) lowestUnoccupied() (string, bool) {
	var (
		name  string
		best  uint32
		found bool
	)
	for n, e := range t.entries {
		if !e.occupied && (!found || e.id < best) {
			name, best, found = n, e.id, true
		}
	}
	return name, found
}

// free marks name unoccupied. Its bit stays assigned until another name claims it.
func (t *categoryTable) free(name string) (uint32, bool) {
	e, ok := t.entries[name]
	if !ok || !e.occupied {
		return 0, false
	}
	e.occupied = false
	return e.id, true
}

func (t *categoryTable) id(name string) uint32 {
	if e, ok := t.entries[name]; ok {
		return e.id
	}
	return 0
}

// live returns the number of occupied categories.
func (t *categoryTable) live() int {
	n := 0
	for _, e := range t.entries {
		if e.occupied {
			n++
		}
	}
	return n
}

func (t *categoryTable) names() []string {
	out := make([]string, 0, len(t.entries))
	for n, e := range t.entries {
		if e.occupied {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

// parse evaluates a category expression such as "All-Player+Enemy". Terms are
// applied left to right; a leading term without sign adds.
func (t *categoryTable) parse(expr string) (uint32, error) {
	var (
		mask uint32
		sign = byte('+')
		term strings.Builder
	)
	apply := func() error {
		name := strings.TrimSpace(term.String())
		term.Reset()
		if name == "" {
			return nil
		}
		var id uint32
		switch {
		case name == "All":
			id = AllCategoriesID
		case name == "None":
			id = 0
		default:
			e, ok := t.entries[name]
			if !ok {
				return withMetadata(CodeNotFound, fmt.Sprintf("simcore: unknown category %q", name),
					map[string]string{"category": name})
			}
			id = e.id
		}
		if sign == '-' {
			mask &^= id
		} else {
			mask |= id
		}
		return nil
	}

	for i := 0; i < len(expr); i++ {
		c := expr[i]
		if c == '+' || c == '-' {
			if err := apply(); err != nil {
				return 0, err
			}
			sign = c
			continue
		}
		term.WriteByte(c)
	}
	if err := apply(); err != nil {
		return 0, err
	}
	return mask, nil
}

// materialGroup returns the bit index of a single-bit category id.
func materialGroup(categoryID uint32) int {
	if categoryID == 0 {
		return 0
	}
	return bits.TrailingZeros32(categoryID)
}
