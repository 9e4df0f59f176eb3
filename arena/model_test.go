package arena

import (
	"cmp"
	"math/rand/v2"
	"testing"

	gocmp "github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

type entry struct {
	Index uint32
	Gen   uint32
	Value int
}

// model is the reference implementation: a map from handle to value plus
// the set of handles that were removed.
type model struct {
	live    map[Handle[int]]int
	removed []Handle[int]
}

func snapshot(c Container[int]) []entry {
	var out []entry
	for h, v := range c.All() {
		out = append(out, entry{Index: h.ID(), Gen: h.Generation(), Value: v})
	}
	return out
}

func (m *model) snapshot() []entry {
	out := make([]entry, 0, len(m.live))
	for h, v := range m.live {
		out = append(out, entry{Index: h.ID(), Gen: h.Generation(), Value: v})
	}
	return out
}

var byIndex = cmpopts.SortSlices(func(a, b entry) bool {
	return cmp.Or(cmp.Compare(a.Index, b.Index), cmp.Compare(a.Gen, b.Gen)) < 0
})

// Random insert/remove sequences against every generation-checked
// container: live handles always resolve, removed handles never do, and
// iteration yields exactly the live set.
func TestContainers_MatchModel(t *testing.T) {
	t.Parallel()

	containers := map[string]func() Container[int]{
		"dense":  func() Container[int] { return NewDense[int](0) },
		"sparse": func() Container[int] { return NewSparse[int](0) },
		"sorted": func() Container[int] { return NewSorted(cmp.Compare[int]) },
	}

	for name, mk := range containers {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			r := rand.New(rand.NewPCG(1, 2))
			c := mk()
			m := &model{live: map[Handle[int]]int{}}
			var handles []Handle[int]
			inserts, removes := 0, 0

			for step := range 5000 {
				switch op := r.IntN(10); {
				case op < 6 || len(handles) == 0:
					v := r.IntN(1000)
					h := c.Insert(v)
					if _, dup := m.live[h]; dup {
						t.Fatalf("step %d: handle %s issued twice", step, h)
					}
					m.live[h] = v
					handles = append(handles, h)
					inserts++
				case op < 9:
					i := r.IntN(len(handles))
					h := handles[i]
					handles[i] = handles[len(handles)-1]
					handles = handles[:len(handles)-1]

					got, err := c.Remove(h)
					if err != nil {
						t.Fatalf("step %d: remove %s: %v", step, h, err)
					}
					if got != m.live[h] {
						t.Fatalf("step %d: remove %s returned %d, want %d", step, h, got, m.live[h])
					}
					delete(m.live, h)
					m.removed = append(m.removed, h)
					removes++
				default:
					if len(m.removed) == 0 {
						continue
					}
					h := m.removed[r.IntN(len(m.removed))]
					if _, err := c.Get(h); err == nil {
						t.Fatalf("step %d: removed handle %s still resolves", step, h)
					}
				}

				if step%250 == 0 {
					for h, want := range m.live {
						got, err := c.Get(h)
						if err != nil || got != want {
							t.Fatalf("step %d: get %s = %d, %v; want %d", step, h, got, err, want)
						}
					}
				}
			}

			if diff := gocmp.Diff(m.snapshot(), snapshot(c), byIndex); diff != "" {
				t.Fatalf("live set mismatch (-model +container):\n%s", diff)
			}
			if c.Len() != inserts-removes {
				t.Fatalf("Len = %d, want %d", c.Len(), inserts-removes)
			}
		})
	}
}

// The free list has no generations, so only the live set is compared.
func TestFreeList_MatchModel(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewPCG(3, 4))
	f := NewFreeList[int](16)
	live := map[uint32]int{}
	for range 2000 {
		if r.IntN(3) > 0 || len(live) == 0 {
			v := r.Int()
			h := f.Insert(v)
			if _, ok := live[h.ID()]; ok {
				t.Fatalf("index %d handed out while occupied", h.ID())
			}
			live[h.ID()] = v
			continue
		}
		for idx, want := range live {
			got, err := f.Remove(NewHandle[int](idx))
			if err != nil || got != want {
				t.Fatalf("remove %d = %d, %v; want %d", idx, got, err, want)
			}
			delete(live, idx)
			break
		}
	}

	want := make([]entry, 0, len(live))
	for idx, v := range live {
		want = append(want, entry{Index: idx, Value: v})
	}
	if diff := gocmp.Diff(want, snapshot(f), byIndex); diff != "" {
		t.Fatalf("live set mismatch (-model +freelist):\n%s", diff)
	}
}
