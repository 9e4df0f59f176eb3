package arena

import "testing"

// Fuzz arbitrary insert/remove/forged-lookup programs against Dense.
// Each byte is one operation; the arena must never panic and must never
// resolve a removed handle.
func FuzzDense_Ops(f *testing.F) {
	f.Add([]byte{0, 0, 0, 1, 1, 2})
	f.Add([]byte{0, 1, 0, 1, 0, 1, 3, 3})
	f.Add([]byte{2, 2, 2, 3})

	f.Fuzz(func(t *testing.T, ops []byte) {
		const limit = 1 << 12
		if len(ops) > limit {
			ops = ops[:limit]
		}

		var d Dense[int]
		var live, dead []Handle[int]
		for i, op := range ops {
			switch op % 4 {
			case 0:
				live = append(live, d.Insert(i))
			case 1:
				if len(live) == 0 {
					continue
				}
				j := int(op) % len(live)
				h := live[j]
				live = append(live[:j], live[j+1:]...)
				if _, err := d.Remove(h); err != nil {
					t.Fatalf("remove live %s: %v", h, err)
				}
				dead = append(dead, h)
			case 2:
				if len(dead) == 0 {
					continue
				}
				h := dead[int(op)%len(dead)]
				if d.Contains(h) {
					t.Fatalf("dead handle %s resolves", h)
				}
			case 3:
				// Forged handles must fail cleanly or resolve to a live value.
				h := NewHandleWithGeneration[int](uint32(op), uint32(i))
				_, _ = d.Get(h)
			}
		}
		if d.Len() != len(live) {
			t.Fatalf("Len = %d, want %d", d.Len(), len(live))
		}
		for _, h := range live {
			if !d.Contains(h) {
				t.Fatalf("live handle %s lost", h)
			}
		}
	})
}
