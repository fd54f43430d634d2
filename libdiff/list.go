package libdiff

import (
	"github.com/mage/mage-sdk-go/tome"

	diffpatch "github.com/sergi/go-diff/diffmatchpatch"
)

// diffList aligns the two lists by mapping every distinct element to a rune
// and diffing the rune strings. Runs of deletes directly followed by inserts
// are paired up and diffed element by element; the remaining runs become
// splices, with pushes and pops at the tail.
func diffList(chain []any, from, to []any, ops *[]tome.Op) {
	m := map[string]rune{}
	diffs := diffpatch.New().DiffMainRunes(runes(m, from), runes(m, to), false)

	fi, ti, pos, n := 0, 0, 0, len(from)
	for i := 0; i < len(diffs); i++ {
		d := &diffs[i]
		count := len([]rune(d.Text))
		switch d.Type {
		case diffpatch.DiffEqual:
			fi += count
			ti += count
			pos += count
		case diffpatch.DiffDelete:
			ins := 0
			if i+1 < len(diffs) && diffs[i+1].Type == diffpatch.DiffInsert {
				ins = len([]rune(diffs[i+1].Text))
				i++
			}
			paired := min(count, ins)
			for k := range paired {
				fv, tv := from[fi+k], to[ti+k]
				if kindOf(fv) != valueKind && kindOf(fv) == kindOf(tv) {
					diff(child(chain, pos), fv, tv, ops)
				} else {
					*ops = append(*ops, op(chain, tome.OpSet, keyVal(pos, tv)))
				}
				pos++
			}
			fi += paired
			ti += paired
			if rest := count - paired; rest > 0 {
				remove(chain, pos, rest, n, ops)
				n -= rest
				fi += rest
			}
			if rest := ins - paired; rest > 0 {
				insert(chain, pos, to[ti:ti+rest], n, ops)
				n += rest
				pos += rest
				ti += rest
			}
		case diffpatch.DiffInsert:
			insert(chain, pos, to[ti:ti+count], n, ops)
			n += count
			pos += count
			ti += count
		}
	}
}

func remove(chain []any, pos, count, n int, ops *[]tome.Op) {
	if count == 1 && pos == n-1 {
		*ops = append(*ops, op(chain, tome.OpPop, nil))
		return
	}
	*ops = append(*ops, op(chain, tome.OpSplice, []any{pos, count}))
}

func insert(chain []any, pos int, items []any, n int, ops *[]tome.Op) {
	vals := append([]any(nil), items...)
	if pos == n {
		*ops = append(*ops, op(chain, tome.OpPush, vals))
		return
	}
	*ops = append(*ops, op(chain, tome.OpSplice, append([]any{pos, 0}, vals...)))
}

func runes(m map[string]rune, vals []any) []rune {
	rs := make([]rune, len(vals))
	for i, v := range vals {
		sum := summary(v)
		r, ok := m[sum]
		if !ok {
			// skip the surrogate range, DiffMainRunes works on valid runes
			r = rune(len(m)) + 1
			if r >= 0xD800 {
				r += 0x800
			}
			m[sum] = r
		}
		rs[i] = r
	}
	return rs
}
