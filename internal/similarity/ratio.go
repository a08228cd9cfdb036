// internal/similarity/ratio.go
//
// Character-level similarity ratio.
//
// Context
// -------
// Questions are short, free-form sentences typed by staff, frequently in
// Korean.  A matching-block ratio over runes is enough to catch rephrased
// resubmissions without pulling in any tokenizer or embedding model.
//
// The ratio is the classic Ratcliff/Obershelp measure:
//
//	ratio = 2 * M / (len(a) + len(b))
//
// where M is the total length of the matching blocks found by repeatedly
// taking the longest common substring and recursing on both sides of it.
//
// Notes
// -----
//   - Lengths are counted in runes, never bytes.
//   - No junk heuristic is applied.  Every rune participates.
//   - The recursion can pick different blocks depending on argument order,
//     so Ratio evaluates both orders and keeps the larger block total.
//     This makes Ratio(a, b) == Ratio(b, a) for every input.
//   - Oxford commas, two spaces after periods.
package similarity

// Ratio returns the similarity of a and b in [0, 1].  Identical strings
// (including two empty strings) score 1.0; strings sharing no rune score 0.
func Ratio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1.0
	}
	m := matchedRunes(ra, rb)
	if rev := matchedRunes(rb, ra); rev > m {
		m = rev
	}
	return 2.0 * float64(m) / float64(total)
}

// span is one pending sub-range pair of the block recursion.
type span struct{ alo, ahi, blo, bhi int }

// matchedRunes sums the sizes of all matching blocks between a and b.
func matchedRunes(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	// b2j maps each rune of b to the ascending list of its positions.
	b2j := make(map[rune][]int, len(b))
	for j, r := range b {
		b2j[r] = append(b2j[r], j)
	}

	matched := 0
	queue := []span{{0, len(a), 0, len(b)}}
	for len(queue) > 0 {
		s := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		i, j, k := longestMatch(a, b2j, s)
		if k == 0 {
			continue
		}
		matched += k
		if s.alo < i && s.blo < j {
			queue = append(queue, span{s.alo, i, s.blo, j})
		}
		if i+k < s.ahi && j+k < s.bhi {
			queue = append(queue, span{i + k, s.ahi, j + k, s.bhi})
		}
	}
	return matched
}

// longestMatch finds the longest block a[i:i+k] == b[j:j+k] inside s.  Ties
// resolve to the earliest i, then the earliest j.
func longestMatch(a []rune, b2j map[rune][]int, s span) (besti, bestj, bestk int) {
	besti, bestj = s.alo, s.blo

	// j2len[j] is the length of the match ending at a[i-1], b[j].
	j2len := map[int]int{}
	for i := s.alo; i < s.ahi; i++ {
		next := map[int]int{}
		for _, j := range b2j[a[i]] {
			if j < s.blo {
				continue
			}
			if j >= s.bhi {
				break
			}
			k := j2len[j-1] + 1
			next[j] = k
			if k > bestk {
				besti, bestj, bestk = i-k+1, j-k+1, k
			}
		}
		j2len = next
	}
	return besti, bestj, bestk
}
