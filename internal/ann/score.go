package ann

// ToScores converts angular distances in [0, 2] to scores in [0, 1] and
// keeps only scores strictly above threshold when one is given. Order is
// preserved.
func ToScores(ns []Neighbor, threshold *float64) []Neighbor {
	out := make([]Neighbor, 0, len(ns))
	for _, n := range ns {
		n.Score = float64(n.Distance) / 2
		if threshold != nil && !(n.Score > *threshold) {
			continue
		}
		out = append(out, n)
	}
	return out
}
