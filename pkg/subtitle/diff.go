package subtitle

// ChangeFractions compares two sets and returns the fraction of items whose
// timing changed and the fraction whose text changed, both in [0, 1]. Items
// are compared by position; length differences count as changes on both axes.
func ChangeFractions(previous, next *Set) (timeChange, textChange float64) {
	prevLen := 0
	if previous != nil {
		prevLen = len(previous.Items)
	}
	nextLen := 0
	if next != nil {
		nextLen = len(next.Items)
	}

	total := prevLen
	if nextLen > total {
		total = nextLen
	}
	if total == 0 {
		return 0, 0
	}

	timeChanged := 0
	textChanged := 0
	for i := 0; i < total; i++ {
		if i >= prevLen || i >= nextLen {
			timeChanged++
			textChanged++
			continue
		}

		a := previous.Items[i]
		b := next.Items[i]
		if !sameTime(a.StartMS, b.StartMS) || !sameTime(a.EndMS, b.EndMS) {
			timeChanged++
		}
		if a.Text != b.Text {
			textChanged++
		}
	}

	return float64(timeChanged) / float64(total), float64(textChanged) / float64(total)
}

func sameTime(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
