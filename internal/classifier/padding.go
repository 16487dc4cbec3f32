package classifier

// Pad fits seq to exactly maxLen ids. Short sequences are padded at the end
// with PadID; long ones lose their leading ids so the tail of the utterance
// is kept.
func Pad(seq []int, maxLen int) []int {
	out := make([]int, maxLen)
	if len(seq) > maxLen {
		seq = seq[len(seq)-maxLen:]
	}
	copy(out, seq)
	return out
}

// PadAll pads every sequence to maxLen.
func PadAll(seqs [][]int, maxLen int) [][]int {
	out := make([][]int, len(seqs))
	for i, s := range seqs {
		out[i] = Pad(s, maxLen)
	}
	return out
}
