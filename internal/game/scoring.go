package game

// Tally counts each face from 2 to 6 across all players' dice, indexed by
// face value so counts[4] is the count for fours. Ones are wild: they are
// added to every other face's bucket and have no bucket of their own.
func Tally(players []Player) [7]int {
	var counts [7]int
	wild := 0
	for _, p := range players {
		for _, die := range p.Dice {
			if die == 1 {
				wild++
				continue
			}
			counts[die]++
		}
	}
	for f := 2; f <= 6; f++ {
		counts[f] += wild
	}
	return counts
}

// FaceCount reads a tally bucket, treating any face outside 2..6 as zero
// rather than indexing out of range.
func FaceCount(counts [7]int, face int) int {
	if face < 2 || face > 6 {
		return 0
	}
	return counts[face]
}
