package game

// NextActive advances circularly from current until it lands on a player who
// still holds dice. It examines at most one full rotation, so the last
// candidate is current itself; if nobody holds dice it reports false and the
// index is returned unchanged.
func NextActive(players []Player, current int) (int, bool) {
	n := len(players)
	if n == 0 {
		return current, false
	}
	idx := current
	for i := 0; i < n; i++ {
		idx = (idx + 1) % n
		if len(players[idx].Dice) > 0 {
			return idx, true
		}
	}
	return current, false
}
