package game

import (
	"math/rand"
	"time"
)

const HandSize = 5

// Roller produces dice rolls from its own rand source so tests can seed it.
type Roller struct {
	rnd *rand.Rand
}

// NewRoller seeds from the clock when seed is 0.
func NewRoller(seed int64) *Roller {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Roller{rnd: rand.New(rand.NewSource(seed))}
}

// Roll returns a uniform value in 1..6.
func (r *Roller) Roll() int {
	return r.rnd.Intn(6) + 1
}

// Hand rolls n fresh dice.
func (r *Roller) Hand(n int) []int {
	dice := make([]int, n)
	for i := range dice {
		dice[i] = r.Roll()
	}
	return dice
}

// Reroll redraws every face in place, keeping the count.
func (r *Roller) Reroll(dice []int) {
	for i := range dice {
		dice[i] = r.Roll()
	}
}
