package game

type Phase string

const (
	PhaseLobby   Phase = "lobby"
	PhasePlaying Phase = "playing"
)

// Record is the full state of one room. It is the unit of persistence: every
// operation loads it, mutates a private copy, and writes it back whole.
type Record struct {
	RoomCode     string   `json:"roomCode"`
	Phase        Phase    `json:"phase"`
	Players      []Player `json:"players"`
	ActivePlayer int      `json:"activePlayer"`
	Bets         []Bet    `json:"bets"`
	Winner       string   `json:"winner"`
}

// Player order inside a Record is turn order and must never be shuffled.
// An empty ConnectionID marks a vacant seat a reconnecting player can claim.
type Player struct {
	ConnectionID string `json:"connectionId"`
	Name         string `json:"name"`
	Dice         []int  `json:"dice"`
	Ready        bool   `json:"ready"`
}

// Bet claims at least Count dice showing Value across all players, wildcards
// included. Value 1 is never a target: ones are pure wildcard mass.
type Bet struct {
	Player string `json:"player"`
	Count  int    `json:"count"`
	Value  int    `json:"value"`
}

// Summary is the roster projection shared with every client. Dice values are
// private; only the remaining count leaves the server.
type Summary struct {
	Name          string `json:"name"`
	RemainingDice int    `json:"remainingDice"`
}

func Summaries(players []Player) []Summary {
	out := make([]Summary, len(players))
	for i, p := range players {
		out[i] = Summary{Name: p.Name, RemainingDice: len(p.Dice)}
	}
	return out
}

// FindPlayer returns the player with the exact name, or nil. Names are
// case-sensitive.
func (r *Record) FindPlayer(name string) *Player {
	for i := range r.Players {
		if r.Players[i].Name == name {
			return &r.Players[i]
		}
	}
	return nil
}

func (r *Record) PlayerNames() []string {
	names := make([]string, len(r.Players))
	for i, p := range r.Players {
		names[i] = p.Name
	}
	return names
}

// ActiveName returns the current active player's name, or "" when the index
// no longer points at anyone (empty roster, or shrunk by a leave).
func (r *Record) ActiveName() string {
	if r.ActivePlayer < 0 || r.ActivePlayer >= len(r.Players) {
		return ""
	}
	return r.Players[r.ActivePlayer].Name
}
