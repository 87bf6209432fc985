package session

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"liarsdice/internal/game"
	"liarsdice/internal/rooms"
)

// Service is the game session engine. Every operation has the same shape:
// load the record, validate, mutate the in-memory copy, persist, and return
// a projection. A failed persist is reported but never retried or rolled
// back; the record stays stale until the next successful write.
//
// The service itself does not serialize concurrent callers. Callers that can
// race on one room code must funnel through its room worker (internal/room),
// which runs engine calls strictly in arrival order.
type Service struct {
	rooms  *rooms.Directory
	roller *game.Roller
	log    *zap.Logger
}

func New(dir *rooms.Directory, roller *game.Roller, log *zap.Logger) *Service {
	return &Service{rooms: dir, roller: roller, log: log}
}

type JoinResult struct {
	Name    string
	Players []game.Player
	Phase   game.Phase
}

type LeaveResult struct {
	Players      []game.Player
	ActivePlayer string
}

type StartResult struct {
	Phase        game.Phase
	Players      []game.Player
	ActivePlayer string
}

type BetResult struct {
	Bets         []game.Bet
	ActivePlayer string
}

type RevealedPlayer struct {
	Name string `json:"name"`
	Dice []int  `json:"dice"`
}

// RevealResult is broadcast verbatim as the "update winner" payload.
type RevealResult struct {
	Winner          string           `json:"winner"`
	PlayersRevealed []RevealedPlayer `json:"playersRevealed"`
}

type ReadyResult struct {
	AllReady bool
}

type RoundResult struct {
	ActivePlayer string
	Bets         []game.Bet
	Winner       string
	Players      []game.Player
}

// CreateRoom allocates a fresh code and persists a lobby-phase record with
// the creator as its sole, already-ready player.
func (s *Service) CreateRoom(ctx context.Context, name, connID string) (string, error) {
	code, err := s.rooms.CreateUniqueCode(ctx)
	if err != nil {
		return "", err
	}
	rec := &game.Record{
		RoomCode: code,
		Phase:    game.PhaseLobby,
		Players: []game.Player{
			{ConnectionID: connID, Name: name, Dice: []int{}, Ready: true},
		},
		Bets: []game.Bet{},
	}
	if err := s.persist(ctx, rec); err != nil {
		return "", err
	}
	return code, nil
}

// JoinRoom adds a player in the lobby, or rebinds a vacated seat mid-game.
// New names are never rejected for collisions; they get a (2), (3), ...
// suffix. Unrecognized names cannot enter a running game.
func (s *Service) JoinRoom(ctx context.Context, code, name, connID string) (JoinResult, error) {
	rec, err := s.load(ctx, code)
	if err != nil {
		return JoinResult{}, err
	}

	if rec.Phase == game.PhasePlaying {
		p := rec.FindPlayer(name)
		if p == nil {
			return JoinResult{}, ErrGameInProgress
		}
		if p.ConnectionID != "" {
			return JoinResult{}, fmt.Errorf("someone is already playing as %s: %w", name, ErrNameInUse)
		}
		p.ConnectionID = connID
		if err := s.persist(ctx, rec); err != nil {
			return JoinResult{}, err
		}
		return JoinResult{Name: name, Players: rec.Players, Phase: rec.Phase}, nil
	}

	assigned := game.ResolveName(name, rec.PlayerNames())
	rec.Players = append(rec.Players, game.Player{
		ConnectionID: connID,
		Name:         assigned,
		Dice:         []int{},
		Ready:        true,
	})
	if err := s.persist(ctx, rec); err != nil {
		return JoinResult{}, err
	}
	return JoinResult{Name: assigned, Players: rec.Players, Phase: rec.Phase}, nil
}

// LeaveRoom drops the named player. An unknown name leaves the roster
// unchanged; that is not an error.
func (s *Service) LeaveRoom(ctx context.Context, code, name string) (LeaveResult, error) {
	rec, err := s.load(ctx, code)
	if err != nil {
		return LeaveResult{}, err
	}
	rec.Players = slices.DeleteFunc(rec.Players, func(p game.Player) bool {
		return p.Name == name
	})
	if err := s.persist(ctx, rec); err != nil {
		return LeaveResult{}, err
	}
	return LeaveResult{Players: rec.Players, ActivePlayer: rec.ActiveName()}, nil
}

// StartGame deals everyone a fresh hand of five dice and flips the room to
// playing. The active index is left as-is (zero for a new room).
func (s *Service) StartGame(ctx context.Context, code string) (StartResult, error) {
	rec, err := s.load(ctx, code)
	if err != nil {
		return StartResult{}, err
	}
	for i := range rec.Players {
		rec.Players[i].Dice = s.roller.Hand(game.HandSize)
	}
	rec.Phase = game.PhasePlaying
	if err := s.persist(ctx, rec); err != nil {
		return StartResult{}, err
	}
	return StartResult{Phase: rec.Phase, Players: rec.Players, ActivePlayer: rec.ActiveName()}, nil
}

// RaiseBet appends the bet to the round's log and passes the turn to the
// next player still holding dice. The bet is not checked against the
// previous one; escalation is the table's social contract, not the
// engine's (see DESIGN.md).
func (s *Service) RaiseBet(ctx context.Context, code string, bet game.Bet) (BetResult, error) {
	rec, err := s.load(ctx, code)
	if err != nil {
		return BetResult{}, err
	}
	rec.Bets = append(rec.Bets, bet)
	next, ok := game.NextActive(rec.Players, rec.ActivePlayer)
	if !ok {
		return BetResult{}, ErrNoEligiblePlayer
	}
	rec.ActivePlayer = next
	if err := s.persist(ctx, rec); err != nil {
		return BetResult{}, err
	}
	return BetResult{Bets: rec.Bets, ActivePlayer: rec.ActiveName()}, nil
}

// ShowDice resolves the last bet: the challenger disputes it against the
// wildcard-inclusive tally. The loser forfeits the last die in their hand.
// The returned reveal is snapshotted before the penalty, so clients see the
// hands exactly as they were when the bet was called.
func (s *Service) ShowDice(ctx context.Context, code, challengerName string) (RevealResult, error) {
	rec, err := s.load(ctx, code)
	if err != nil {
		return RevealResult{}, err
	}
	if len(rec.Bets) == 0 {
		return RevealResult{}, ErrPlayersNotFound
	}
	lastBet := rec.Bets[len(rec.Bets)-1]
	challenger := rec.FindPlayer(challengerName)
	bluffer := rec.FindPlayer(lastBet.Player)
	if challenger == nil || bluffer == nil {
		return RevealResult{}, ErrPlayersNotFound
	}

	counts := game.Tally(rec.Players)

	revealed := make([]RevealedPlayer, len(rec.Players))
	for i, p := range rec.Players {
		revealed[i] = RevealedPlayer{Name: p.Name, Dice: slices.Clone(p.Dice)}
	}

	if game.FaceCount(counts, lastBet.Value) >= lastBet.Count {
		rec.Winner = bluffer.Name
		dropDie(challenger)
	} else {
		rec.Winner = challenger.Name
		dropDie(bluffer)
	}

	for i := range rec.Players {
		rec.Players[i].Ready = false
	}
	if err := s.persist(ctx, rec); err != nil {
		return RevealResult{}, err
	}
	return RevealResult{Winner: rec.Winner, PlayersRevealed: revealed}, nil
}

// ToggleReady marks the player ready. There is no un-ready path; calling it
// again is a no-op. The caller starts the next round when AllReady flips
// true; the engine never chains rounds itself.
func (s *Service) ToggleReady(ctx context.Context, code, name string) (ReadyResult, error) {
	rec, err := s.load(ctx, code)
	if err != nil {
		return ReadyResult{}, err
	}
	p := rec.FindPlayer(name)
	if p == nil {
		return ReadyResult{}, ErrPlayerNotFound
	}
	p.Ready = true
	allReady := true
	for _, pl := range rec.Players {
		if !pl.Ready {
			allReady = false
			break
		}
	}
	if err := s.persist(ctx, rec); err != nil {
		return ReadyResult{}, err
	}
	return ReadyResult{AllReady: allReady}, nil
}

// NewRound clears the bet log and winner, rerolls everyone's remaining dice,
// and rotates the opener: dice consumed so far number the round, and the
// round number mod the player count picks who starts.
func (s *Service) NewRound(ctx context.Context, code string) (RoundResult, error) {
	rec, err := s.load(ctx, code)
	if err != nil {
		return RoundResult{}, err
	}
	if len(rec.Players) == 0 {
		return RoundResult{}, ErrPlayersNotFound
	}

	totalDice := 0
	for _, p := range rec.Players {
		totalDice += len(p.Dice)
	}
	roundNumber := len(rec.Players)*game.HandSize - totalDice

	rec.ActivePlayer = roundNumber % len(rec.Players)
	rec.Bets = []game.Bet{}
	rec.Winner = ""
	for i := range rec.Players {
		s.roller.Reroll(rec.Players[i].Dice)
	}
	if err := s.persist(ctx, rec); err != nil {
		return RoundResult{}, err
	}
	return RoundResult{
		ActivePlayer: rec.ActiveName(),
		Bets:         rec.Bets,
		Winner:       rec.Winner,
		Players:      rec.Players,
	}, nil
}

// Detach vacates the seat bound to connID so the player can reconnect under
// the same name. Nothing to vacate is a no-op.
func (s *Service) Detach(ctx context.Context, code, connID string) error {
	rec, err := s.load(ctx, code)
	if err != nil {
		return err
	}
	for i := range rec.Players {
		if rec.Players[i].ConnectionID == connID {
			rec.Players[i].ConnectionID = ""
			return s.persist(ctx, rec)
		}
	}
	return nil
}

func (s *Service) load(ctx context.Context, code string) (*game.Record, error) {
	rec, ok, err := s.rooms.Load(ctx, code)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrRoomNotFound
	}
	return rec, nil
}

func (s *Service) persist(ctx context.Context, rec *game.Record) error {
	if err := s.rooms.Save(ctx, rec); err != nil {
		s.log.Warn("room persist failed",
			zap.String("room", rec.RoomCode),
			zap.Error(err))
		return err
	}
	return nil
}

func dropDie(p *game.Player) {
	if len(p.Dice) > 0 {
		p.Dice = p.Dice[:len(p.Dice)-1]
	}
}
