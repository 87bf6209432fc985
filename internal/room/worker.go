package room

import (
	"context"
	"time"

	"go.uber.org/zap"

	"liarsdice/internal/game"
	"liarsdice/internal/session"
	"liarsdice/internal/types"
)

// Msg is the closed set of events a room worker handles.
type Msg interface{ isRoomMsg() }

// Attach registers a connection for broadcasts without touching the game
// record; the creator's seat already exists when its worker spins up.
type Attach struct {
	ConnID string
	Outbox chan types.ServerMessage
}

type Join struct {
	ConnID string
	Name   string
	Outbox chan types.ServerMessage
}

type Leave struct {
	ConnID string
	Name   string
}

type Start struct{ ConnID string }

type Raise struct {
	ConnID string
	Bet    game.Bet
}

type Show struct {
	ConnID string
	Name   string
}

type Ready struct {
	ConnID string
	Name   string
}

// Detach is sent when a connection closes: the seat is vacated in the record
// and the connection leaves the broadcast list.
type Detach struct{ ConnID string }

// StopIfIdle asks the worker to stop, which it honors only while it still has
// no connections. It is the registry's half of the reaping handshake: the
// worker confirms through Hooks.OnStopped before the registry may forget it.
type StopIfIdle struct{}

type Shutdown struct{}

// GetView exists so tests can observe worker internals without races.
type GetView struct{ Reply chan View }

type View struct{ NumClients int }

func (Attach) isRoomMsg()     {}
func (Join) isRoomMsg()       {}
func (Leave) isRoomMsg()      {}
func (Start) isRoomMsg()      {}
func (Raise) isRoomMsg()      {}
func (Show) isRoomMsg()       {}
func (Ready) isRoomMsg()      {}
func (Detach) isRoomMsg()     {}
func (StopIfIdle) isRoomMsg() {}
func (Shutdown) isRoomMsg()   {}
func (GetView) isRoomMsg()    {}

// Hooks connect a worker back to its registry without an import cycle. All
// fields are optional.
type Hooks struct {
	// OnIdle fires after any message leaves the worker with zero
	// connections, so error-only traffic cannot leak workers.
	OnIdle func()
	// OnStopped fires exactly once, after the worker has stopped running
	// engine calls; only then may the registry drop its map entry.
	OnStopped func()
	// Redeliver receives messages that land in the inbox after the worker
	// stopped, so a connection that resolved the worker pointer just before
	// removal is not silently dropped.
	Redeliver func(Msg)
}

// drainGrace is how long a stopped worker keeps forwarding stragglers before
// its goroutine exits. Connections re-resolve the worker per event, so the
// stale-pointer window is tiny; the grace just has to outlast it.
const drainGrace = time.Second

// Worker is the single writer for one room code. All engine calls for the
// room run inside its loop in arrival order, so the engine's load-mutate-save
// cycle can never interleave with another writer for the same record. It is
// also the fan-out point: broadcasts go to every registered connection,
// errors only back to the sender.
type Worker struct {
	code     string
	inbox    chan Msg
	clients  map[string]chan types.ServerMessage
	sessions *session.Service
	log      *zap.Logger
	hooks    Hooks
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewWorker(parent context.Context, code string, sessions *session.Service, log *zap.Logger, hooks Hooks) *Worker {
	ctx, cancel := context.WithCancel(parent)
	w := &Worker{
		code:     code,
		inbox:    make(chan Msg, 64),
		clients:  make(map[string]chan types.ServerMessage),
		sessions: sessions,
		log:      log.With(zap.String("room", code)),
		hooks:    hooks,
		ctx:      ctx,
		cancel:   cancel,
	}
	go w.loop()
	return w
}

func (w *Worker) Inbox() chan<- Msg { return w.inbox }

func (w *Worker) loop() {
	for {
		select {
		case <-w.ctx.Done():
			w.shutdown()
			return

		case m := <-w.inbox:
			if stopped := w.handle(m); stopped {
				return
			}
			w.reapIfEmpty()
		}
	}
}

func (w *Worker) handle(m Msg) (stopped bool) {
	switch msg := m.(type) {
	case Attach:
		w.clients[msg.ConnID] = msg.Outbox

	case Join:
		w.handleJoin(msg)

	case Leave:
		w.handleLeave(msg)

	case Start:
		w.handleStart(msg)

	case Raise:
		w.handleRaise(msg)

	case Show:
		w.handleShow(msg)

	case Ready:
		w.handleReady(msg)

	case Detach:
		w.handleDetach(msg)

	case GetView:
		msg.Reply <- View{NumClients: len(w.clients)}

	case StopIfIdle:
		// A connection may have joined between our idle report and this
		// request; in that case the worker simply stays.
		if len(w.clients) > 0 {
			return false
		}
		if w.hooks.OnStopped != nil {
			w.hooks.OnStopped()
		}
		w.shutdown()
		w.drain()
		return true

	case Shutdown:
		w.shutdown()
		return true
	}
	return false
}

// drain forwards late arrivals back to the registry for redelivery until the
// grace period passes without the worker being anyone's target anymore.
func (w *Worker) drain() {
	deadline := time.After(drainGrace)
	for {
		select {
		case m := <-w.inbox:
			switch msg := m.(type) {
			case GetView:
				msg.Reply <- View{}
			case StopIfIdle, Shutdown:
				// Already stopped.
			default:
				if w.hooks.Redeliver != nil {
					w.hooks.Redeliver(m)
				}
			}
		case <-deadline:
			return
		}
	}
}

func (w *Worker) handleJoin(msg Join) {
	res, err := w.sessions.JoinRoom(w.ctx, w.code, msg.Name, msg.ConnID)
	if err != nil {
		w.send(msg.Outbox, types.ErrorMessage(err.Error()))
		return
	}
	w.clients[msg.ConnID] = msg.Outbox
	w.send(msg.Outbox, types.Event(types.EvtUpdateName, res.Name))
	w.send(msg.Outbox, types.Event(types.EvtUpdateRoom, w.code))
	w.send(msg.Outbox, types.Event(types.EvtUpdateRoomState, string(res.Phase)))
	w.broadcast(types.Event(types.EvtUpdatePlayers, game.Summaries(res.Players)))

	// A mid-game join is a reconnection; resend the returning player's own
	// hand, which only their old connection ever saw.
	if res.Phase == game.PhasePlaying {
		for _, p := range res.Players {
			if p.Name == res.Name {
				w.send(msg.Outbox, types.Event(types.EvtUpdateDice, p.Dice))
				break
			}
		}
	}
}

func (w *Worker) handleLeave(msg Leave) {
	res, err := w.sessions.LeaveRoom(w.ctx, w.code, msg.Name)
	if err != nil {
		w.sendError(msg.ConnID, err)
		return
	}
	out := w.clients[msg.ConnID]
	delete(w.clients, msg.ConnID)
	if out != nil {
		w.send(out, types.Event(types.EvtUpdateRoomState, types.RoomStateJoin))
	}
	w.broadcast(types.Event(types.EvtUpdatePlayers, game.Summaries(res.Players)))
}

func (w *Worker) handleStart(msg Start) {
	res, err := w.sessions.StartGame(w.ctx, w.code)
	if err != nil {
		w.sendError(msg.ConnID, err)
		return
	}
	w.broadcast(types.Event(types.EvtUpdatePlayers, game.Summaries(res.Players)))
	w.broadcast(types.Event(types.EvtUpdateActivePlayer, res.ActivePlayer))
	w.broadcast(types.Event(types.EvtUpdateRoomState, string(res.Phase)))
	w.sendDice(res.Players)
}

func (w *Worker) handleRaise(msg Raise) {
	res, err := w.sessions.RaiseBet(w.ctx, w.code, msg.Bet)
	if err != nil {
		w.sendError(msg.ConnID, err)
		return
	}
	w.broadcast(types.Event(types.EvtUpdateBets, res.Bets))
	w.broadcast(types.Event(types.EvtUpdateActivePlayer, res.ActivePlayer))
}

func (w *Worker) handleShow(msg Show) {
	res, err := w.sessions.ShowDice(w.ctx, w.code, msg.Name)
	if err != nil {
		w.sendError(msg.ConnID, err)
		return
	}
	w.broadcast(types.Event(types.EvtUpdateWinner, res))
}

// handleReady marks the player ready and, once the whole table is, rolls the
// next round and announces it. The chain lives here, not in the engine.
func (w *Worker) handleReady(msg Ready) {
	res, err := w.sessions.ToggleReady(w.ctx, w.code, msg.Name)
	if err != nil {
		w.sendError(msg.ConnID, err)
		return
	}
	if !res.AllReady {
		return
	}
	round, err := w.sessions.NewRound(w.ctx, w.code)
	if err != nil {
		w.sendError(msg.ConnID, err)
		return
	}
	w.sendDice(round.Players)
	w.broadcast(types.Event(types.EvtUpdatePlayers, game.Summaries(round.Players)))
	w.broadcast(types.Event(types.EvtUpdateActivePlayer, round.ActivePlayer))
	w.broadcast(types.Event(types.EvtUpdateBets, round.Bets))
	w.broadcast(types.Event(types.EvtUpdateWinner, nil))
}

func (w *Worker) handleDetach(msg Detach) {
	if err := w.sessions.Detach(w.ctx, w.code, msg.ConnID); err != nil {
		w.log.Debug("detach skipped", zap.Error(err))
	}
	delete(w.clients, msg.ConnID)
}

// sendDice unicasts each player's own dice to their connection. Nobody else
// ever sees the values.
func (w *Worker) sendDice(players []game.Player) {
	for _, p := range players {
		if ch := w.clients[p.ConnectionID]; ch != nil {
			w.send(ch, types.Event(types.EvtUpdateDice, p.Dice))
		}
	}
}

func (w *Worker) sendError(connID string, err error) {
	if ch := w.clients[connID]; ch != nil {
		w.send(ch, types.ErrorMessage(err.Error()))
	}
}

func (w *Worker) send(ch chan types.ServerMessage, msg types.ServerMessage) {
	select {
	case ch <- msg:
	default:
		// Writer is wedged; drop the message rather than stall the room.
		w.log.Warn("dropping message for slow connection", zap.String("event", msg.Event))
	}
}

func (w *Worker) broadcast(msg types.ServerMessage) {
	for id, ch := range w.clients {
		select {
		case ch <- msg:
		default:
			// Slow client: drop it from the room rather than block everyone.
			// The channel is never closed here; the connection's writer owns
			// its lifetime.
			delete(w.clients, id)
			w.log.Warn("dropped slow connection", zap.String("conn", id))
		}
	}
}

// reapIfEmpty runs after every handled message, so workers spawned for
// error-only traffic (and rooms whose last slow client was dropped) report
// idle too instead of leaking.
func (w *Worker) reapIfEmpty() {
	if len(w.clients) == 0 && w.hooks.OnIdle != nil {
		w.hooks.OnIdle()
	}
}

func (w *Worker) shutdown() {
	clear(w.clients)
	w.cancel()
}
