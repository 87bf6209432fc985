package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"liarsdice/internal/game"
	"liarsdice/internal/hub"
	"liarsdice/internal/room"
	"liarsdice/internal/rooms"
	"liarsdice/internal/session"
	"liarsdice/internal/types"
)

const (
	msgMissingName    = "Missing name"
	msgInvalidRoom    = "Invalid room code"
	msgInvalidRequest = "Invalid request"
)

// Handler accepts a websocket connection and routes its named events. Each
// frame names its room, so one connection can create, join, and leave rooms
// over its lifetime; the per-room worker serializes the actual game logic.
func Handler(h *hub.Hub, sessions *session.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		c := &client{
			hub:      h,
			sessions: sessions,
			connID:   uuid.NewString(),
			out:      make(chan types.ServerMessage, 16),
			log:      log,
		}
		log.Info("connection open", zap.String("conn", c.connID))

		// Writer goroutine: drains the outbox that workers (and this reader)
		// feed. It exits with the request context; the channel itself is
		// never closed.
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for {
				select {
				case <-writeCtx.Done():
					return
				case msg := <-c.out:
					payload, err := json.Marshal(msg)
					if err != nil {
						continue
					}
					ctx, cancel := context.WithTimeout(writeCtx, 3*time.Second)
					_ = conn.Write(ctx, websocket.MessageText, payload)
					cancel()
				}
			}
		}()

		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				c.detach()
				log.Info("connection closed", zap.String("conn", c.connID))
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				c.unicast(types.ErrorMessage(msgInvalidRequest))
				continue
			}
			c.dispatch(r.Context(), cm)
		}
	}
}

type client struct {
	hub      *hub.Hub
	sessions *session.Service
	connID   string
	out      chan types.ServerMessage
	current  string // room joined over this connection, "" if none
	log      *zap.Logger
}

func (c *client) dispatch(ctx context.Context, cm types.ClientMessage) {
	switch cm.Event {
	case types.EvtCreateRoom:
		c.createRoom(ctx, cm)

	case types.EvtJoinRoom:
		if !c.requireName(cm) || !c.requireRoom(cm) {
			return
		}
		if c.current != "" && c.current != cm.Room {
			c.detach()
		}
		w := c.ensure(cm.Room)
		c.current = cm.Room
		w.Inbox() <- room.Join{ConnID: c.connID, Name: cm.Name, Outbox: c.out}

	case types.EvtLeaveRoom:
		if !c.requireName(cm) || !c.requireRoom(cm) {
			return
		}
		w := c.get(cm.Room)
		if w == nil {
			return
		}
		c.current = ""
		w.Inbox() <- room.Leave{ConnID: c.connID, Name: cm.Name}

	case types.EvtStartGame:
		if !c.requireRoom(cm) {
			return
		}
		if w := c.get(cm.Room); w != nil {
			w.Inbox() <- room.Start{ConnID: c.connID}
		}

	case types.EvtRaiseBet:
		if !c.requireRoom(cm) {
			return
		}
		if cm.Bet == nil {
			c.unicast(types.ErrorMessage(msgInvalidRequest))
			return
		}
		if w := c.get(cm.Room); w != nil {
			w.Inbox() <- room.Raise{
				ConnID: c.connID,
				Bet:    game.Bet{Player: cm.Bet.Player, Count: cm.Bet.Count, Value: cm.Bet.Value},
			}
		}

	case types.EvtShowDice:
		if !c.requireName(cm) || !c.requireRoom(cm) {
			return
		}
		if w := c.get(cm.Room); w != nil {
			w.Inbox() <- room.Show{ConnID: c.connID, Name: cm.Name}
		}

	case types.EvtReadyRound:
		if !c.requireName(cm) || !c.requireRoom(cm) {
			return
		}
		if w := c.get(cm.Room); w != nil {
			w.Inbox() <- room.Ready{ConnID: c.connID, Name: cm.Name}
		}

	default:
		c.unicast(types.ErrorMessage(msgInvalidRequest))
	}
}

// createRoom is the one engine call made outside a worker: the code is
// freshly unique, so no concurrent writer for it can exist yet. The creator
// is then attached to the new worker for future broadcasts.
func (c *client) createRoom(ctx context.Context, cm types.ClientMessage) {
	if !c.requireName(cm) {
		return
	}
	code, err := c.sessions.CreateRoom(ctx, cm.Name, c.connID)
	if err != nil {
		c.unicast(types.ErrorMessage(err.Error()))
		return
	}
	if c.current != "" {
		c.detach()
	}
	w := c.ensure(code)
	c.current = code
	w.Inbox() <- room.Attach{ConnID: c.connID, Outbox: c.out}

	c.unicast(types.Event(types.EvtUpdateRoomState, string(game.PhaseLobby)))
	c.unicast(types.Event(types.EvtUpdateName, cm.Name))
	c.unicast(types.Event(types.EvtUpdateRoom, code))
	c.unicast(types.Event(types.EvtUpdatePlayers, []game.Summary{{Name: cm.Name, RemainingDice: 0}}))
}

func (c *client) detach() {
	if c.current == "" {
		return
	}
	reply := make(chan *room.Worker, 1)
	c.hub.Inbox() <- hub.GetRoom{Code: c.current, Reply: reply}
	if w := <-reply; w != nil {
		w.Inbox() <- room.Detach{ConnID: c.connID}
	}
}

// ensure spawns the room's worker if needed. Only joins and room creation go
// through it; a missing worker elsewhere means nobody is in the room.
func (c *client) ensure(code string) *room.Worker {
	reply := make(chan *room.Worker, 1)
	c.hub.Inbox() <- hub.EnsureRoom{Code: code, Reply: reply}
	return <-reply
}

// get resolves a live worker without spawning one. A nil result is reported
// to the sender: their room has nobody in it, or never existed.
func (c *client) get(code string) *room.Worker {
	reply := make(chan *room.Worker, 1)
	c.hub.Inbox() <- hub.GetRoom{Code: code, Reply: reply}
	w := <-reply
	if w == nil {
		c.unicast(types.ErrorMessage(session.ErrRoomNotFound.Error()))
	}
	return w
}

func (c *client) requireName(cm types.ClientMessage) bool {
	if cm.Name == "" {
		c.unicast(types.ErrorMessage(msgMissingName))
		return false
	}
	return true
}

func (c *client) requireRoom(cm types.ClientMessage) bool {
	if len(cm.Room) != rooms.CodeLength {
		c.unicast(types.ErrorMessage(msgInvalidRoom))
		return false
	}
	return true
}

// unicast feeds this connection's own outbox, same non-blocking discipline
// as the workers.
func (c *client) unicast(msg types.ServerMessage) {
	select {
	case c.out <- msg:
	default:
		c.log.Warn("dropping message for slow connection", zap.String("conn", c.connID))
	}
}
