package hub

import (
	"context"

	"go.uber.org/zap"

	"liarsdice/internal/room"
	"liarsdice/internal/session"
)

type HubMsg interface{ isHubMsg() }

// EnsureRoom returns the worker for a code, creating it if needed. The room
// record may or may not exist in the store; the worker's engine calls decide
// that.
type EnsureRoom struct {
	Code  string
	Reply chan *room.Worker
}

type GetRoom struct {
	Code  string
	Reply chan *room.Worker // may be nil
}

// RemoveRoom asks a room's worker to stop. The worker only honors it while it
// has no connections, and the hub drops its map entry only after the worker
// confirms it stopped, so a worker that picked up a client in the meantime is
// never orphaned.
type RemoveRoom struct{ Code string }

type ShutdownHub struct{}

// workerStopped is the worker's confirmation that it stopped processing. The
// pointer guards against a fresh worker already occupying the code.
type workerStopped struct {
	code   string
	worker *room.Worker
}

// redeliverMsg carries a message that reached a stopped worker; the hub
// forwards it to the code's live worker, spawning one if needed.
type redeliverMsg struct {
	code string
	msg  room.Msg
}

func (EnsureRoom) isHubMsg()    {}
func (GetRoom) isHubMsg()       {}
func (RemoveRoom) isHubMsg()    {}
func (ShutdownHub) isHubMsg()   {}
func (workerStopped) isHubMsg() {}
func (redeliverMsg) isHubMsg()  {}

// Hub is the registry actor mapping live room codes to their single-writer
// workers. Workers report back through RemoveRoom when they go idle; record
// state outlives the worker in the store.
type Hub struct {
	inbox    chan HubMsg
	rooms    map[string]*room.Worker
	sessions *session.Service
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewHub(parent context.Context, sessions *session.Service, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:    make(chan HubMsg, 64),
		rooms:    make(map[string]*room.Worker),
		sessions: sessions,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case EnsureRoom:
				if w := h.rooms[msg.Code]; w != nil {
					msg.Reply <- w
					break
				}
				msg.Reply <- h.spawn(msg.Code)

			case GetRoom:
				msg.Reply <- h.rooms[msg.Code]

			case RemoveRoom:
				if w := h.rooms[msg.Code]; w != nil {
					h.post(msg.Code, w, room.StopIfIdle{})
				}

			case workerStopped:
				if h.rooms[msg.code] == msg.worker {
					delete(h.rooms, msg.code)
				}

			case redeliverMsg:
				w := h.rooms[msg.code]
				if w == nil {
					w = h.spawn(msg.code)
				}
				h.post(msg.code, w, msg.msg)

			case ShutdownHub:
				for _, w := range h.rooms {
					w.Inbox() <- room.Shutdown{}
				}
				clear(h.rooms)
				h.cancel()
			}
		}
	}
}

func (h *Hub) spawn(code string) *room.Worker {
	// Hooks post back into the hub inbox; buffered, so a worker never blocks
	// the hub and the hub never blocks on a worker.
	var w *room.Worker
	w = room.NewWorker(h.ctx, code, h.sessions, h.log, room.Hooks{
		OnIdle:    func() { h.inbox <- RemoveRoom{Code: code} },
		OnStopped: func() { h.inbox <- workerStopped{code: code, worker: w} },
		Redeliver: func(m room.Msg) { h.inbox <- redeliverMsg{code: code, msg: m} },
	})
	h.rooms[code] = w
	return w
}

// post never blocks the hub loop; a saturated room inbox loses the message,
// same as a saturated connection outbox would.
func (h *Hub) post(code string, w *room.Worker, m room.Msg) {
	select {
	case w.Inbox() <- m:
	default:
		h.log.Warn("dropping message for saturated room", zap.String("room", code))
	}
}
