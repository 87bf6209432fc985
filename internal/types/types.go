package types

// ClientMessage is the single inbound frame shape: a named event plus the
// fields that event uses. Room codes ride along on every in-room event, the
// way socket.io clients send them.
type ClientMessage struct {
	Event string    `json:"event"`
	Name  string    `json:"name,omitempty"`
	Room  string    `json:"room,omitempty"`
	Bet   *BetInput `json:"bet,omitempty"`
}

type BetInput struct {
	Player string `json:"player"`
	Count  int    `json:"count"`
	Value  int    `json:"value"`
}

// Inbound event names.
const (
	EvtCreateRoom = "create room"
	EvtJoinRoom   = "join room"
	EvtLeaveRoom  = "leave room"
	EvtStartGame  = "start game"
	EvtRaiseBet   = "raise bet"
	EvtShowDice   = "show dice"
	EvtReadyRound = "ready round"
)

// ServerMessage is the single outbound frame shape. Data always serializes,
// so a nil payload reaches clients as an explicit null; the winner reset at
// the start of a round depends on that.
type ServerMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Outbound event names. "error message" only ever goes to the connection
// that caused it.
const (
	EvtUpdateName         = "update name"
	EvtUpdateRoom         = "update room"
	EvtUpdateRoomState    = "update room state"
	EvtUpdatePlayers      = "update players"
	EvtUpdateActivePlayer = "update active player"
	EvtUpdateBets         = "update bets"
	EvtUpdateDice         = "update dice"
	EvtUpdateWinner       = "update winner"
	EvtErrorMessage       = "error message"
)

// RoomStateJoin is the extra "update room state" value that sends a client
// back to the join screen after leaving a room.
const RoomStateJoin = "join"

func Event(event string, data any) ServerMessage {
	return ServerMessage{Event: event, Data: data}
}

func ErrorMessage(text string) ServerMessage {
	return ServerMessage{Event: EvtErrorMessage, Data: text}
}
