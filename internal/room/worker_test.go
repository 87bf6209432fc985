package room

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"liarsdice/internal/game"
	"liarsdice/internal/rooms"
	"liarsdice/internal/session"
	"liarsdice/internal/types"
)

// recvMsg receives one server message with a timeout so tests never hang.
func recvMsg(t *testing.T, ch <-chan types.ServerMessage, within time.Duration) types.ServerMessage {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(within):
		t.Fatalf("timed out waiting for server message")
		return types.ServerMessage{} // unreachable
	}
}

// recvEvent drains messages until one with the wanted event arrives.
func recvEvent(t *testing.T, ch <-chan types.ServerMessage, event string, within time.Duration) types.ServerMessage {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case msg := <-ch:
			if msg.Event == event {
				return msg
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q", event)
			return types.ServerMessage{} // unreachable
		}
	}
}

func newFixture(t *testing.T) (*session.Service, *rooms.Directory) {
	t.Helper()
	dir := rooms.NewDirectory(rooms.NewMemoryStore(), time.Minute)
	return session.New(dir, game.NewRoller(1), zap.NewNop()), dir
}

func startWorker(t *testing.T, sessions *session.Service, code string, hooks Hooks) *Worker {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewWorker(ctx, code, sessions, zap.NewNop(), hooks)
}

// idleHook returns a Hooks whose OnIdle signals the channel without ever
// blocking the worker; the idle report repeats while the worker stays empty.
func idleHook(signal chan struct{}) Hooks {
	return Hooks{OnIdle: func() {
		select {
		case signal <- struct{}{}:
		default:
		}
	}}
}

func TestWorker_JoinBroadcastsRoster(t *testing.T) {
	sessions, _ := newFixture(t)
	code, err := sessions.CreateRoom(context.Background(), "ana", "conn-a")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	w := startWorker(t, sessions, code, Hooks{})

	anaOut := make(chan types.ServerMessage, 16)
	w.Inbox() <- Attach{ConnID: "conn-a", Outbox: anaOut}

	bobOut := make(chan types.ServerMessage, 16)
	w.Inbox() <- Join{ConnID: "conn-b", Name: "bob", Outbox: bobOut}

	if msg := recvMsg(t, bobOut, time.Second); msg.Event != types.EvtUpdateName || msg.Data != "bob" {
		t.Fatalf("want update name bob, got %+v", msg)
	}
	if msg := recvMsg(t, bobOut, time.Second); msg.Event != types.EvtUpdateRoom || msg.Data != code {
		t.Fatalf("want update room %s, got %+v", code, msg)
	}
	if msg := recvMsg(t, bobOut, time.Second); msg.Event != types.EvtUpdateRoomState || msg.Data != "lobby" {
		t.Fatalf("want update room state lobby, got %+v", msg)
	}

	// Both connections get the roster.
	for _, ch := range []chan types.ServerMessage{bobOut, anaOut} {
		msg := recvEvent(t, ch, types.EvtUpdatePlayers, time.Second)
		players, ok := msg.Data.([]game.Summary)
		if !ok || len(players) != 2 {
			t.Fatalf("want 2-player roster, got %+v", msg.Data)
		}
	}
}

func TestWorker_JoinUnknownRoom_ErrorUnicastOnly(t *testing.T) {
	sessions, _ := newFixture(t)
	w := startWorker(t, sessions, "ZZZZ", Hooks{})

	out := make(chan types.ServerMessage, 16)
	w.Inbox() <- Join{ConnID: "conn-a", Name: "ana", Outbox: out}

	msg := recvMsg(t, out, time.Second)
	if msg.Event != types.EvtErrorMessage {
		t.Fatalf("want error message, got %+v", msg)
	}

	// The failed join must not register the connection.
	reply := make(chan View, 1)
	w.Inbox() <- GetView{Reply: reply}
	if view := <-reply; view.NumClients != 0 {
		t.Fatalf("failed join registered a client: %+v", view)
	}
}

func TestWorker_StartGameDealsPrivateDice(t *testing.T) {
	sessions, _ := newFixture(t)
	ctx := context.Background()
	code, err := sessions.CreateRoom(ctx, "ana", "conn-a")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	w := startWorker(t, sessions, code, Hooks{})

	anaOut := make(chan types.ServerMessage, 16)
	w.Inbox() <- Attach{ConnID: "conn-a", Outbox: anaOut}
	bobOut := make(chan types.ServerMessage, 16)
	w.Inbox() <- Join{ConnID: "conn-b", Name: "bob", Outbox: bobOut}

	w.Inbox() <- Start{ConnID: "conn-a"}

	if msg := recvEvent(t, anaOut, types.EvtUpdateRoomState, time.Second); msg.Data != "playing" {
		t.Fatalf("want playing, got %+v", msg)
	}

	for name, ch := range map[string]chan types.ServerMessage{"ana": anaOut, "bob": bobOut} {
		msg := recvEvent(t, ch, types.EvtUpdateDice, time.Second)
		dice, ok := msg.Data.([]int)
		if !ok || len(dice) != game.HandSize {
			t.Fatalf("%s: want %d private dice, got %+v", name, game.HandSize, msg.Data)
		}
	}
}

func TestWorker_BetRevealReadyCycle(t *testing.T) {
	sessions, dir := newFixture(t)
	ctx := context.Background()

	// Fixed hands so the reveal outcome is known: bet of three 2s is
	// truthful (two 2s plus one wild).
	rec := &game.Record{
		RoomCode: "ROOM",
		Phase:    game.PhasePlaying,
		Players: []game.Player{
			{ConnectionID: "conn-a", Name: "ana", Dice: []int{2, 2, 1}},
			{ConnectionID: "conn-b", Name: "bob", Dice: []int{3, 3}},
		},
		Bets: []game.Bet{},
	}
	if err := dir.Save(ctx, rec); err != nil {
		t.Fatalf("seed: %v", err)
	}

	w := startWorker(t, sessions, "ROOM", Hooks{})
	anaOut := make(chan types.ServerMessage, 32)
	bobOut := make(chan types.ServerMessage, 32)
	w.Inbox() <- Attach{ConnID: "conn-a", Outbox: anaOut}
	w.Inbox() <- Attach{ConnID: "conn-b", Outbox: bobOut}

	w.Inbox() <- Raise{ConnID: "conn-a", Bet: game.Bet{Player: "ana", Count: 3, Value: 2}}

	if msg := recvEvent(t, bobOut, types.EvtUpdateActivePlayer, time.Second); msg.Data != "bob" {
		t.Fatalf("want active player bob, got %+v", msg)
	}

	w.Inbox() <- Show{ConnID: "conn-b", Name: "bob"}

	msg := recvEvent(t, anaOut, types.EvtUpdateWinner, time.Second)
	reveal, ok := msg.Data.(session.RevealResult)
	if !ok {
		t.Fatalf("want reveal payload, got %+v", msg.Data)
	}
	if reveal.Winner != "ana" {
		t.Fatalf("want winner ana, got %q", reveal.Winner)
	}
	if len(reveal.PlayersRevealed[1].Dice) != 2 {
		t.Fatalf("reveal must show pre-penalty dice, got %+v", reveal.PlayersRevealed)
	}

	// First ready does not start a round; the second one does.
	w.Inbox() <- Ready{ConnID: "conn-a", Name: "ana"}
	w.Inbox() <- Ready{ConnID: "conn-b", Name: "bob"}

	dice := recvEvent(t, bobOut, types.EvtUpdateDice, time.Second)
	if got, ok := dice.Data.([]int); !ok || len(got) != 1 {
		t.Fatalf("bob should start the round with 1 die, got %+v", dice.Data)
	}
	// anaOut's reveal was already consumed, so the next winner event there is
	// the new round's reset.
	if msg := recvEvent(t, anaOut, types.EvtUpdateWinner, time.Second); msg.Data != nil {
		t.Fatalf("new round must clear the winner, got %+v", msg)
	}
}

func TestWorker_DetachVacatesSeatAndReapsWhenEmpty(t *testing.T) {
	sessions, dir := newFixture(t)
	ctx := context.Background()
	code, err := sessions.CreateRoom(ctx, "ana", "conn-a")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	idle := make(chan struct{}, 1)
	w := startWorker(t, sessions, code, idleHook(idle))

	out := make(chan types.ServerMessage, 16)
	w.Inbox() <- Attach{ConnID: "conn-a", Outbox: out}
	w.Inbox() <- Detach{ConnID: "conn-a"}

	select {
	case <-idle:
	case <-time.After(time.Second):
		t.Fatalf("worker never reported idle")
	}

	rec, ok, err := dir.Load(ctx, code)
	if err != nil || !ok {
		t.Fatalf("load: %v ok=%v", err, ok)
	}
	if rec.Players[0].ConnectionID != "" {
		t.Fatalf("detach should vacate the seat, got %q", rec.Players[0].ConnectionID)
	}
}

func TestWorker_IdleAfterErrorOnlyTraffic(t *testing.T) {
	sessions, _ := newFixture(t)
	idle := make(chan struct{}, 1)

	// No record exists under this code, so every message fails and nobody
	// ever registers. The worker must still report idle instead of lingering.
	w := startWorker(t, sessions, "ZZZZ", idleHook(idle))
	w.Inbox() <- Start{ConnID: "conn-a"}

	select {
	case <-idle:
	case <-time.After(time.Second):
		t.Fatalf("empty worker never reported idle after an error-only message")
	}

	out := make(chan types.ServerMessage, 16)
	w.Inbox() <- Join{ConnID: "conn-a", Name: "ana", Outbox: out}
	if msg := recvMsg(t, out, time.Second); msg.Event != types.EvtErrorMessage {
		t.Fatalf("want error message, got %+v", msg)
	}
	select {
	case <-idle:
	case <-time.After(time.Second):
		t.Fatalf("worker never reported idle after a failed join")
	}
}

func TestWorker_StopIfIdleIgnoredWithClients(t *testing.T) {
	sessions, _ := newFixture(t)
	code, err := sessions.CreateRoom(context.Background(), "ana", "conn-a")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	stopped := make(chan struct{}, 1)
	w := startWorker(t, sessions, code, Hooks{
		OnStopped: func() { stopped <- struct{}{} },
	})

	out := make(chan types.ServerMessage, 16)
	w.Inbox() <- Attach{ConnID: "conn-a", Outbox: out}
	w.Inbox() <- StopIfIdle{}

	select {
	case <-stopped:
		t.Fatalf("worker stopped while a connection was attached")
	case <-time.After(100 * time.Millisecond):
	}

	// Still serving: a view request answers with the attached client.
	reply := make(chan View, 1)
	w.Inbox() <- GetView{Reply: reply}
	if view := <-reply; view.NumClients != 1 {
		t.Fatalf("want 1 client, got %+v", view)
	}
}

func TestWorker_StoppedWorkerRedeliversLateMessages(t *testing.T) {
	sessions, _ := newFixture(t)
	code, err := sessions.CreateRoom(context.Background(), "ana", "conn-a")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	stopped := make(chan struct{}, 1)
	redelivered := make(chan Msg, 1)
	w := startWorker(t, sessions, code, Hooks{
		OnStopped: func() { stopped <- struct{}{} },
		Redeliver: func(m Msg) { redelivered <- m },
	})

	w.Inbox() <- StopIfIdle{}
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatalf("empty worker never confirmed it stopped")
	}

	// A connection that resolved the worker pointer just before removal
	// posts into the stopped worker; the message must come back out for
	// redelivery instead of vanishing.
	join := Join{ConnID: "conn-b", Name: "bob", Outbox: make(chan types.ServerMessage, 16)}
	w.Inbox() <- join

	select {
	case m := <-redelivered:
		got, ok := m.(Join)
		if !ok || got.Name != "bob" {
			t.Fatalf("want the late join back, got %+v", m)
		}
	case <-time.After(time.Second):
		t.Fatalf("late message was dropped by the stopped worker")
	}
}

func TestWorker_ReconnectReceivesOwnDice(t *testing.T) {
	sessions, dir := newFixture(t)
	ctx := context.Background()

	// ana's seat is vacant mid-game, as after her connection dropped.
	rec := &game.Record{
		RoomCode: "ROOM",
		Phase:    game.PhasePlaying,
		Players: []game.Player{
			{ConnectionID: "", Name: "ana", Dice: []int{2, 2, 1}},
			{ConnectionID: "conn-b", Name: "bob", Dice: []int{3, 3}},
		},
		Bets: []game.Bet{},
	}
	if err := dir.Save(ctx, rec); err != nil {
		t.Fatalf("seed: %v", err)
	}

	w := startWorker(t, sessions, "ROOM", Hooks{})
	out := make(chan types.ServerMessage, 16)
	w.Inbox() <- Join{ConnID: "conn-a2", Name: "ana", Outbox: out}

	if msg := recvEvent(t, out, types.EvtUpdateRoomState, time.Second); msg.Data != "playing" {
		t.Fatalf("want playing, got %+v", msg)
	}
	msg := recvEvent(t, out, types.EvtUpdateDice, time.Second)
	dice, ok := msg.Data.([]int)
	if !ok || len(dice) != 3 || dice[0] != 2 || dice[1] != 2 || dice[2] != 1 {
		t.Fatalf("reconnect must resend the player's own hand, got %+v", msg.Data)
	}
}
