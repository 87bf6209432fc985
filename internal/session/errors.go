package session

import "errors"

var (
	ErrRoomNotFound     = errors.New("room not found")
	ErrGameInProgress   = errors.New("game in progress")
	ErrNameInUse        = errors.New("name in use")
	ErrPlayerNotFound   = errors.New("could not find player")
	ErrPlayersNotFound  = errors.New("could not find players")
	ErrNoEligiblePlayer = errors.New("no player holds dice")
)
