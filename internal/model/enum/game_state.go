package enum

// GameState is the lifecycle state of a game.
type GameState uint8

const (
	_gameState_beg GameState = iota
	GameStateGoing
	GameStateEnded
	_gameState_end
)

func (s GameState) IsAvailable() bool {
	return s > _gameState_beg && s < _gameState_end
}

func (s GameState) String() string {
	switch s {
	case GameStateGoing:
		return "GOING"
	case GameStateEnded:
		return "ENDED"
	default:
		return "UNKNOWN"
	}
}

// ParseGameState maps the persisted name back to a GameState.
func ParseGameState(name string) GameState {
	switch name {
	case "GOING":
		return GameStateGoing
	case "ENDED":
		return GameStateEnded
	default:
		return _gameState_beg
	}
}
