package enum

// CommandKind identifies a chat command.
type CommandKind uint8

const (
	CommandUnrecognized CommandKind = iota
	CommandStartGame
	CommandInfo
	CommandBuy
	CommandSell
	CommandEndRound
	CommandHelp
	_command_end
)

func (k CommandKind) IsAvailable() bool {
	return k > CommandUnrecognized && k < _command_end
}

func (k CommandKind) String() string {
	switch k {
	case CommandStartGame:
		return "start_game"
	case CommandInfo:
		return "info"
	case CommandBuy:
		return "buy"
	case CommandSell:
		return "sell"
	case CommandEndRound:
		return "end_round"
	case CommandHelp:
		return "help"
	default:
		return "unrecognized"
	}
}
