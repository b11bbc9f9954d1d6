package game

const (
	TextGameStarted      = "The game has already started."
	TextGameStarting     = "The game is starting! Trade with /buy CODE COUNT and /cell CODE COUNT, finish the round with /end_round."
	TextWaiting          = "Waiting for players to join the conversation."
	TextGameNotStarted   = "The game has not started yet. Send /start_game to begin."
	TextUserNotPlaying   = "You are not playing in this game."
	TextSecurityNotExist = "This security does not exist."
	TextWrongBuy         = "Wrong message. Use: /buy CODE COUNT"
	TextWrongSell        = "Wrong message. Use: /cell CODE COUNT"
	TextAlreadyFinished  = "You have already finished this round."
	TextWaitingOthers    = "Round finished for you. Waiting for the other players."

	TextBought               = "Bought %d %s for %s. Balance: %s"
	TextSold                 = "Sold %d %s for %s. Remaining %s: %d. Balance: %s"
	TextInsufficientFunds    = "Not enough money: the purchase costs %s, your balance is %s."
	TextNoSuchHolding        = "You do not hold any %s."
	TextInsufficientQuantity = "Not enough securities: you hold %d %s."

	TextRoundStarted = "Round %d started."
	TextPriceChange  = "%s: %s -> %s (%s)"
	TextGameOver     = "The game is over!"
	TextStanding     = "%s: %s"
	TextWinner       = "Winner: %s with %s (wins: %d)"

	TextInfoPlayers    = "Players:"
	TextInfoPlayer     = "%s (wins: %d)"
	TextInfoSecurities = "Securities:"
	TextInfoRound      = "Round %d"
	TextSecurity       = "%s Code: %s Price for one: %s"

	TextHelp = "Commands:\n" +
		"/start_game - start a game with the conversation members\n" +
		"/info - players, securities and the current round\n" +
		"/buy CODE COUNT - buy securities\n" +
		"/cell CODE COUNT - sell securities (/sell works too)\n" +
		"/end_round - finish your round"
)
