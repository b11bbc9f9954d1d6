/*
Game coordinates the trading game of every conversation.

# Module
  - guards: syntax, going game, security in game, player in roster
  - handlers: start, info, buy, sell, end round, help
  - render: reply text for every outcome

# Source
  - parsed commands from the poller, one conversation at a time
  - conversation roster from the transport

# Produce
  - reply text back to the poller
  - games, accounts and winners through the store

# Sharded
  - conversationID
*/
package game
