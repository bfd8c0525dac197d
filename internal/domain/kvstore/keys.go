package kvstore

// Keys of the state blobs persisted by the pipeline services.
const (
	KeyQuotaTracker    = "quota_tracker"
	KeyGameStates      = "game_states"
	KeyPlayerDirectory = "player_directory"
	KeyPlayerLinks     = "player_links"
	KeyStoredEvents    = "stored_events"
)
