package internal

// Message types published on the room topics.
const (
	MsgTimerUpdate    = "timer_update"
	MsgGameStarted    = "game_started"
	MsgVoteResult     = "vote_result"
	MsgPlayerExecuted = "player_executed"
	MsgNightResult    = "night_result"
	MsgPermissions    = "permissions"
	MsgGameOver       = "game_over"
	MsgGameDeleted    = "game_deleted"
	MsgVoiceToken     = "voice_token"
	MsgLobbyUpdate    = "lobby_update"
)

type Message[T any] struct {
	Type string `json:"type"`
	Data T      `json:"data"`
}

type TimerUpdateData struct {
	Time  int   `json:"time"`
	Phase Phase `json:"phase"`
}

type GameStartedData struct {
	RoomID  int64            `json:"room_id"`
	Phase   Phase            `json:"phase"`
	Time    int              `json:"time"`
	Players []PlayerSnapshot `json:"players"`
}

type VoteResultData struct {
	Target int64         `json:"target"`
	Tally  map[int64]int `json:"tally"`
	Final  bool          `json:"final"`
}

type ExecutionData struct {
	Target int64 `json:"target"`
	Role   Role  `json:"role"`
}

type NightResultData struct {
	Healed int64   `json:"healed"`
	Killed []int64 `json:"killed"`
	Day    int     `json:"day"`
}

type PermissionsData struct {
	Phase    Phase              `json:"phase"`
	Channels map[int64][]string `json:"channels"`
}

type GameOverData struct {
	Status  GameStatus       `json:"status"`
	Players []PlayerSnapshot `json:"players"`
	Roles   map[int64]Role   `json:"roles"`
}

type GameDeletedData struct {
	RoomID int64 `json:"room_id"`
}

type VoiceTokenData struct {
	SessionID string `json:"session_id"`
	Token     string `json:"token"`
}

type LobbyUpdateData struct {
	RoomID       int64         `json:"room_id"`
	Participants []Participant `json:"participants"`
	ReadyCount   int           `json:"ready_count"`
}

// GameStateData is the public view of a running game.
type GameStateData struct {
	RoomID  int64            `json:"room_id"`
	Status  GameStatus       `json:"status"`
	Phase   Phase            `json:"phase"`
	Time    int              `json:"time"`
	Day     int              `json:"day"`
	Alive   int              `json:"alive"`
	Dead    int              `json:"dead"`
	Nominee int64            `json:"nominee"`
	Players []PlayerSnapshot `json:"players"`
}

// PlayerViewData is a player's private view of themselves.
type PlayerViewData struct {
	MemberID    int64    `json:"member_id"`
	Nickname    string   `json:"nickname"`
	Role        Role     `json:"role"`
	Alive       bool     `json:"alive"`
	CanVote     bool     `json:"can_vote"`
	Channels    []string `json:"channels"`
	HealCharges int      `json:"heal_charges,omitempty"`
}
