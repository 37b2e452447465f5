package gateway

import "guessduel/internal/match"

// Inbound events.
const (
	EventJoinQueue          = "joinQueue"
	EventLeaveQueue         = "leaveQueue"
	EventJoinedGame         = "joinedGame"
	EventPlayerReady        = "playerReady"
	EventSubmitGuess        = "submitGuess"
	EventRequestRematch     = "requestRematch"
	EventSpectateMatch      = "spectateMatch"
	EventStopSpectating     = "stopSpectating"
	EventRequestPlayerStats = "requestPlayerStats"
)

// Outbound events.
const (
	EventQueueJoined          = "queueJoined"
	EventQueueMatched         = "queueMatched"
	EventPlayerStats          = "playerStats"
	EventRoundStart           = "roundStart"
	EventPartnerReady         = "partnerReady"
	EventPlayerPoints         = "playerPoints"
	EventPartnerPoints        = "partnerPoints"
	EventPartnerSubmitted     = "partnerSubmitted"
	EventRoundOver            = "roundOver"
	EventGameOver             = "gameOver"
	EventRematchStatus        = "rematchStatus"
	EventRematchStarting      = "rematchStarting"
	EventOpponentDisconnected = "opponentDisconnected"
	EventSpectateMatchResult  = "spectateMatchResult"
	EventSpectatorUpdate      = "spectatorUpdate"
	EventSpectatorRoundOver   = "spectatorRoundOver"
	EventSpectatorRoundStart  = "spectatorRoundStart"
)

const (
	msgSessionNotFound = "Game session not found"
	msgNotStarted      = "Game has not started yet"
	msgWaiting         = "Waiting for an opponent"
)

type joinQueueRequest struct {
	Modifier string `json:"modifier"`
}

type sessionRequest struct {
	SessionID string `json:"sessionId"`
	SocketID  string `json:"socketId,omitempty"`
}

type guessRequest struct {
	SessionID string  `json:"sessionId"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
}

type queueJoined struct {
	Message string `json:"message"`
}

type queueMatched struct {
	SessionID string `json:"sessionId"`
	PartnerID string `json:"partnerId"`
}

type partnerReady struct {
	Ready bool `json:"ready"`
}

type points struct {
	Points    int  `json:"points"`
	TimeBonus *int `json:"timeBonus,omitempty"`
}

type partnerSubmitted struct {
	SubmittedAt *int64 `json:"submittedAt,omitempty"`
}

type gameOver struct {
	Winner string `json:"winner"`
	Tie    bool   `json:"tie"`
}

type spectateResult struct {
	Success   bool                 `json:"success"`
	GameState *match.SpectatorView `json:"gameState,omitempty"`
	Error     string               `json:"error,omitempty"`
}

func spectateChannel(session string) string {
	return "spectate:" + session
}
