// Package realtime carries admission and rank-change notifications from
// the periodic jobs to connected clients.  Events travel over the shared
// store's pub/sub so any instance can serve the websocket for a user that
// another instance admitted.  Delivery is best-effort: a client with no
// open connection falls back to polling the status endpoint.
package realtime

// AdmissionEvent announces that a user has been granted access.
type AdmissionEvent struct {
	EventID string `json:"event_id"`
	UserID  string `json:"user_id"`
	Token   string `json:"token"`
}

// RankUpdateEvent announces a user's current queue position.
type RankUpdateEvent struct {
	EventID string `json:"event_id"`
	UserID  string `json:"user_id"`
	Rank    int64  `json:"rank"`
}

// Client-facing message types pushed over the websocket.
const (
	MessageAdmit      = "ADMIT"
	MessageRankUpdate = "RANK_UPDATE"
)

// ServerMessage is the payload written to a client connection.
type ServerMessage struct {
	Type      string `json:"type"`
	AccessKey string `json:"access_key,omitempty"`
	Rank      int64  `json:"rank,omitempty"`
}
