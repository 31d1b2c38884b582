// Package transport is the daemon's WebSocket surface. The UI keeps one
// connection open; every message either side sends is an Envelope with a
// type tag and a type-specific payload.
//
// Each connection is handled by a single actor goroutine pair (reader and
// writer), so per-connection state — the authenticated claims and the
// running scan — needs no locking beyond the actor's own structure.
package transport

import "encoding/json"

// Envelope is the wire frame for every message in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client → server message types.
const (
	TypeAuthenticate      = "authenticate"
	TypeFetchGames        = "fetch_games"
	TypeFetchAchievements = "fetch_achievements"
	TypeSyncFromSteam     = "sync_from_steam" // lightweight recently-played update
	TypeFullScan          = "full_scan"
	TypeRefreshGame       = "refresh_game"
	TypeCancelScan        = "cancel_scan"
	TypeFetchHistory      = "fetch_history"
	TypeViewGuest         = "view_guest"
	TypeCloudStatus       = "cloud_status"
	TypeCloudUpload       = "cloud_upload"
	TypeCloudDownload     = "cloud_download"
	TypePing              = "ping"
)

// Server → client message types.
const (
	TypeAuthenticated = "authenticated"
	TypeAuthError     = "auth_error"
	TypeGames         = "games"
	TypeAchievements  = "achievements"
	TypeSyncProgress  = "sync_progress"
	TypeSyncComplete  = "sync_complete"
	TypeHistory       = "history"
	TypeGuestLibrary  = "guest_library"
	TypeGuestNotFound = "guest_not_found"
	TypeCloudState    = "cloud_state"
	TypeCloudSynced   = "cloud_synced"
	TypeError         = "error"
	TypePong          = "pong"
)

type authenticatePayload struct {
	Token string `json:"token"`
}

type fetchAchievementsPayload struct {
	AppID int64 `json:"appid"`
}

type refreshGamePayload struct {
	AppID int64 `json:"appid"`
}

type fullScanPayload struct {
	Force bool `json:"force"`
}

type viewGuestPayload struct {
	ShortID string `json:"short_id"`
}

type errorPayload struct {
	Message string `json:"message"`
}

func mustEnvelope(msgType string, payload any) Envelope {
	if payload == nil {
		return Envelope{Type: msgType}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		// Payloads are our own structs; a marshal failure is a
		// programming error.
		panic(err)
	}
	return Envelope{Type: msgType, Payload: raw}
}
