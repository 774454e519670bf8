package tsugudto

import "encoding/json"

// Content item types emitted by the render backend.
const (
	ContentTypeString = "string"
	ContentTypeBase64 = "base64"
)

// ContentItem is one element of the backend's ordered response list: either a
// text run or a base64-encoded image. Order is meaningful and must be kept.
type ContentItem struct {
	Type   string `json:"type"`
	String string `json:"string"`
}

// Result statuses for structured backend replies.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Result is the structured envelope returned by the userdata backend.
// Data is either a message string (on failure) or an object payload.
type Result struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

// DataText decodes Data as a plain string, falling back to the raw JSON text.
func (r *Result) DataText() string {
	var s string
	if err := json.Unmarshal(r.Data, &s); err == nil {
		return s
	}
	return string(r.Data)
}

// PlayerBinding is one bound game account in a user profile.
type PlayerBinding struct {
	PlayerID int64    `json:"player_id"`
	Server   ServerID `json:"server"`
}

// UserData is the backend-owned user profile. The bot never caches it; every
// command that needs it fetches a fresh copy.
type UserData struct {
	UserID              string          `json:"user_id"`
	Platform            string          `json:"platform"`
	MainServer          ServerID        `json:"main_server"`
	DisplayedServerList []ServerID      `json:"displayed_server_list"`
	ShareRoomNumber     bool            `json:"share_room_number"`
	UserPlayerIndex     int             `json:"user_player_index"`
	UserPlayerList      []PlayerBinding `json:"user_player_list"`
}

// VerifyCode is the payload of a successful bindPlayerRequest.
type VerifyCode struct {
	VerifyCode int64 `json:"verify_code"`
}

// FuzzyResult is the parsed payload of /fuzzySearch: candidate backend ids per
// category, best match first.
type FuzzyResult struct {
	Server     []int `json:"server"`
	Difficulty []int `json:"difficulty"`
}

// StationRoom is one open room entry from the bulletin backend, passed through
// verbatim to /roomList for rendering.
type StationRoom struct {
	Number     int64  `json:"number"`
	RawMessage string `json:"raw_message"`
	Source     string `json:"source"`
	UserID     string `json:"user_id"`
	UserName   string `json:"user_name"`
	Time       int64  `json:"time"`
}

// SubmitRoomRequest is a room-number submission to the bulletin backend.
type SubmitRoomRequest struct {
	Number     int64  `json:"number"`
	RawMessage string `json:"raw_message"`
	Platform   string `json:"platform"`
	UserID     string `json:"user_id"`
	UserName   string `json:"user_name"`
	Time       int64  `json:"time"`
	Token      string `json:"bandori_station_token,omitempty"`
}
