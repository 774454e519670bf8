package tsuguapi

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/uika/tsugu-go-bot/pkg/tsugudto"
)

// Userdata backend.

func (c *Client) GetUserData(ctx context.Context, userID string) (*tsugudto.UserData, error) {
	var user tsugudto.UserData
	err := c.postResult(ctx, "/user/getUserData", map[string]any{
		"platform": c.platform,
		"user_id":  userID,
	}, &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ChangeUserData applies a partial profile update. Keys follow the backend's
// profile field names (main_server, displayed_server_list, share_room_number,
// user_player_index).
func (c *Client) ChangeUserData(ctx context.Context, userID string, update map[string]any) error {
	return c.postResult(ctx, "/user/changeUserData", map[string]any{
		"platform": c.platform,
		"user_id":  userID,
		"update":   update,
	}, nil)
}

// BindPlayerRequest opens a verification session server-side and returns the
// temporary verify code the player must put into their signature.
func (c *Client) BindPlayerRequest(ctx context.Context, userID string) (int64, error) {
	var payload tsugudto.VerifyCode
	err := c.postResult(ctx, "/user/bindPlayerRequest", map[string]any{
		"platform": c.platform,
		"user_id":  userID,
	}, &payload)
	if err != nil {
		return 0, err
	}
	return payload.VerifyCode, nil
}

// BindPlayerVerification completes a bind (bind=true) or unbind (bind=false)
// flow; the returned text is the backend's final confirmation message.
func (c *Client) BindPlayerVerification(ctx context.Context, userID string, server tsugudto.ServerID, playerID int64, bind bool) (string, error) {
	action := "unbind"
	if bind {
		action = "bind"
	}
	body, err := c.post(ctx, userdataBackend, "/user/bindPlayerVerification", map[string]any{
		"platform":       c.platform,
		"user_id":        userID,
		"server":         server,
		"player_id":      playerID,
		"binding_action": action,
	})
	if err != nil {
		return "", err
	}
	var envelope tsugudto.Result
	if uerr := json.Unmarshal(body, &envelope); uerr != nil {
		return "", fmt.Errorf("decode response: %w", uerr)
	}
	return envelope.DataText(), nil
}

// FuzzySearch maps free text onto candidate backend ids, best match first.
func (c *Client) FuzzySearch(ctx context.Context, text string) (*tsugudto.FuzzyResult, error) {
	var result tsugudto.FuzzyResult
	err := c.postResult(ctx, "/fuzzySearch", map[string]any{"text": text}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Render backend. Every call returns the ordered text/image item list.

func (c *Client) renderBase(servers []tsugudto.ServerID) map[string]any {
	return map[string]any{
		"displayedServerList": servers,
		"useEasyBG":           c.useEasyBG,
		"compress":            c.compress,
	}
}

func (c *Client) SearchCard(ctx context.Context, servers []tsugudto.ServerID, text string) ([]tsugudto.ContentItem, error) {
	in := c.renderBase(servers)
	in["text"] = text
	return c.postList(ctx, "/searchCard", in)
}

func (c *Client) GetCardIllustration(ctx context.Context, cardID int64) ([]tsugudto.ContentItem, error) {
	return c.postList(ctx, "/getCardIllustration", map[string]any{"cardId": cardID})
}

func (c *Client) SearchCharacter(ctx context.Context, servers []tsugudto.ServerID, text string) ([]tsugudto.ContentItem, error) {
	in := c.renderBase(servers)
	in["text"] = text
	return c.postList(ctx, "/searchCharacter", in)
}

func (c *Client) SearchEvent(ctx context.Context, servers []tsugudto.ServerID, text string) ([]tsugudto.ContentItem, error) {
	in := c.renderBase(servers)
	in["text"] = text
	return c.postList(ctx, "/searchEvent", in)
}

func (c *Client) SearchSong(ctx context.Context, servers []tsugudto.ServerID, text string) ([]tsugudto.ContentItem, error) {
	in := c.renderBase(servers)
	in["text"] = text
	return c.postList(ctx, "/searchSong", in)
}

func (c *Client) SongChart(ctx context.Context, servers []tsugudto.ServerID, songID int64, difficulty tsugudto.DifficultyID) ([]tsugudto.ContentItem, error) {
	in := c.renderBase(servers)
	in["songId"] = songID
	in["difficultyText"] = difficulty.Text()
	return c.postList(ctx, "/songChart", in)
}

func (c *Client) SongMeta(ctx context.Context, servers []tsugudto.ServerID, main tsugudto.ServerID) ([]tsugudto.ContentItem, error) {
	in := c.renderBase(servers)
	in["mainServer"] = main
	return c.postList(ctx, "/songMeta", in)
}

func (c *Client) EventStage(ctx context.Context, main tsugudto.ServerID, eventID *int64, meta bool) ([]tsugudto.ContentItem, error) {
	in := map[string]any{
		"mainServer": main,
		"meta":       meta,
		"compress":   c.compress,
	}
	if eventID != nil {
		in["eventId"] = *eventID
	}
	return c.postList(ctx, "/eventStage", in)
}

func (c *Client) SearchGacha(ctx context.Context, servers []tsugudto.ServerID, gachaID int64) ([]tsugudto.ContentItem, error) {
	in := c.renderBase(servers)
	in["gachaId"] = gachaID
	return c.postList(ctx, "/searchGacha", in)
}

func (c *Client) SearchPlayer(ctx context.Context, playerID int64, server tsugudto.ServerID) ([]tsugudto.ContentItem, error) {
	return c.postList(ctx, "/searchPlayer", map[string]any{
		"playerId":  playerID,
		"server":    server,
		"useEasyBG": c.useEasyBG,
		"compress":  c.compress,
	})
}

func (c *Client) YCX(ctx context.Context, main tsugudto.ServerID, tier int64, eventID *int64) ([]tsugudto.ContentItem, error) {
	in := map[string]any{
		"mainServer": main,
		"tier":       tier,
		"compress":   c.compress,
	}
	if eventID != nil {
		in["eventId"] = *eventID
	}
	return c.postList(ctx, "/ycx", in)
}

func (c *Client) YCXAll(ctx context.Context, main tsugudto.ServerID, eventID *int64) ([]tsugudto.ContentItem, error) {
	in := map[string]any{
		"mainServer": main,
		"compress":   c.compress,
	}
	if eventID != nil {
		in["eventId"] = *eventID
	}
	return c.postList(ctx, "/ycxAll", in)
}

func (c *Client) LSYCX(ctx context.Context, main tsugudto.ServerID, tier int64, eventID *int64) ([]tsugudto.ContentItem, error) {
	in := map[string]any{
		"mainServer": main,
		"tier":       tier,
		"compress":   c.compress,
	}
	if eventID != nil {
		in["eventId"] = *eventID
	}
	return c.postList(ctx, "/lsycx", in)
}

func (c *Client) GachaSimulate(ctx context.Context, main tsugudto.ServerID, times, gachaID *int64) ([]tsugudto.ContentItem, error) {
	in := map[string]any{
		"mainServer": main,
		"compress":   c.compress,
	}
	if times != nil {
		in["times"] = *times
	}
	if gachaID != nil {
		in["gachaId"] = *gachaID
	}
	return c.postList(ctx, "/gachaSimulate", in)
}

// RoomList renders the given bulletin rooms into a composed reply.
func (c *Client) RoomList(ctx context.Context, rooms []tsugudto.StationRoom) ([]tsugudto.ContentItem, error) {
	return c.postList(ctx, "/roomList", map[string]any{"roomList": rooms, "compress": c.compress})
}

// Bulletin station.

func (c *Client) StationSubmitRoomNumber(ctx context.Context, req tsugudto.SubmitRoomRequest) error {
	return c.postResult(ctx, "/station/submitRoomNumber", req, nil)
}

func (c *Client) StationQueryAllRoom(ctx context.Context) ([]tsugudto.StationRoom, error) {
	var rooms []tsugudto.StationRoom
	err := c.postResult(ctx, "/station/queryAllRoom", map[string]any{}, &rooms)
	if err != nil {
		return nil, err
	}
	return rooms, nil
}
