package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/uika/tsugu-go-bot/internal/msgcat"
	"github.com/uika/tsugu-go-bot/internal/redconn"
	"github.com/uika/tsugu-go-bot/internal/render"
	"github.com/uika/tsugu-go-bot/internal/resolver"
	"github.com/uika/tsugu-go-bot/internal/session"
	"github.com/uika/tsugu-go-bot/pkg/tsugudto"
)

// Backend is the slice of the Tsugu API client the command handlers call.
type Backend interface {
	GetUserData(ctx context.Context, userID string) (*tsugudto.UserData, error)
	ChangeUserData(ctx context.Context, userID string, update map[string]any) error
	BindPlayerRequest(ctx context.Context, userID string) (int64, error)
	BindPlayerVerification(ctx context.Context, userID string, server tsugudto.ServerID, playerID int64, bind bool) (string, error)

	SearchCard(ctx context.Context, servers []tsugudto.ServerID, text string) ([]tsugudto.ContentItem, error)
	GetCardIllustration(ctx context.Context, cardID int64) ([]tsugudto.ContentItem, error)
	SearchCharacter(ctx context.Context, servers []tsugudto.ServerID, text string) ([]tsugudto.ContentItem, error)
	SearchEvent(ctx context.Context, servers []tsugudto.ServerID, text string) ([]tsugudto.ContentItem, error)
	SearchSong(ctx context.Context, servers []tsugudto.ServerID, text string) ([]tsugudto.ContentItem, error)
	SongChart(ctx context.Context, servers []tsugudto.ServerID, songID int64, difficulty tsugudto.DifficultyID) ([]tsugudto.ContentItem, error)
	SongMeta(ctx context.Context, servers []tsugudto.ServerID, main tsugudto.ServerID) ([]tsugudto.ContentItem, error)
	EventStage(ctx context.Context, main tsugudto.ServerID, eventID *int64, meta bool) ([]tsugudto.ContentItem, error)
	SearchGacha(ctx context.Context, servers []tsugudto.ServerID, gachaID int64) ([]tsugudto.ContentItem, error)
	SearchPlayer(ctx context.Context, playerID int64, server tsugudto.ServerID) ([]tsugudto.ContentItem, error)
	YCX(ctx context.Context, main tsugudto.ServerID, tier int64, eventID *int64) ([]tsugudto.ContentItem, error)
	YCXAll(ctx context.Context, main tsugudto.ServerID, eventID *int64) ([]tsugudto.ContentItem, error)
	LSYCX(ctx context.Context, main tsugudto.ServerID, tier int64, eventID *int64) ([]tsugudto.ContentItem, error)
	GachaSimulate(ctx context.Context, main tsugudto.ServerID, times, gachaID *int64) ([]tsugudto.ContentItem, error)
	RoomList(ctx context.Context, rooms []tsugudto.StationRoom) ([]tsugudto.ContentItem, error)
	StationQueryAllRoom(ctx context.Context) ([]tsugudto.StationRoom, error)
}

// SessionStore holds pending bind/unbind verifications between turns.
type SessionStore interface {
	Put(ctx context.Context, key session.Key, p session.Pending) error
	Take(ctx context.Context, key session.Key) (*session.Pending, error)
}

// Handlers binds the command table to its collaborators.
type Handlers struct {
	backend  Backend
	res      *resolver.Resolver
	renderer *render.Renderer
	sessions SessionStore
	cat      *msgcat.Catalog
	platform string
}

func NewHandlers(backend Backend, res *resolver.Resolver, renderer *render.Renderer, sessions SessionStore, cat *msgcat.Catalog, platform string) *Handlers {
	return &Handlers{
		backend:  backend,
		res:      res,
		renderer: renderer,
		sessions: sessions,
		cat:      cat,
		platform: platform,
	}
}

func (h *Handlers) argErr(key string) *ArgError {
	return &ArgError{Message: h.cat.Text(key)}
}

func textReply(s string) []redconn.Segment {
	return []redconn.Segment{redconn.Text(s)}
}

func (h *Handlers) sessionKey(ev *redconn.Event) session.Key {
	return session.Key{Platform: h.platform, Channel: ev.ChannelID, User: ev.Sender.ID}
}

// resolveServerArg resolves an optional trailing server token. Numeric
// aliases ("0".."4") are valid server names too, so once every int slot of
// a command has been consumed, a leftover numeric token is offered to the
// server slot instead of being dropped. missingKey selects the error text
// when the token does not resolve.
func (h *Handlers) resolveServerArg(ctx context.Context, args *Args, missingKey string) (tsugudto.ServerID, bool, error) {
	token, ok := args.TakeWord()
	if !ok {
		token, ok = args.TakeAny()
	}
	if !ok {
		return 0, false, nil
	}
	id, err := h.res.Server(ctx, token)
	if err != nil {
		return 0, false, h.argErr(missingKey)
	}
	return id, true, nil
}

// displayServers is the server list searches render against, falling back
// to the main server for profiles that never set one.
func displayServers(u *tsugudto.UserData) []tsugudto.ServerID {
	if len(u.DisplayedServerList) > 0 {
		return u.DisplayedServerList
	}
	return []tsugudto.ServerID{u.MainServer}
}

// currentBinding picks the binding the profile's account index points at.
func currentBinding(u *tsugudto.UserData) (tsugudto.PlayerBinding, bool) {
	if len(u.UserPlayerList) == 0 {
		return tsugudto.PlayerBinding{}, false
	}
	idx := u.UserPlayerIndex
	if idx < 0 || idx >= len(u.UserPlayerList) {
		idx = 0
	}
	return u.UserPlayerList[idx], true
}

// bindingOnServer finds the first binding on a given server.
func bindingOnServer(u *tsugudto.UserData, server tsugudto.ServerID) (tsugudto.PlayerBinding, bool) {
	for _, b := range u.UserPlayerList {
		if b.Server == server {
			return b, true
		}
	}
	return tsugudto.PlayerBinding{}, false
}

// bindingForServer is bindingOnServer with the user-facing miss message.
func (h *Handlers) bindingForServer(u *tsugudto.UserData, server tsugudto.ServerID) (tsugudto.PlayerBinding, error) {
	b, ok := bindingOnServer(u, server)
	if !ok {
		msg, err := h.cat.Render("errors.no_player_on_server", map[string]any{"Server": server.FullName()})
		if err != nil {
			return tsugudto.PlayerBinding{}, err
		}
		return tsugudto.PlayerBinding{}, &ArgError{Message: msg}
	}
	return b, nil
}

// --- forwarding toggles ---

func (h *Handlers) openForward(ctx context.Context, inv *Invocation) ([]redconn.Segment, error) {
	return h.switchForward(ctx, inv, true)
}

func (h *Handlers) closeForward(ctx context.Context, inv *Invocation) ([]redconn.Segment, error) {
	return h.switchForward(ctx, inv, false)
}

func (h *Handlers) switchForward(ctx context.Context, inv *Invocation, mode bool) ([]redconn.Segment, error) {
	if err := h.backend.ChangeUserData(ctx, inv.Event.Sender.ID, map[string]any{"share_room_number": mode}); err != nil {
		return nil, err
	}
	key := "forward.closed"
	if mode {
		key = "forward.opened"
	}
	return textReply(h.cat.Text(key)), nil
}

// --- bind / unbind (turn 1) ---

func (h *Handlers) bindPlayer(ctx context.Context, inv *Invocation) ([]redconn.Segment, error) {
	server, given, err := h.resolveBindServer(ctx, &inv.Args)
	if err != nil {
		return nil, err
	}
	if !given {
		user, err := h.backend.GetUserData(ctx, inv.Event.Sender.ID)
		if err != nil {
			return nil, err
		}
		server = user.MainServer
	}

	code, err := h.backend.BindPlayerRequest(ctx, inv.Event.Sender.ID)
	if err != nil {
		return nil, err
	}
	if err := h.sessions.Put(ctx, h.sessionKey(inv.Event), session.Pending{Server: server}); err != nil {
		return nil, err
	}
	msg, err := h.cat.Render("bind.instructions", map[string]any{
		"Server": server.FullName(),
		"Code":   code,
	})
	if err != nil {
		return nil, err
	}
	return textReply(msg), nil
}

func (h *Handlers) unbindPlayer(ctx context.Context, inv *Invocation) ([]redconn.Segment, error) {
	server, given, err := h.resolveBindServer(ctx, &inv.Args)
	if err != nil {
		return nil, err
	}

	user, err := h.backend.GetUserData(ctx, inv.Event.Sender.ID)
	if err != nil {
		return nil, err
	}
	if !given {
		server = user.MainServer
	}

	binding, ok := bindingOnServer(user, server)
	if !ok {
		msg, rerr := h.cat.Render("errors.no_player_on_server", map[string]any{"Server": server.FullName()})
		if rerr != nil {
			return nil, rerr
		}
		return nil, &ArgError{Message: msg}
	}

	code, err := h.backend.BindPlayerRequest(ctx, inv.Event.Sender.ID)
	if err != nil {
		return nil, err
	}
	pending := session.Pending{Server: server, PlayerID: binding.PlayerID, Unbind: true}
	if err := h.sessions.Put(ctx, h.sessionKey(inv.Event), pending); err != nil {
		return nil, err
	}
	msg, err := h.cat.Render("bind.unbind_instructions", map[string]any{
		"Server":   server.FullName(),
		"PlayerID": binding.PlayerID,
		"Code":     code,
	})
	if err != nil {
		return nil, err
	}
	return textReply(msg), nil
}

// resolveBindServer resolves the optional server argument of the bind
// commands, which carry a dedicated error text reminding users not to put
// their player id there.
func (h *Handlers) resolveBindServer(ctx context.Context, args *Args) (tsugudto.ServerID, bool, error) {
	token, ok := args.TakeAny()
	if !ok {
		return 0, false, nil
	}
	id, err := h.res.Server(ctx, token)
	if err != nil {
		return 0, false, h.argErr("errors.server_unknown_bind")
	}
	return id, true, nil
}

// continueVerification is turn 2 of a bind/unbind flow: it fires on the
// next message from the same conversation, whatever that message is.
func (h *Handlers) continueVerification(ctx context.Context, ev *redconn.Event, pending *session.Pending) ([]redconn.Segment, error) {
	if pending.Unbind {
		reply, err := h.backend.BindPlayerVerification(ctx, ev.Sender.ID, pending.Server, pending.PlayerID, false)
		if err != nil {
			return nil, err
		}
		return textReply(reply), nil
	}

	playerID, err := strconv.ParseInt(strings.TrimSpace(ev.Content), 10, 64)
	if err != nil {
		return nil, h.argErr("errors.player_id_invalid")
	}
	reply, err := h.backend.BindPlayerVerification(ctx, ev.Sender.ID, pending.Server, playerID, true)
	if err != nil {
		return nil, err
	}
	return textReply(reply), nil
}

// --- server preferences ---

func (h *Handlers) mainServer(ctx context.Context, inv *Invocation) ([]redconn.Segment, error) {
	token, ok := inv.Args.TakeAny()
	if !ok {
		return nil, h.argErr("errors.server_missing")
	}
	server, err := h.res.Server(ctx, token)
	if err != nil {
		return nil, h.argErr("errors.server_unknown")
	}
	if err := h.backend.ChangeUserData(ctx, inv.Event.Sender.ID, map[string]any{"main_server": server}); err != nil {
		return nil, err
	}
	msg, err := h.cat.Render("main_server.switched", map[string]any{"Server": server.FullName()})
	if err != nil {
		return nil, err
	}
	return textReply(msg), nil
}

func (h *Handlers) defaultServers(ctx context.Context, inv *Invocation) ([]redconn.Segment, error) {
	if inv.Args.Empty() {
		return nil, h.argErr("errors.server_none")
	}
	var servers []tsugudto.ServerID
	for {
		token, ok := inv.Args.TakeAny()
		if !ok {
			break
		}
		server, err := h.res.Server(ctx, token)
		if err != nil {
			return nil, h.argErr("errors.server_unknown")
		}
		if lo.Contains(servers, server) {
			return nil, h.argErr("errors.server_duplicate")
		}
		servers = append(servers, server)
	}

	if err := h.backend.ChangeUserData(ctx, inv.Event.Sender.ID, map[string]any{"displayed_server_list": servers}); err != nil {
		return nil, err
	}
	names := lo.Map(servers, func(s tsugudto.ServerID, _ int) string { return s.FullName() })
	msg, err := h.cat.Render("default_servers.updated", map[string]any{"Servers": strings.Join(names, ", ")})
	if err != nil {
		return nil, err
	}
	return textReply(msg), nil
}

// --- player accounts ---

func (h *Handlers) playerStatus(ctx context.Context, inv *Invocation) ([]redconn.Segment, error) {
	user, err := h.backend.GetUserData(ctx, inv.Event.Sender.ID)
	if err != nil {
		return nil, err
	}

	// A numeric token is an account index when it is one; otherwise it may
	// still be a numeric server alias ("玩家状态 0" means jp).
	var binding tsugudto.PlayerBinding
	if index, ok := inv.Args.TakeInt(); ok {
		switch {
		case index >= 1 && index <= int64(len(user.UserPlayerList)):
			binding = user.UserPlayerList[index-1]
		case tsugudto.ServerID(index).Valid():
			b, err := h.bindingForServer(user, tsugudto.ServerID(index))
			if err != nil {
				return nil, err
			}
			binding = b
		default:
			return nil, h.argErr("errors.account_index_invalid")
		}
	} else if server, given, err := h.resolveServerArg(ctx, &inv.Args, "errors.server_unknown"); err != nil {
		return nil, err
	} else if given {
		b, err := h.bindingForServer(user, server)
		if err != nil {
			return nil, err
		}
		binding = b
	} else {
		b, ok := currentBinding(user)
		if !ok {
			return nil, h.argErr("errors.no_bindings")
		}
		binding = b
	}

	items, err := h.backend.SearchPlayer(ctx, binding.PlayerID, binding.Server)
	if err != nil {
		return nil, err
	}
	return h.renderer.Segments(items)
}

func (h *Handlers) playerList(ctx context.Context, inv *Invocation) ([]redconn.Segment, error) {
	user, err := h.backend.GetUserData(ctx, inv.Event.Sender.ID)
	if err != nil {
		return nil, err
	}
	if len(user.UserPlayerList) == 0 {
		return nil, h.argErr("errors.no_bindings")
	}

	lines := []string{h.cat.Text("player.list_header")}
	for i, b := range user.UserPlayerList {
		marker := ""
		if i == user.UserPlayerIndex {
			marker = "* "
		}
		line, err := h.cat.Render("player.list_entry", map[string]any{
			"Marker":   marker,
			"Index":    i + 1,
			"Server":   b.Server.FullName(),
			"PlayerID": b.PlayerID,
		})
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return textReply(strings.Join(lines, "\n")), nil
}

func (h *Handlers) switchAccount(ctx context.Context, inv *Invocation) ([]redconn.Segment, error) {
	index, ok := inv.Args.TakeInt()
	if !ok {
		return nil, h.argErr("errors.account_index_invalid")
	}
	user, err := h.backend.GetUserData(ctx, inv.Event.Sender.ID)
	if err != nil {
		return nil, err
	}
	if index < 1 || index > int64(len(user.UserPlayerList)) {
		return nil, h.argErr("errors.account_index_invalid")
	}
	if err := h.backend.ChangeUserData(ctx, inv.Event.Sender.ID, map[string]any{"user_player_index": index - 1}); err != nil {
		return nil, err
	}
	binding := user.UserPlayerList[index-1]
	msg, err := h.cat.Render("player.index_switched", map[string]any{
		"Index":    index,
		"Server":   binding.Server.FullName(),
		"PlayerID": binding.PlayerID,
	})
	if err != nil {
		return nil, err
	}
	return textReply(msg), nil
}

func (h *Handlers) searchPlayer(ctx context.Context, inv *Invocation) ([]redconn.Segment, error) {
	playerID, ok := inv.Args.TakeInt()
	if !ok {
		return nil, h.argErr("errors.player_id_missing")
	}
	server, given, err := h.resolveServerArg(ctx, &inv.Args, "errors.server_unknown")
	if err != nil {
		return nil, err
	}
	if !given {
		user, err := h.backend.GetUserData(ctx, inv.Event.Sender.ID)
		if err != nil {
			return nil, err
		}
		server = user.MainServer
	}
	items, err := h.backend.SearchPlayer(ctx, playerID, server)
	if err != nil {
		return nil, err
	}
	return h.renderer.Segments(items)
}

// --- room bulletin ---

func (h *Handlers) roomList(ctx context.Context, inv *Invocation) ([]redconn.Segment, error) {
	rooms, err := h.backend.StationQueryAllRoom(ctx)
	if err != nil {
		return nil, err
	}
	if keyword := inv.Args.Join(); keyword != "" {
		rooms = lo.Filter(rooms, func(r tsugudto.StationRoom, _ int) bool {
			return strings.Contains(r.RawMessage, keyword)
		})
	}
	items, err := h.backend.RoomList(ctx, rooms)
	if err != nil {
		return nil, err
	}
	return h.renderer.Segments(items)
}

// --- searches ---

type searchFunc func(ctx context.Context, servers []tsugudto.ServerID, text string) ([]tsugudto.ContentItem, error)

func (h *Handlers) wordSearch(call searchFunc, missingKey string) HandlerFunc {
	return func(ctx context.Context, inv *Invocation) ([]redconn.Segment, error) {
		word := inv.Args.Join()
		if word == "" {
			return nil, h.argErr(missingKey)
		}
		user, err := h.backend.GetUserData(ctx, inv.Event.Sender.ID)
		if err != nil {
			return nil, err
		}
		items, err := call(ctx, displayServers(user), word)
		if err != nil {
			return nil, err
		}
		return h.renderer.Segments(items)
	}
}

func (h *Handlers) cardIllustration(ctx context.Context, inv *Invocation) ([]redconn.Segment, error) {
	cardID, ok := inv.Args.TakeInt()
	if !ok {
		return nil, h.argErr("errors.card_id_missing")
	}
	items, err := h.backend.GetCardIllustration(ctx, cardID)
	if err != nil {
		return nil, err
	}
	return h.renderer.Segments(items)
}

func (h *Handlers) songChart(ctx context.Context, inv *Invocation) ([]redconn.Segment, error) {
	songID, ok := inv.Args.TakeInt()
	if !ok {
		return nil, h.argErr("errors.song_id_missing")
	}
	difficulty := tsugudto.DifficultyExpert
	if token, ok := inv.Args.TakeWord(); ok {
		d, err := h.res.Difficulty(ctx, token)
		if err != nil {
			return nil, h.argErr("errors.difficulty_unmatched")
		}
		difficulty = d
	}
	user, err := h.backend.GetUserData(ctx, inv.Event.Sender.ID)
	if err != nil {
		return nil, err
	}
	items, err := h.backend.SongChart(ctx, displayServers(user), songID, difficulty)
	if err != nil {
		return nil, err
	}
	return h.renderer.Segments(items)
}

func (h *Handlers) songMeta(ctx context.Context, inv *Invocation) ([]redconn.Segment, error) {
	server, given, err := h.resolveServerArg(ctx, &inv.Args, "errors.server_unknown")
	if err != nil {
		return nil, err
	}
	user, uerr := h.backend.GetUserData(ctx, inv.Event.Sender.ID)
	if uerr != nil {
		return nil, uerr
	}
	if !given {
		server = user.MainServer
	}
	items, err := h.backend.SongMeta(ctx, displayServers(user), server)
	if err != nil {
		return nil, err
	}
	return h.renderer.Segments(items)
}

func (h *Handlers) eventStage(ctx context.Context, inv *Invocation) ([]redconn.Segment, error) {
	meta := inv.Args.TakeFlag("-m")
	var eventID *int64
	if id, ok := inv.Args.TakeInt(); ok {
		eventID = &id
	}
	user, err := h.backend.GetUserData(ctx, inv.Event.Sender.ID)
	if err != nil {
		return nil, err
	}
	items, err := h.backend.EventStage(ctx, user.MainServer, eventID, meta)
	if err != nil {
		return nil, err
	}
	return h.renderer.Segments(items)
}

func (h *Handlers) searchGacha(ctx context.Context, inv *Invocation) ([]redconn.Segment, error) {
	gachaID, ok := inv.Args.TakeInt()
	if !ok {
		return nil, h.argErr("errors.gacha_id_missing")
	}
	user, err := h.backend.GetUserData(ctx, inv.Event.Sender.ID)
	if err != nil {
		return nil, err
	}
	items, err := h.backend.SearchGacha(ctx, displayServers(user), gachaID)
	if err != nil {
		return nil, err
	}
	return h.renderer.Segments(items)
}

// tierMainServer resolves the main server for the prediction commands: an
// explicit server token wins, else the profile's main server.
func (h *Handlers) tierMainServer(ctx context.Context, inv *Invocation) (tsugudto.ServerID, error) {
	server, given, err := h.resolveServerArg(ctx, &inv.Args, "errors.server_unknown")
	if err != nil {
		return 0, err
	}
	if given {
		return server, nil
	}
	user, err := h.backend.GetUserData(ctx, inv.Event.Sender.ID)
	if err != nil {
		return 0, err
	}
	return user.MainServer, nil
}

func (h *Handlers) ycx(ctx context.Context, inv *Invocation) ([]redconn.Segment, error) {
	tier, ok := inv.Args.TakeInt()
	if !ok {
		return nil, h.argErr("errors.tier_missing")
	}
	var eventID *int64
	if id, ok := inv.Args.TakeInt(); ok {
		eventID = &id
	}
	main, err := h.tierMainServer(ctx, inv)
	if err != nil {
		return nil, err
	}
	items, err := h.backend.YCX(ctx, main, tier, eventID)
	if err != nil {
		return nil, err
	}
	return h.renderer.Segments(items)
}

func (h *Handlers) ycxAll(ctx context.Context, inv *Invocation) ([]redconn.Segment, error) {
	var eventID *int64
	if id, ok := inv.Args.TakeInt(); ok {
		eventID = &id
	}
	main, err := h.tierMainServer(ctx, inv)
	if err != nil {
		return nil, err
	}
	items, err := h.backend.YCXAll(ctx, main, eventID)
	if err != nil {
		return nil, err
	}
	return h.renderer.Segments(items)
}

func (h *Handlers) lsycx(ctx context.Context, inv *Invocation) ([]redconn.Segment, error) {
	tier, ok := inv.Args.TakeInt()
	if !ok {
		return nil, h.argErr("errors.tier_missing")
	}
	var eventID *int64
	if id, ok := inv.Args.TakeInt(); ok {
		eventID = &id
	}
	main, err := h.tierMainServer(ctx, inv)
	if err != nil {
		return nil, err
	}
	items, err := h.backend.LSYCX(ctx, main, tier, eventID)
	if err != nil {
		return nil, err
	}
	return h.renderer.Segments(items)
}

func (h *Handlers) gachaSimulate(ctx context.Context, inv *Invocation) ([]redconn.Segment, error) {
	var times, gachaID *int64
	if n, ok := inv.Args.TakeInt(); ok {
		times = &n
	}
	if n, ok := inv.Args.TakeInt(); ok {
		gachaID = &n
	}
	user, err := h.backend.GetUserData(ctx, inv.Event.Sender.ID)
	if err != nil {
		return nil, err
	}
	items, err := h.backend.GachaSimulate(ctx, user.MainServer, times, gachaID)
	if err != nil {
		return nil, err
	}
	return h.renderer.Segments(items)
}

// --- help ---

func (h *Handlers) helpFor(commands func() []*Command) HandlerFunc {
	return func(ctx context.Context, inv *Invocation) ([]redconn.Segment, error) {
		if name, ok := inv.Args.TakeAny(); ok {
			for _, cmd := range commands() {
				if cmd.Name == name || lo.Contains(cmd.Aliases, name) {
					if cmd.UsageKey == "" || !h.cat.Has(cmd.UsageKey) {
						return textReply(cmd.Name), nil
					}
					usage := h.cat.Text(cmd.UsageKey)
					switch cmd.Name {
					case "ycx", "ycxall", "lsycx":
						usage += "\n可用档线:\n" + resolver.TierListText()
					}
					return textReply(usage), nil
				}
			}
			return nil, h.argErr("errors.unknown_command")
		}

		var b strings.Builder
		b.WriteString(h.cat.Text("help.header"))
		for _, cmd := range commands() {
			b.WriteString("\n")
			b.WriteString(cmd.Name)
			if len(cmd.Aliases) > 0 {
				fmt.Fprintf(&b, " (%s)", strings.Join(cmd.Aliases, ", "))
			}
		}
		return textReply(b.String()), nil
	}
}
