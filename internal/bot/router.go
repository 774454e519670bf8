package bot

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/uika/tsugu-go-bot/internal/obslog"
	"github.com/uika/tsugu-go-bot/internal/redconn"
	"github.com/uika/tsugu-go-bot/internal/render"
)

// Shortcut rewrites whole messages that match a pattern into a command
// invocation, e.g. "日服模式" into "主服务器 日服".
type Shortcut struct {
	Pattern *regexp.Regexp
	Command string
}

// Options are the send and parse toggles the dispatcher honors.
type Options struct {
	Reply   bool
	At      bool
	NoSpace bool
	// Aliases adds operator-configured aliases per command name.
	Aliases map[string][]string
}

// RoomForwarder inspects unmatched messages for shared room numbers.
type RoomForwarder interface {
	Handle(ctx context.Context, ev *redconn.Event) bool
}

// Router owns the command table and dispatches every inbound event. The
// table is built once at startup and read-only afterwards.
type Router struct {
	handlers  *Handlers
	renderer  *render.Renderer
	sessions  SessionStore
	egress    redconn.Egress
	forwarder RoomForwarder
	opts      Options
	logger    *zap.Logger

	commands  []*Command
	byName    map[string]*Command
	shortcuts []Shortcut
	// keywords is every command name and alias, longest first, for the
	// no-space rewrite.
	keywords []string
}

func NewRouter(h *Handlers, renderer *render.Renderer, sessions SessionStore, egress redconn.Egress, forwarder RoomForwarder, opts Options) *Router {
	r := &Router{
		handlers:  h,
		renderer:  renderer,
		sessions:  sessions,
		egress:    egress,
		forwarder: forwarder,
		opts:      opts,
		logger:    obslog.L().Named("bot"),
		byName:    make(map[string]*Command),
	}
	r.registerAll()
	return r
}

func (r *Router) registerAll() {
	h := r.handlers
	commands := []*Command{
		{Name: "开启车牌转发", UsageKey: "usage.开启车牌转发", Handler: h.openForward},
		{Name: "关闭车牌转发", UsageKey: "usage.关闭车牌转发", Handler: h.closeForward},
		{Name: "绑定玩家", UsageKey: "usage.绑定玩家", Handler: h.bindPlayer},
		{Name: "解除绑定", Aliases: []string{"解绑玩家"}, UsageKey: "usage.解除绑定", Handler: h.unbindPlayer},
		{Name: "主服务器", Aliases: []string{"服务器模式", "切换服务器"}, UsageKey: "usage.主服务器", Handler: h.mainServer},
		{Name: "设置默认服务器", Aliases: []string{"默认服务器"}, UsageKey: "usage.设置默认服务器", Handler: h.defaultServers},
		{Name: "玩家状态", UsageKey: "usage.玩家状态", Handler: h.playerStatus},
		{Name: "玩家列表", UsageKey: "usage.玩家列表", Handler: h.playerList},
		{Name: "切换账户", UsageKey: "usage.切换账户", Handler: h.switchAccount},
		{Name: "ycm", Aliases: []string{"有车吗", "车来"}, UsageKey: "usage.ycm", Handler: h.roomList},
		{Name: "查玩家", Aliases: []string{"查询玩家"}, UsageKey: "usage.查玩家", Handler: h.searchPlayer},
		{Name: "查卡", Aliases: []string{"查卡牌"}, UsageKey: "usage.查卡", Handler: h.wordSearch(h.backend.SearchCard, "errors.word_missing")},
		{Name: "查卡面", Aliases: []string{"查卡插画", "查插画"}, UsageKey: "usage.查卡面", Handler: h.cardIllustration},
		{Name: "查角色", UsageKey: "usage.查角色", Handler: h.wordSearch(h.backend.SearchCharacter, "errors.word_missing")},
		{Name: "查活动", UsageKey: "usage.查活动", Handler: h.wordSearch(h.backend.SearchEvent, "errors.word_missing")},
		{Name: "查曲", UsageKey: "usage.查曲", Handler: h.wordSearch(h.backend.SearchSong, "errors.word_missing")},
		{Name: "查谱面", UsageKey: "usage.查谱面", Handler: h.songChart},
		{Name: "查询分数表", Aliases: []string{"查分数表", "查询分数榜", "查分数榜"}, UsageKey: "usage.查询分数表", Handler: h.songMeta},
		{Name: "查试炼", Aliases: []string{"查stage", "查舞台", "查festival", "查5v5"}, UsageKey: "usage.查试炼", Handler: h.eventStage},
		{Name: "查卡池", UsageKey: "usage.查卡池", Handler: h.searchGacha},
		{Name: "ycx", UsageKey: "usage.ycx", Handler: h.ycx},
		{Name: "ycxall", Aliases: []string{"myycx"}, UsageKey: "usage.ycxall", Handler: h.ycxAll},
		{Name: "lsycx", UsageKey: "usage.lsycx", Handler: h.lsycx},
		{Name: "抽卡模拟", UsageKey: "usage.抽卡模拟", Handler: h.gachaSimulate},
		{Name: "帮助", Aliases: []string{"help"}, UsageKey: "usage.帮助", Handler: h.helpFor(func() []*Command { return r.commands })},
	}

	for _, cmd := range commands {
		cmd.Aliases = append(cmd.Aliases, r.opts.Aliases[cmd.Name]...)
		r.commands = append(r.commands, cmd)
		r.byName[cmd.Name] = cmd
		r.keywords = append(r.keywords, cmd.Name)
		for _, alias := range cmd.Aliases {
			r.byName[alias] = cmd
			r.keywords = append(r.keywords, alias)
		}
	}
	sort.Slice(r.keywords, func(i, j int) bool { return len(r.keywords[i]) > len(r.keywords[j]) })

	r.shortcuts = []Shortcut{
		{Pattern: regexp.MustCompile(`^(.+服)模式$`), Command: "主服务器"},
		{Pattern: regexp.MustCompile(`^(.+服)玩家状态$`), Command: "玩家状态"},
	}
}

// Handle processes one inbound gateway event end to end.
func (r *Router) Handle(ctx context.Context, ev *redconn.Event) {
	if ev == nil || ev.Type != redconn.EventTypeMessage {
		return
	}
	if ev.SelfID != "" && ev.Sender.ID == ev.SelfID {
		return
	}

	// A pending verification claims the next message of its conversation
	// before any command matching happens.
	pending, err := r.sessions.Take(ctx, r.handlers.sessionKey(ev))
	if err != nil {
		r.logger.Warn("session lookup failed", zap.Error(err))
	} else if pending != nil {
		segments, err := r.handlers.continueVerification(ctx, ev, pending)
		r.reply(ctx, ev, segments, err)
		return
	}

	text := strings.TrimSpace(ev.Content)
	if r.opts.NoSpace {
		text = r.rewriteNoSpace(text)
	}

	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return
	}

	cmd, args := r.match(tokens, text)
	if cmd == nil {
		r.forwarder.Handle(ctx, ev)
		return
	}

	inv := &Invocation{Event: ev, Args: NewArgs(args)}
	segments, err := cmd.Handler(ctx, inv)
	r.reply(ctx, ev, segments, err)
}

// match finds the command for a tokenized message: first token lookup,
// then the whole-message shortcuts.
func (r *Router) match(tokens []string, text string) (*Command, []string) {
	if cmd, ok := r.byName[tokens[0]]; ok {
		return cmd, tokens[1:]
	}
	for _, sc := range r.shortcuts {
		if m := sc.Pattern.FindStringSubmatch(text); m != nil {
			return r.byName[sc.Command], m[1:]
		}
	}
	return nil, nil
}

// rewriteNoSpace inserts one space after a known command keyword glued to
// its arguments. Longest keyword wins so "查卡面1399" binds to 查卡面, not
// 查卡 — and a message that IS a keyword stays whole rather than being
// split by a shorter prefix. Applied at most once per message.
func (r *Router) rewriteNoSpace(text string) string {
	for _, kw := range r.keywords {
		rest, ok := strings.CutPrefix(text, kw)
		if !ok {
			continue
		}
		if rest == "" || strings.HasPrefix(rest, " ") {
			return text
		}
		return kw + " " + rest
	}
	return text
}

// reply wraps handler output in the configured reply/mention envelope and
// sends it. Argument errors go out as their own text; other errors go
// through the failure renderer.
func (r *Router) reply(ctx context.Context, ev *redconn.Event, segments []redconn.Segment, err error) {
	if err != nil {
		var argErr *ArgError
		if errors.As(err, &argErr) {
			segments = []redconn.Segment{redconn.Text(argErr.Message)}
		} else {
			r.logger.Warn("command failed",
				zap.String("user", ev.Sender.ID),
				zap.Error(err))
			segments = []redconn.Segment{redconn.Text(r.renderer.Failure(err))}
		}
	}
	if len(segments) == 0 {
		return
	}

	var out []redconn.Segment
	if r.opts.Reply && ev.MessageID != "" {
		out = append(out, redconn.Reply(ev.MessageID))
	}
	if r.opts.At {
		out = append(out, redconn.At(ev.Sender.ID), redconn.Text(" "))
	}
	out = append(out, segments...)

	if err := r.egress.Send(ctx, ev.ChannelID, out); err != nil {
		r.logger.Error("send failed",
			zap.String("channel", ev.ChannelID),
			zap.Error(err))
	}
}
