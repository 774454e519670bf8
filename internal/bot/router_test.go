package bot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uika/tsugu-go-bot/internal/msgcat"
	"github.com/uika/tsugu-go-bot/internal/redconn"
	"github.com/uika/tsugu-go-bot/internal/render"
	"github.com/uika/tsugu-go-bot/internal/resolver"
	"github.com/uika/tsugu-go-bot/internal/session"
	"github.com/uika/tsugu-go-bot/pkg/tsugudto"
)

// fakeBackend records calls; unset hooks return empty successes.
type fakeBackend struct {
	user *tsugudto.UserData

	changedUpdates []map[string]any
	bindRequests   int
	verifications  []verification
	illustrationID int64
	searchedCard   string
	searchedSrv    []tsugudto.ServerID
	ycxCalls       []ycxCall
	metaMains      []tsugudto.ServerID
	playerQueries  []playerQuery
}

type playerQuery struct {
	playerID int64
	server   tsugudto.ServerID
}

type verification struct {
	server   tsugudto.ServerID
	playerID int64
	bind     bool
}

type ycxCall struct {
	main    tsugudto.ServerID
	tier    int64
	eventID *int64
}

func (f *fakeBackend) GetUserData(_ context.Context, _ string) (*tsugudto.UserData, error) {
	if f.user != nil {
		return f.user, nil
	}
	return &tsugudto.UserData{MainServer: tsugudto.ServerCN}, nil
}

func (f *fakeBackend) ChangeUserData(_ context.Context, _ string, update map[string]any) error {
	f.changedUpdates = append(f.changedUpdates, update)
	return nil
}

func (f *fakeBackend) BindPlayerRequest(_ context.Context, _ string) (int64, error) {
	f.bindRequests++
	return 12345, nil
}

func (f *fakeBackend) BindPlayerVerification(_ context.Context, _ string, server tsugudto.ServerID, playerID int64, bind bool) (string, error) {
	f.verifications = append(f.verifications, verification{server: server, playerID: playerID, bind: bind})
	return "验证成功", nil
}

func (f *fakeBackend) SearchCard(_ context.Context, servers []tsugudto.ServerID, text string) ([]tsugudto.ContentItem, error) {
	f.searchedCard = text
	f.searchedSrv = servers
	return []tsugudto.ContentItem{{Type: tsugudto.ContentTypeString, String: "card"}}, nil
}

func (f *fakeBackend) GetCardIllustration(_ context.Context, cardID int64) ([]tsugudto.ContentItem, error) {
	f.illustrationID = cardID
	return []tsugudto.ContentItem{{Type: tsugudto.ContentTypeString, String: "illustration"}}, nil
}

func (f *fakeBackend) SearchCharacter(_ context.Context, _ []tsugudto.ServerID, _ string) ([]tsugudto.ContentItem, error) {
	return nil, nil
}

func (f *fakeBackend) SearchEvent(_ context.Context, _ []tsugudto.ServerID, _ string) ([]tsugudto.ContentItem, error) {
	return nil, nil
}

func (f *fakeBackend) SearchSong(_ context.Context, _ []tsugudto.ServerID, _ string) ([]tsugudto.ContentItem, error) {
	return nil, nil
}

func (f *fakeBackend) SongChart(_ context.Context, _ []tsugudto.ServerID, _ int64, _ tsugudto.DifficultyID) ([]tsugudto.ContentItem, error) {
	return nil, nil
}

func (f *fakeBackend) SongMeta(_ context.Context, _ []tsugudto.ServerID, main tsugudto.ServerID) ([]tsugudto.ContentItem, error) {
	f.metaMains = append(f.metaMains, main)
	return []tsugudto.ContentItem{{Type: tsugudto.ContentTypeString, String: "meta"}}, nil
}

func (f *fakeBackend) EventStage(_ context.Context, _ tsugudto.ServerID, _ *int64, _ bool) ([]tsugudto.ContentItem, error) {
	return nil, nil
}

func (f *fakeBackend) SearchGacha(_ context.Context, _ []tsugudto.ServerID, _ int64) ([]tsugudto.ContentItem, error) {
	return nil, nil
}

func (f *fakeBackend) SearchPlayer(_ context.Context, playerID int64, server tsugudto.ServerID) ([]tsugudto.ContentItem, error) {
	f.playerQueries = append(f.playerQueries, playerQuery{playerID: playerID, server: server})
	return []tsugudto.ContentItem{{Type: tsugudto.ContentTypeString, String: "player"}}, nil
}

func (f *fakeBackend) YCX(_ context.Context, main tsugudto.ServerID, tier int64, eventID *int64) ([]tsugudto.ContentItem, error) {
	f.ycxCalls = append(f.ycxCalls, ycxCall{main: main, tier: tier, eventID: eventID})
	return []tsugudto.ContentItem{{Type: tsugudto.ContentTypeString, String: "ycx"}}, nil
}

func (f *fakeBackend) YCXAll(_ context.Context, _ tsugudto.ServerID, _ *int64) ([]tsugudto.ContentItem, error) {
	return nil, nil
}

func (f *fakeBackend) LSYCX(_ context.Context, _ tsugudto.ServerID, _ int64, _ *int64) ([]tsugudto.ContentItem, error) {
	return nil, nil
}

func (f *fakeBackend) GachaSimulate(_ context.Context, _ tsugudto.ServerID, _, _ *int64) ([]tsugudto.ContentItem, error) {
	return nil, nil
}

func (f *fakeBackend) RoomList(_ context.Context, rooms []tsugudto.StationRoom) ([]tsugudto.ContentItem, error) {
	return nil, nil
}

func (f *fakeBackend) StationQueryAllRoom(_ context.Context) ([]tsugudto.StationRoom, error) {
	return nil, nil
}

// memSessions is an in-memory SessionStore for dispatcher tests.
type memSessions struct {
	data map[session.Key]session.Pending
}

func newMemSessions() *memSessions {
	return &memSessions{data: make(map[session.Key]session.Pending)}
}

func (m *memSessions) Put(_ context.Context, key session.Key, p session.Pending) error {
	m.data[key] = p
	return nil
}

func (m *memSessions) Take(_ context.Context, key session.Key) (*session.Pending, error) {
	p, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	delete(m.data, key)
	return &p, nil
}

type captureEgress struct {
	sends [][]redconn.Segment
}

func (c *captureEgress) Send(_ context.Context, _ string, segments []redconn.Segment) error {
	c.sends = append(c.sends, segments)
	return nil
}

func (c *captureEgress) lastText(t *testing.T) string {
	t.Helper()
	require.NotEmpty(t, c.sends)
	last := c.sends[len(c.sends)-1]
	text := ""
	for _, seg := range last {
		text += seg.Text
	}
	return text
}

type fakeForwarder struct {
	events []*redconn.Event
}

func (f *fakeForwarder) Handle(_ context.Context, ev *redconn.Event) bool {
	f.events = append(f.events, ev)
	return false
}

type fixture struct {
	backend   *fakeBackend
	sessions  *memSessions
	egress    *captureEgress
	forwarder *fakeForwarder
	router    *Router
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	cat, err := msgcat.New("")
	require.NoError(t, err)

	backend := &fakeBackend{}
	sessions := newMemSessions()
	egress := &captureEgress{}
	forwarder := &fakeForwarder{}
	renderer := render.New(cat)
	handlers := NewHandlers(backend, resolver.New(nil), renderer, sessions, cat, "red")

	return &fixture{
		backend:   backend,
		sessions:  sessions,
		egress:    egress,
		forwarder: forwarder,
		router:    NewRouter(handlers, renderer, sessions, egress, forwarder, opts),
	}
}

func msg(text string) *redconn.Event {
	return &redconn.Event{
		Type:      redconn.EventTypeMessage,
		SelfID:    "bot",
		MessageID: "m1",
		ChannelID: "c1",
		Sender:    redconn.Sender{ID: "u1", Nickname: "Alice"},
		Content:   text,
	}
}

func TestSelfMessagesDropped(t *testing.T) {
	fx := newFixture(t, Options{})
	ev := msg("帮助")
	ev.Sender.ID = "bot"

	fx.router.Handle(context.Background(), ev)

	assert.Empty(t, fx.egress.sends)
	assert.Empty(t, fx.forwarder.events)
}

func TestUnmatchedGoesToForwarder(t *testing.T) {
	fx := newFixture(t, Options{})

	fx.router.Handle(context.Background(), msg("123456q1"))

	assert.Empty(t, fx.egress.sends)
	require.Len(t, fx.forwarder.events, 1)
}

func TestNoSpaceRewritePrefersLongestKeyword(t *testing.T) {
	fx := newFixture(t, Options{NoSpace: true})

	fx.router.Handle(context.Background(), msg("查卡面1399"))

	assert.Equal(t, int64(1399), fx.backend.illustrationID)
	assert.Equal(t, "illustration", fx.egress.lastText(t))
}

func TestNoSpaceLeavesExactKeywordWhole(t *testing.T) {
	fx := newFixture(t, Options{NoSpace: true})

	// "查卡面" is itself a command; it must not be split into "查卡 面".
	fx.router.Handle(context.Background(), msg("查卡面"))

	assert.Empty(t, fx.backend.searchedCard)
	assert.Equal(t, "错误: 参数错误", fx.egress.lastText(t))
}

func TestNoSpaceDisabledLeavesGluedTextUnmatched(t *testing.T) {
	fx := newFixture(t, Options{})

	fx.router.Handle(context.Background(), msg("查卡面1399"))

	assert.Zero(t, fx.backend.illustrationID)
	assert.Len(t, fx.forwarder.events, 1)
}

func TestDuplicateServersRejectedBeforeBackendCall(t *testing.T) {
	fx := newFixture(t, Options{})

	fx.router.Handle(context.Background(), msg("设置默认服务器 jp jp"))

	assert.Equal(t, "错误: 指定了重复的服务器", fx.egress.lastText(t))
	assert.Empty(t, fx.backend.changedUpdates)
}

func TestDefaultServersUpdated(t *testing.T) {
	fx := newFixture(t, Options{})

	fx.router.Handle(context.Background(), msg("设置默认服务器 国服 日服"))

	require.Len(t, fx.backend.changedUpdates, 1)
	assert.Equal(t,
		[]tsugudto.ServerID{tsugudto.ServerCN, tsugudto.ServerJP},
		fx.backend.changedUpdates[0]["displayed_server_list"])
	assert.Equal(t, "成功切换默认服务器顺序: 国服, 日服", fx.egress.lastText(t))
}

func TestMainServerShortcut(t *testing.T) {
	fx := newFixture(t, Options{})

	fx.router.Handle(context.Background(), msg("日服模式"))

	require.Len(t, fx.backend.changedUpdates, 1)
	assert.Equal(t, tsugudto.ServerJP, fx.backend.changedUpdates[0]["main_server"])
	assert.Equal(t, "已切换到日服模式", fx.egress.lastText(t))
}

func TestMainServerMissingArg(t *testing.T) {
	fx := newFixture(t, Options{})

	fx.router.Handle(context.Background(), msg("主服务器"))

	assert.Equal(t, "错误: 未指定服务器", fx.egress.lastText(t))
	assert.Empty(t, fx.backend.changedUpdates)
}

func TestBindFlowTwoTurns(t *testing.T) {
	fx := newFixture(t, Options{})
	ctx := context.Background()

	fx.router.Handle(ctx, msg("绑定玩家 jp"))

	require.Equal(t, 1, fx.backend.bindRequests)
	turn1 := fx.egress.lastText(t)
	assert.Contains(t, turn1, "正在绑定 日服 账号")
	assert.Contains(t, turn1, "12345")

	fx.router.Handle(ctx, msg("10000001"))

	require.Len(t, fx.backend.verifications, 1)
	v := fx.backend.verifications[0]
	assert.Equal(t, tsugudto.ServerJP, v.server)
	assert.Equal(t, int64(10000001), v.playerID)
	assert.True(t, v.bind)
	assert.Equal(t, "验证成功", fx.egress.lastText(t))
}

func TestBindFlowRejectsNonNumericPlayerID(t *testing.T) {
	fx := newFixture(t, Options{})
	ctx := context.Background()

	fx.router.Handle(ctx, msg("绑定玩家 jp"))
	fx.router.Handle(ctx, msg("notanumber"))

	assert.Empty(t, fx.backend.verifications)
	assert.Equal(t, "错误: 无效的玩家id", fx.egress.lastText(t))

	// The pending slot was consumed: the next message is a command again.
	fx.router.Handle(ctx, msg("帮助"))
	assert.Contains(t, fx.egress.lastText(t), "可用指令:")
}

func TestBindRejectsUnknownServer(t *testing.T) {
	fx := newFixture(t, Options{})

	fx.router.Handle(context.Background(), msg("绑定玩家 火星服"))

	assert.Equal(t, "错误: 服务器不存在，请不要在参数中添加玩家ID", fx.egress.lastText(t))
	assert.Zero(t, fx.backend.bindRequests)
}

func TestUnbindFlowTwoTurns(t *testing.T) {
	fx := newFixture(t, Options{})
	fx.backend.user = &tsugudto.UserData{
		MainServer: tsugudto.ServerJP,
		UserPlayerList: []tsugudto.PlayerBinding{
			{PlayerID: 10000001, Server: tsugudto.ServerJP},
		},
	}
	ctx := context.Background()

	fx.router.Handle(ctx, msg("解除绑定"))

	turn1 := fx.egress.lastText(t)
	assert.Contains(t, turn1, "正在解除绑定 日服 账号 10000001")
	assert.Contains(t, turn1, "12345")

	// Any message continues an unbind verification.
	fx.router.Handle(ctx, msg("随便说点什么"))

	require.Len(t, fx.backend.verifications, 1)
	v := fx.backend.verifications[0]
	assert.Equal(t, int64(10000001), v.playerID)
	assert.False(t, v.bind)
}

func TestUnbindWithoutBinding(t *testing.T) {
	fx := newFixture(t, Options{})
	fx.backend.user = &tsugudto.UserData{MainServer: tsugudto.ServerJP}

	fx.router.Handle(context.Background(), msg("解除绑定"))

	assert.Equal(t, "错误: 未检测到日服的玩家数据", fx.egress.lastText(t))
	assert.Zero(t, fx.backend.bindRequests)
}

func TestSearchUsesDisplayedServers(t *testing.T) {
	fx := newFixture(t, Options{})
	fx.backend.user = &tsugudto.UserData{
		MainServer:          tsugudto.ServerCN,
		DisplayedServerList: []tsugudto.ServerID{tsugudto.ServerCN, tsugudto.ServerJP},
	}

	fx.router.Handle(context.Background(), msg("查卡 绿 tsugu"))

	assert.Equal(t, "绿 tsugu", fx.backend.searchedCard)
	assert.Equal(t, []tsugudto.ServerID{tsugudto.ServerCN, tsugudto.ServerJP}, fx.backend.searchedSrv)
}

func TestYcxTypedPositionalArgs(t *testing.T) {
	fx := newFixture(t, Options{})

	fx.router.Handle(context.Background(), msg("ycx 1000 177 jp"))

	require.Len(t, fx.backend.ycxCalls, 1)
	call := fx.backend.ycxCalls[0]
	assert.Equal(t, tsugudto.ServerJP, call.main)
	assert.Equal(t, int64(1000), call.tier)
	require.NotNil(t, call.eventID)
	assert.Equal(t, int64(177), *call.eventID)
}

func TestYcxServerBeforeEventID(t *testing.T) {
	fx := newFixture(t, Options{})

	fx.router.Handle(context.Background(), msg("ycx 1000 jp"))

	require.Len(t, fx.backend.ycxCalls, 1)
	call := fx.backend.ycxCalls[0]
	assert.Equal(t, tsugudto.ServerJP, call.main)
	assert.Equal(t, int64(1000), call.tier)
	assert.Nil(t, call.eventID)
}

func TestYcxMissingTier(t *testing.T) {
	fx := newFixture(t, Options{})

	fx.router.Handle(context.Background(), msg("ycx"))

	assert.Equal(t, "请输入排名", fx.egress.lastText(t))
	assert.Empty(t, fx.backend.ycxCalls)
}

func TestSongMetaNumericServerAlias(t *testing.T) {
	fx := newFixture(t, Options{})

	// "0" is the jp server alias; the default profile's main server is cn.
	fx.router.Handle(context.Background(), msg("查询分数表 0"))

	require.Len(t, fx.backend.metaMains, 1)
	assert.Equal(t, tsugudto.ServerJP, fx.backend.metaMains[0])
}

func TestSongMetaUnknownNumericServer(t *testing.T) {
	fx := newFixture(t, Options{})

	fx.router.Handle(context.Background(), msg("查询分数表 99"))

	assert.Equal(t, "错误: 服务器不存在", fx.egress.lastText(t))
	assert.Empty(t, fx.backend.metaMains)
}

func TestSearchPlayerNumericServerAlias(t *testing.T) {
	fx := newFixture(t, Options{})

	fx.router.Handle(context.Background(), msg("查玩家 10000000 0"))

	require.Len(t, fx.backend.playerQueries, 1)
	assert.Equal(t, playerQuery{playerID: 10000000, server: tsugudto.ServerJP}, fx.backend.playerQueries[0])
}

func TestPlayerStatusNumericServerAlias(t *testing.T) {
	fx := newFixture(t, Options{})
	fx.backend.user = &tsugudto.UserData{
		MainServer:      tsugudto.ServerCN,
		UserPlayerIndex: 1,
		UserPlayerList: []tsugudto.PlayerBinding{
			{PlayerID: 111, Server: tsugudto.ServerJP},
			{PlayerID: 222, Server: tsugudto.ServerCN},
		},
	}

	// "0" is not an account index here; it resolves as the jp alias.
	fx.router.Handle(context.Background(), msg("玩家状态 0"))

	require.Len(t, fx.backend.playerQueries, 1)
	assert.Equal(t, playerQuery{playerID: 111, server: tsugudto.ServerJP}, fx.backend.playerQueries[0])
}

func TestYcxNumericServerAliasAfterIntSlots(t *testing.T) {
	fx := newFixture(t, Options{})

	// tier and event id fill the int slots; the trailing "0" is jp.
	fx.router.Handle(context.Background(), msg("ycx 1000 177 0"))

	require.Len(t, fx.backend.ycxCalls, 1)
	call := fx.backend.ycxCalls[0]
	assert.Equal(t, tsugudto.ServerJP, call.main)
	assert.Equal(t, int64(1000), call.tier)
	require.NotNil(t, call.eventID)
	assert.Equal(t, int64(177), *call.eventID)
}

func TestReplyAndAtWrapping(t *testing.T) {
	fx := newFixture(t, Options{Reply: true, At: true})

	fx.router.Handle(context.Background(), msg("开启车牌转发"))

	require.Len(t, fx.egress.sends, 1)
	segs := fx.egress.sends[0]
	require.Len(t, segs, 4)
	assert.Equal(t, redconn.SegmentReply, segs[0].Type)
	assert.Equal(t, "m1", segs[0].MessageID)
	assert.Equal(t, redconn.SegmentAt, segs[1].Type)
	assert.Equal(t, "u1", segs[1].Target)
	assert.Equal(t, "已开启车牌转发", segs[3].Text)
}

func TestOperatorAliases(t *testing.T) {
	fx := newFixture(t, Options{Aliases: map[string][]string{"ycm": {"有没有车"}}})

	fx.router.Handle(context.Background(), msg("有没有车"))

	// Unmatched forwarding did not fire: the alias routed to the command.
	assert.Empty(t, fx.forwarder.events)
}

func TestHelpListsCommands(t *testing.T) {
	fx := newFixture(t, Options{})

	fx.router.Handle(context.Background(), msg("帮助"))

	text := fx.egress.lastText(t)
	assert.Contains(t, text, "可用指令:")
	assert.Contains(t, text, "查卡")
	assert.Contains(t, text, "绑定玩家")
}

func TestHelpForYcxIncludesTierList(t *testing.T) {
	fx := newFixture(t, Options{})

	fx.router.Handle(context.Background(), msg("帮助 ycx"))

	text := fx.egress.lastText(t)
	assert.Contains(t, text, "可用档线:")
	assert.Contains(t, text, "jp : 20, 30, 40, 50,")
}

func TestSwitchAccount(t *testing.T) {
	fx := newFixture(t, Options{})
	fx.backend.user = &tsugudto.UserData{
		MainServer: tsugudto.ServerJP,
		UserPlayerList: []tsugudto.PlayerBinding{
			{PlayerID: 111, Server: tsugudto.ServerJP},
			{PlayerID: 222, Server: tsugudto.ServerCN},
		},
	}

	fx.router.Handle(context.Background(), msg("切换账户 2"))

	require.Len(t, fx.backend.changedUpdates, 1)
	assert.Equal(t, int64(1), fx.backend.changedUpdates[0]["user_player_index"])
	assert.Equal(t, "已切换至账户 2 (国服 222)", fx.egress.lastText(t))
}

func TestPlayerListMarksCurrent(t *testing.T) {
	fx := newFixture(t, Options{})
	fx.backend.user = &tsugudto.UserData{
		UserPlayerIndex: 1,
		UserPlayerList: []tsugudto.PlayerBinding{
			{PlayerID: 111, Server: tsugudto.ServerJP},
			{PlayerID: 222, Server: tsugudto.ServerCN},
		},
	}

	fx.router.Handle(context.Background(), msg("玩家列表"))

	text := fx.egress.lastText(t)
	assert.Contains(t, text, "已绑定的玩家账户:")
	assert.Contains(t, text, "1. 日服 111")
	assert.Contains(t, text, "* 2. 国服 222")
}
