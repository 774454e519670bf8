// Package forward watches every channel message for shared room numbers and
// relays them to the bulletin backend. It runs on unaddressed traffic, so it
// never replies: non-matches are skipped and soft failures are only logged.
package forward

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/uika/tsugu-go-bot/internal/obslog"
	"github.com/uika/tsugu-go-bot/internal/redconn"
	"github.com/uika/tsugu-go-bot/pkg/tsugudto"
)

// roomPattern gates everything: a 5 or 6 digit room number at the start of
// the message, the rest is the free-form body.
var roomPattern = regexp.MustCompile(`^(\d{5,6})(.*)$`)

// carKeywords marks a message as a room share. Substring match,
// case-sensitive.
var carKeywords = []string{
	"q1", "q2", "q3", "q4", "q5", "q6", "q7", "q8", "q9", "q10",
	"缺1", "缺2", "缺3", "缺4", "缺5", "缺6", "缺7", "缺8", "缺9", "缺10",
	"3火", "三火", "3把", "三把", "打满", "清火", "奇迹", "中途",
	"大e", "大分e", "exi", "大分跳", "大跳", "大分", "大分大", "大分中", "大分小",
	"长途", "生日车", "军训", "禁fc",
}

// fakeKeywords flags meme traffic that happens to start with digits.
var fakeKeywords = []string{
	"114514", "野兽", "恶臭", "1919", "下北泽", "粪", "糞", "臭",
	"11451", "xxxx", "x x x x", "油豆腐", "驴", "打胶", "魔怔",
	"蒂法", "诗旅", "滑稽",
}

// ProfileSource looks up the sender's stored profile, which carries the
// forwarding opt-in flag.
type ProfileSource interface {
	GetUserData(ctx context.Context, userID string) (*tsugudto.UserData, error)
}

// Submitter delivers a room number to the bulletin backend.
type Submitter interface {
	StationSubmitRoomNumber(ctx context.Context, req tsugudto.SubmitRoomRequest) error
}

// AuditRepo optionally records every successful forward. Nil disables
// auditing.
type AuditRepo interface {
	RecordForward(ctx context.Context, room tsugudto.StationRoom) error
}

type Forwarder struct {
	profiles ProfileSource
	station  Submitter
	audit    AuditRepo
	limiter  *rate.Limiter
	platform string
	token    string
	logger   *zap.Logger
	now      func() time.Time
}

func New(profiles ProfileSource, station Submitter, audit AuditRepo, platform, token string) *Forwarder {
	return &Forwarder{
		profiles: profiles,
		station:  station,
		audit:    audit,
		limiter:  rate.NewLimiter(rate.Every(time.Second), 5),
		platform: platform,
		token:    token,
		logger:   obslog.L().Named("forward"),
		now:      time.Now,
	}
}

// Handle inspects one message and forwards it when every gate passes. The
// return value reports whether a forward happened; callers never reply to
// the chat based on it.
func (f *Forwarder) Handle(ctx context.Context, ev *redconn.Event) bool {
	match := roomPattern.FindStringSubmatch(ev.Content)
	if match == nil {
		return false
	}
	if !containsAny(ev.Content, carKeywords) {
		return false
	}
	if containsAny(ev.Content, fakeKeywords) {
		f.logger.Debug("fake keyword hit", zap.String("user", ev.Sender.ID))
		return false
	}
	if !f.limiter.Allow() {
		f.logger.Warn("forward rate limited", zap.String("user", ev.Sender.ID))
		return false
	}

	profile, err := f.profiles.GetUserData(ctx, ev.Sender.ID)
	if err != nil {
		f.logger.Warn("load profile failed", zap.String("user", ev.Sender.ID), zap.Error(err))
		return false
	}
	if !profile.ShareRoomNumber {
		return false
	}

	number, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil {
		return false
	}

	req := tsugudto.SubmitRoomRequest{
		Number:     number,
		RawMessage: ev.Content,
		Platform:   f.platform,
		UserID:     ev.Sender.ID,
		UserName:   ev.Sender.DisplayName(),
		Time:       f.now().UnixMilli(),
		Token:      f.token,
	}
	if err := f.station.StationSubmitRoomNumber(ctx, req); err != nil {
		f.logger.Warn("submit room number failed",
			zap.Int64("number", number),
			zap.String("user", ev.Sender.ID),
			zap.Error(err))
		return false
	}

	f.logger.Debug("room number forwarded", zap.Int64("number", number))
	if f.audit != nil {
		room := tsugudto.StationRoom{
			Number:     number,
			RawMessage: ev.Content,
			Source:     f.platform,
			UserID:     ev.Sender.ID,
			UserName:   ev.Sender.DisplayName(),
			Time:       req.Time,
		}
		if err := f.audit.RecordForward(ctx, room); err != nil {
			f.logger.Warn("audit record failed", zap.Error(err))
		}
	}
	return true
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
