package forward

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uika/tsugu-go-bot/internal/redconn"
	"github.com/uika/tsugu-go-bot/pkg/tsugudto"
)

type fakeProfiles struct {
	user  *tsugudto.UserData
	err   error
	calls int
}

func (f *fakeProfiles) GetUserData(_ context.Context, _ string) (*tsugudto.UserData, error) {
	f.calls++
	return f.user, f.err
}

type fakeStation struct {
	err  error
	reqs []tsugudto.SubmitRoomRequest
}

func (f *fakeStation) StationSubmitRoomNumber(_ context.Context, req tsugudto.SubmitRoomRequest) error {
	f.reqs = append(f.reqs, req)
	return f.err
}

type fakeAudit struct {
	rooms []tsugudto.StationRoom
}

func (f *fakeAudit) RecordForward(_ context.Context, room tsugudto.StationRoom) error {
	f.rooms = append(f.rooms, room)
	return nil
}

func sharingUser() *tsugudto.UserData {
	return &tsugudto.UserData{UserID: "u1", ShareRoomNumber: true}
}

func event(text string) *redconn.Event {
	return &redconn.Event{
		Type:    redconn.EventTypeMessage,
		Sender:  redconn.Sender{ID: "u1", Nickname: "Alice"},
		Content: text,
	}
}

func TestForwardsRoomShare(t *testing.T) {
	profiles := &fakeProfiles{user: sharingUser()}
	station := &fakeStation{}
	f := New(profiles, station, nil, "red", "token123")

	forwarded := f.Handle(context.Background(), event("123456q1 go"))

	assert.True(t, forwarded)
	require.Len(t, station.reqs, 1)
	req := station.reqs[0]
	assert.Equal(t, int64(123456), req.Number)
	assert.Equal(t, "123456q1 go", req.RawMessage)
	assert.Equal(t, "red", req.Platform)
	assert.Equal(t, "u1", req.UserID)
	assert.Equal(t, "Alice", req.UserName)
	assert.Equal(t, "token123", req.Token)
}

func TestFakeKeywordBlocks(t *testing.T) {
	profiles := &fakeProfiles{user: sharingUser()}
	station := &fakeStation{}
	f := New(profiles, station, nil, "red", "")

	forwarded := f.Handle(context.Background(), event("123456q1 114514"))

	assert.False(t, forwarded)
	assert.Empty(t, station.reqs)
	assert.Zero(t, profiles.calls)
}

func TestPatternGateRejectsShortNumber(t *testing.T) {
	profiles := &fakeProfiles{user: sharingUser()}
	station := &fakeStation{}
	f := New(profiles, station, nil, "red", "")

	assert.False(t, f.Handle(context.Background(), event("12q1")))
	assert.Empty(t, station.reqs)
	assert.Zero(t, profiles.calls)
}

func TestNoCarKeywordSkips(t *testing.T) {
	profiles := &fakeProfiles{user: sharingUser()}
	station := &fakeStation{}
	f := New(profiles, station, nil, "red", "")

	assert.False(t, f.Handle(context.Background(), event("123456")))
	assert.Empty(t, station.reqs)
	assert.Zero(t, profiles.calls)
}

func TestSharingDisabledSkipsSilently(t *testing.T) {
	profiles := &fakeProfiles{user: &tsugudto.UserData{UserID: "u1", ShareRoomNumber: false}}
	station := &fakeStation{}
	f := New(profiles, station, nil, "red", "")

	assert.False(t, f.Handle(context.Background(), event("123456q1")))
	assert.Empty(t, station.reqs)
	assert.Equal(t, 1, profiles.calls)
}

func TestProfileErrorSkipsSilently(t *testing.T) {
	profiles := &fakeProfiles{err: errors.New("backend down")}
	station := &fakeStation{}
	f := New(profiles, station, nil, "red", "")

	assert.False(t, f.Handle(context.Background(), event("123456q1")))
	assert.Empty(t, station.reqs)
}

func TestSubmitErrorReportsNotForwarded(t *testing.T) {
	profiles := &fakeProfiles{user: sharingUser()}
	station := &fakeStation{err: errors.New("station down")}
	f := New(profiles, station, nil, "red", "")

	assert.False(t, f.Handle(context.Background(), event("123456q1")))
}

func TestAuditRecordsForward(t *testing.T) {
	profiles := &fakeProfiles{user: sharingUser()}
	station := &fakeStation{}
	audit := &fakeAudit{}
	f := New(profiles, station, audit, "red", "")

	assert.True(t, f.Handle(context.Background(), event("54321缺1")))
	require.Len(t, audit.rooms, 1)
	assert.Equal(t, int64(54321), audit.rooms[0].Number)
	assert.Equal(t, "red", audit.rooms[0].Source)
}
