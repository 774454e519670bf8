package redconn

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/uika/tsugu-go-bot/internal/obslog"
)

// ConnState is the gateway connection lifecycle state.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateReconnecting ConnState = "reconnecting"
	StateFailed       ConnState = "failed"
)

// Gateway maintains the WebSocket connection to the Red chat gateway, fans
// inbound message events out to the registered callback, and implements
// Egress for outbound composed messages.
type Gateway struct {
	url string

	conn   *websocket.Conn
	connM  sync.RWMutex
	state  ConnState
	stateM sync.RWMutex

	onEvent EventCallback
	writeM  sync.Mutex

	maxReconnectAttempts int
	pingInterval         time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	rootCtx    context.Context
	rootCancel context.CancelFunc
}

func NewGateway(url string, maxReconnectAttempts int) *Gateway {
	return &Gateway{
		url:                  url,
		state:                StateDisconnected,
		maxReconnectAttempts: maxReconnectAttempts,
		pingInterval:         30 * time.Second,
		stopCh:               make(chan struct{}),
	}
}

// OnEvent registers the single inbound event handler. Must be called before
// Connect; the handler runs on the listen goroutine, so long work should be
// spawned off by the caller.
func (g *Gateway) OnEvent(cb EventCallback) { g.onEvent = cb }

func (g *Gateway) State() ConnState {
	g.stateM.RLock()
	defer g.stateM.RUnlock()
	return g.state
}

func (g *Gateway) getConn() *websocket.Conn {
	g.connM.RLock()
	defer g.connM.RUnlock()
	return g.conn
}

func (g *Gateway) setConn(conn *websocket.Conn) {
	g.connM.Lock()
	g.conn = conn
	g.connM.Unlock()
}

func (g *Gateway) Connect(ctx context.Context) error {
	g.stateM.Lock()
	if g.state == StateConnected || g.state == StateConnecting {
		g.stateM.Unlock()
		return nil
	}
	g.state = StateConnecting
	g.stateM.Unlock()

	g.rootCtx, g.rootCancel = context.WithCancel(context.Background())

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, g.url, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		g.setState(StateFailed)
		g.scheduleReconnect()
		return err
	}

	g.setConn(conn)
	g.setState(StateConnected)

	g.wg.Add(2)
	go g.listen()
	go g.pingLoop()
	return nil
}

// Send writes a composed message frame. Writes are serialized; wsjson.Write
// is not safe for concurrent use on one connection.
func (g *Gateway) Send(ctx context.Context, channelID string, segments []Segment) error {
	conn := g.getConn()
	if g.State() != StateConnected || conn == nil {
		return errors.New("gateway not connected")
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	g.writeM.Lock()
	defer g.writeM.Unlock()
	return wsjson.Write(ctx, conn, &sendFrame{Type: "send", ChannelID: channelID, Segments: segments})
}

func (g *Gateway) listen() {
	defer g.wg.Done()
	for {
		select {
		case <-g.stopCh:
			return
		default:
		}
		conn := g.getConn()
		if conn == nil {
			return
		}

		var ev Event
		if err := wsjson.Read(g.rootCtx, conn, &ev); err != nil {
			if g.isStopping() {
				return
			}
			obslog.L().Warn("gateway_read_error", zap.Error(err))
			g.setState(StateDisconnected)
			_ = g.closeConn(websocket.StatusGoingAway, "reconnect")
			g.scheduleReconnect()
			return
		}

		if ev.Type != EventTypeMessage {
			continue
		}
		if g.onEvent != nil {
			g.onEvent(&ev)
		}
	}
}

func (g *Gateway) pingLoop() {
	defer g.wg.Done()
	t := time.NewTicker(g.pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-g.stopCh:
			return
		case <-t.C:
			conn := g.getConn()
			if conn == nil {
				continue
			}
			ctx, cancel := context.WithTimeout(g.rootCtx, 3*time.Second)
			err := conn.Ping(ctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures < 2 {
				continue
			}
			if g.isStopping() {
				return
			}
			g.setState(StateDisconnected)
			_ = g.closeConn(websocket.StatusGoingAway, "ping failure")
			g.scheduleReconnect()
			failures = 0
		}
	}
}

func (g *Gateway) scheduleReconnect() {
	if g.maxReconnectAttempts <= 0 {
		return
	}
	g.setState(StateReconnecting)

	go func() {
		for attempt := 1; attempt <= g.maxReconnectAttempts; attempt++ {
			select {
			case <-g.stopCh:
				return
			case <-time.After(backoffDuration(attempt)):
			}

			dialCtx, cancel := context.WithTimeout(g.rootCtx, 10*time.Second)
			conn, _, err := websocket.Dial(dialCtx, g.url, &websocket.DialOptions{
				CompressionMode: websocket.CompressionNoContextTakeover,
			})
			cancel()
			if err != nil {
				obslog.L().Warn("gateway_reconnect_failed", zap.Int("attempt", attempt), zap.Error(err))
				continue
			}

			g.setConn(conn)
			g.setState(StateConnected)
			obslog.L().Info("gateway_reconnected", zap.Int("attempt", attempt))

			g.wg.Add(2)
			go g.listen()
			go g.pingLoop()
			return
		}
		g.setState(StateFailed)
		obslog.L().Error("gateway_reconnect_exhausted", zap.Int("attempts", g.maxReconnectAttempts))
	}()
}

func (g *Gateway) Close(ctx context.Context) error {
	g.stopOnce.Do(func() { close(g.stopCh) })
	_ = g.closeConn(websocket.StatusNormalClosure, "close")

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		if g.rootCancel != nil {
			g.rootCancel()
		}
		return nil
	}
}

func (g *Gateway) setState(state ConnState) {
	g.stateM.Lock()
	g.state = state
	g.stateM.Unlock()
}

// closeConn detaches the connection under the lock first so no sender can
// pick it up mid-close.
func (g *Gateway) closeConn(code websocket.StatusCode, reason string) error {
	g.connM.Lock()
	conn := g.conn
	g.conn = nil
	g.connM.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close(code, reason)
}

func (g *Gateway) isStopping() bool {
	select {
	case <-g.stopCh:
		return true
	default:
		return false
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
}
