package gate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"qq-farm-runtime/errors"
	"qq-farm-runtime/gamepb"
)

// DefaultGatewayURL is the production gate endpoint.
const DefaultGatewayURL = "wss://gate-obt.nqf.qq.com/prod/ws"

// Config carries the connection identity the gate expects.
type Config struct {
	GatewayURL    string
	Platform      string
	OS            string
	ClientVersion string
	RPCTimeout    time.Duration
	UserAgent     string
	Origin        string
}

// WithDefaults fills unset fields with the stock client identity.
func (c Config) WithDefaults() Config {
	if c.GatewayURL == "" {
		c.GatewayURL = DefaultGatewayURL
	}
	if c.Platform == "" {
		c.Platform = "qq"
	}
	if c.OS == "" {
		c.OS = "iOS"
	}
	if c.ClientVersion == "" {
		c.ClientVersion = "1.6.0.5_20251224"
	}
	if c.RPCTimeout <= 0 {
		c.RPCTimeout = 10 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
			"(KHTML, like Gecko) Chrome/132.0.0.0 Safari/537.36 " +
			"MicroMessenger/7.0.20.1781(0x6700143B) NetType/WIFI " +
			"MiniProgramEnv/Windows WindowsWechat/WMPF WindowsWechat(0x63090a13)"
	}
	if c.Origin == "" {
		c.Origin = "https://gate-obt.nqf.qq.com"
	}
	return c
}

type callResult struct {
	body []byte
	err  error
}

// Session multiplexes RPCs and notifies over one gate websocket.
//
// Replies correlate to requests by clientSeq: the sequence is allocated
// under the send lock so frames leave the socket in seq order, and the
// last seen serverSeq is echoed into every request.
type Session struct {
	cfg        Config
	conn       Conn
	dispatcher *Dispatcher
	logger     *zap.SugaredLogger

	sendMu    sync.Mutex
	clientSeq int64
	serverSeq atomic.Int64

	mu      sync.Mutex
	pending map[int64]chan callResult
	closed  bool

	done chan struct{}
	wg   sync.WaitGroup
}

// NewSession wraps an established connection. The receive loop starts
// immediately.
func NewSession(conn Conn, cfg Config, log *zap.SugaredLogger) *Session {
	s := &Session{
		cfg:        cfg.WithDefaults(),
		conn:       conn,
		dispatcher: NewDispatcher(),
		logger:     log,
		clientSeq:  1,
		pending:    make(map[int64]chan callResult),
		done:       make(chan struct{}),
	}
	s.wg.Add(1)
	go s.recvLoop()
	return s
}

// Connect dials the gate and returns a running session.
func Connect(ctx context.Context, cfg Config, code string, log *zap.SugaredLogger) (*Session, error) {
	cfg = cfg.WithDefaults()
	conn, err := Dial(ctx, cfg, code)
	if err != nil {
		return nil, err
	}
	return NewSession(conn, cfg, log), nil
}

// Dispatcher exposes the notify fan-out for subscription.
func (s *Session) Dispatcher() *Dispatcher { return s.dispatcher }

// Connected reports whether the session can still issue calls.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

// Done is closed once the session has shut down.
func (s *Session) Done() <-chan struct{} { return s.done }

// Call issues one RPC and waits for its reply body. The timeout falls
// back to the configured RPC timeout; ctx cancellation aborts the wait.
func (s *Session) Call(ctx context.Context, service, method string, body []byte) ([]byte, error) {
	return s.CallTimeout(ctx, service, method, body, s.cfg.RPCTimeout)
}

// CallTimeout is Call with an explicit reply deadline.
func (s *Session) CallTimeout(ctx context.Context, service, method string, body []byte, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = s.cfg.RPCTimeout
	}

	ch := make(chan callResult, 1)

	s.sendMu.Lock()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.sendMu.Unlock()
		return nil, errors.Wrapf(errors.ErrDisconnected, "%s.%s", service, method)
	}
	seq := s.clientSeq
	s.clientSeq++
	s.pending[seq] = ch
	s.mu.Unlock()

	frame := &gamepb.Message{
		Meta: &gamepb.Meta{
			ServiceName: service,
			MethodName:  method,
			MessageType: gamepb.MessageTypeRequest,
			ClientSeq:   seq,
			ServerSeq:   s.serverSeq.Load(),
		},
		Body: body,
	}
	err := s.conn.WriteMessage(websocket.BinaryMessage, frame.Marshal())
	s.sendMu.Unlock()

	if err != nil {
		s.dropPending(seq)
		return nil, errors.Wrapf(errors.ErrDisconnected, "%s.%s write failed", service, method)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		return res.body, res.err
	case <-timer.C:
		s.dropPending(seq)
		return nil, errors.Wrapf(errors.ErrTimeout, "%s.%s", service, method)
	case <-ctx.Done():
		s.dropPending(seq)
		return nil, errors.Wrapf(ctx.Err(), "%s.%s canceled", service, method)
	}
}

// Stop closes the connection and waits for the receive loop to drain.
// Every pending call fails with ErrDisconnected. Safe to call twice.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.wg.Wait()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.conn.Close()
	s.wg.Wait()
}

func (s *Session) recvLoop() {
	defer s.wg.Done()
	defer close(s.done)
	defer s.shutdown()

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		s.handleFrame(data)
	}
}

func (s *Session) handleFrame(data []byte) {
	msg := &gamepb.Message{}
	if err := msg.Unmarshal(data); err != nil {
		s.logger.Warnw("Dropping undecodable gate frame", "error", err)
		return
	}
	if msg.Meta == nil {
		return
	}

	if seq := msg.Meta.ServerSeq; seq > s.serverSeq.Load() {
		s.serverSeq.Store(seq)
	}

	switch msg.Meta.MessageType {
	case gamepb.MessageTypeReply:
		s.mu.Lock()
		ch, ok := s.pending[msg.Meta.ClientSeq]
		if ok {
			delete(s.pending, msg.Meta.ClientSeq)
		}
		s.mu.Unlock()
		if !ok {
			return
		}
		if msg.Meta.ErrorCode != 0 {
			ch <- callResult{err: errors.NewRemote(
				msg.Meta.ServiceName,
				msg.Meta.MethodName,
				msg.Meta.ErrorCode,
				msg.Meta.ErrorMessage,
			)}
			return
		}
		ch <- callResult{body: msg.Body}

	case gamepb.MessageTypeEvent:
		event := &gamepb.EventMessage{}
		if err := event.Unmarshal(msg.Body); err != nil {
			s.logger.Warnw("Dropping undecodable gate event", "error", err)
			return
		}
		s.dispatcher.Emit(event.MessageType, event.Body)
	}
}

// shutdown fails every pending call and clears subscriptions once the
// receive loop exits, whatever the cause.
func (s *Session) shutdown() {
	s.mu.Lock()
	s.closed = true
	pending := s.pending
	s.pending = make(map[int64]chan callResult)
	s.mu.Unlock()

	for _, ch := range pending {
		ch <- callResult{err: errors.WithStack(errors.ErrDisconnected)}
	}
	s.conn.Close()
	s.dispatcher.Clear()
}

func (s *Session) dropPending(seq int64) {
	s.mu.Lock()
	delete(s.pending, seq)
	s.mu.Unlock()
}
