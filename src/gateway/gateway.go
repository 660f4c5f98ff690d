package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"runtime"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/petrelware/petrel/src/rest"
)

type GatewayStatus = string

const (
	StatusDisconnected  GatewayStatus = "DISCONNECTED"
	StatusConnecting    GatewayStatus = "CONNECTING"
	StatusAwaitingHello GatewayStatus = "AWAITING_HELLO"
	StatusIdentifying   GatewayStatus = "IDENTIFYING"
	StatusResuming      GatewayStatus = "RESUMING"
	StatusReady         GatewayStatus = "READY"
	StatusClosing       GatewayStatus = "CLOSING"
)

const (
	defaultGatewayHost      = "wss://gateway.discord.gg"
	defaultAPIVersion       = 10
	defaultHeartbeatTimeout = 90 * time.Second
	defaultReceiveTimeout   = 80 * time.Second
)

var (
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrNotAuthenticated     = errors.New("not authenticated")
	ErrDecode               = errors.New("invalid payload")
	ErrDisallowedIntents    = errors.New("disallowed intent. you may have tried to specify an intent that you have not enabled")
	ErrNotConnected         = errors.New("gateway is not connected")
	ErrExpectedHello        = errors.New("gateway did not open with a hello payload")
)

// ReconnectError is not a failure: it signals that the connection was
// closed with the intent to come back, and carries everything the next
// dial needs. Open consumes it internally; it only escapes through the
// public API if run is driven manually.
type ReconnectError struct {
	ResumeURL string
	CanResume bool
}

func (e *ReconnectError) Error() string {
	return fmt.Sprintf("gateway reconnect requested (resume=%v)", e.CanResume)
}

// DispatchHandler receives every decoded DISPATCH payload, including the
// synthetic READY and RESUMED markers after a reconnect.
type DispatchHandler func(event EventName, data json.RawMessage)

type Gateway struct {
	rwlock    sync.RWMutex
	wsurl     string
	conn      *Connection
	heartbeat *HeartbeatMonitor
	status    GatewayStatus

	session          *Session
	identifyLimiter  *rate.Limiter
	heartbeatTimeout time.Duration
	receiveTimeout   time.Duration

	botToken   string
	botIntents int
	botVersion int

	handlersLock sync.RWMutex
	handlers     []DispatchHandler

	rest *rest.REST
	log  *slog.Logger
}

type GatewayArguments struct {
	BotToken  string
	BotIntent []GatewayIntent

	// GatewayURL overrides the websocket url. When empty the url is
	// fetched through the Get Gateway Bot endpoint, falling back to the
	// well-known host.
	GatewayURL string

	// HeartbeatTimeout is how long the connection may go without a
	// HEARTBEAT_ACK before it is declared zombied. It must comfortably
	// exceed the heartbeat interval Discord hands out (~41s).
	HeartbeatTimeout time.Duration
	ReceiveTimeout   time.Duration

	REST   *rest.REST
	Logger *slog.Logger
}

func NewGateway(args GatewayArguments) *Gateway {
	intents := 0
	for _, v := range args.BotIntent {
		intents |= v
	}
	if args.HeartbeatTimeout <= 0 {
		args.HeartbeatTimeout = defaultHeartbeatTimeout
	}
	if args.ReceiveTimeout <= 0 {
		args.ReceiveTimeout = defaultReceiveTimeout
	}
	if args.Logger == nil {
		args.Logger = slog.Default()
	}
	return &Gateway{
		wsurl:            args.GatewayURL,
		status:           StatusDisconnected,
		session:          NewSession(),
		identifyLimiter:  newIdentifyLimiter(),
		heartbeatTimeout: args.HeartbeatTimeout,
		receiveTimeout:   args.ReceiveTimeout,
		botToken:         args.BotToken,
		botIntents:       intents,
		botVersion:       defaultAPIVersion,
		rest:             args.REST,
		log:              args.Logger,
	}
}

// OnDispatch subscribes a handler to decoded dispatch payloads. Handlers
// must be registered before Open.
func (g *Gateway) OnDispatch(h DispatchHandler) {
	g.handlersLock.Lock()
	defer g.handlersLock.Unlock()
	g.handlers = append(g.handlers, h)
}

func (g *Gateway) Status() GatewayStatus {
	g.rwlock.RLock()
	defer g.rwlock.RUnlock()
	return g.status
}

func (g *Gateway) setStatus(s GatewayStatus) {
	g.rwlock.Lock()
	g.status = s
	g.rwlock.Unlock()
}

// Open runs the connect → receive-loop → close/resume cycle until the
// context is cancelled or a non-recoverable error occurs. Recoverable
// disconnects reconnect silently; the dispatch layer sees the usual READY
// or RESUMED events afterwards.
func (g *Gateway) Open(ctx context.Context) error {
	wsurl, err := g.resolveURL(ctx)
	if err != nil {
		return err
	}
	for {
		err := g.run(ctx, wsurl)
		var reconnect *ReconnectError
		if !errors.As(err, &reconnect) {
			return err
		}
		next := reconnect.ResumeURL
		if next == "" {
			next = defaultGatewayHost
		}
		wsurl = withGatewayQuery(next, g.botVersion)
		g.log.Info("gateway reconnecting", "resume", reconnect.CanResume)
	}
}

func (g *Gateway) resolveURL(ctx context.Context) (string, error) {
	if g.wsurl != "" {
		return withGatewayQuery(g.wsurl, g.botVersion), nil
	}
	if g.rest != nil {
		gb, err := g.rest.GetGatewayBot(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to fetch gateway url: %w", err)
		}
		return withGatewayQuery(gb.URL, g.botVersion), nil
	}
	return withGatewayQuery(defaultGatewayHost, g.botVersion), nil
}

// withGatewayQuery pins the query parameters every gateway dial needs,
// whatever host the url points at.
func withGatewayQuery(raw string, version int) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.RawQuery = fmt.Sprintf("v=%v&encoding=json&compress=zlib-stream", version)
	return u.String()
}

// run performs one full connection lifecycle. It returns a *ReconnectError
// when the connection should be re-established, nil or another error when
// it should not.
func (g *Gateway) run(ctx context.Context, wsurl string) error {
	g.setStatus(StatusConnecting)
	g.log.Info("connecting to gateway", "url", wsurl)

	conn := NewConnection(g.receiveTimeout, g.log)
	if err := conn.Dial(ctx, wsurl); err != nil {
		g.setStatus(StatusDisconnected)
		return err
	}
	g.rwlock.Lock()
	g.conn = conn
	g.rwlock.Unlock()

	g.setStatus(StatusAwaitingHello)
	payload, err := conn.Receive()
	if err != nil {
		g.shutdown(conn, nil, CloseNormal)
		return err
	}
	if payload.Op != OpcodeHello {
		// The server is misbehaving; bail out without a reconnect.
		g.shutdown(conn, nil, CloseNormal)
		return ErrExpectedHello
	}
	var hello HelloEventD
	if err := json.Unmarshal(payload.D, &hello); err != nil {
		g.shutdown(conn, nil, CloseNormal)
		return fmt.Errorf("failed to decode hello payload: %w", err)
	}
	interval := time.Duration(hello.HeartbeatInterval) * time.Millisecond

	heartbeat := NewHeartbeatMonitor(interval, func(context.Context) error {
		return conn.SendHeartbeat(g.session.Sequence())
	}, g.log)
	g.rwlock.Lock()
	g.heartbeat = heartbeat
	g.rwlock.Unlock()
	heartbeat.Start(ctx)

	if g.session.CanResume() {
		g.setStatus(StatusResuming)
		err = conn.Send(ctx, OpcodeResume, ResumeEventD{
			Token:     g.botToken,
			SessionID: g.session.ID(),
			Seq:       g.session.Sequence(),
		})
	} else {
		g.setStatus(StatusIdentifying)
		if err = g.identifyLimiter.Wait(ctx); err == nil {
			err = conn.Send(ctx, OpcodeIdentify, IdentifyEventD{
				Token:   g.botToken,
				Intents: g.botIntents,
				Properties: IdentifyEventDProperties{
					Os:      runtime.GOOS,
					Browser: "petrel",
					Device:  "petrel",
				},
				LargeThreshold: 250,
			})
		}
	}
	if err != nil {
		g.shutdown(conn, heartbeat, CloseNormal)
		return err
	}

	g.setStatus(StatusReady)
	return g.listen(ctx, conn, heartbeat)
}

func (g *Gateway) listen(ctx context.Context, conn *Connection, heartbeat *HeartbeatMonitor) error {
	payloads := make(chan *Payload)
	readErr := make(chan error, 1)
	listenDone := make(chan struct{})
	defer close(listenDone)

	go func() {
		for {
			p, err := conn.Receive()
			if err != nil {
				select {
				case readErr <- err:
				case <-listenDone:
				}
				return
			}
			select {
			case payloads <- p:
			case <-listenDone:
				return
			}
		}
	}()

	zombieCheck := time.NewTicker(time.Second)
	defer zombieCheck.Stop()

	for {
		select {
		case <-ctx.Done():
			// Explicit stop: close cleanly, never reconnect.
			g.shutdown(conn, heartbeat, CloseNormal)
			return ctx.Err()
		case <-zombieCheck.C:
			if last := heartbeat.LastAck(); !last.IsZero() && time.Since(last) > g.heartbeatTimeout {
				g.log.Warn("zombied connection detected", "last_ack", last)
				return g.closeForReconnect(conn, heartbeat, ClosePolicyViolation)
			}
		case err := <-readErr:
			return g.handleReadError(conn, heartbeat, err)
		case p := <-payloads:
			if err := g.handlePayload(conn, heartbeat, p); err != nil {
				return err
			}
		}
	}
}

// handlePayload performs one state-machine transition for an inbound
// payload. A nil return keeps the listen loop running.
func (g *Gateway) handlePayload(conn *Connection, heartbeat *HeartbeatMonitor, p *Payload) error {
	switch p.Op {
	case OpcodeDispatch:
		g.session.UpdateSequence(p.S)
		if p.T == EventNameReady {
			var ready ReadyEventD
			if err := json.Unmarshal(p.D, &ready); err != nil {
				g.log.Warn("failed to decode ready payload", "error", err)
			} else {
				g.session.Ready(ready.SessionID, ready.ResumeGatewayURL)
				g.log.Info("gateway is ready", "session_id", ready.SessionID)
			}
		}
		g.dispatch(p.T, p.D)
		return nil

	case OpcodeHeartbeat:
		// Server asked for an immediate beat.
		if err := conn.SendHeartbeat(g.session.Sequence()); err != nil {
			return g.closeForReconnect(conn, heartbeat, CloseServiceRestart)
		}
		return nil

	case OpcodeHeartbeatAck:
		heartbeat.RecordAck()
		return nil

	case OpcodeReconnect:
		g.log.Info("server requested a reconnect")
		return g.closeForReconnect(conn, heartbeat, CloseServiceRestart)

	case OpcodeInvalidSession:
		var resumable bool
		if err := json.Unmarshal(p.D, &resumable); err != nil {
			resumable = false
		}
		g.session.Invalidate(resumable)
		g.log.Warn("session invalidated", "resumable", resumable)
		return g.closeForReconnect(conn, heartbeat, CloseServiceRestart)

	default:
		g.log.Warn("unknown gateway opcode", "op", p.Op)
		return nil
	}
}

func (g *Gateway) handleReadError(conn *Connection, heartbeat *HeartbeatMonitor, err error) error {
	var closeErr *websocket.CloseError
	switch {
	case errors.Is(err, ErrReceiveTimeout):
		return g.closeForReconnect(conn, heartbeat, CloseServiceRestart)

	case errors.As(err, &closeErr):
		// Server-initiated hard close: no reconnect.
		g.shutdown(conn, heartbeat, CloseNormal)
		if mapped := closeCodeError(closeErr.Code); mapped != nil {
			return mapped
		}
		return fmt.Errorf("gateway closed by server: %w", closeErr)

	default:
		// Transient socket failure: attempt to resume.
		g.log.Warn("gateway connection lost", "error", err)
		g.setStatus(StatusClosing)
		heartbeat.Stop()
		conn.Close(CloseServiceRestart)
		g.setStatus(StatusDisconnected)
		return &ReconnectError{
			ResumeURL: g.session.ResumeGatewayURL(),
			CanResume: g.session.CanResume(),
		}
	}
}

func closeCodeError(code int) error {
	switch code {
	case AuthenticationFailed:
		return ErrAuthenticationFailed
	case NotAuthenticated:
		return ErrNotAuthenticated
	case DecodeError:
		return ErrDecode
	case DisallowedIntents:
		return ErrDisallowedIntents
	default:
		return nil
	}
}

// closeForReconnect tears the connection down and reports where the next
// dial should go and whether a resume is legal.
func (g *Gateway) closeForReconnect(conn *Connection, heartbeat *HeartbeatMonitor, code int) error {
	g.shutdown(conn, heartbeat, code)
	return &ReconnectError{
		ResumeURL: g.session.ResumeGatewayURL(),
		CanResume: g.session.CanResume(),
	}
}

// shutdown stops the heartbeat task before the socket closes so no beat is
// ever written to a dead connection.
func (g *Gateway) shutdown(conn *Connection, heartbeat *HeartbeatMonitor, code int) {
	g.setStatus(StatusClosing)
	if heartbeat != nil {
		heartbeat.Stop()
	}
	conn.Close(code)
	g.setStatus(StatusDisconnected)
}

func (g *Gateway) dispatch(event EventName, data json.RawMessage) {
	g.handlersLock.RLock()
	handlers := g.handlers
	g.handlersLock.RUnlock()
	for _, h := range handlers {
		h(event, data)
	}
}

func (g *Gateway) currentConn() (*Connection, error) {
	g.rwlock.RLock()
	defer g.rwlock.RUnlock()
	if g.conn == nil || g.status != StatusReady {
		return nil, ErrNotConnected
	}
	return g.conn, nil
}

// Send pushes one command payload through the current connection, passing
// the outbound rate limiter first.
func (g *Gateway) Send(ctx context.Context, op GatewayOpcode, d any) error {
	conn, err := g.currentConn()
	if err != nil {
		return err
	}
	return conn.Send(ctx, op, d)
}

func (g *Gateway) RequestGuildMembers(ctx context.Context, d RequestGuildMembersEventD) error {
	return g.Send(ctx, OpcodeRequestGuildMember, d)
}

func (g *Gateway) UpdatePresence(ctx context.Context, d PresenceUpdateEventD) error {
	return g.Send(ctx, OpcodePresenceUpdate, d)
}

func (g *Gateway) UpdateVoiceState(ctx context.Context, d VoiceStateUpdateEventD) error {
	return g.Send(ctx, OpcodeVoiceStateUpdate, d)
}
