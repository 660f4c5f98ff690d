package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	dialTimeout       = 30 * time.Second
	closeWriteTimeout = time.Second
)

// ErrReceiveTimeout reports that no frame arrived within the receive
// window. The controller treats it as a cue to close with 1012 and retry.
var ErrReceiveTimeout = errors.New("gateway: timed out waiting for a frame")

// Connection owns a single websocket to the gateway: the dial, the shared
// zlib inflator, the envelope codec and the write lock. It knows nothing
// about opcodes beyond decoding the envelope; interpreting payloads is the
// controller's job.
type Connection struct {
	wsDialer       *websocket.Dialer
	wsConn         *websocket.Conn
	inflator       *inflator
	limiter        *rate.Limiter
	receiveTimeout time.Duration
	commandsUsed   atomic.Int64
	writeLock      sync.Mutex
	log            *slog.Logger
}

func NewConnection(receiveTimeout time.Duration, log *slog.Logger) *Connection {
	return &Connection{
		wsDialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: dialTimeout,
		},
		inflator:       newInflator(),
		limiter:        newCommandLimiter(),
		receiveTimeout: receiveTimeout,
		log:            log,
	}
}

func (c *Connection) Dial(ctx context.Context, url string) error {
	conn, _, err := c.wsDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to gateway: %w", err)
	}
	c.wsConn = conn
	return nil
}

// Send marshals one command payload onto the socket. Every command first
// passes the outbound rate limiter so the session is never kicked with
// close code 4008.
func (c *Connection) Send(ctx context.Context, op GatewayOpcode, d any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	c.commandsUsed.Add(1)
	return c.write(op, d)
}

// SendHeartbeat bypasses the command limiter. The limiter keeps slots in
// reserve for exactly this.
func (c *Connection) SendHeartbeat(seq int64) error {
	return c.write(OpcodeHeartbeat, seq)
}

func (c *Connection) write(op GatewayOpcode, d any) error {
	data, err := json.Marshal(command{Op: op, D: d})
	if err != nil {
		return fmt.Errorf("failed to marshal gateway command: %w", err)
	}
	c.writeLock.Lock()
	defer c.writeLock.Unlock()
	return c.wsConn.WriteMessage(websocket.TextMessage, data)
}

// Receive blocks until a full payload arrives, the receive window elapses,
// or the socket dies. Binary frames are fed through the shared inflator;
// frames that do not yet complete a compressed message keep the read loop
// going. Malformed payloads are dropped, not fatal.
func (c *Connection) Receive() (*Payload, error) {
	for {
		if c.receiveTimeout > 0 {
			c.wsConn.SetReadDeadline(time.Now().Add(c.receiveTimeout))
		}
		messageType, message, err := c.wsConn.ReadMessage()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return nil, ErrReceiveTimeout
			}
			return nil, err
		}

		if messageType == websocket.BinaryMessage {
			message, err = c.inflator.push(message)
			if errors.Is(err, ErrIncompleteFrame) {
				continue
			}
			if err != nil {
				c.log.Warn("dropping undecompressable frame", "error", err)
				continue
			}
		}

		payload := new(Payload)
		if err := json.Unmarshal(message, payload); err != nil {
			c.log.Warn("dropping malformed gateway payload", "error", err)
			continue
		}
		return payload, nil
	}
}

// CommandsUsed reports how many rate-limited commands went out on this
// connection.
func (c *Connection) CommandsUsed() int64 {
	return c.commandsUsed.Load()
}

// Close sends a close frame with the given code and tears the socket down.
func (c *Connection) Close(code int) error {
	if c.wsConn == nil {
		return nil
	}
	message := websocket.FormatCloseMessage(code, "")
	deadline := time.Now().Add(closeWriteTimeout)
	c.writeLock.Lock()
	c.wsConn.WriteControl(websocket.CloseMessage, message, deadline)
	c.writeLock.Unlock()
	return c.wsConn.Close()
}
