package opsdroid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"opsdroid-audio/interrupt"
	"opsdroid-audio/observe"
)

const (
	DefaultReconnectDelay = 5 * time.Second

	connectorPath  = "/connector/websocket"
	requestTimeout = 10 * time.Second
)

type Config struct {
	// BaseURL is the opsdroid web server, e.g. http://localhost:8080.
	BaseURL string
	// OnMessage receives every text message the bot sends.
	OnMessage      func(text string)
	Interrupt      *interrupt.Signal
	ReconnectDelay time.Duration
	HTTPClient     *http.Client
	Metrics        *observe.Metrics
	Logger         *slog.Logger
}

// Connection keeps a websocket session to opsdroid's websocket connector
// open, reconnecting after a fixed delay whenever it drops.
type Connection struct {
	baseURL        *url.URL
	onMessage      func(string)
	interrupt      *interrupt.Signal
	reconnectDelay time.Duration
	httpClient     *http.Client
	metrics        *observe.Metrics
	logger         *slog.Logger

	state atomic.Int32

	mu   sync.Mutex
	conn *websocket.Conn
}

func New(cfg *Config) (*Connection, error) {
	if cfg == nil {
		return nil, errors.New("missing parameter: cfg")
	}

	if cfg.BaseURL == "" {
		return nil, errors.New("missing parameter: cfg.BaseURL")
	}

	if cfg.OnMessage == nil {
		return nil, errors.New("missing parameter: cfg.OnMessage")
	}

	if cfg.Interrupt == nil {
		return nil, errors.New("missing parameter: cfg.Interrupt")
	}

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("opsdroid: base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("opsdroid: base url %q must be http or https", cfg.BaseURL)
	}

	c := &Connection{
		baseURL:        base,
		onMessage:      cfg.OnMessage,
		interrupt:      cfg.Interrupt,
		reconnectDelay: cfg.ReconnectDelay,
		httpClient:     cfg.HTTPClient,
		metrics:        cfg.Metrics,
		logger:         cfg.Logger,
	}

	if c.reconnectDelay <= 0 {
		c.reconnectDelay = DefaultReconnectDelay
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}

	return c, nil
}

func (c *Connection) State() State {
	return State(c.state.Load())
}

func (c *Connection) setState(s State) {
	c.state.Store(int32(s))
}

// Run connects and keeps reconnecting until the interrupt is set. Backend
// failures are never returned.
func (c *Connection) Run() error {
	ctx, cancel := c.interrupt.Context(context.Background())
	defer cancel()

	for attempt := 0; !c.interrupt.IsSet(); attempt++ {
		if attempt > 0 {
			c.metrics.RecordReconnect(ctx)
		}

		err := c.session(ctx)
		c.setState(Disconnected)

		if c.interrupt.IsSet() {
			break
		}

		c.logger.Warn("opsdroid connection lost", "err", err, "retry_in", c.reconnectDelay)

		if c.interrupt.Sleep(c.reconnectDelay) {
			break
		}
	}

	c.logger.Info("opsdroid connection stopped")

	return nil
}

func (c *Connection) session(ctx context.Context) error {
	c.setState(Connecting)

	socketID, err := c.requestSocket(ctx)
	if err != nil {
		return err
	}

	conn, _, err := websocket.Dial(ctx, c.socketURL(socketID), &websocket.DialOptions{
		HTTPClient: c.httpClient,
	})
	if err != nil {
		return fmt.Errorf("opsdroid: dial: %w", err)
	}

	c.mu.Lock()
	if c.interrupt.IsSet() {
		c.mu.Unlock()
		conn.Close(websocket.StatusGoingAway, "shutting down")
		return nil
	}
	c.conn = conn
	c.setState(Connected)
	c.mu.Unlock()

	c.logger.Info("connected to opsdroid", "socket", socketID)

	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.CloseNow()
	}()

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("opsdroid: read: %w", err)
		}

		if typ != websocket.MessageText {
			continue
		}

		c.onMessage(string(data))
	}
}

// requestSocket asks the connector for a new socket id.
func (c *Connection) requestSocket(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL.String()+connectorPath, nil)
	if err != nil {
		return "", fmt.Errorf("opsdroid: request socket: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("opsdroid: request socket: %w", err)
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("opsdroid: request socket: HTTP %d", resp.StatusCode)
	}

	var body struct {
		Socket string `json:"socket"`
	}
	if err = json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("opsdroid: request socket: %w", err)
	}

	if body.Socket == "" {
		return "", errors.New("opsdroid: request socket: empty socket id")
	}

	return body.Socket, nil
}

func (c *Connection) socketURL(socketID string) string {
	u := *c.baseURL
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + connectorPath + "/" + url.PathEscape(socketID)
	return u.String()
}

// Send writes text to the bot. It fails fast with ErrNotConnected while
// the connection is down; nothing is buffered for later.
func (c *Connection) Send(ctx context.Context, text string) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil || c.State() != Connected {
		return ErrNotConnected
	}

	if err := conn.Write(ctx, websocket.MessageText, []byte(text)); err != nil {
		return fmt.Errorf("opsdroid: send: %w", err)
	}

	return nil
}

// Close ends the live session so a blocked read returns. Run reconnects
// afterwards unless the interrupt is set.
func (c *Connection) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	c.setState(Closing)

	return conn.Close(websocket.StatusNormalClosure, "shutting down")
}

var _ BotAPI = (*Connection)(nil)
