// ABOUTME: Dual-channel delivery: push-first with a single pull retry per operation
// ABOUTME: Runs a fixed-interval poll ticker as the liveness backstop

package client

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/corretora/chat-gateway/internal/gateway"
)

// DefaultPollInterval is the backstop polling cadence when the caller
// does not set one.
const DefaultPollInterval = 30 * time.Second

// DefaultConfirmTimeout bounds how long a push operation waits for the
// server's confirmation before falling back to pull.
const DefaultConfirmTimeout = 5 * time.Second

// ChannelOptions configures a Channel.
type ChannelOptions struct {
	BaseURL        string
	Token          string
	PollInterval   time.Duration
	ConfirmTimeout time.Duration
	Logger         *slog.Logger

	// OnEvent receives push broadcast frames (message-received,
	// message-read). Nil disables event delivery.
	OnEvent func(*gateway.ServerFrame)

	// OnRefresh fires on every poll tick and lets the caller re-fetch
	// state via the pull API. Nil disables the backstop.
	OnRefresh func(ctx context.Context)
}

// Channel delivers operations push-first over a websocket and falls back
// to the pull API when push is unavailable. Each fallback reuses the
// operation's idempotency key, so a send that timed out in flight is
// stored exactly once.
type Channel struct {
	pull           *Client
	baseURL        string
	token          string
	confirmTimeout time.Duration
	pollInterval   time.Duration
	logger         *slog.Logger
	onEvent        func(*gateway.ServerFrame)
	onRefresh      func(ctx context.Context)

	mu   sync.Mutex
	push *PushSession
}

// NewChannel builds a dual-channel client. The push session is dialed
// lazily on first use and redialed after a drop.
func NewChannel(opts ChannelOptions) *Channel {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	confirmTimeout := opts.ConfirmTimeout
	if confirmTimeout <= 0 {
		confirmTimeout = DefaultConfirmTimeout
	}
	return &Channel{
		pull:           New(opts.BaseURL, opts.Token),
		baseURL:        opts.BaseURL,
		token:          opts.Token,
		confirmTimeout: confirmTimeout,
		pollInterval:   pollInterval,
		logger:         logger.With("component", "channel"),
		onEvent:        opts.OnEvent,
		onRefresh:      opts.OnRefresh,
	}
}

// Pull returns the underlying pull client for read operations.
func (c *Channel) Pull() *Client {
	return c.pull
}

// Send delivers a message. Push is attempted first; if the push channel
// is down or does not confirm in time, the send is retried exactly once
// over pull with the same idempotency key.
func (c *Channel) Send(ctx context.Context, body string, contactID int64) (*gateway.MessageResponse, error) {
	key := uuid.New().String()

	msg, err := c.pushSend(ctx, key, body, contactID)
	if err == nil {
		return msg, nil
	}
	if !errors.Is(err, ErrPushUnavailable) {
		return nil, err
	}

	c.logger.Debug("push send failed, retrying over pull", "error", err)
	msg, _, err = c.pull.Send(ctx, SendOptions{
		Body:           body,
		ContactID:      contactID,
		IdempotencyKey: key,
	})
	return msg, err
}

// MarkRead marks a message read, push-first with one pull fallback.
func (c *Channel) MarkRead(ctx context.Context, messageID int64) (bool, error) {
	key := uuid.New().String()

	found, err := c.pushMarkRead(ctx, key, messageID)
	if err == nil {
		return found, nil
	}
	if !errors.Is(err, ErrPushUnavailable) {
		return false, err
	}

	c.logger.Debug("push mark-read failed, retrying over pull", "error", err)
	return c.pull.MarkRead(ctx, messageID)
}

// Run drives the channel until ctx is canceled: it keeps the push
// session alive, forwards its events, and fires the poll backstop on a
// fixed interval regardless of push health.
func (c *Channel) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	defer c.closePush()

	for {
		session, err := c.session(ctx)
		if err != nil {
			c.logger.Debug("push dial failed, polling only", "error", err)
		}

		var events <-chan *gateway.ServerFrame
		var done <-chan struct{}
		if session != nil {
			events = session.Events()
			done = session.Done()
		}

	pump:
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if c.onRefresh != nil {
					c.onRefresh(ctx)
				}
			case frame, ok := <-events:
				if !ok {
					break pump
				}
				if c.onEvent != nil {
					c.onEvent(frame)
				}
			case <-done:
				break pump
			}
			if session == nil {
				// No push session: wait out one poll interval
				// before redialing.
				break pump
			}
		}

		c.closePush()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
}

func (c *Channel) pushSend(ctx context.Context, key, body string, contactID int64) (*gateway.MessageResponse, error) {
	session, err := c.session(ctx)
	if err != nil {
		return nil, err
	}
	msg, err := session.Send(ctx, key, body, contactID)
	if errors.Is(err, ErrPushUnavailable) {
		c.closePush()
	}
	return msg, err
}

func (c *Channel) pushMarkRead(ctx context.Context, key string, messageID int64) (bool, error) {
	session, err := c.session(ctx)
	if err != nil {
		return false, err
	}
	found, err := session.MarkRead(ctx, key, messageID)
	if errors.Is(err, ErrPushUnavailable) {
		c.closePush()
	}
	return found, err
}

// session returns the live push session, dialing one if needed.
func (c *Channel) session(ctx context.Context) (*PushSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.push != nil {
		select {
		case <-c.push.Done():
			c.push = nil
		default:
			return c.push, nil
		}
	}

	session, err := DialPush(ctx, c.baseURL, c.token, c.confirmTimeout, c.logger)
	if err != nil {
		return nil, err
	}
	c.push = session
	return session, nil
}

func (c *Channel) closePush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.push != nil {
		_ = c.push.Close()
		c.push = nil
	}
}

// Close releases the push session.
func (c *Channel) Close() error {
	c.closePush()
	return nil
}
