// ABOUTME: Interactive terminal client for the chat gateway
// ABOUTME: Sends over push with pull fallback and polls as a backstop

package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/corretora/chat-gateway/internal/client"
	"github.com/corretora/chat-gateway/internal/gateway"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	path := configPath()
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	cfg, err := Load(path)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)

	cyan.Printf("chat-client %s — %s\n", version, cfg.Gateway.URL)
	gray.Println("type a message to send, /help for commands")
	fmt.Println()

	app := &app{}

	ch := client.NewChannel(client.ChannelOptions{
		BaseURL:        cfg.Gateway.URL,
		Token:          cfg.Auth.Token,
		PollInterval:   cfg.Chat.pollInterval,
		ConfirmTimeout: cfg.Chat.confirmTimeout,
		Logger:         logger,
		OnEvent:        app.handleEvent,
		OnRefresh:      app.refresh,
	})
	defer ch.Close()
	app.channel = ch

	// Keep the push session and the poll backstop running while the
	// prompt loop owns stdin.
	go func() {
		if err := ch.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("channel stopped", "error", err)
		}
	}()

	return app.promptLoop(ctx)
}

type app struct {
	channel *client.Channel

	// dest is the staff-side destination contact id; zero for a
	// contact session, whose destination is implied.
	dest int64
}

func (a *app) promptLoop(ctx context.Context) error {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 64*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if done := a.command(ctx, line); done {
				return nil
			}
			continue
		}

		a.send(ctx, line)
	}
}

// command dispatches a slash command; returns true on /quit.
func (a *app) command(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/q":
		return true
	case "/help":
		a.printHelp()
	case "/inbox":
		a.showInbox(ctx)
	case "/unread":
		a.showUnread(ctx)
	case "/messages":
		var contactID int64
		if len(fields) > 1 {
			id, err := strconv.ParseInt(fields[1], 10, 64)
			if err != nil {
				color.Red("invalid contact id: %s", fields[1])
				return false
			}
			contactID = id
		}
		a.showMessages(ctx, contactID)
	case "/read":
		if len(fields) < 2 {
			color.Red("usage: /read <message-id>")
			return false
		}
		id, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			color.Red("invalid message id: %s", fields[1])
			return false
		}
		a.markRead(ctx, id)
	case "/to":
		if len(fields) < 2 {
			color.Red("usage: /to <contact-id>")
			return false
		}
		id, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			color.Red("invalid contact id: %s", fields[1])
			return false
		}
		a.dest = id
		color.Green("sending to contact %d", id)
	default:
		color.Red("unknown command: %s", fields[0])
	}
	return false
}

func (a *app) printHelp() {
	fmt.Println("  /inbox            list conversations (staff)")
	fmt.Println("  /unread           unread message count (staff)")
	fmt.Println("  /messages [id]    message history, optionally for one contact")
	fmt.Println("  /read <id>        mark a message read (staff)")
	fmt.Println("  /to <id>          set the destination contact (staff)")
	fmt.Println("  /quit             exit")
	fmt.Println("  anything else is sent as a message")
}

func (a *app) send(ctx context.Context, body string) {
	msg, err := a.channel.Send(ctx, body, a.dest)
	if err != nil {
		color.Red("send failed: %v", err)
		return
	}
	color.New(color.FgHiBlack).Printf("  sent #%d\n", msg.ID)
}

func (a *app) showInbox(ctx context.Context) {
	conversations, err := a.channel.Pull().ListConversations(ctx)
	if err != nil {
		color.Red("inbox: %v", err)
		return
	}
	if len(conversations) == 0 {
		fmt.Println("  no conversations")
		return
	}
	for _, c := range conversations {
		name := color.CyanString(c.DisplayName)
		badge := ""
		if c.UnreadCount > 0 {
			badge = color.YellowString(" [%d unread]", c.UnreadCount)
		}
		subject := c.Subject
		if subject == "" {
			subject = "-"
		}
		fmt.Printf("  #%-4d %s%s\n", c.ContactID, name, badge)
		fmt.Printf("        %s | %s\n", subject, c.Preview)
	}
}

func (a *app) showUnread(ctx context.Context) {
	count, err := a.channel.Pull().CountUnread(ctx)
	if err != nil {
		color.Red("unread: %v", err)
		return
	}
	fmt.Printf("  %d unread\n", count)
}

func (a *app) showMessages(ctx context.Context, contactID int64) {
	messages, err := a.channel.Pull().ListMessages(ctx, contactID, 50)
	if err != nil {
		color.Red("messages: %v", err)
		return
	}
	// Newest-first from the API; print oldest-first for reading
	for i := len(messages) - 1; i >= 0; i-- {
		a.printMessage(&messages[i])
	}
}

func (a *app) markRead(ctx context.Context, id int64) {
	found, err := a.channel.MarkRead(ctx, id)
	if err != nil {
		color.Red("mark read: %v", err)
		return
	}
	if !found {
		color.Yellow("  message %d not found", id)
		return
	}
	color.Green("  marked %d read", id)
}

// handleEvent prints push events as they arrive.
func (a *app) handleEvent(frame *gateway.ServerFrame) {
	switch frame.Type {
	case "message-received":
		if frame.Message != nil {
			fmt.Println()
			a.printMessage(frame.Message)
			fmt.Print("> ")
		}
	case "message-read":
		fmt.Printf("\n%s\n> ", color.HiBlackString("  message %d read", frame.MessageID))
	}
}

// refresh is the poll backstop: it runs even when push is down so the
// prompt still reflects arrivals eventually.
func (a *app) refresh(ctx context.Context) {
	count, err := a.channel.Pull().CountUnread(ctx)
	if err != nil {
		// Contacts cannot poll the unread count; nothing to show.
		return
	}
	if count > 0 {
		fmt.Printf("\n%s\n> ", color.YellowString("  %d unread (poll)", count))
	}
}

func (a *app) printMessage(m *gateway.MessageResponse) {
	role := color.CyanString("contact %d", m.ContactID)
	if m.SenderRole == "staff" {
		role = color.GreenString("staff")
	}
	ts := m.CreatedAt
	if t, err := time.Parse(time.RFC3339Nano, m.CreatedAt); err == nil {
		ts = t.Local().Format("15:04")
	}
	readMark := ""
	if m.SenderRole == "contact" && !m.Read {
		readMark = color.YellowString(" •")
	}
	fmt.Printf("  %s %s #%d%s\n", color.HiBlackString(ts), role, m.ID, readMark)
	for _, line := range strings.Split(m.Body, "\n") {
		fmt.Printf("    %s\n", line)
	}
}
