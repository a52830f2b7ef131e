package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"

	"github.com/linechat/linechat-server/internal/auth"
	"github.com/linechat/linechat-server/internal/store"
)

// BanNotice is the reserved ban sentinel. It is delivered on the session's
// kick channel, never the lossy inbound channel; the session writes it to
// the client and terminates itself.
const BanNotice = "You have been banned from the server."

const (
	genericFailure = "Server error, please try again."
	mutedNotice    = "You are muted and cannot send messages."
	rateLimited    = "You are sending messages too fast, slow down."
)

const helpText = `Available commands:
  /listusers             list all accounts and their online status
  /whisper <user> <msg>  send a private message
  /history [user|all]    show message history (default: your own)
  /changepw <old> <new>  change your password
  /color <name>          set your display color
  /admin <secret>        elevate yourself to admin
  /ban <user>            (admin) ban an account and disconnect it
  /unban <user>          (admin) lift a ban
  /mute <user>           (admin) mute an account
  /unmute <user>         (admin) lift a mute
  /help                  show this help`

// Dispatcher turns one line of client input into a reply and side effects
// on the registry and the backing store.
type Dispatcher struct {
	registry     *Registry
	users        store.UserStore
	messages     store.MessageStore
	auth         *auth.Service
	adminSecret  string
	historyLimit int
	log          *zerolog.Logger
}

// NewDispatcher builds a dispatcher over the given collaborators.
func NewDispatcher(registry *Registry, st store.Store, authService *auth.Service, adminSecret string, historyLimit int, logger *zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		registry:     registry,
		users:        st,
		messages:     st,
		auth:         authService,
		adminSecret:  adminSecret,
		historyLimit: historyLimit,
		log:          logger,
	}
}

// Dispatch handles one raw line from sess. The returned string is written
// back to the client when non-empty. Store failures never tear down the
// session; they come back as a generic failure reply.
func (d *Dispatcher) Dispatch(ctx context.Context, sess *Session, line string) string {
	// Trim once so command selection and per-command parsing see the
	// same line.
	line = strings.TrimSpace(line)
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}

	if !strings.HasPrefix(fields[0], "/") {
		return d.chat(ctx, sess, line)
	}

	switch fields[0] {
	case "/listusers":
		return d.listUsers(ctx)
	case "/whisper":
		return d.whisper(sess, line)
	case "/history":
		return d.history(ctx, sess, fields)
	case "/changepw":
		return d.changePassword(ctx, sess, fields)
	case "/color":
		return d.setColor(sess, fields)
	case "/admin":
		return d.elevate(ctx, sess, fields)
	case "/ban", "/unban", "/mute", "/unmute":
		return d.moderate(ctx, sess, fields)
	case "/help":
		return helpText
	default:
		return "Unknown command. Type /help for the list of commands."
	}
}

// chat persists and broadcasts a plain message. The sender gets no echo;
// only errors produce a reply.
func (d *Dispatcher) chat(ctx context.Context, sess *Session, line string) string {
	role, err := d.users.GetRole(ctx, sess.name)
	if err != nil {
		d.log.Warn().Err(err).Str("user", sess.name).Msg("role lookup failed")
		return genericFailure
	}
	if role == store.RoleMuted {
		return mutedNotice
	}

	now := time.Now().UTC()
	if !sess.limiter.allow(now) {
		return rateLimited
	}

	msg := &store.Message{Username: sess.name, Body: line, CreatedAt: now}
	if err := d.messages.SaveMessage(ctx, msg); err != nil {
		d.log.Warn().Err(err).Str("user", sess.name).Msg("message persist failed")
		return "Server error, your message was not delivered."
	}

	d.registry.Broadcast(sess.endpoint, formatChat(now, sess.name, sess.color, line))
	return ""
}

func (d *Dispatcher) listUsers(ctx context.Context) string {
	users, err := d.users.ListUsers(ctx)
	if err != nil {
		d.log.Warn().Err(err).Msg("user list failed")
		return genericFailure
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "USERNAME\tSTATUS")
	for _, name := range users {
		status := Color("red").Paint("Offline")
		if d.registry.IsOnline(name) {
			status = Color("green").Paint("Online")
		}
		fmt.Fprintf(w, "%s\t%s\n", name, status)
	}
	w.Flush()

	return strings.TrimRight(buf.String(), "\n")
}

func (d *Dispatcher) whisper(sess *Session, line string) string {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 3 || strings.TrimSpace(parts[2]) == "" {
		return "Invalid whisper format. Use /whisper <username> <message>"
	}
	target, text := parts[1], parts[2]

	tagged := fmt.Sprintf("%s: %s", sess.color.Paint(sess.name+"(whisper)"), text)
	if !d.registry.Send(target, tagged) {
		return "User not found or not connected."
	}
	return ""
}

func (d *Dispatcher) history(ctx context.Context, sess *Session, fields []string) string {
	filter := sess.name
	subject := sess.name
	if len(fields) > 1 {
		if fields[1] == "all" {
			filter = ""
			subject = "all users"
		} else {
			filter = fields[1]
			subject = fields[1]
		}
	}

	messages, err := d.messages.ListMessages(ctx, filter, d.historyLimit)
	if err != nil {
		d.log.Warn().Err(err).Str("filter", filter).Msg("history query failed")
		return genericFailure
	}
	if len(messages) == 0 {
		return fmt.Sprintf("No message history for %s.", subject)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Message history for %s:", subject)
	for _, msg := range messages {
		fmt.Fprintf(&b, "\n%s %s: %s", dim(msg.CreatedAt.Format("15:04:05")), msg.Username, msg.Body)
	}
	return b.String()
}

func (d *Dispatcher) changePassword(ctx context.Context, sess *Session, fields []string) string {
	if len(fields) != 3 {
		return "Invalid format. Use /changepw <old> <new>"
	}

	err := d.auth.ChangePassword(ctx, sess.name, fields[1], fields[2])
	switch {
	case err == nil:
		return "Password updated."
	case errors.Is(err, auth.ErrInvalidCredentials):
		return "Authentication failed, password unchanged."
	case errors.Is(err, auth.ErrInvalidPassword):
		return "New password rejected, pick a longer one."
	default:
		d.log.Warn().Err(err).Str("user", sess.name).Msg("password change failed")
		return genericFailure
	}
}

func (d *Dispatcher) setColor(sess *Session, fields []string) string {
	if len(fields) != 2 {
		return "Invalid format. Use /color <" + strings.Join(ColorNames(), "|") + ">"
	}

	color, ok := ParseColor(fields[1])
	if !ok {
		return fmt.Sprintf("Unknown color %q. Available: %s", fields[1], strings.Join(ColorNames(), ", "))
	}

	sess.color = color
	return "Color set to " + color.Paint(string(color)) + "."
}

func (d *Dispatcher) elevate(ctx context.Context, sess *Session, fields []string) string {
	if len(fields) != 2 {
		return "Invalid format. Use /admin <secret>"
	}
	if d.adminSecret == "" || fields[1] != d.adminSecret {
		return "Invalid admin secret."
	}

	if err := d.users.SetRole(ctx, sess.name, store.RoleAdmin); err != nil {
		d.log.Warn().Err(err).Str("user", sess.name).Msg("admin elevation failed")
		return genericFailure
	}

	d.log.Info().Str("user", sess.name).Msg("user elevated to admin")
	return "You are now an admin."
}

// moderate handles /ban, /unban, /mute and /unmute. The caller's role is
// read fresh from the store so a freshly demoted admin loses moderation
// rights on the next command.
func (d *Dispatcher) moderate(ctx context.Context, sess *Session, fields []string) string {
	verb := fields[0]
	if len(fields) != 2 {
		return fmt.Sprintf("Invalid format. Use %s <username>", verb)
	}
	target := fields[1]

	role, err := d.users.GetRole(ctx, sess.name)
	if err != nil {
		d.log.Warn().Err(err).Str("user", sess.name).Msg("role lookup failed")
		return genericFailure
	}
	if role != store.RoleAdmin {
		return fmt.Sprintf("You do not have permission to use %s.", verb)
	}

	var newRole store.Role
	var past string
	switch verb {
	case "/ban":
		newRole, past = store.RoleBanned, "banned"
	case "/unban":
		newRole, past = store.RoleUser, "unbanned"
	case "/mute":
		newRole, past = store.RoleMuted, "muted"
	case "/unmute":
		newRole, past = store.RoleUser, "unmuted"
	}

	if err := d.users.SetRole(ctx, target, newRole); err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return fmt.Sprintf("No such user: %s", target)
		}
		d.log.Warn().Err(err).Str("target", target).Str("cmd", verb).Msg("role update failed")
		return genericFailure
	}

	// A ban kicks the live session via the sentinel instead of a
	// room-wide announcement. The kick channel cannot be crowded out by
	// chat backpressure, so the sentinel always lands.
	if verb == "/ban" {
		d.registry.Kick(target, BanNotice)
	}

	d.log.Info().Str("admin", sess.name).Str("target", target).Str("cmd", verb).Msg("moderation action")
	return fmt.Sprintf("%s has been %s.", target, past)
}
