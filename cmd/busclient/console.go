package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"schoolbus/internal/attachment"
	"schoolbus/internal/chat"
	"schoolbus/internal/models"
)

type commandKind int

const (
	cmdDraft commandKind = iota
	cmdSend
	cmdImage
	cmdClearImage
	cmdRefresh
	cmdTrack
	cmdQuit
	cmdHelp
	cmdUnknown
)

type command struct {
	kind commandKind
	arg  string
	on   bool
}

// parseCommand reads one stdin line. Lines that are not commands become the
// draft; an empty line sends it.
func parseCommand(line string) command {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return command{kind: cmdSend}
	}
	if !strings.HasPrefix(line, "/") {
		return command{kind: cmdDraft, arg: line}
	}

	name, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "/image":
		if arg == "" {
			return command{kind: cmdClearImage}
		}
		return command{kind: cmdImage, arg: arg}
	case "/refresh":
		return command{kind: cmdRefresh}
	case "/track":
		switch strings.ToLower(arg) {
		case "on":
			return command{kind: cmdTrack, on: true}
		case "off":
			return command{kind: cmdTrack, on: false}
		}
	case "/quit", "/exit":
		return command{kind: cmdQuit}
	case "/help":
		return command{kind: cmdHelp}
	}
	return command{kind: cmdUnknown, arg: name}
}

type compose interface {
	SetDraft(text string)
	AttachImage(img attachment.ImageRef) error
	ClearImage()
	Send(ctx context.Context) error
}

type controls interface {
	Refresh(ctx context.Context) error
	SetLiveTracking(ctx context.Context, on bool) error
}

// console renders the chat to a terminal and feeds stdin into it.
type console struct {
	mu      sync.Mutex
	out     io.Writer
	user    models.User
	printed int
	typing  string
}

func newConsole(out io.Writer, user models.User) *console {
	return &console{out: out, user: user}
}

func (c *console) printf(format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

// showMessages prints the tail of msgs not printed yet. A shorter sequence
// means the stream was replaced and is printed again from the start.
func (c *console) showMessages(msgs []models.ChatMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(msgs) < c.printed {
		c.printed = 0
	}
	for _, m := range msgs[c.printed:] {
		fmt.Fprintln(c.out, c.format(m))
	}
	c.printed = len(msgs)
}

func (c *console) format(m models.ChatMessage) string {
	who := m.SenderName
	if who == "" {
		who = string(m.SenderRole)
	}
	if m.SenderID != "" && m.SenderID == c.user.ID {
		who = "you"
	}
	var b strings.Builder
	if !m.CreatedAt.IsZero() {
		b.WriteString(m.CreatedAt.Local().Format("15:04 "))
	}
	b.WriteString(who)
	b.WriteString(": ")
	b.WriteString(m.Message)
	if m.ImageURL != "" {
		if m.Message != "" {
			b.WriteString(" ")
		}
		b.WriteString("[image " + m.ImageURL + "]")
	}
	return b.String()
}

func (c *console) showTyping(users []string) {
	line := ""
	if len(users) > 0 {
		line = strings.Join(users, ", ") + " typing..."
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if line == c.typing {
		return
	}
	c.typing = line
	if line != "" {
		fmt.Fprintln(c.out, line)
	}
}

func (c *console) showContext(tc *models.ActiveTripContext) {
	if !tc.Valid() {
		c.printf("No active trip.\n")
		return
	}
	phone := ""
	if tc.Driver.Phone != "" {
		phone = " (" + tc.Driver.Phone + ")"
	}
	subject := ""
	if tc.Candidate.SubjectName != "" {
		subject = " for " + tc.Candidate.SubjectName
	}
	c.printf("Trip %s on bus %s%s, driver %s%s\n", tc.TripID, tc.BusID, subject, tc.Driver.Name, phone)
}

func (c *console) showPosition(p models.BusPosition) {
	c.printf("Bus %s at waypoint %d (%.5f, %.5f)\n", p.BusID, p.WaypointIndex+1, p.Location.Latitude, p.Location.Longitude)
}

func (c *console) help() {
	c.printf("Type a message and press enter twice to send.\n" +
		"  /image <path>  attach an image (/image alone clears it)\n" +
		"  /refresh       look the active trip up again\n" +
		"  /track on|off  toggle live tracking\n" +
		"  /quit          leave\n")
}

// run reads commands from in until EOF, /quit or ctx is done.
func (c *console) run(ctx context.Context, in io.Reader, stream compose, ctl controls) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	var draft []string
	for {
		var line string
		select {
		case <-ctx.Done():
			return
		case l, ok := <-lines:
			if !ok {
				return
			}
			line = l
		}

		cmd := parseCommand(line)
		switch cmd.kind {
		case cmdDraft:
			draft = append(draft, cmd.arg)
			stream.SetDraft(strings.Join(draft, "\n"))
		case cmdSend:
			if err := stream.Send(ctx); err != nil {
				c.alert(err)
				continue
			}
			draft = nil
		case cmdImage:
			if err := stream.AttachImage(attachment.ImageRef{Path: cmd.arg}); err != nil {
				c.printf("Cannot attach %s: %v\n", cmd.arg, err)
				continue
			}
			c.printf("Attached %s\n", cmd.arg)
		case cmdClearImage:
			stream.ClearImage()
		case cmdRefresh:
			if err := ctl.Refresh(ctx); err != nil {
				c.printf("Refresh: %v\n", err)
			}
		case cmdTrack:
			if err := ctl.SetLiveTracking(ctx, cmd.on); err != nil {
				c.printf("Tracking: %v\n", err)
			}
		case cmdQuit:
			return
		case cmdHelp:
			c.help()
		default:
			c.printf("Unknown command %s, try /help\n", cmd.arg)
		}
	}
}

func (c *console) alert(err error) {
	c.printf("! %s\n", chat.UserMessage(err))
}
