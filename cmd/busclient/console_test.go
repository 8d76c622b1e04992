package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"schoolbus/internal/attachment"
	"schoolbus/internal/chat"
	"schoolbus/internal/models"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line string
		want command
	}{
		{"", command{kind: cmdSend}},
		{"   ", command{kind: cmdSend}},
		{"On my way", command{kind: cmdDraft, arg: "On my way"}},
		{"/image ./bus.png", command{kind: cmdImage, arg: "./bus.png"}},
		{"/image", command{kind: cmdClearImage}},
		{"/refresh", command{kind: cmdRefresh}},
		{"/track ON", command{kind: cmdTrack, on: true}},
		{"/track off", command{kind: cmdTrack}},
		{"/track maybe", command{kind: cmdUnknown, arg: "/track"}},
		{"/quit", command{kind: cmdQuit}},
		{"/dance", command{kind: cmdUnknown, arg: "/dance"}},
	}
	for _, tc := range tests {
		if got := parseCommand(tc.line); got != tc.want {
			t.Errorf("parseCommand(%q) = %+v, want %+v", tc.line, got, tc.want)
		}
	}
}

type mockCompose struct {
	drafts []string
	sends  int
	images []string
	err    error
}

func (m *mockCompose) SetDraft(text string) { m.drafts = append(m.drafts, text) }

func (m *mockCompose) AttachImage(img attachment.ImageRef) error {
	if err := attachment.Validate(img); err != nil {
		return err
	}
	m.images = append(m.images, img.Path)
	return nil
}

func (m *mockCompose) ClearImage() {}

func (m *mockCompose) Send(ctx context.Context) error {
	m.sends++
	return m.err
}

type mockControls struct {
	refreshes int
	tracking  []bool
}

func (m *mockControls) Refresh(ctx context.Context) error {
	m.refreshes++
	return nil
}

func (m *mockControls) SetLiveTracking(ctx context.Context, on bool) error {
	m.tracking = append(m.tracking, on)
	return nil
}

func TestConsoleRun(t *testing.T) {
	var out bytes.Buffer
	con := newConsole(&out, models.User{ID: "d1"})
	stream := &mockCompose{err: chat.ErrEmptyMessage}
	ctl := &mockControls{}

	input := "On my way\nsee you\n\n/image notes.txt\n/image bus.jpg\n/refresh\n/track on\n/quit\nignored\n"
	con.run(context.Background(), strings.NewReader(input), stream, ctl)

	if len(stream.drafts) != 2 || stream.drafts[1] != "On my way\nsee you" {
		t.Errorf("drafts = %q", stream.drafts)
	}
	if stream.sends != 1 || !strings.Contains(out.String(), chat.MessageEmpty) {
		t.Errorf("sends = %d, output %q", stream.sends, out.String())
	}
	if len(stream.images) != 1 || stream.images[0] != "bus.jpg" {
		t.Errorf("images = %v", stream.images)
	}
	if ctl.refreshes != 1 || len(ctl.tracking) != 1 || !ctl.tracking[0] {
		t.Errorf("controls = %+v", ctl)
	}
}

func TestConsoleShowMessages(t *testing.T) {
	var out bytes.Buffer
	con := newConsole(&out, models.User{ID: "d1"})

	msgs := []models.ChatMessage{
		{SenderID: "d1", SenderName: "Dana", Message: "On my way"},
		{SenderID: "p1", SenderName: "Pat", Message: "thanks"},
	}
	con.showMessages(msgs[:1])
	con.showMessages(msgs)
	if got := out.String(); got != "you: On my way\nPat: thanks\n" {
		t.Errorf("output = %q", got)
	}

	out.Reset()
	con.showMessages(nil)
	con.showMessages([]models.ChatMessage{{SenderRole: models.RoleParent, ImageURL: "http://x/a.png"}})
	if got := out.String(); got != "parent: [image http://x/a.png]\n" {
		t.Errorf("output after replace = %q", got)
	}
}
