// Package chat keeps the message stream of the active trip in sync with the
// backend and the real-time channel.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"schoolbus/internal/attachment"
	"schoolbus/internal/metrics"
	"schoolbus/internal/models"
	"schoolbus/internal/presence"
	"schoolbus/internal/realtime"
	"schoolbus/pkg/logger"
)

// DefaultDedupWindow is the fuzzy duplicate window used when none is set.
const DefaultDedupWindow = time.Second

type API interface {
	ChatHistory(ctx context.Context, busID, tripID string) ([]models.ChatMessage, error)
	SendMessage(ctx context.Context, busID, tripID string, req models.SendMessageRequest) (*models.ChatMessage, error)
}

type Uploader interface {
	Upload(ctx context.Context, img attachment.ImageRef) (string, error)
}

type Options struct {
	DedupWindow time.Duration

	// OnUpdate runs after the message list changes; the view scrolls to the end.
	OnUpdate func()
	// OnTyping runs with a snapshot of the typing set after it changes.
	OnTyping func(users []string)

	Metrics *metrics.Collector
}

// IsDuplicate reports whether b repeats a: equal non-empty ids, or the same
// sender and text with creation times less than window apart.
func IsDuplicate(a, b models.ChatMessage, window time.Duration) bool {
	if a.ID != "" && a.ID == b.ID {
		return true
	}
	if a.SenderID != b.SenderID || a.Message != b.Message {
		return false
	}
	if a.CreatedAt.IsZero() || b.CreatedAt.IsZero() {
		return false
	}
	d := a.CreatedAt.Sub(b.CreatedAt)
	if d < 0 {
		d = -d
	}
	return d < window
}

// Synchronizer owns the message sequence, the compose state and the single
// real-time channel of one trip context at a time.
type Synchronizer struct {
	api      API
	dialer   realtime.Dialer
	uploader Uploader
	user     models.User
	typing   *presence.TypingSet
	opts     Options
	now      func() time.Time

	mu       sync.Mutex
	gen      uint64
	tc       *models.ActiveTripContext
	socket   realtime.Socket
	messages []models.ChatMessage
	draft    string
	image    attachment.ImageRef
}

func NewSynchronizer(a API, d realtime.Dialer, u Uploader, user models.User, opts Options) *Synchronizer {
	if opts.DedupWindow <= 0 {
		opts.DedupWindow = DefaultDedupWindow
	}
	return &Synchronizer{
		api:      a,
		dialer:   d,
		uploader: u,
		user:     user,
		typing:   presence.NewTypingSet(),
		opts:     opts,
		now:      time.Now,
	}
}

// Open scopes the stream to tc. The previous channel is closed first. An
// invalid tc leaves chat disabled. The returned error reports a failed
// channel dial; a failed history load is only logged.
func (s *Synchronizer) Open(ctx context.Context, tc *models.ActiveTripContext) error {
	s.Close()

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.messages = nil
	s.tc = nil
	if tc.Valid() {
		scoped := *tc
		s.tc = &scoped
	}
	s.mu.Unlock()
	s.notify()

	if !tc.Valid() {
		return nil
	}

	s.loadHistory(ctx, gen, tc.BusID, tc.TripID)

	sock, err := s.dialer.Dial(ctx)
	if err != nil {
		return fmt.Errorf("open chat channel: %w", err)
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		sock.Close()
		return nil
	}
	s.socket = sock
	s.mu.Unlock()

	sock.On(models.EventChatMessage, func(data json.RawMessage) { s.handleMessage(gen, data) })
	sock.On(models.EventTypingStart, func(data json.RawMessage) { s.handleTyping(gen, data, true) })
	sock.On(models.EventTypingStop, func(data json.RawMessage) { s.handleTyping(gen, data, false) })
	sock.Listen()

	if err := sock.Emit(models.EventJoinChat, models.JoinChat{BusID: tc.BusID, TripID: tc.TripID}); err != nil {
		return fmt.Errorf("join chat %s: %w", tc.RoomKey(), err)
	}
	logger.Info("Joined chat %s", tc.RoomKey())
	return nil
}

// Close tears the channel down, clears the typing set and disables sending.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	sock := s.socket
	s.socket = nil
	s.tc = nil
	s.gen++
	s.mu.Unlock()

	s.typing.Clear()
	s.notifyTyping()
	if sock != nil {
		sock.Close()
	}
}

// loadHistory replaces the sequence wholesale unless a newer Open happened
// while the request was in flight.
func (s *Synchronizer) loadHistory(ctx context.Context, gen uint64, busID, tripID string) {
	history, err := s.api.ChatHistory(ctx, busID, tripID)
	if err != nil {
		logger.Error("Error loading chat history for %s: %v", models.RoomKey(busID, tripID), err)
		return
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.messages = append([]models.ChatMessage(nil), history...)
	s.mu.Unlock()

	if s.opts.Metrics != nil {
		s.opts.Metrics.HistoryLoads.Inc()
	}
	s.notify()
}

func (s *Synchronizer) handleMessage(gen uint64, data json.RawMessage) {
	var msg models.ChatMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		logger.Warn("Dropping malformed chat message: %v", err)
		return
	}

	s.mu.Lock()
	if s.gen != gen || s.tc == nil {
		s.mu.Unlock()
		return
	}
	if (msg.BusID != "" && msg.BusID != s.tc.BusID) || (msg.TripID != "" && msg.TripID != s.tc.TripID) {
		s.mu.Unlock()
		logger.Debug("Dropping message for another room %s", models.RoomKey(msg.BusID, msg.TripID))
		return
	}
	if s.opts.Metrics != nil {
		s.opts.Metrics.MessagesReceived.Inc()
	}
	if s.holds(msg) {
		s.mu.Unlock()
		if s.opts.Metrics != nil {
			s.opts.Metrics.DuplicatesDropped.Inc()
		}
		logger.Debug("Dropping duplicate message %q from %s", msg.ID, msg.SenderID)
		return
	}
	s.messages = append(s.messages, msg)
	s.mu.Unlock()

	s.notify()
}

func (s *Synchronizer) handleTyping(gen uint64, data json.RawMessage, start bool) {
	userID := models.DecodeUserID(data)

	s.mu.Lock()
	skip := s.gen != gen || userID == "" || userID == s.user.ID
	s.mu.Unlock()
	if skip {
		return
	}

	changed := false
	if start {
		changed = s.typing.Start(userID)
	} else {
		changed = s.typing.Stop(userID)
	}
	if changed {
		s.notifyTyping()
	}
}

// SetDraft updates the compose buffer and signals typing: start while the
// buffer holds text, stop once it is empty or blank.
func (s *Synchronizer) SetDraft(text string) {
	s.mu.Lock()
	s.draft = text
	sock := s.socket
	userID := s.user.ID
	s.mu.Unlock()

	if sock == nil {
		return
	}
	event := models.EventTypingStop
	if strings.TrimSpace(text) != "" {
		event = models.EventTypingStart
	}
	if err := sock.Emit(event, userID); err != nil {
		logger.Debug("Error emitting %s: %v", event, err)
	}
}

// SetUser changes the sender of outgoing messages and typing signals.
func (s *Synchronizer) SetUser(user models.User) {
	s.mu.Lock()
	s.user = user
	s.mu.Unlock()
}

// AttachImage sets the pending image of the compose state.
func (s *Synchronizer) AttachImage(img attachment.ImageRef) error {
	if err := attachment.Validate(img); err != nil {
		return err
	}
	s.mu.Lock()
	s.image = img
	s.mu.Unlock()
	return nil
}

func (s *Synchronizer) ClearImage() {
	s.mu.Lock()
	s.image = attachment.ImageRef{}
	s.mu.Unlock()
}

// Send uploads the pending image, persists the message and appends an
// optimistic copy. On any failure the sequence and compose state are left
// unchanged; UserMessage maps the error for display.
func (s *Synchronizer) Send(ctx context.Context) error {
	err := s.send(ctx)
	if s.opts.Metrics != nil && err != nil && err != ErrEmptyMessage && err != ErrNoTripContext {
		s.opts.Metrics.Sends.WithLabelValues("failed").Inc()
	}
	return err
}

func (s *Synchronizer) send(ctx context.Context) error {
	s.mu.Lock()
	text := strings.TrimSpace(s.draft)
	img := s.image
	var tc models.ActiveTripContext
	valid := s.tc.Valid()
	if valid {
		tc = *s.tc
	}
	gen := s.gen
	user := s.user
	s.mu.Unlock()

	if text == "" && img.IsZero() {
		return ErrEmptyMessage
	}
	if !valid {
		return ErrNoTripContext
	}

	var imageURL string
	if !img.IsZero() {
		url, err := s.uploader.Upload(ctx, img)
		if err != nil {
			return fmt.Errorf("send message: %w", err)
		}
		imageURL = url
	}

	req := models.SendMessageRequest{
		SenderID:   user.ID,
		SenderRole: user.Role,
		SenderName: user.Name,
		Message:    text,
		ImageURL:   imageURL,
	}
	if _, err := s.api.SendMessage(ctx, tc.BusID, tc.TripID, req); err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	now := s.now()
	optimistic := models.ChatMessage{
		ID:         strconv.FormatInt(now.UnixMilli(), 10),
		BusID:      tc.BusID,
		TripID:     tc.TripID,
		SenderID:   req.SenderID,
		SenderRole: req.SenderRole,
		SenderName: req.SenderName,
		Message:    req.Message,
		ImageURL:   req.ImageURL,
		CreatedAt:  now,
		Status:     models.MessageStatusSent,
	}

	s.mu.Lock()
	if s.gen == gen && !s.holds(optimistic) {
		s.messages = append(s.messages, optimistic)
	}
	s.draft = ""
	s.image = attachment.ImageRef{}
	sock := s.socket
	s.mu.Unlock()

	if s.opts.Metrics != nil {
		s.opts.Metrics.Sends.WithLabelValues("ok").Inc()
	}
	s.notify()

	if sock != nil {
		if err := sock.Emit(models.EventChatMessage, optimistic); err != nil {
			logger.Warn("Error broadcasting message: %v", err)
		}
		if err := sock.Emit(models.EventTypingStop, user.ID); err != nil {
			logger.Debug("Error emitting typing-stop: %v", err)
		}
	}
	return nil
}

// holds reports whether msg duplicates an entry already in the sequence.
// s.mu must be held.
func (s *Synchronizer) holds(msg models.ChatMessage) bool {
	for _, existing := range s.messages {
		if IsDuplicate(existing, msg, s.opts.DedupWindow) {
			return true
		}
	}
	return false
}

// Messages returns a snapshot of the sequence in insertion order.
func (s *Synchronizer) Messages() []models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ChatMessage(nil), s.messages...)
}

// Typing returns the users currently typing, sorted.
func (s *Synchronizer) Typing() []string {
	return s.typing.Users()
}

func (s *Synchronizer) Draft() (string, attachment.ImageRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft, s.image
}

// Context returns the trip context the stream is scoped to, or nil.
func (s *Synchronizer) Context() *models.ActiveTripContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tc == nil {
		return nil
	}
	tc := *s.tc
	return &tc
}

func (s *Synchronizer) notify() {
	if s.opts.OnUpdate != nil {
		s.opts.OnUpdate()
	}
}

func (s *Synchronizer) notifyTyping() {
	if s.opts.OnTyping != nil {
		s.opts.OnTyping(s.typing.Users())
	}
}
