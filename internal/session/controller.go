package session

import (
	"context"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"quickbite/chat-service/internal/models"
	"quickbite/chat-service/internal/realtime"
	"quickbite/chat-service/internal/service"
)

// State is the controller's position in the session lifecycle.
type State int

const (
	// StateIdle means no user is attached.
	StateIdle State = iota
	// StateLoading means a room or message fetch is in flight.
	StateLoading
	// StateReady means a room and its messages are loaded.
	StateReady
	// StateNoActiveRoom means the load succeeded but the user has no
	// conversation to show.
	StateNoActiveRoom
	// StateError means the last load failed; ErrMessage holds the
	// display text.
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateNoActiveRoom:
		return "no_active_room"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

const defaultMessageLimit = 50

// Controller owns the in-memory state of one user's chat session: the
// active room, the message list, and the realtime subscription. It is
// constructed explicitly at sign-in and Closed at sign-out; it is not a
// shared singleton. One realtime subscription is active at a time; a
// room switch tears down the previous one before opening the next.
//
// The message list is reconciled exclusively through the realtime echo:
// SendMessage never appends locally, and the insert handler drops any
// event whose id is already present. Dedup by id is the only defense
// against transport redelivery.
type Controller struct {
	svc    service.ChatService
	feed   realtime.MessageFeed
	logger *logrus.Logger

	mu         sync.Mutex
	gen        uint64
	state      State
	userID     string
	role       models.SenderRole
	room       *models.ChatRoom
	messages   []*models.Message
	errMsg     string
	sendFailed bool
	sub        *realtime.Subscription
}

func NewController(svc service.ChatService, feed realtime.MessageFeed, logger *logrus.Logger) *Controller {
	return &Controller{
		svc:    svc,
		feed:   feed,
		logger: logger,
		state:  StateIdle,
	}
}

// Start attaches a user to the session. For customers it loads their
// active room, marks its messages read and opens the live feed. For
// deliverers it waits in NoActiveRoom until SelectChatRoom. Starting
// with an empty user id is equivalent to Close.
func (c *Controller) Start(ctx context.Context, userID string, role models.SenderRole) {
	if userID == "" {
		c.Close()
		return
	}

	c.mu.Lock()
	c.teardownLocked()
	c.gen++
	gen := c.gen
	c.userID = userID
	c.role = role
	c.room = nil
	c.messages = nil
	c.errMsg = ""
	c.sendFailed = false
	c.state = StateLoading
	c.mu.Unlock()

	if role == models.RoleDeliverer {
		c.mu.Lock()
		if gen == c.gen {
			c.state = StateNoActiveRoom
		}
		c.mu.Unlock()
		return
	}

	room, err := c.svc.ActiveChatRoom(ctx, userID)
	c.applyActiveRoom(ctx, gen, userID, room, err)
}

// Close detaches the user: the subscription is torn down and all
// in-memory state is cleared. Safe from any state.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	c.teardownLocked()
	c.userID = ""
	c.role = ""
	c.room = nil
	c.messages = nil
	c.errMsg = ""
	c.sendFailed = false
	c.state = StateIdle
}

// SendMessage writes content to the active room. Blank content, a
// missing room or a missing user are guarded no-ops, not failures. The
// sent message is not appended locally; it becomes visible through the
// realtime echo.
func (c *Controller) SendMessage(ctx context.Context, content string) {
	content = strings.TrimSpace(content)

	c.mu.Lock()
	if content == "" || c.room == nil || c.userID == "" {
		c.mu.Unlock()
		return
	}
	chatRoomID := c.room.ID
	userID := c.userID
	role := c.role
	c.sendFailed = false
	c.mu.Unlock()

	if _, err := c.svc.SendMessage(ctx, chatRoomID, userID, content, role); err != nil {
		c.mu.Lock()
		c.sendFailed = true
		c.errMsg = "Failed to send message"
		c.mu.Unlock()
	}
}

// SelectChatRoom switches a deliverer to one of their rooms. The prior
// subscription is torn down and the feed is resubscribed synchronously
// as part of the switch.
func (c *Controller) SelectChatRoom(ctx context.Context, room *models.ChatRoom) {
	if room == nil {
		return
	}

	c.mu.Lock()
	if c.userID == "" {
		c.mu.Unlock()
		return
	}
	c.teardownLocked()
	c.gen++
	gen := c.gen
	userID := c.userID
	c.room = nil
	c.messages = nil
	c.errMsg = ""
	c.state = StateLoading
	c.mu.Unlock()

	c.attachRoom(ctx, gen, userID, room)
}

// Refresh re-pulls the current room and its messages from the store,
// replacing the local list wholesale. This is the path that corrects
// ordering drift from the live feed and observes order-status changes.
// A customer with no room retries the active-room lookup.
func (c *Controller) Refresh(ctx context.Context) {
	c.mu.Lock()
	if c.userID == "" {
		c.mu.Unlock()
		return
	}
	gen := c.gen
	userID := c.userID
	role := c.role
	var chatRoomID string
	if c.room != nil {
		chatRoomID = c.room.ID
	}
	c.mu.Unlock()

	if chatRoomID != "" {
		room, err := c.svc.ChatRoom(ctx, chatRoomID)
		if err != nil {
			c.fail(gen, "Failed to refresh chat")
			return
		}
		messages, err := c.svc.Messages(ctx, chatRoomID, defaultMessageLimit)
		if err != nil {
			c.fail(gen, "Failed to load messages")
			return
		}

		c.mu.Lock()
		if gen == c.gen && c.room != nil && c.room.ID == chatRoomID {
			c.room = room
			c.messages = messages
			c.state = StateReady
			c.errMsg = ""
		}
		c.mu.Unlock()
		return
	}

	if role == models.RoleCustomer {
		room, err := c.svc.ActiveChatRoom(ctx, userID)
		c.applyActiveRoom(ctx, gen, userID, room, err)
	}
}

// UnreadCount delegates to the store aggregate; 0 when no user is
// attached or the store errs.
func (c *Controller) UnreadCount(ctx context.Context) int {
	c.mu.Lock()
	userID := c.userID
	c.mu.Unlock()

	if userID == "" {
		return 0
	}
	return c.svc.UnreadCount(ctx, userID)
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Room returns a copy of the active room, or nil.
func (c *Controller) Room() *models.ChatRoom {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.room == nil {
		return nil
	}
	room := *c.room
	return &room
}

// Messages returns a copy of the local message list in display order.
func (c *Controller) Messages() []*models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*models.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *Controller) ErrMessage() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errMsg
}

// SendFailed reports whether the last send attempt failed at the store.
func (c *Controller) SendFailed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendFailed
}

func (c *Controller) applyActiveRoom(ctx context.Context, gen uint64, userID string, room *models.ChatRoom, err error) {
	if err != nil {
		c.fail(gen, "Failed to load chat")
		return
	}

	if room == nil {
		c.mu.Lock()
		if gen == c.gen {
			c.room = nil
			c.messages = nil
			c.state = StateNoActiveRoom
			c.errMsg = ""
		}
		c.mu.Unlock()
		return
	}

	c.attachRoom(ctx, gen, userID, room)
}

// attachRoom loads the room's messages, commits Ready state, marks the
// backlog read and opens the realtime subscription. Results are dropped
// if the session generation moved during a suspension point.
func (c *Controller) attachRoom(ctx context.Context, gen uint64, userID string, room *models.ChatRoom) {
	messages, err := c.svc.Messages(ctx, room.ID, defaultMessageLimit)
	if err != nil {
		c.fail(gen, "Failed to load messages")
		return
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.room = room
	c.messages = messages
	c.state = StateReady
	c.errMsg = ""
	c.mu.Unlock()

	if _, err := c.svc.MarkAllRead(ctx, room.ID, userID); err != nil {
		c.logger.WithError(err).Warn("Failed to mark messages read")
	}

	sub, err := c.feed.Subscribe(room.ID, func(msg *models.Message) {
		c.handleInsert(gen, msg)
	})
	if err != nil {
		// Ready without a live feed; Refresh still works.
		c.logger.WithError(err).Warn("Failed to open realtime subscription")
		return
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		c.feed.Unsubscribe(sub)
		return
	}
	c.sub = sub
	c.mu.Unlock()
}

// handleInsert appends a realtime echo to the local list unless a
// message with the same id is already present.
func (c *Controller) handleInsert(gen uint64, msg *models.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen || c.room == nil || c.room.ID != msg.ChatRoomID {
		return
	}
	for _, m := range c.messages {
		if m.ID == msg.ID {
			return
		}
	}
	c.messages = append(c.messages, msg)
}

func (c *Controller) fail(gen uint64, errMsg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.state = StateError
	c.errMsg = errMsg
}

// teardownLocked drops the active subscription. Caller holds c.mu.
func (c *Controller) teardownLocked() {
	if c.sub != nil {
		c.feed.Unsubscribe(c.sub)
		c.sub = nil
	}
}
