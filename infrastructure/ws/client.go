package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/sink"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

const maxFrameSize = 64 * 1024

// Client is one live websocket connection. It implements
// contract.Connection: events fanned out to it land on its channel sink
// and the write loop pushes them down the socket.
type Client struct {
	id       string
	identity domain.Identity
	conn     *websocket.Conn
	sink     *sink.ChannelSink
	gw       *Gateway
	log      *slog.Logger
	stop     chan struct{}
}

func newClient(gw *Gateway, conn *websocket.Conn, identity domain.Identity) *Client {
	id := uuid.NewString()
	return &Client{
		id:       id,
		identity: identity,
		conn:     conn,
		sink:     sink.NewChannelSink(gw.cfg.ConnectionBufferSize),
		gw:       gw,
		log:      gw.log.With("conn_id", id, "user_id", identity.UserID),
		stop:     make(chan struct{}),
	}
}

func (c *Client) ID() string                { return c.id }
func (c *Client) Identity() domain.Identity { return c.identity }

func (c *Client) Consume(ctx context.Context, e event.DomainEvent) error {
	return c.sink.Consume(ctx, e)
}

// rawEnvelope lets direct replies travel the same channel as fanned-out
// domain events, so the client observes a single order.
type rawEnvelope struct {
	env Envelope
}

func (r rawEnvelope) EventName() string { return r.env.Event }

// reply enqueues a frame addressed at this connection only.
func (c *Client) reply(ctx context.Context, env Envelope) {
	select {
	case <-ctx.Done():
	case c.sink.Events <- rawEnvelope{env: env}:
	default:
		c.log.Warn("reply dropped, connection buffer full", "event", env.Event)
	}
}

func (c *Client) replyError(ctx context.Context, err error, tempID *int64) {
	c.reply(ctx, newEnvelope("error", errorData{
		Code:    errors.CodeOf(err),
		Message: err.Error(),
		TempID:  tempID,
	}))
}

// writePump owns the socket for writing: fanned-out events, direct
// replies and keepalive pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.gw.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.stop:
			return
		case e := <-c.sink.Events:
			env := toEnvelope(e)
			if raw, ok := e.(rawEnvelope); ok {
				env = raw.env
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.gw.cfg.WriteTimeout))
			if err := c.conn.WriteJSON(env); err != nil {
				c.log.Warn("write failed, closing", "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.gw.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump owns the socket for reading and dispatches every inbound
// frame. When it exits, for whatever reason, the connection is torn
// down: rooms left, session unregistered, presence updated.
func (c *Client) readPump() {
	defer func() {
		close(c.stop)
		_ = c.conn.Close()
		c.teardown()
	}()

	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.gw.cfg.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.gw.cfg.PongTimeout))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway,
				websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Warn("read failed", "error", err)
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.reply(context.Background(), newEnvelope("error", errorData{
				Code:    errors.CodeInvalid,
				Message: "malformed frame",
			}))
			continue
		}
		c.dispatch(context.Background(), frame)
	}
}

// teardown is best effort: the socket is gone, failures are logged and
// never retried.
func (c *Client) teardown() {
	ctx, cancel := context.WithTimeout(context.Background(), c.gw.cfg.TeardownTimeout)
	defer cancel()
	c.gw.presence.Disconnect(ctx, c)
	c.gw.messages.ForgetConnection(c.id)
	c.log.Debug("connection torn down")
}

// dispatch routes one frame. A panic in a handler is recovered here so
// one bad frame cannot take the connection's read loop down silently;
// the client gets a generic internal error instead.
func (c *Client) dispatch(ctx context.Context, frame Frame) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("handler panic", "op", frame.Op, "panic", r)
			c.reply(ctx, newEnvelope("error", errorData{
				Code:    errors.CodeInternal,
				Message: "internal error",
			}))
		}
	}()

	switch frame.Op {
	case "join":
		c.handleJoin(ctx, frame.Data)
	case "leave":
		c.handleLeave(ctx, frame.Data)
	case "message":
		c.handleMessage(ctx, frame.Data)
	case "typing":
		c.handleTyping(ctx, frame.Data)
	case "markRead":
		c.handleMarkRead(ctx, frame.Data)
	case "updateStatus":
		c.handleUpdateStatus(ctx, frame.Data)
	case "updateManyStatus":
		c.handleUpdateManyStatus(ctx, frame.Data)
	case "history":
		c.handleHistory(ctx, frame.Data)
	case "search":
		c.handleSearch(ctx, frame.Data)
	default:
		c.reply(ctx, newEnvelope("error", errorData{
			Code:    errors.CodeInvalid,
			Message: "unknown operation " + frame.Op,
		}))
	}
}

func (c *Client) handleJoin(ctx context.Context, data json.RawMessage) {
	var p roomPayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.replyError(ctx, err, nil)
		return
	}
	chatID := domain.ChatID(p.ChatID)
	c.gw.rooms.Join(ctx, c, chatID)
	c.reply(ctx, newEnvelope("joined", map[string]any{
		"chatId": p.ChatID,
		"userId": int64(c.identity.UserID),
		"members": lo.Map(c.gw.rooms.Members(chatID), func(id domain.Identity, _ int) identityData {
			return toIdentityData(id)
		}),
	}))
}

func (c *Client) handleLeave(ctx context.Context, data json.RawMessage) {
	var p roomPayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.replyError(ctx, err, nil)
		return
	}
	c.gw.rooms.Leave(ctx, c, domain.ChatID(p.ChatID))
	c.reply(ctx, newEnvelope("left", map[string]any{
		"chatId": p.ChatID,
		"userId": int64(c.identity.UserID),
	}))
}

func (c *Client) handleMessage(ctx context.Context, data json.RawMessage) {
	var p messagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.replyError(ctx, err, nil)
		return
	}

	msg, err := c.gw.messages.Send(ctx, c, domain.SendMessageCommand{
		ChatID:        domain.ChatID(p.ChatID),
		ReceiverID:    domain.UserID(p.ReceiverID),
		Type:          domain.MessageType(p.Type),
		Content:       p.Content,
		Metadata:      p.Metadata,
		CorrelationID: p.TempID,
	})
	if err != nil {
		// Every send gets an explicit verdict; it never fails silently.
		c.replyError(ctx, err, &p.TempID)
		return
	}
	c.reply(ctx, toEnvelope(event.MessageAck{CorrelationID: p.TempID, Message: msg}))
}

func (c *Client) handleTyping(ctx context.Context, data json.RawMessage) {
	var p typingPayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.replyError(ctx, err, nil)
		return
	}
	c.gw.typing.PublishTyping(ctx, c, domain.ChatID(p.ChatID), p.IsTyping)
}

func (c *Client) handleMarkRead(ctx context.Context, data json.RawMessage) {
	var p roomPayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.replyError(ctx, err, nil)
		return
	}
	count, err := c.gw.messages.MarkRead(ctx, c.identity.UserID, domain.ChatID(p.ChatID))
	if err != nil {
		c.replyError(ctx, err, nil)
		return
	}
	c.reply(ctx, newEnvelope("read_ack", map[string]any{
		"chatId": p.ChatID,
		"count":  count,
	}))
}

func (c *Client) handleUpdateStatus(ctx context.Context, data json.RawMessage) {
	var p statusPayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.replyError(ctx, err, nil)
		return
	}
	id, err := uuid.Parse(p.MessageID)
	if err != nil {
		c.replyError(ctx, err, nil)
		return
	}
	if err := c.gw.messages.UpdateStatus(ctx, id, domain.MessageStatus(p.Status)); err != nil {
		c.replyError(ctx, err, nil)
	}
}

func (c *Client) handleUpdateManyStatus(ctx context.Context, data json.RawMessage) {
	var p statusPayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.replyError(ctx, err, nil)
		return
	}
	ids := make([]uuid.UUID, 0, len(p.MessageIDs))
	for _, raw := range p.MessageIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.replyError(ctx, err, nil)
			return
		}
		ids = append(ids, id)
	}
	if err := c.gw.messages.UpdateManyStatus(ctx, ids, domain.MessageStatus(p.Status)); err != nil {
		c.replyError(ctx, err, nil)
	}
}

func (c *Client) handleHistory(ctx context.Context, data json.RawMessage) {
	var p historyPayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.replyError(ctx, err, nil)
		return
	}
	messages, cursor, err := c.gw.messages.History(domain.ChatID(p.ChatID), p.Cursor)
	if err != nil {
		c.replyError(ctx, err, nil)
		return
	}
	c.reply(ctx, newEnvelope("history", map[string]any{
		"chatId": p.ChatID,
		"messages": lo.Map(messages, func(m domain.Message, _ int) messageData {
			return toMessageData(m)
		}),
		"cursor": cursor,
	}))
}

func (c *Client) handleSearch(ctx context.Context, data json.RawMessage) {
	var p searchPayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.replyError(ctx, err, nil)
		return
	}
	limit := p.Limit
	if limit <= 0 || limit > c.gw.cfg.SearchLimit {
		limit = c.gw.cfg.SearchLimit
	}
	hits, err := c.gw.messages.SearchMessages(ctx, domain.ChatID(p.ChatID), p.Query, limit)
	if err != nil {
		c.replyError(ctx, err, nil)
		return
	}
	c.reply(ctx, newEnvelope("search_results", map[string]any{
		"chatId": p.ChatID,
		"hits":   hits,
	}))
}
