package socket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"naskahcollab/internal/document/model"
	"naskahcollab/pkg/logger"
	"naskahcollab/pkg/metrics"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4 << 20
	handlerTimeout = 15 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin is enforced by the CORS layer and the token check.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Client struct {
	Hub  *Hub
	Conn *websocket.Conn
	User model.User
	Send chan []byte

	// guarded by Hub.mu
	docID  string
	closed bool
}

// ServeWs upgrades an authenticated request. A docId query parameter joins
// that document straight away.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request, user model.User) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Sugar.Error(err)
		return
	}

	client := &Client{
		Hub:  hub,
		Conn: conn,
		User: user,
		Send: make(chan []byte, hub.sendBuffer),
	}

	select {
	case hub.Register <- client:
	case <-hub.quit:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump(r.URL.Query().Get("docId"))
}

func (c *Client) readPump(initialDoc string) {
	defer func() {
		select {
		case c.Hub.Unregister <- c:
		case <-c.Hub.quit:
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	if initialDoc != "" {
		payload, _ := json.Marshal(DocumentRef{DocumentID: initialDoc})
		c.handle(WSMessage{Type: EventJoinDocument, Payload: payload})
	}

	for {
		_, rawMessage, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Sugar.Errorf("error: %v", err)
			}
			break
		}

		var msg WSMessage
		if err := json.Unmarshal(rawMessage, &msg); err != nil {
			logger.Sugar.Errorf("Error unmarshalling message from %s: %v", c.User.ID, err)
			c.Hub.sendTo(c, EventError, "", ErrorPayload{Error: "malformed message", Code: model.CodeValidation})
			continue
		}

		// Set server-authoritative fields to prevent spoofing.
		msg.UserID = c.User.ID
		c.handle(msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return // Connection is dead
			}
		}
	}
}

type handlerFunc func(ctx context.Context, c *Client, msg WSMessage)

var handlers = map[string]handlerFunc{
	EventJoinDocument:   handleJoin,
	EventLeaveDocument:  handleLeave,
	EventDocumentChange: handleDocumentChange,
	EventTitleChange:    handleTitleChange,
	EventSaveDocument:   handleSave,
	EventCursorPosition: handleCursor,
	EventUserTyping:     handleTyping,
	EventInviteUser:     handleInvite,
	EventAddComment:     handleAddComment,
	EventReplyComment:   handleReplyComment,
	EventResolveComment: handleResolveComment,
	EventUpdateComment:  handleUpdateComment,
	EventDeleteComment:  handleDeleteComment,
	EventLoadComments:   handleLoadComments,
}

// handle runs one inbound event. Panics are logged and reported to the
// sender as an internal error.
func (c *Client) handle(msg WSMessage) {
	defer func() {
		if r := recover(); r != nil {
			logger.Sugar.Errorf("Recovered panic handling %s from %s: %v", msg.Type, c.User.ID, r)
			c.Hub.sendTo(c, EventError, msg.DocID, ErrorPayload{Error: "internal error", Code: model.CodeInternal})
		}
	}()

	handler, ok := handlers[msg.Type]
	if !ok {
		metrics.RecordEvent("unknown")
		c.Hub.sendTo(c, EventError, msg.DocID, ErrorPayload{Error: "unknown event type: " + msg.Type, Code: model.CodeValidation})
		return
	}
	metrics.RecordEvent(msg.Type)

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()
	handler(ctx, c, msg)
}

// decode unmarshals the payload. On failure it answers with errorEvent and
// returns false.
func decode[T any](c *Client, msg WSMessage, errorEvent string) (T, bool) {
	var v T
	if len(msg.Payload) == 0 {
		return v, true
	}
	if err := json.Unmarshal(msg.Payload, &v); err != nil {
		c.Hub.sendTo(c, errorEvent, msg.DocID, ErrorPayload{Error: "invalid payload for " + msg.Type, Code: model.CodeValidation})
		return v, false
	}
	return v, true
}

func orDoc(id, fallback string) string {
	if id != "" {
		return id
	}
	return fallback
}

func handleJoin(ctx context.Context, c *Client, msg WSMessage) {
	ref, ok := decode[DocumentRef](c, msg, EventJoinError)
	if !ok {
		return
	}
	docID := orDoc(ref.DocumentID, msg.DocID)
	if err := c.Hub.Join(ctx, c, docID); err != nil {
		logger.Sugar.Warnf("Join of doc %s by %s failed: %v", docID, c.User.ID, err)
		c.Hub.sendTo(c, EventJoinError, docID, JoinError{Error: publicMessage(err), DocumentID: docID, Code: model.ErrorCode(err)})
	}
}

func handleLeave(_ context.Context, c *Client, _ WSMessage) {
	c.Hub.Leave(c)
}

func handleDocumentChange(ctx context.Context, c *Client, msg WSMessage) {
	change, ok := decode[ContentChange](c, msg, EventDocumentError)
	if !ok {
		return
	}
	change.DocumentID = orDoc(change.DocumentID, msg.DocID)
	c.Hub.ContentChange(ctx, c, change)
}

func handleTitleChange(ctx context.Context, c *Client, msg WSMessage) {
	req, ok := decode[TitleChange](c, msg, EventDocumentError)
	if !ok {
		return
	}
	docID, err := c.Hub.docFor(c, orDoc(req.DocumentID, msg.DocID))
	if err == nil {
		_, err = c.Hub.UpdateTitle(ctx, c.User, docID, req.Title, c)
	}
	if err != nil {
		c.Hub.documentError(c, orDoc(req.DocumentID, docID), err)
	}
}

func handleSave(ctx context.Context, c *Client, msg WSMessage) {
	req, ok := decode[SaveRequest](c, msg, EventSaveError)
	if !ok {
		return
	}
	docID, err := c.Hub.docFor(c, orDoc(req.DocumentID, msg.DocID))
	if err == nil {
		_, err = c.Hub.SaveDocument(ctx, c.User, docID, req.Title, req.Content, c)
	}
	if err != nil {
		logger.Sugar.Errorf("Error saving document %s for %s: %v", docID, c.User.ID, err)
		c.Hub.sendTo(c, EventSaveError, docID, SaveError{
			DocumentID: orDoc(req.DocumentID, docID), Error: publicMessage(err), Timestamp: c.Hub.now().UTC(),
		})
	}
}

func handleCursor(_ context.Context, c *Client, msg WSMessage) {
	move, ok := decode[CursorMove](c, msg, EventError)
	if !ok {
		return
	}
	move.DocumentID = orDoc(move.DocumentID, msg.DocID)
	c.Hub.CursorMoved(c, move)
}

func handleTyping(_ context.Context, c *Client, msg WSMessage) {
	signal, ok := decode[TypingSignal](c, msg, EventError)
	if !ok {
		return
	}
	signal.DocumentID = orDoc(signal.DocumentID, msg.DocID)
	c.Hub.Typing(c, signal)
}

func (c *Client) currentDoc() string {
	c.Hub.mu.Lock()
	defer c.Hub.mu.Unlock()
	return c.docID
}

func handleInvite(ctx context.Context, c *Client, msg WSMessage) {
	req, ok := decode[model.InviteRequest](c, msg, EventInvitationError)
	if !ok {
		return
	}
	if c.Hub.docs == nil {
		c.Hub.sendTo(c, EventInvitationError, "", InvitationError{Email: req.Email, Error: "invitations unavailable", Code: model.CodeInternal})
		return
	}
	req.DocID = orDoc(req.DocID, orDoc(msg.DocID, c.currentDoc()))
	res, err := c.Hub.docs.Invite(ctx, c.User, req)
	if err != nil {
		logger.Sugar.Warnf("Invite to doc %s by %s failed: %v", req.DocID, c.User.ID, err)
		c.Hub.sendTo(c, EventInvitationError, req.DocID, InvitationError{Email: req.Email, Error: publicMessage(err), Code: model.ErrorCode(err)})
		return
	}
	c.Hub.sendTo(c, EventInvitationSent, req.DocID, res)
}

func commentError(c *Client, docID string, err error) {
	logger.Sugar.Warnf("Comment operation by %s failed: %v", c.User.ID, err)
	c.Hub.sendTo(c, EventCommentError, docID, ErrorPayload{Error: publicMessage(err), Code: model.ErrorCode(err)})
}

func commentsReady(c *Client) bool {
	if c.Hub.comments == nil {
		c.Hub.sendTo(c, EventCommentError, "", ErrorPayload{Error: "comments unavailable", Code: model.CodeInternal})
		return false
	}
	return true
}

func handleAddComment(ctx context.Context, c *Client, msg WSMessage) {
	req, ok := decode[model.CommentRequest](c, msg, EventCommentError)
	if !ok || !commentsReady(c) {
		return
	}
	req.DocID = orDoc(req.DocID, orDoc(msg.DocID, c.currentDoc()))
	if _, err := c.Hub.comments.AddComment(ctx, c.User, req); err != nil {
		commentError(c, req.DocID, err)
	}
}

func handleReplyComment(ctx context.Context, c *Client, msg WSMessage) {
	req, ok := decode[model.ReplyRequest](c, msg, EventCommentError)
	if !ok || !commentsReady(c) {
		return
	}
	if _, err := c.Hub.comments.Reply(ctx, c.User, req); err != nil {
		commentError(c, msg.DocID, err)
	}
}

func handleResolveComment(ctx context.Context, c *Client, msg WSMessage) {
	req, ok := decode[model.ResolveRequest](c, msg, EventCommentError)
	if !ok || !commentsReady(c) {
		return
	}
	if _, err := c.Hub.comments.Resolve(ctx, c.User, req); err != nil {
		commentError(c, msg.DocID, err)
	}
}

func handleUpdateComment(ctx context.Context, c *Client, msg WSMessage) {
	req, ok := decode[model.UpdateCommentRequest](c, msg, EventCommentError)
	if !ok || !commentsReady(c) {
		return
	}
	if _, err := c.Hub.comments.Update(ctx, c.User, req); err != nil {
		commentError(c, msg.DocID, err)
	}
}

func handleDeleteComment(ctx context.Context, c *Client, msg WSMessage) {
	ref, ok := decode[CommentRef](c, msg, EventCommentError)
	if !ok || !commentsReady(c) {
		return
	}
	if _, err := c.Hub.comments.Delete(ctx, c.User, ref.CommentID); err != nil {
		commentError(c, msg.DocID, err)
	}
}

func handleLoadComments(ctx context.Context, c *Client, msg WSMessage) {
	ref, ok := decode[DocumentRef](c, msg, EventCommentError)
	if !ok || !commentsReady(c) {
		return
	}
	docID := orDoc(ref.DocumentID, orDoc(msg.DocID, c.currentDoc()))
	list, err := c.Hub.comments.List(ctx, c.User, docID)
	if err != nil {
		commentError(c, docID, err)
		return
	}
	c.Hub.sendTo(c, EventCommentsLoaded, docID, list)
}
