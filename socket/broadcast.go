package socket

import (
	"context"
	"fmt"
	"strings"
	"time"

	"naskahcollab/internal/document/model"
	"naskahcollab/internal/permission"
	"naskahcollab/pkg/logger"
)

// publicMessage hides internal detail from clients.
func publicMessage(err error) string {
	switch model.ErrorCode(err) {
	case model.CodeInternal:
		return "internal error"
	case model.CodePersistence:
		return "storage unavailable, please retry"
	default:
		return err.Error()
	}
}

// docFor returns the document the client is joined to. A documentId in the
// payload must match it.
func (h *Hub) docFor(c *Client, requested string) (string, error) {
	h.mu.Lock()
	current := c.docID
	h.mu.Unlock()
	if current == "" {
		return "", fmt.Errorf("%w: join a document first", model.ErrValidation)
	}
	if requested != "" && requested != current {
		return "", fmt.Errorf("%w: not joined to document %s", model.ErrValidation, requested)
	}
	return current, nil
}

// relayLocked fans an edit signal out according to the inbound event's policy.
func (h *Hub) relayLocked(s *session, inbound, outbound string, sender *Client, userID string, payload any) {
	exclude := sender
	if p, ok := PolicyFor(inbound); ok && p.Scope == ScopeAll {
		exclude = nil
	}
	h.fanOutLocked(s, outbound, userID, payload, exclude)
}

func (h *Hub) touchLocked(s *session, userID, status string, at time.Time) *model.Participant {
	p, ok := s.participants[userID]
	if !ok {
		return nil
	}
	p.LastActivity = at
	if status != "" {
		p.Status = status
	}
	return p
}

func (h *Hub) documentError(c *Client, docID string, err error) {
	h.sendTo(c, EventDocumentError, docID, DocumentError{Error: publicMessage(err), DocumentID: docID, Code: model.ErrorCode(err)})
}

// ContentChange relays new content to the rest of the session before
// anything is persisted, then hands it to auto-save.
func (h *Hub) ContentChange(ctx context.Context, c *Client, msg ContentChange) {
	docID, err := h.docFor(c, msg.DocumentID)
	if err != nil {
		h.documentError(c, msg.DocumentID, err)
		return
	}
	if _, err := h.resolver.Require(ctx, docID, c.User.ID, permission.ActionEdit); err != nil {
		logger.Sugar.Warnf("Rejected change from %s on doc %s: %v", c.User.ID, docID, err)
		h.documentError(c, docID, err)
		return
	}

	now := h.now().UTC()
	h.mu.Lock()
	s, ok := h.sessions[docID]
	if !ok {
		h.mu.Unlock()
		return
	}
	s.content = msg.Content
	h.touchLocked(s, c.User.ID, model.StatusActive, now)
	h.relayLocked(s, EventDocumentChange, EventDocumentUpdated, c, c.User.ID, DocumentUpdated{
		DocumentID: docID,
		Content:    msg.Content,
		UserID:     c.User.ID,
		Timestamp:  now,
		Operation:  msg.Operation,
		Position:   msg.Position,
		Length:     msg.Length,
	})
	h.mu.Unlock()
	h.queuePresence(docID)

	if p, _ := PolicyFor(EventDocumentChange); p.Persist == PersistDebounced {
		h.scheduleAutoSave(docID, msg.Content)
	}
}

// UpdateTitle persists the title right away and then tells the session.
// sender is excluded from the fan-out; REST callers pass nil.
func (h *Hub) UpdateTitle(ctx context.Context, user model.User, docID, title string, sender *Client) (time.Time, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return time.Time{}, fmt.Errorf("%w: title cannot be empty", model.ErrValidation)
	}
	if _, err := h.resolver.Require(ctx, docID, user.ID, permission.ActionEdit); err != nil {
		return time.Time{}, err
	}
	updatedAt, err := h.store.UpdateTitle(ctx, docID, title)
	if err != nil {
		return time.Time{}, err
	}

	h.mu.Lock()
	if s, ok := h.sessions[docID]; ok {
		s.title = title
		if updatedAt.After(s.lastModified) {
			s.lastModified = updatedAt
		}
		h.touchLocked(s, user.ID, "", h.now())
		h.relayLocked(s, EventTitleChange, EventTitleUpdated, sender, user.ID, TitleUpdated{
			DocumentID: docID, Title: title, UserID: user.ID, Timestamp: updatedAt,
		})
	}
	h.mu.Unlock()
	return updatedAt, nil
}

// SaveDocument writes title and content with an activity row and notifies
// everyone in the session, the saver included. An empty title keeps the
// current one. A pending auto-save is left in place.
func (h *Hub) SaveDocument(ctx context.Context, user model.User, docID, title, content string, sender *Client) (time.Time, error) {
	decision, err := h.resolver.Require(ctx, docID, user.ID, permission.ActionEdit)
	if err != nil {
		return time.Time{}, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = decision.Document.Title
		h.mu.Lock()
		if s, ok := h.sessions[docID]; ok {
			title = s.title
		}
		h.mu.Unlock()
	}

	savedAt, err := h.store.SaveDocument(ctx, docID, title, content, user.ID)
	if err != nil {
		return time.Time{}, err
	}

	h.mu.Lock()
	if s, ok := h.sessions[docID]; ok {
		s.title = title
		s.content = content
		s.lastModified = savedAt
		h.touchLocked(s, user.ID, model.StatusActive, h.now())
		h.relayLocked(s, EventSaveDocument, EventDocumentSaved, sender, user.ID, DocumentSaved{
			DocumentID: docID, Timestamp: savedAt, SavedBy: user.ID,
		})
	}
	h.mu.Unlock()
	logger.Sugar.Infof("Document %s saved by %s", docID, user.ID)
	return savedAt, nil
}

// CursorMoved is presence only and never stored.
func (h *Hub) CursorMoved(c *Client, msg CursorMove) {
	docID, err := h.docFor(c, msg.DocumentID)
	if err != nil {
		h.documentError(c, msg.DocumentID, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[docID]
	if !ok {
		return
	}
	p := h.touchLocked(s, c.User.ID, "", h.now())
	if p == nil {
		return
	}
	if p.Status == model.StatusAway || p.Status == model.StatusIdle {
		p.Status = model.StatusActive
	}
	p.Cursor = &model.Cursor{Position: msg.Position, Selection: msg.Selection}
	h.relayLocked(s, EventCursorPosition, EventCursorUpdated, c, c.User.ID, CursorUpdated{
		DocumentID: docID,
		UserID:     c.User.ID,
		UserName:   c.User.Name,
		Position:   msg.Position,
		Selection:  msg.Selection,
	})
	h.queuePresence(docID)
}

func (h *Hub) Typing(c *Client, msg TypingSignal) {
	docID, err := h.docFor(c, msg.DocumentID)
	if err != nil {
		h.documentError(c, msg.DocumentID, err)
		return
	}

	status := model.StatusActive
	if msg.IsTyping {
		status = model.StatusTyping
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[docID]
	if !ok {
		return
	}
	if h.touchLocked(s, c.User.ID, status, h.now()) == nil {
		return
	}
	h.relayLocked(s, EventUserTyping, EventUserTyping, c, c.User.ID, UserTyping{
		DocumentID: docID,
		UserID:     c.User.ID,
		UserName:   c.User.Name,
		IsTyping:   msg.IsTyping,
	})
	h.queuePresence(docID)
}
