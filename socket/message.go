package socket

import (
	"encoding/json"
	"time"

	"naskahcollab/internal/document/model"
)

// Inbound events.
const (
	EventJoinDocument   = "join-document"
	EventLeaveDocument  = "leave-document"
	EventDocumentChange = "document-change"
	EventTitleChange    = "title-change"
	EventSaveDocument   = "save-document"
	EventCursorPosition = "cursor-position"
	EventUserTyping     = "user-typing"
	EventInviteUser     = "invite-user"
	EventAddComment     = "add-comment"
	EventReplyComment   = "reply-comment"
	EventResolveComment = "resolve-comment"
	EventUpdateComment  = "update-comment"
	EventDeleteComment  = "delete-comment"
	EventLoadComments   = "load-comments"
)

// Outbound events. Comment and invitation broadcasts are named in the
// service package.
const (
	EventDocumentJoined  = "document-joined"
	EventJoinError       = "join-error"
	EventUserJoined      = "user-joined"
	EventUserLeft        = "user-left"
	EventDocumentUpdated = "document-updated"
	EventDocumentError   = "document-error"
	EventTitleUpdated    = "title-updated"
	EventDocumentSaved   = "document-saved"
	EventSaveError       = "save-error"
	EventCursorUpdated   = "cursor-updated"
	EventInvitationSent  = "invitation-sent"
	EventInvitationError = "invitation-error"
	EventCommentsLoaded  = "comments-loaded"
	EventCommentError    = "comment-error"
	EventError           = "error"
)

// WSMessage is the envelope for every frame in both directions. Inbound
// UserID is overwritten with the authenticated user. Inbound DocID is only a
// fallback for payloads that omit documentId.
type WSMessage struct {
	Type    string          `json:"type"`
	DocID   string          `json:"document_id,omitempty"`
	UserID  string          `json:"user_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func encode(eventType, docID, userID string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(WSMessage{Type: eventType, DocID: docID, UserID: userID, Payload: raw})
}

type Persist int

const (
	PersistNone Persist = iota
	PersistDebounced
	PersistImmediate
)

type Scope int

const (
	ScopeOthers Scope = iota
	ScopeAll
)

// Policy says how an edit signal is stored and who receives the fan-out.
type Policy struct {
	Persist Persist
	Scope   Scope
}

var policies = map[string]Policy{
	EventDocumentChange: {Persist: PersistDebounced, Scope: ScopeOthers},
	EventTitleChange:    {Persist: PersistImmediate, Scope: ScopeOthers},
	EventSaveDocument:   {Persist: PersistImmediate, Scope: ScopeAll},
	EventCursorPosition: {Persist: PersistNone, Scope: ScopeOthers},
	EventUserTyping:     {Persist: PersistNone, Scope: ScopeOthers},
}

func PolicyFor(eventType string) (Policy, bool) {
	p, ok := policies[eventType]
	return p, ok
}

// Inbound payloads.

type DocumentRef struct {
	DocumentID string `json:"documentId"`
}

type ContentChange struct {
	DocumentID string `json:"documentId"`
	Content    string `json:"content"`
	Operation  string `json:"operation,omitempty"`
	Position   *int   `json:"position,omitempty"`
	Length     *int   `json:"length,omitempty"`
}

type TitleChange struct {
	DocumentID string `json:"documentId"`
	Title      string `json:"title"`
}

type SaveRequest struct {
	DocumentID string `json:"documentId"`
	Title      string `json:"title"`
	Content    string `json:"content"`
}

type CursorMove struct {
	DocumentID string           `json:"documentId"`
	Position   int              `json:"position"`
	Selection  *model.Selection `json:"selection,omitempty"`
}

type TypingSignal struct {
	DocumentID string `json:"documentId"`
	IsTyping   bool   `json:"isTyping"`
}

type CommentRef struct {
	CommentID string `json:"commentId"`
}

// Outbound payloads.

type DocumentSnapshot struct {
	Title        string    `json:"title"`
	Content      string    `json:"content"`
	LastModified time.Time `json:"lastModified"`
}

type DocumentJoined struct {
	DocumentID string              `json:"documentId"`
	Document   DocumentSnapshot    `json:"document"`
	Users      []model.Participant `json:"users"`
}

type JoinError struct {
	Error      string `json:"error"`
	DocumentID string `json:"documentId"`
	Code       string `json:"code"`
}

type UserJoined struct {
	DocumentID string            `json:"documentId"`
	User       model.Participant `json:"user"`
}

type UserLeft struct {
	DocumentID string `json:"documentId"`
	UserID     string `json:"userId"`
	UserName   string `json:"userName"`
}

type DocumentUpdated struct {
	DocumentID string    `json:"documentId"`
	Content    string    `json:"content"`
	UserID     string    `json:"userId"`
	Timestamp  time.Time `json:"timestamp"`
	Operation  string    `json:"operation,omitempty"`
	Position   *int      `json:"position,omitempty"`
	Length     *int      `json:"length,omitempty"`
}

type DocumentError struct {
	Error      string `json:"error"`
	DocumentID string `json:"documentId"`
	Code       string `json:"code"`
}

type TitleUpdated struct {
	DocumentID string    `json:"documentId"`
	Title      string    `json:"title"`
	UserID     string    `json:"userId"`
	Timestamp  time.Time `json:"timestamp"`
}

type DocumentSaved struct {
	DocumentID string    `json:"documentId"`
	Timestamp  time.Time `json:"timestamp"`
	AutoSave   bool      `json:"autoSave,omitempty"`
	SavedBy    string    `json:"savedBy,omitempty"`
}

type SaveError struct {
	DocumentID string    `json:"documentId"`
	Error      string    `json:"error"`
	Timestamp  time.Time `json:"timestamp"`
}

type CursorUpdated struct {
	DocumentID string           `json:"documentId"`
	UserID     string           `json:"userId"`
	UserName   string           `json:"userName"`
	Position   int              `json:"position"`
	Selection  *model.Selection `json:"selection,omitempty"`
}

type UserTyping struct {
	DocumentID string `json:"documentId"`
	UserID     string `json:"userId"`
	UserName   string `json:"userName"`
	IsTyping   bool   `json:"isTyping"`
}

type InvitationError struct {
	Email string `json:"email"`
	Error string `json:"error"`
	Code  string `json:"code"`
}

type ErrorPayload struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
