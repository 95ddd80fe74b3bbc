package service

import (
	"time"

	"naskahcollab/internal/document/model"
)

// Outbound event names emitted by the services.
const (
	EventCommentAdded        = "comment-added"
	EventCommentReplied      = "comment-replied"
	EventCommentResolved     = "comment-resolved"
	EventCommentUpdated      = "comment-updated"
	EventCommentDeleted      = "comment-deleted"
	EventUserInvited         = "user-invited"
	EventInvitationReceived  = "invitation-received"
	EventPermissionChanged   = "permission-changed"
	EventCollaboratorRemoved = "collaborator-removed"
)

// Notifier fans service events out to live connections.
type Notifier interface {
	// Broadcast delivers to every connection in the document's session.
	Broadcast(docID, event string, payload any)
	// SendToUser delivers to the user's routable connection, if any.
	SendToUser(userID, event string, payload any) bool
	// CloseDocument drops the session and disconnects its members.
	CloseDocument(docID string)
}

type nopNotifier struct{}

func (nopNotifier) Broadcast(string, string, any)       {}
func (nopNotifier) SendToUser(string, string, any) bool { return false }
func (nopNotifier) CloseDocument(string)                {}

type CommentReplied struct {
	CommentID  string      `json:"commentId"`
	DocumentID string      `json:"documentId"`
	Reply      model.Reply `json:"reply"`
}

type CommentResolved struct {
	CommentID  string     `json:"commentId"`
	DocumentID string     `json:"documentId"`
	IsResolved bool       `json:"isResolved"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
	ResolvedBy string     `json:"resolvedBy"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

type CommentUpdated struct {
	CommentID  string    `json:"commentId"`
	DocumentID string    `json:"documentId"`
	Content    string    `json:"content"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type CommentDeleted struct {
	CommentID      string `json:"commentId"`
	DocumentID     string `json:"documentId"`
	RepliesRemoved int    `json:"repliesRemoved"`
}

type InvitedUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type UserInvited struct {
	DocumentID  string      `json:"documentId"`
	InvitedUser InvitedUser `json:"invitedUser"`
	InvitedBy   string      `json:"invitedBy"`
	Permission  string      `json:"permission"`
}

type InvitationReceived struct {
	DocumentID    string `json:"documentId"`
	DocumentTitle string `json:"documentTitle"`
	InvitedBy     string `json:"invitedBy"`
	Permission    string `json:"permission"`
	Message       string `json:"message,omitempty"`
}

type PermissionChanged struct {
	DocumentID string `json:"documentId"`
	UserID     string `json:"userId"`
	Permission string `json:"permission"`
	ChangedBy  string `json:"changedBy"`
}

type CollaboratorRemoved struct {
	DocumentID string `json:"documentId"`
	UserID     string `json:"userId"`
	RemovedBy  string `json:"removedBy"`
}
