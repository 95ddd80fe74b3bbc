package model

import (
	"encoding/json"
	"time"
)

const DefaultTitle = "Untitled Document"

// User is the identity supplied by the authentication gate and the display
// record stored for it.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

type Document struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Collaborator is a permission edge granted to a non-owner.
// Permission is one of view, comment, edit or admin.
type Collaborator struct {
	DocumentID string     `json:"document_id"`
	UserID     string     `json:"user_id"`
	Permission string     `json:"permission"`
	InvitedBy  string     `json:"invited_by,omitempty"`
	InvitedAt  time.Time  `json:"invited_at"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
}

// Activity is an audit row written alongside explicit saves and comment
// mutations.
type Activity struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	UserID     string    `json:"user_id"`
	Action     string    `json:"action"`
	CreatedAt  time.Time `json:"created_at"`
}

type CreateDocResponse struct {
	DocID string `json:"document_id"`
}

type CollaboratorInfo struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
	Role       string `json:"role"`
	Accepted   bool   `json:"accepted"`
	Avatar     string `json:"avatar,omitempty"`
	Permission string `json:"permission"`
}

type DocumentMetadata struct {
	ID        string             `json:"id"`
	Title     string             `json:"title"`
	UpdatedAt time.Time          `json:"updated_at"`
	Snippet   string             `json:"snippet"`
	IsOwner   bool               `json:"is_owner"`
	Collab    []CollaboratorInfo `json:"collab"`
}

type CreateDocRequest struct {
	Title string `json:"title"`
}

type UpdateDocRequest struct {
	Title string `json:"title"`
}

type InviteRequest struct {
	DocID     string `json:"documentId"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	InvitedBy string `json:"invitedBy,omitempty"`
	Message   string `json:"message,omitempty"`
}

type PermissionRequest struct {
	DocID  string `json:"documentId"`
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

type SaveDocRequest struct {
	DocID   string `json:"documentId"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

type CommentRequest struct {
	DocID    string          `json:"documentId"`
	Content  string          `json:"content"`
	Position json.RawMessage `json:"position,omitempty"`
}

type ReplyRequest struct {
	CommentID string `json:"commentId"`
	Content   string `json:"content"`
}

type ResolveRequest struct {
	CommentID string `json:"commentId"`
	Resolved  bool   `json:"resolved"`
}

type UpdateCommentRequest struct {
	CommentID string `json:"commentId"`
	Content   string `json:"content"`
}
