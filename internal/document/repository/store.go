package repository

import (
	"context"
	"time"

	"naskahcollab/internal/document/model"
)

// Store is the persistence boundary consumed by the hub and the services.
// Lookups return model.ErrNotFound for absent records; write failures wrap
// model.ErrPersistence.
type Store interface {
	GetUser(ctx context.Context, userID string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)

	GetDocument(ctx context.Context, docID string) (*model.Document, error)
	CreateDocument(ctx context.Context, doc *model.Document) error
	UpdateContent(ctx context.Context, docID, content string) (time.Time, error)
	UpdateTitle(ctx context.Context, docID, title string) (time.Time, error)
	// SaveDocument writes title and content together with an activity row.
	SaveDocument(ctx context.Context, docID, title, content, userID string) (time.Time, error)
	DeleteDocument(ctx context.Context, docID string) error
	ListDocumentsByUser(ctx context.Context, userID string) ([]model.Document, error)

	GetCollaborator(ctx context.Context, docID, userID string) (*model.Collaborator, error)
	UpsertCollaborator(ctx context.Context, c *model.Collaborator) error
	RemoveCollaborator(ctx context.Context, docID, userID string) error
	AcceptInvitation(ctx context.Context, docID, userID string) error
	ListMembers(ctx context.Context, docID string) ([]model.CollaboratorInfo, error)

	CreateComment(ctx context.Context, c *model.Comment) error
	GetComment(ctx context.Context, commentID string) (*model.Comment, error)
	UpdateCommentContent(ctx context.Context, commentID, content string) (time.Time, error)
	SetCommentResolved(ctx context.Context, commentID string, resolvedAt *time.Time) (time.Time, error)
	// DeleteComment removes the replies first, then the comment, and reports
	// how many replies were removed.
	DeleteComment(ctx context.Context, commentID string) (int, error)
	CreateReply(ctx context.Context, r *model.Reply) error
	// ListComments returns comments with nested replies ordered by creation time,
	// with author display info hydrated.
	ListComments(ctx context.Context, docID string) ([]model.Comment, error)
}
