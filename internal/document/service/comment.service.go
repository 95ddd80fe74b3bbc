package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"naskahcollab/internal/document/model"
	"naskahcollab/internal/document/repository"
	"naskahcollab/internal/permission"
	"naskahcollab/pkg/logger"
)

// CommentService is the permission-checked comment and reply flow. Every
// mutation resolves the caller's level against the store at call time.
type CommentService struct {
	Repo     repository.Store
	resolver *permission.Resolver
	notify   Notifier
	now      func() time.Time
}

func NewCommentService(repo repository.Store, notify Notifier) *CommentService {
	if notify == nil {
		notify = nopNotifier{}
	}
	return &CommentService{Repo: repo, resolver: permission.NewResolver(repo), notify: notify, now: time.Now}
}

func validation(msg string) error {
	return fmt.Errorf("%w: %s", model.ErrValidation, msg)
}

func denied(what string) error {
	return fmt.Errorf("%s: %w", what, model.ErrAccessDenied)
}

// author prefers the stored display record and falls back to the identity.
func (s *CommentService) author(ctx context.Context, user model.User) *model.User {
	if u, err := s.Repo.GetUser(ctx, user.ID); err == nil {
		return u
	}
	return &model.User{ID: user.ID, Name: user.Name, Email: user.Email}
}

func (s *CommentService) AddComment(ctx context.Context, user model.User, req model.CommentRequest) (*model.Comment, error) {
	content := strings.TrimSpace(req.Content)
	if req.DocID == "" {
		return nil, validation("document id is required")
	}
	if content == "" {
		return nil, validation("comment content is required")
	}
	if _, err := s.resolver.Require(ctx, req.DocID, user.ID, permission.ActionComment); err != nil {
		return nil, err
	}

	c := &model.Comment{DocumentID: req.DocID, UserID: user.ID, Content: content, Position: req.Position}
	if err := s.Repo.CreateComment(ctx, c); err != nil {
		return nil, err
	}
	c.Author = s.author(ctx, user)
	c.Replies = []model.Reply{}

	s.notify.Broadcast(req.DocID, EventCommentAdded, c)
	return c, nil
}

func (s *CommentService) Reply(ctx context.Context, user model.User, req model.ReplyRequest) (*model.Reply, error) {
	content := strings.TrimSpace(req.Content)
	if req.CommentID == "" {
		return nil, validation("comment id is required")
	}
	if content == "" {
		return nil, validation("reply content is required")
	}
	parent, err := s.Repo.GetComment(ctx, req.CommentID)
	if err != nil {
		return nil, err
	}
	if _, err := s.resolver.Require(ctx, parent.DocumentID, user.ID, permission.ActionComment); err != nil {
		return nil, err
	}

	r := &model.Reply{CommentID: parent.ID, AuthorID: user.ID, Content: content}
	if err := s.Repo.CreateReply(ctx, r); err != nil {
		return nil, err
	}
	r.Author = s.author(ctx, user)

	s.notify.Broadcast(parent.DocumentID, EventCommentReplied, CommentReplied{
		CommentID: parent.ID, DocumentID: parent.DocumentID, Reply: *r,
	})
	return r, nil
}

// loadForMutation fetches the comment and the caller's level on its document.
func (s *CommentService) loadForMutation(ctx context.Context, userID, commentID string) (*model.Comment, permission.Decision, error) {
	if commentID == "" {
		return nil, permission.Decision{}, validation("comment id is required")
	}
	c, err := s.Repo.GetComment(ctx, commentID)
	if err != nil {
		return nil, permission.Decision{}, err
	}
	d, err := s.resolver.Resolve(ctx, c.DocumentID, userID)
	if err != nil {
		return nil, d, err
	}
	return c, d, nil
}

// isAuthorOrOwner requires the author to still hold comment access.
func isAuthorOrOwner(c *model.Comment, d permission.Decision, userID string) bool {
	if d.Level == permission.Owner {
		return true
	}
	return c.UserID == userID && d.Can(permission.ActionComment)
}

// Resolve toggles the resolved flag. Authors, the owner and anyone with edit
// access may do it.
func (s *CommentService) Resolve(ctx context.Context, user model.User, req model.ResolveRequest) (*CommentResolved, error) {
	c, d, err := s.loadForMutation(ctx, user.ID, req.CommentID)
	if err != nil {
		return nil, err
	}
	if !isAuthorOrOwner(c, d, user.ID) && !d.Can(permission.ActionResolve) {
		return nil, denied("resolve comment " + c.ID)
	}

	evt := CommentResolved{CommentID: c.ID, DocumentID: c.DocumentID, IsResolved: req.Resolved, ResolvedBy: user.ID}
	if req.Resolved {
		now := s.now().UTC()
		evt.ResolvedAt = &now
	}
	updatedAt, err := s.Repo.SetCommentResolved(ctx, c.ID, evt.ResolvedAt)
	if err != nil {
		return nil, err
	}
	evt.UpdatedAt = updatedAt

	s.notify.Broadcast(c.DocumentID, EventCommentResolved, evt)
	return &evt, nil
}

func (s *CommentService) Update(ctx context.Context, user model.User, req model.UpdateCommentRequest) (*CommentUpdated, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, validation("comment content is required")
	}
	c, d, err := s.loadForMutation(ctx, user.ID, req.CommentID)
	if err != nil {
		return nil, err
	}
	if !isAuthorOrOwner(c, d, user.ID) {
		return nil, denied("update comment " + c.ID)
	}

	updatedAt, err := s.Repo.UpdateCommentContent(ctx, c.ID, content)
	if err != nil {
		return nil, err
	}
	evt := CommentUpdated{CommentID: c.ID, DocumentID: c.DocumentID, Content: content, UpdatedAt: updatedAt}
	s.notify.Broadcast(c.DocumentID, EventCommentUpdated, evt)
	return &evt, nil
}

// Delete removes the comment and every reply under it.
func (s *CommentService) Delete(ctx context.Context, user model.User, commentID string) (*CommentDeleted, error) {
	c, d, err := s.loadForMutation(ctx, user.ID, commentID)
	if err != nil {
		return nil, err
	}
	if !isAuthorOrOwner(c, d, user.ID) {
		return nil, denied("delete comment " + c.ID)
	}

	removed, err := s.Repo.DeleteComment(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	logger.Sugar.Infof("Comment %s deleted by %s (%d replies)", c.ID, user.ID, removed)

	evt := CommentDeleted{CommentID: c.ID, DocumentID: c.DocumentID, RepliesRemoved: removed}
	s.notify.Broadcast(c.DocumentID, EventCommentDeleted, evt)
	return &evt, nil
}

// List returns the document's comments with nested replies and counts.
func (s *CommentService) List(ctx context.Context, user model.User, docID string) (*model.CommentList, error) {
	if docID == "" {
		return nil, validation("document id is required")
	}
	if _, err := s.resolver.Require(ctx, docID, user.ID, permission.ActionRead); err != nil {
		return nil, err
	}
	comments, err := s.Repo.ListComments(ctx, docID)
	if err != nil {
		return nil, err
	}
	list := model.NewCommentList(docID, comments)
	return &list, nil
}
