package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"naskahcollab/internal/document/model"
	"naskahcollab/internal/document/repository"
	"naskahcollab/internal/email"
	"naskahcollab/internal/permission"
	"naskahcollab/pkg/logger"
)

type DocumentService struct {
	Repo     repository.Store
	resolver *permission.Resolver
	notify   Notifier
	mailer   email.Mailer
}

func NewDocumentService(repo repository.Store, notify Notifier, mailer email.Mailer) *DocumentService {
	if notify == nil {
		notify = nopNotifier{}
	}
	if mailer == nil {
		mailer = email.LogMailer{}
	}
	return &DocumentService{Repo: repo, resolver: permission.NewResolver(repo), notify: notify, mailer: mailer}
}

func (s *DocumentService) CreateDocument(ctx context.Context, userID, title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = model.DefaultTitle
	}
	doc := &model.Document{Title: title, OwnerID: userID}
	if err := s.Repo.CreateDocument(ctx, doc); err != nil {
		return "", err
	}
	logger.Sugar.Infof("Document %s created by %s", doc.ID, userID)
	return doc.ID, nil
}

// ListDocuments returns documents the user owns or was invited to, newest first.
func (s *DocumentService) ListDocuments(ctx context.Context, userID string) ([]model.DocumentMetadata, error) {
	docs, err := s.Repo.ListDocumentsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]model.DocumentMetadata, 0, len(docs))
	for _, d := range docs {
		meta := model.DocumentMetadata{
			ID:        d.ID,
			Title:     d.Title,
			UpdatedAt: d.UpdatedAt,
			Snippet:   getSnippetFromContent(d.Content),
			IsOwner:   d.OwnerID == userID,
		}
		members, err := s.Repo.ListMembers(ctx, d.ID)
		if err != nil {
			logger.Sugar.Warnf("Failed to list members for doc %s: %v", d.ID, err)
		}
		meta.Collab = withRoles(members)
		out = append(out, meta)
	}
	return out, nil
}

func withRoles(members []model.CollaboratorInfo) []model.CollaboratorInfo {
	if members == nil {
		return []model.CollaboratorInfo{}
	}
	for i := range members {
		if members[i].Permission == permission.Owner.String() {
			members[i].Role = permission.Owner.Role()
			continue
		}
		level, err := permission.ParseRole(members[i].Permission)
		if err != nil {
			level = permission.None
		}
		members[i].Role = level.Role()
	}
	return members
}

// Members lists the owner and collaborators; any access level may read it.
func (s *DocumentService) Members(ctx context.Context, user model.User, docID string) ([]model.CollaboratorInfo, error) {
	if docID == "" {
		return nil, validation("document id is required")
	}
	if _, err := s.resolver.Require(ctx, docID, user.ID, permission.ActionRead); err != nil {
		return nil, err
	}
	members, err := s.Repo.ListMembers(ctx, docID)
	if err != nil {
		return nil, err
	}
	return withRoles(members), nil
}

// InviteResult is what the inviter gets back.
type InviteResult struct {
	Email   string      `json:"email"`
	User    InvitedUser `json:"user"`
	Message string      `json:"message"`
}

// Invite grants role to the user registered under req.Email. The caller
// needs admin access. Mail delivery failures are logged and do not fail the
// invitation.
func (s *DocumentService) Invite(ctx context.Context, inviter model.User, req model.InviteRequest) (*InviteResult, error) {
	addr := strings.TrimSpace(req.Email)
	if req.DocID == "" || addr == "" || strings.TrimSpace(req.Role) == "" {
		return nil, validation("documentId, email and role are required")
	}
	level, err := permission.ParseRole(req.Role)
	if err != nil {
		return nil, err
	}

	decision, err := s.resolver.Require(ctx, req.DocID, inviter.ID, permission.ActionInvite)
	if err != nil {
		return nil, err
	}
	doc := decision.Document

	invitee, err := s.Repo.GetUserByEmail(ctx, addr)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, fmt.Errorf("no user registered with email %s: %w", addr, model.ErrNotFound)
		}
		return nil, err
	}
	if invitee.ID == doc.OwnerID {
		return nil, validation("the owner already has full access")
	}
	if invitee.ID == inviter.ID {
		return nil, validation("cannot invite yourself")
	}

	edge := &model.Collaborator{
		DocumentID: doc.ID,
		UserID:     invitee.ID,
		Permission: level.String(),
		InvitedBy:  inviter.ID,
	}
	if err := s.Repo.UpsertCollaborator(ctx, edge); err != nil {
		return nil, err
	}

	inviterName := inviter.Name
	if req.InvitedBy != "" {
		inviterName = req.InvitedBy
	}
	if err := s.mailer.SendInvitation(ctx, email.Invitation{
		To:           invitee.Email,
		InviteeName:  invitee.Name,
		InviterName:  inviterName,
		DocumentID:   doc.ID,
		DocumentName: doc.Title,
		Permission:   level.String(),
		Message:      req.Message,
	}); err != nil {
		logger.Sugar.Errorf("Failed to send invitation mail to %s for doc %s: %v", invitee.Email, doc.ID, err)
	}

	invited := InvitedUser{ID: invitee.ID, Name: invitee.Name, Email: invitee.Email}
	s.notify.Broadcast(doc.ID, EventUserInvited, UserInvited{
		DocumentID:  doc.ID,
		InvitedUser: invited,
		InvitedBy:   inviter.ID,
		Permission:  level.String(),
	})
	s.notify.SendToUser(invitee.ID, EventInvitationReceived, InvitationReceived{
		DocumentID:    doc.ID,
		DocumentTitle: doc.Title,
		InvitedBy:     inviterName,
		Permission:    level.String(),
		Message:       req.Message,
	})

	return &InviteResult{
		Email:   invitee.Email,
		User:    invited,
		Message: fmt.Sprintf("Invitation sent to %s", invitee.Email),
	}, nil
}

// ChangePermission rewrites an existing collaborator edge.
func (s *DocumentService) ChangePermission(ctx context.Context, user model.User, req model.PermissionRequest) error {
	if req.DocID == "" || req.UserID == "" {
		return validation("documentId and userId are required")
	}
	level, err := permission.ParseRole(req.Role)
	if err != nil {
		return err
	}
	decision, err := s.resolver.Require(ctx, req.DocID, user.ID, permission.ActionManagePermissions)
	if err != nil {
		return err
	}
	if req.UserID == decision.Document.OwnerID {
		return validation("the owner's access cannot be changed")
	}
	edge, err := s.Repo.GetCollaborator(ctx, req.DocID, req.UserID)
	if err != nil {
		return err
	}
	edge.Permission = level.String()
	if err := s.Repo.UpsertCollaborator(ctx, edge); err != nil {
		return err
	}

	s.notify.Broadcast(req.DocID, EventPermissionChanged, PermissionChanged{
		DocumentID: req.DocID, UserID: req.UserID, Permission: level.String(), ChangedBy: user.ID,
	})
	return nil
}

// RemoveCollaborator drops an edge. Admins may remove anyone; a collaborator
// may remove themselves.
func (s *DocumentService) RemoveCollaborator(ctx context.Context, user model.User, docID, targetID string) error {
	if docID == "" || targetID == "" {
		return validation("documentId and userId are required")
	}
	decision, err := s.resolver.Resolve(ctx, docID, user.ID)
	if err != nil {
		return err
	}
	if targetID != user.ID && !decision.Can(permission.ActionManagePermissions) {
		return denied("remove collaborator from " + docID)
	}
	if targetID == decision.Document.OwnerID {
		return validation("the owner cannot be removed")
	}
	if err := s.Repo.RemoveCollaborator(ctx, docID, targetID); err != nil {
		return err
	}

	s.notify.Broadcast(docID, EventCollaboratorRemoved, CollaboratorRemoved{
		DocumentID: docID, UserID: targetID, RemovedBy: user.ID,
	})
	return nil
}

func (s *DocumentService) AcceptInvitation(ctx context.Context, user model.User, docID string) error {
	if docID == "" {
		return validation("document id is required")
	}
	return s.Repo.AcceptInvitation(ctx, docID, user.ID)
}

// DeleteDocument is owner-only. Live sessions for the document are closed.
func (s *DocumentService) DeleteDocument(ctx context.Context, user model.User, docID string) error {
	if docID == "" {
		return validation("document id is required")
	}
	decision, err := s.resolver.Resolve(ctx, docID, user.ID)
	if err != nil {
		return err
	}
	if decision.Level != permission.Owner {
		return denied("delete document " + docID)
	}
	if err := s.Repo.DeleteDocument(ctx, docID); err != nil {
		return err
	}
	s.notify.CloseDocument(docID)
	return nil
}

const snippetLength = 100

// getSnippetFromContent accepts either plain text or a Quill delta.
func getSnippetFromContent(content string) string {
	type quillOp struct {
		Insert interface{} `json:"insert"`
	}
	type quillDelta struct {
		Ops []quillOp `json:"ops"`
	}

	text := content
	var delta quillDelta
	if strings.HasPrefix(strings.TrimSpace(content), "{") && json.Unmarshal([]byte(content), &delta) == nil {
		var sb strings.Builder
		for _, op := range delta.Ops {
			if str, ok := op.Insert.(string); ok {
				sb.WriteString(str)
			}
			if sb.Len() > snippetLength {
				break
			}
		}
		text = sb.String()
	}

	res := strings.TrimSpace(text)
	res = strings.ReplaceAll(res, "\n", " ")
	if r := []rune(res); len(r) > snippetLength {
		return string(r[:snippetLength]) + "..."
	}
	return res
}
