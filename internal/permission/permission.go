// Package permission resolves the effective access level of a user on a
// document from ownership plus the collaborator edge.
package permission

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"naskahcollab/internal/document/model"
)

type Level int

const (
	None Level = iota
	View
	Comment
	Edit
	Admin
	Owner
)

func (l Level) String() string {
	switch l {
	case View:
		return "view"
	case Comment:
		return "comment"
	case Edit:
		return "edit"
	case Admin:
		return "admin"
	case Owner:
		return "owner"
	default:
		return "none"
	}
}

// Role is the presence label shown next to a participant.
func (l Level) Role() string {
	switch l {
	case Owner:
		return "owner"
	case Admin, Edit:
		return "editor"
	case Comment:
		return "commenter"
	default:
		return "viewer"
	}
}

type Action string

const (
	ActionRead              Action = "read"
	ActionComment           Action = "comment"
	ActionResolve           Action = "resolve"
	ActionEdit              Action = "edit"
	ActionInvite            Action = "invite"
	ActionManagePermissions Action = "manage-permissions"
)

// minimum is the lowest level allowed to perform each action.
var minimum = map[Action]Level{
	ActionRead:              View,
	ActionComment:           Comment,
	ActionResolve:           Edit,
	ActionEdit:              Edit,
	ActionInvite:            Admin,
	ActionManagePermissions: Admin,
}

// Can reports whether level allows action. Unknown actions are denied.
func Can(level Level, action Action) bool {
	min, ok := minimum[action]
	if !ok {
		return false
	}
	return level >= min
}

// ParseRole accepts both permission names and their role aliases.
func ParseRole(role string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "view", "viewer", "reader":
		return View, nil
	case "comment", "commenter", "reviewer":
		return Comment, nil
	case "edit", "editor", "writer":
		return Edit, nil
	case "admin":
		return Admin, nil
	default:
		return None, fmt.Errorf("%w: unknown role %q", model.ErrValidation, role)
	}
}

// Effective computes the level from ownership and the (possibly nil) edge.
func Effective(ownerID, userID string, edge *model.Collaborator) Level {
	if userID == "" {
		return None
	}
	if ownerID == userID {
		return Owner
	}
	if edge == nil {
		return None
	}
	level, err := ParseRole(edge.Permission)
	if err != nil {
		return None
	}
	return level
}

// Source is the slice of the store the resolver reads.
type Source interface {
	GetDocument(ctx context.Context, docID string) (*model.Document, error)
	GetCollaborator(ctx context.Context, docID, userID string) (*model.Collaborator, error)
}

type Decision struct {
	Level    Level
	Document *model.Document
}

func (d Decision) Can(action Action) bool {
	return Can(d.Level, action)
}

type Resolver struct {
	src Source
}

func NewResolver(src Source) *Resolver {
	return &Resolver{src: src}
}

// Resolve loads the document and computes the caller's level. It returns
// model.ErrNotFound when the document does not exist.
func (r *Resolver) Resolve(ctx context.Context, docID, userID string) (Decision, error) {
	doc, err := r.src.GetDocument(ctx, docID)
	if err != nil {
		return Decision{}, err
	}
	if doc.OwnerID == userID {
		return Decision{Level: Owner, Document: doc}, nil
	}
	edge, err := r.src.GetCollaborator(ctx, docID, userID)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return Decision{}, err
	}
	return Decision{Level: Effective(doc.OwnerID, userID, edge), Document: doc}, nil
}

// Require resolves and fails with model.ErrAccessDenied if action is not allowed.
func (r *Resolver) Require(ctx context.Context, docID, userID string, action Action) (Decision, error) {
	d, err := r.Resolve(ctx, docID, userID)
	if err != nil {
		return d, err
	}
	if !d.Can(action) {
		return d, fmt.Errorf("%s on document %s: %w", action, docID, model.ErrAccessDenied)
	}
	return d, nil
}
