package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"naskahcollab/internal/document/model"
	"naskahcollab/internal/document/repository"
	"naskahcollab/internal/email"
	"naskahcollab/internal/permission"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type event struct {
	target  string
	name    string
	payload any
}

type recordingNotifier struct {
	mu        sync.Mutex
	broadcast []event
	direct    []event
	closed    []string
	online    map[string]bool
}

func (n *recordingNotifier) Broadcast(docID, name string, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.broadcast = append(n.broadcast, event{target: docID, name: name, payload: payload})
}

func (n *recordingNotifier) SendToUser(userID, name string, payload any) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.direct = append(n.direct, event{target: userID, name: name, payload: payload})
	return n.online[userID]
}

func (n *recordingNotifier) CloseDocument(docID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = append(n.closed, docID)
}

func (n *recordingNotifier) names() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.broadcast))
	for _, e := range n.broadcast {
		out = append(out, e.name)
	}
	return out
}

type fakeMailer struct {
	sent []email.Invitation
	err  error
}

func (m *fakeMailer) SendInvitation(_ context.Context, inv email.Invitation) error {
	m.sent = append(m.sent, inv)
	return m.err
}

var (
	owner     = model.User{ID: "u1", Name: "Ana", Email: "ana@example.com"}
	stranger  = model.User{ID: "u2", Name: "Budi", Email: "budi@example.com"}
	invitee   = model.User{ID: "u3", Name: "Citra", Email: "citra@example.com"}
	commenter = model.User{ID: "u4", Name: "Dewi", Email: "dewi@example.com"}
	editor    = model.User{ID: "u5", Name: "Eka", Email: "eka@example.com"}
)

type fixture struct {
	repo     *repository.MemoryRepository
	notify   *recordingNotifier
	mailer   *fakeMailer
	docs     *DocumentService
	comments *CommentService
	docID    string
}

func setup(t *testing.T) *fixture {
	t.Helper()
	repo := repository.NewMemoryRepository()
	for _, u := range []model.User{owner, stranger, invitee, commenter, editor} {
		repo.AddUser(u)
	}
	n := &recordingNotifier{online: map[string]bool{}}
	m := &fakeMailer{}
	f := &fixture{
		repo:     repo,
		notify:   n,
		mailer:   m,
		docs:     NewDocumentService(repo, n, m),
		comments: NewCommentService(repo, n),
	}

	ctx := context.Background()
	docID, err := f.docs.CreateDocument(ctx, owner.ID, "")
	require.NoError(t, err)
	f.docID = docID
	require.NoError(t, repo.UpsertCollaborator(ctx, &model.Collaborator{DocumentID: docID, UserID: commenter.ID, Permission: "comment"}))
	require.NoError(t, repo.UpsertCollaborator(ctx, &model.Collaborator{DocumentID: docID, UserID: editor.ID, Permission: "edit"}))
	return f
}

func TestCreateDocumentDefaultsTitle(t *testing.T) {
	f := setup(t)
	doc, err := f.repo.GetDocument(context.Background(), f.docID)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultTitle, doc.Title)
	assert.Equal(t, "", doc.Content)
	assert.Equal(t, owner.ID, doc.OwnerID)
}

func TestCreateDocumentUnknownOwner(t *testing.T) {
	f := setup(t)
	_, err := f.docs.CreateDocument(context.Background(), "ghost", "Notes")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestListDocumentsSnippetAndRoles(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, err := f.repo.UpdateContent(ctx, f.docID, `{"ops":[{"insert":"Hello\nworld"}]}`)
	require.NoError(t, err)

	docs, err := f.docs.ListDocuments(ctx, editor.ID)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Hello world", docs[0].Snippet)
	assert.False(t, docs[0].IsOwner)

	roles := map[string]string{}
	for _, m := range docs[0].Collab {
		roles[m.ID] = m.Role
	}
	assert.Equal(t, map[string]string{owner.ID: "owner", commenter.ID: "commenter", editor.ID: "editor"}, roles)
}

func TestGetSnippetFromContent(t *testing.T) {
	assert.Equal(t, "plain text", getSnippetFromContent("  plain\ntext "))
	assert.Equal(t, "", getSnippetFromContent(""))

	long := make([]rune, 150)
	for i := range long {
		long[i] = 'a'
	}
	got := getSnippetFromContent(string(long))
	assert.Len(t, []rune(got), snippetLength+3)
}

func TestInviteDispatchesMailAndGrantsEdit(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	res, err := f.docs.Invite(ctx, owner, model.InviteRequest{
		DocID: f.docID, Email: invitee.Email, Role: "editor", Message: "have a look",
	})
	require.NoError(t, err)
	assert.Equal(t, invitee.Email, res.Email)
	assert.Equal(t, invitee.ID, res.User.ID)

	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, invitee.Email, f.mailer.sent[0].To)
	assert.Equal(t, "edit", f.mailer.sent[0].Permission)
	assert.Equal(t, "have a look", f.mailer.sent[0].Message)

	d, err := permission.NewResolver(f.repo).Resolve(ctx, f.docID, invitee.ID)
	require.NoError(t, err)
	assert.Equal(t, permission.Edit, d.Level)

	assert.Contains(t, f.notify.names(), EventUserInvited)
	require.Len(t, f.notify.direct, 1)
	assert.Equal(t, invitee.ID, f.notify.direct[0].target)
	assert.Equal(t, EventInvitationReceived, f.notify.direct[0].name)
}

func TestInviteMailFailureIsNotFatal(t *testing.T) {
	f := setup(t)
	f.mailer.err = errors.New("smtp down")

	_, err := f.docs.Invite(context.Background(), owner, model.InviteRequest{DocID: f.docID, Email: invitee.Email, Role: "view"})
	require.NoError(t, err)
	assert.Len(t, f.mailer.sent, 1)
}

func TestInviteFailures(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	cases := []struct {
		name    string
		inviter model.User
		req     model.InviteRequest
		want    error
	}{
		{name: "missing email", inviter: owner, req: model.InviteRequest{DocID: f.docID, Role: "edit"}, want: model.ErrValidation},
		{name: "missing role", inviter: owner, req: model.InviteRequest{DocID: f.docID, Email: invitee.Email}, want: model.ErrValidation},
		{name: "bad role", inviter: owner, req: model.InviteRequest{DocID: f.docID, Email: invitee.Email, Role: "god"}, want: model.ErrValidation},
		{name: "editor cannot invite", inviter: editor, req: model.InviteRequest{DocID: f.docID, Email: invitee.Email, Role: "view"}, want: model.ErrAccessDenied},
		{name: "unknown email", inviter: owner, req: model.InviteRequest{DocID: f.docID, Email: "nobody@example.com", Role: "view"}, want: model.ErrNotFound},
		{name: "owner email", inviter: owner, req: model.InviteRequest{DocID: f.docID, Email: owner.Email, Role: "view"}, want: model.ErrValidation},
		{name: "missing document", inviter: owner, req: model.InviteRequest{DocID: "nope", Email: invitee.Email, Role: "view"}, want: model.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.docs.Invite(ctx, tc.inviter, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Empty(t, f.mailer.sent)
	assert.Empty(t, f.notify.names())
}

func TestChangePermissionAndRemove(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	err := f.docs.ChangePermission(ctx, editor, model.PermissionRequest{DocID: f.docID, UserID: commenter.ID, Role: "edit"})
	assert.ErrorIs(t, err, model.ErrAccessDenied)

	require.NoError(t, f.docs.ChangePermission(ctx, owner, model.PermissionRequest{DocID: f.docID, UserID: commenter.ID, Role: "admin"}))
	edge, err := f.repo.GetCollaborator(ctx, f.docID, commenter.ID)
	require.NoError(t, err)
	assert.Equal(t, "admin", edge.Permission)

	err = f.docs.ChangePermission(ctx, owner, model.PermissionRequest{DocID: f.docID, UserID: owner.ID, Role: "view"})
	assert.ErrorIs(t, err, model.ErrValidation)

	// the promoted admin may now remove the editor
	require.NoError(t, f.docs.RemoveCollaborator(ctx, commenter, f.docID, editor.ID))
	_, err = f.repo.GetCollaborator(ctx, f.docID, editor.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)

	assert.Equal(t, []string{EventPermissionChanged, EventCollaboratorRemoved}, f.notify.names())
}

func TestRemoveSelf(t *testing.T) {
	f := setup(t)
	require.NoError(t, f.docs.RemoveCollaborator(context.Background(), editor, f.docID, editor.ID))
	err := f.docs.RemoveCollaborator(context.Background(), stranger, f.docID, commenter.ID)
	assert.ErrorIs(t, err, model.ErrAccessDenied)
}

func TestAcceptInvitation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	require.NoError(t, f.docs.AcceptInvitation(ctx, editor, f.docID))
	assert.ErrorIs(t, f.docs.AcceptInvitation(ctx, editor, f.docID), model.ErrNotFound)

	members, err := f.docs.Members(ctx, editor, f.docID)
	require.NoError(t, err)
	for _, m := range members {
		if m.ID == editor.ID {
			assert.True(t, m.Accepted)
		}
	}
	_, err = f.docs.Members(ctx, stranger, f.docID)
	assert.ErrorIs(t, err, model.ErrAccessDenied)
}

func TestDeleteDocumentOwnerOnly(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.docs.DeleteDocument(ctx, editor, f.docID), model.ErrAccessDenied)
	assert.Empty(t, f.notify.closed)

	require.NoError(t, f.docs.DeleteDocument(ctx, owner, f.docID))
	assert.Equal(t, []string{f.docID}, f.notify.closed)
	_, err := f.repo.GetDocument(ctx, f.docID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}
