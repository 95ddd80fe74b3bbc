package service

import (
	"context"
	"testing"

	"naskahcollab/internal/document/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddCommentDeniedWithoutEdge(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.comments.AddComment(ctx, stranger, model.CommentRequest{DocID: f.docID, Content: "hi"})
	assert.ErrorIs(t, err, model.ErrAccessDenied)

	list, err := f.comments.List(ctx, owner, f.docID)
	require.NoError(t, err)
	assert.Empty(t, list.Comments)
	assert.Empty(t, f.notify.names())
}

func TestAddCommentValidation(t *testing.T) {
	f := setup(t)
	_, err := f.comments.AddComment(context.Background(), owner, model.CommentRequest{DocID: f.docID, Content: "   "})
	assert.ErrorIs(t, err, model.ErrValidation)
	assert.Empty(t, f.notify.names())
}

func TestAddCommentHydratesAuthor(t *testing.T) {
	f := setup(t)
	c, err := f.comments.AddComment(context.Background(), commenter, model.CommentRequest{
		DocID: f.docID, Content: "typo here", Position: []byte(`{"from":1,"to":4}`),
	})
	require.NoError(t, err)
	require.NotNil(t, c.Author)
	assert.Equal(t, commenter.Name, c.Author.Name)
	assert.False(t, c.IsResolved)
	assert.NotNil(t, c.Replies)

	require.Len(t, f.notify.broadcast, 1)
	assert.Equal(t, f.docID, f.notify.broadcast[0].target)
	assert.Equal(t, EventCommentAdded, f.notify.broadcast[0].name)
}

func TestReply(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c, err := f.comments.AddComment(ctx, owner, model.CommentRequest{DocID: f.docID, Content: "question"})
	require.NoError(t, err)

	r, err := f.comments.Reply(ctx, commenter, model.ReplyRequest{CommentID: c.ID, Content: "answer"})
	require.NoError(t, err)
	assert.Equal(t, c.ID, r.CommentID)

	_, err = f.comments.Reply(ctx, stranger, model.ReplyRequest{CommentID: c.ID, Content: "x"})
	assert.ErrorIs(t, err, model.ErrAccessDenied)
	_, err = f.comments.Reply(ctx, owner, model.ReplyRequest{CommentID: "missing", Content: "x"})
	assert.ErrorIs(t, err, model.ErrNotFound)

	assert.Equal(t, []string{EventCommentAdded, EventCommentReplied}, f.notify.names())
}

func TestResolveRules(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c, err := f.comments.AddComment(ctx, owner, model.CommentRequest{DocID: f.docID, Content: "fix"})
	require.NoError(t, err)

	// commenter is neither author nor editor
	_, err = f.comments.Resolve(ctx, commenter, model.ResolveRequest{CommentID: c.ID, Resolved: true})
	assert.ErrorIs(t, err, model.ErrAccessDenied)

	evt, err := f.comments.Resolve(ctx, editor, model.ResolveRequest{CommentID: c.ID, Resolved: true})
	require.NoError(t, err)
	assert.True(t, evt.IsResolved)
	require.NotNil(t, evt.ResolvedAt)

	stored, err := f.repo.GetComment(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsResolved)
	assert.NotNil(t, stored.ResolvedAt)

	evt, err = f.comments.Resolve(ctx, owner, model.ResolveRequest{CommentID: c.ID, Resolved: false})
	require.NoError(t, err)
	assert.Nil(t, evt.ResolvedAt)
	stored, err = f.repo.GetComment(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsResolved)
	assert.Nil(t, stored.ResolvedAt)
}

func TestAuthorCanResolveOwnComment(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c, err := f.comments.AddComment(ctx, commenter, model.CommentRequest{DocID: f.docID, Content: "mine"})
	require.NoError(t, err)

	_, err = f.comments.Resolve(ctx, commenter, model.ResolveRequest{CommentID: c.ID, Resolved: true})
	assert.NoError(t, err)
}

func TestUpdateAuthorOrOwnerOnly(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c, err := f.comments.AddComment(ctx, commenter, model.CommentRequest{DocID: f.docID, Content: "draft"})
	require.NoError(t, err)

	_, err = f.comments.Update(ctx, editor, model.UpdateCommentRequest{CommentID: c.ID, Content: "hijack"})
	assert.ErrorIs(t, err, model.ErrAccessDenied)

	evt, err := f.comments.Update(ctx, commenter, model.UpdateCommentRequest{CommentID: c.ID, Content: "final"})
	require.NoError(t, err)
	assert.Equal(t, "final", evt.Content)

	_, err = f.comments.Update(ctx, owner, model.UpdateCommentRequest{CommentID: c.ID, Content: "moderated"})
	require.NoError(t, err)

	stored, err := f.repo.GetComment(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "moderated", stored.Content)
}

func TestAuthorLosesRightsWhenEdgeRemoved(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c, err := f.comments.AddComment(ctx, commenter, model.CommentRequest{DocID: f.docID, Content: "draft"})
	require.NoError(t, err)
	require.NoError(t, f.repo.RemoveCollaborator(ctx, f.docID, commenter.ID))

	_, err = f.comments.Delete(ctx, commenter, c.ID)
	assert.ErrorIs(t, err, model.ErrAccessDenied)
}

func TestDeleteCascadesReplies(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c, err := f.comments.AddComment(ctx, commenter, model.CommentRequest{DocID: f.docID, Content: "C1"})
	require.NoError(t, err)
	for _, text := range []string{"R1", "R2"} {
		_, err := f.comments.Reply(ctx, editor, model.ReplyRequest{CommentID: c.ID, Content: text})
		require.NoError(t, err)
	}

	_, err = f.comments.Delete(ctx, editor, c.ID)
	assert.ErrorIs(t, err, model.ErrAccessDenied)

	evt, err := f.comments.Delete(ctx, owner, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, evt.CommentID)
	assert.Equal(t, 2, evt.RepliesRemoved)

	_, err = f.repo.GetComment(ctx, c.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.Zero(t, f.repo.ReplyCount(c.ID))

	last := f.notify.broadcast[len(f.notify.broadcast)-1]
	assert.Equal(t, EventCommentDeleted, last.name)
	assert.Equal(t, c.ID, last.payload.(CommentDeleted).CommentID)
}

func TestListOrderAndStats(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	first, err := f.comments.AddComment(ctx, owner, model.CommentRequest{DocID: f.docID, Content: "one"})
	require.NoError(t, err)
	_, err = f.comments.AddComment(ctx, owner, model.CommentRequest{DocID: f.docID, Content: "two"})
	require.NoError(t, err)
	_, err = f.comments.Reply(ctx, owner, model.ReplyRequest{CommentID: first.ID, Content: "re"})
	require.NoError(t, err)
	_, err = f.comments.Resolve(ctx, owner, model.ResolveRequest{CommentID: first.ID, Resolved: true})
	require.NoError(t, err)

	list, err := f.comments.List(ctx, commenter, f.docID)
	require.NoError(t, err)
	require.Len(t, list.Comments, 2)
	assert.Equal(t, "one", list.Comments[0].Content)
	require.Len(t, list.Comments[0].Replies, 1)
	assert.Equal(t, "re", list.Comments[0].Replies[0].Content)
	assert.Equal(t, model.CommentStats{Total: 2, Resolved: 1, Unresolved: 1}, list.Stats)

	_, err = f.comments.List(ctx, stranger, f.docID)
	assert.ErrorIs(t, err, model.ErrAccessDenied)
}
