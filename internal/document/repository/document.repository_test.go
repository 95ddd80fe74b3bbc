package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"naskahcollab/internal/document/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRepo(t *testing.T) (*DocumentRepository, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewDocumentRepository(db), mock
}

func TestGetDocumentNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, title, content, owner_id, created_at, updated_at FROM documents WHERE id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetDocument(context.Background(), "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDocumentPersistenceFailure(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("SELECT id, title, content").
		WithArgs("doc-1").
		WillReturnError(errors.New("connection reset"))

	_, err := repo.GetDocument(context.Background(), "doc-1")
	assert.ErrorIs(t, err, model.ErrPersistence)
	assert.NotErrorIs(t, err, model.ErrNotFound)
}

func TestCreateDocumentDefaultsTitle(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO documents")).
		WithArgs(sqlmock.AnyArg(), model.DefaultTitle, "", "user-1").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	doc := &model.Document{OwnerID: "user-1"}
	require.NoError(t, repo.CreateDocument(context.Background(), doc))
	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, model.DefaultTitle, doc.Title)
	assert.Equal(t, now, doc.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveDocumentWritesActivityInTransaction(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE documents SET title = $1, content = $2")).
		WithArgs("Plan", "Hello world", "doc-1").
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(now))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO document_activity")).
		WithArgs(sqlmock.AnyArg(), "doc-1", "user-1", "save").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	updatedAt, err := repo.SaveDocument(context.Background(), "doc-1", "Plan", "Hello world", "user-1")
	require.NoError(t, err)
	assert.Equal(t, now, updatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveDocumentRollsBackOnActivityFailure(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE documents SET title").
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))
	mock.ExpectExec("INSERT INTO document_activity").
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := repo.SaveDocument(context.Background(), "doc-1", "Plan", "x", "user-1")
	assert.ErrorIs(t, err, model.ErrPersistence)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteCommentCascadesReplies(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM comment_replies WHERE comment_id = $1")).
		WithArgs("c1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM comments WHERE id = $1")).
		WithArgs("c1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	removed, err := repo.DeleteComment(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteCommentMissing(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM comment_replies").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM comments").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.DeleteComment(context.Background(), "nope")
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateCommentPassesPositionAsString(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO comments")).
		WithArgs(sqlmock.AnyArg(), "doc-1", "user-1", "Nice intro", `{"index":3,"length":5}`).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	mock.ExpectExec("INSERT INTO document_activity").
		WithArgs(sqlmock.AnyArg(), "doc-1", "user-1", "comment").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	c := &model.Comment{DocumentID: "doc-1", UserID: "user-1", Content: "Nice intro", Position: []byte(`{"index":3,"length":5}`)}
	require.NoError(t, repo.CreateComment(context.Background(), c))
	assert.NotEmpty(t, c.ID)
	assert.False(t, c.IsResolved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListCommentsNestsReplies(t *testing.T) {
	repo, mock := newMockRepo(t)
	t0 := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM comments c LEFT JOIN users u")).
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "document_id", "user_id", "content", "position", "is_resolved", "resolved_at", "created_at", "updated_at", "name", "email",
		}).
			AddRow("c1", "doc-1", "u1", "first", nil, true, t0, t0, t0, "Ana", "ana@example.com").
			AddRow("c2", "doc-1", "u2", "second", []byte(`{"index":1}`), false, nil, t0.Add(time.Second), t0, "Budi", "budi@example.com"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM comment_replies r JOIN comments c")).
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "comment_id", "author_id", "content", "created_at", "updated_at", "name", "email",
		}).
			AddRow("r1", "c1", "u2", "agreed", t0, t0, "Budi", "budi@example.com").
			AddRow("r2", "c1", "u1", "thanks", t0, t0, "Ana", "ana@example.com"))

	comments, err := repo.ListComments(context.Background(), "doc-1")
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, "Ana", comments[0].Author.Name)
	require.NotNil(t, comments[0].ResolvedAt)
	require.Len(t, comments[0].Replies, 2)
	assert.Equal(t, "r1", comments[0].Replies[0].ID)
	assert.Equal(t, "Budi", comments[0].Replies[0].Author.Name)
	assert.Empty(t, comments[1].Replies)
	assert.JSONEq(t, `{"index":1}`, string(comments[1].Position))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCollaborator(t *testing.T) {
	repo, mock := newMockRepo(t)
	invited := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT permission, invited_by, invited_at, accepted_at FROM collaborators")).
		WithArgs("doc-1", "u3").
		WillReturnRows(sqlmock.NewRows([]string{"permission", "invited_by", "invited_at", "accepted_at"}).
			AddRow("edit", "u1", invited, nil))

	c, err := repo.GetCollaborator(context.Background(), "doc-1", "u3")
	require.NoError(t, err)
	assert.Equal(t, "edit", c.Permission)
	assert.Nil(t, c.AcceptedAt)

	mock.ExpectQuery("FROM collaborators").
		WithArgs("doc-1", "u9").
		WillReturnError(sql.ErrNoRows)
	_, err = repo.GetCollaborator(context.Background(), "doc-1", "u9")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestUpsertCollaborator(t *testing.T) {
	repo, mock := newMockRepo(t)
	invited := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (document_id, user_id) DO UPDATE SET permission = $3")).
		WithArgs("doc-1", "u3", "comment", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"invited_at"}).AddRow(invited))

	c := &model.Collaborator{DocumentID: "doc-1", UserID: "u3", Permission: "comment", InvitedBy: "u1"}
	require.NoError(t, repo.UpsertCollaborator(context.Background(), c))
	assert.Equal(t, invited, c.InvitedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetCommentResolvedClearsTimestamp(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE comments SET is_resolved = $1, resolved_at = $2")).
		WithArgs(false, nil, "c1").
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(now))

	_, err := repo.SetCommentResolved(context.Background(), "c1", nil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteDocumentRemovesRepliesFirst(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM comment_replies WHERE comment_id IN (SELECT id FROM comments WHERE document_id = $1)")).
		WithArgs("doc-1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM documents WHERE id = $1")).
		WithArgs("doc-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.DeleteDocument(context.Background(), "doc-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteDocumentMissing(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM comment_replies").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM documents").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.DeleteDocument(context.Background(), "nope")
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSchemaCascadesReplies(t *testing.T) {
	assert.Regexp(t, `comment_id TEXT NOT NULL REFERENCES comments\(id\) ON DELETE CASCADE`, schema)
}

func TestRowIterationErrorIsPersistence(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT id, title, content, owner_id").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "content", "owner_id", "created_at", "updated_at"}).
			AddRow("doc-1", "Plan", "", "user-1", time.Now(), time.Now()).
			RowError(0, errors.New("connection reset")))
	_, err := repo.ListDocumentsByUser(context.Background(), "user-1")
	assert.ErrorIs(t, err, model.ErrPersistence)

	mock.ExpectQuery("SELECT u.id, u.name, u.email").
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "permission", "accepted"}).
			AddRow("user-1", "Ana", "ana@example.com", "owner", true).
			RowError(0, errors.New("connection reset")))
	_, err = repo.ListMembers(context.Background(), "doc-1")
	assert.ErrorIs(t, err, model.ErrPersistence)

	assert.NoError(t, mock.ExpectationsWereMet())
}
