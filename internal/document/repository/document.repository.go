package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"naskahcollab/internal/document/model"
	"naskahcollab/pkg/logger"

	"github.com/google/uuid"
)

//go:embed schema.sql
var schema string

// DocumentRepository is the Postgres Store.
type DocumentRepository struct {
	DB *sql.DB
}

var _ Store = (*DocumentRepository)(nil)

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{DB: db}
}

// EnsureSchema creates the tables if they do not exist yet.
func (r *DocumentRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (r *DocumentRepository) Ping(ctx context.Context) error {
	return r.DB.PingContext(ctx)
}

func wrapErr(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, model.ErrNotFound)
	}
	logger.Sugar.Errorf("Failed to %s: %v", what, err)
	return fmt.Errorf("%s: %w: %v", what, model.ErrPersistence, err)
}

func (r *DocumentRepository) GetUser(ctx context.Context, userID string) (*model.User, error) {
	var u model.User
	err := r.DB.QueryRowContext(ctx, "SELECT id, name, email FROM users WHERE id = $1", userID).
		Scan(&u.ID, &u.Name, &u.Email)
	if err != nil {
		return nil, wrapErr(err, "get user "+userID)
	}
	return &u, nil
}

func (r *DocumentRepository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	err := r.DB.QueryRowContext(ctx, "SELECT id, name, email FROM users WHERE lower(email) = lower($1)", email).
		Scan(&u.ID, &u.Name, &u.Email)
	if err != nil {
		return nil, wrapErr(err, "get user by email "+email)
	}
	return &u, nil
}

func (r *DocumentRepository) GetDocument(ctx context.Context, docID string) (*model.Document, error) {
	var d model.Document
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, title, content, owner_id, created_at, updated_at FROM documents WHERE id = $1", docID).
		Scan(&d.ID, &d.Title, &d.Content, &d.OwnerID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, wrapErr(err, "get document "+docID)
	}
	return &d, nil
}

func (r *DocumentRepository) CreateDocument(ctx context.Context, doc *model.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.Title == "" {
		doc.Title = model.DefaultTitle
	}
	err := r.DB.QueryRowContext(ctx,
		`INSERT INTO documents (id, title, content, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING created_at, updated_at`,
		doc.ID, doc.Title, doc.Content, doc.OwnerID).Scan(&doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return wrapErr(err, "create document "+doc.ID)
	}
	return nil
}

func (r *DocumentRepository) UpdateContent(ctx context.Context, docID, content string) (time.Time, error) {
	var updatedAt time.Time
	err := r.DB.QueryRowContext(ctx,
		`UPDATE documents SET content = $1, updated_at = NOW() WHERE id = $2 RETURNING updated_at`,
		content, docID).Scan(&updatedAt)
	if err != nil {
		return time.Time{}, wrapErr(err, "update content for doc "+docID)
	}
	return updatedAt, nil
}

func (r *DocumentRepository) UpdateTitle(ctx context.Context, docID, title string) (time.Time, error) {
	var updatedAt time.Time
	err := r.DB.QueryRowContext(ctx,
		`UPDATE documents SET title = $1, updated_at = NOW() WHERE id = $2 RETURNING updated_at`,
		title, docID).Scan(&updatedAt)
	if err != nil {
		return time.Time{}, wrapErr(err, "update title for doc "+docID)
	}
	return updatedAt, nil
}

func (r *DocumentRepository) SaveDocument(ctx context.Context, docID, title, content, userID string) (time.Time, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return time.Time{}, wrapErr(err, "begin save for doc "+docID)
	}
	defer tx.Rollback()

	var updatedAt time.Time
	err = tx.QueryRowContext(ctx,
		`UPDATE documents SET title = $1, content = $2, updated_at = NOW() WHERE id = $3 RETURNING updated_at`,
		title, content, docID).Scan(&updatedAt)
	if err != nil {
		return time.Time{}, wrapErr(err, "save doc "+docID)
	}
	if err := insertActivity(ctx, tx, docID, userID, "save"); err != nil {
		return time.Time{}, wrapErr(err, "log save activity for doc "+docID)
	}
	if err := tx.Commit(); err != nil {
		return time.Time{}, wrapErr(err, "commit save for doc "+docID)
	}
	return updatedAt, nil
}

func insertActivity(ctx context.Context, tx *sql.Tx, docID, userID, action string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO document_activity (id, document_id, user_id, action, created_at) VALUES ($1, $2, $3, $4, NOW())`,
		uuid.NewString(), docID, userID, action)
	return err
}

// DeleteDocument clears replies first; tables created without the replies
// cascade would otherwise reject the delete.
func (r *DocumentRepository) DeleteDocument(ctx context.Context, docID string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr(err, "begin delete doc "+docID)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"DELETE FROM comment_replies WHERE comment_id IN (SELECT id FROM comments WHERE document_id = $1)", docID)
	if err != nil {
		return wrapErr(err, "delete replies of doc "+docID)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE id = $1", docID)
	if err != nil {
		return wrapErr(err, "delete doc "+docID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete doc %s: %w", docID, model.ErrNotFound)
	}
	if err := tx.Commit(); err != nil {
		return wrapErr(err, "commit delete doc "+docID)
	}
	return nil
}

func (r *DocumentRepository) ListDocumentsByUser(ctx context.Context, userID string) ([]model.Document, error) {
	query := `
		SELECT id, title, content, owner_id, created_at, updated_at FROM documents WHERE owner_id = $1
		UNION
		SELECT d.id, d.title, d.content, d.owner_id, d.created_at, d.updated_at FROM documents d JOIN collaborators c ON d.id = c.document_id WHERE c.user_id = $1
		ORDER BY updated_at DESC`
	rows, err := r.DB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, wrapErr(err, "get documents for user "+userID)
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		var d model.Document
		if err := rows.Scan(&d.ID, &d.Title, &d.Content, &d.OwnerID, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, wrapErr(err, "scan document row")
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(err, "iterate documents for user "+userID)
	}
	return docs, nil
}

func (r *DocumentRepository) GetCollaborator(ctx context.Context, docID, userID string) (*model.Collaborator, error) {
	c := model.Collaborator{DocumentID: docID, UserID: userID}
	var acceptedAt sql.NullTime
	err := r.DB.QueryRowContext(ctx,
		`SELECT permission, invited_by, invited_at, accepted_at FROM collaborators WHERE document_id = $1 AND user_id = $2`,
		docID, userID).Scan(&c.Permission, &c.InvitedBy, &c.InvitedAt, &acceptedAt)
	if err != nil {
		return nil, wrapErr(err, fmt.Sprintf("get collaborator %s on doc %s", userID, docID))
	}
	if acceptedAt.Valid {
		c.AcceptedAt = &acceptedAt.Time
	}
	return &c, nil
}

func (r *DocumentRepository) UpsertCollaborator(ctx context.Context, c *model.Collaborator) error {
	err := r.DB.QueryRowContext(ctx,
		`INSERT INTO collaborators (document_id, user_id, permission, invited_by, invited_at) VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (document_id, user_id) DO UPDATE SET permission = $3
		RETURNING invited_at`,
		c.DocumentID, c.UserID, c.Permission, c.InvitedBy).Scan(&c.InvitedAt)
	if err != nil {
		return wrapErr(err, fmt.Sprintf("add collaborator %s to doc %s", c.UserID, c.DocumentID))
	}
	return nil
}

func (r *DocumentRepository) RemoveCollaborator(ctx context.Context, docID, userID string) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM collaborators WHERE document_id = $1 AND user_id = $2", docID, userID)
	if err != nil {
		return wrapErr(err, fmt.Sprintf("remove collaborator %s from doc %s", userID, docID))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("remove collaborator %s: %w", userID, model.ErrNotFound)
	}
	return nil
}

func (r *DocumentRepository) AcceptInvitation(ctx context.Context, docID, userID string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE collaborators SET accepted_at = NOW() WHERE document_id = $1 AND user_id = $2 AND accepted_at IS NULL",
		docID, userID)
	if err != nil {
		return wrapErr(err, fmt.Sprintf("accept invitation for %s on doc %s", userID, docID))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("pending invitation for %s on doc %s: %w", userID, docID, model.ErrNotFound)
	}
	return nil
}

func (r *DocumentRepository) ListMembers(ctx context.Context, docID string) ([]model.CollaboratorInfo, error) {
	query := `
		SELECT u.id, u.name, u.email, 'owner' AS permission, TRUE AS accepted FROM documents d JOIN users u ON d.owner_id = u.id WHERE d.id = $1
		UNION ALL
		SELECT u.id, u.name, u.email, c.permission, c.accepted_at IS NOT NULL FROM collaborators c JOIN users u ON c.user_id = u.id WHERE c.document_id = $1
	`
	rows, err := r.DB.QueryContext(ctx, query, docID)
	if err != nil {
		return nil, wrapErr(err, "get document members for doc "+docID)
	}
	defer rows.Close()

	var members []model.CollaboratorInfo
	for rows.Next() {
		var c model.CollaboratorInfo
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Permission, &c.Accepted); err != nil {
			return nil, wrapErr(err, "scan member row")
		}
		members = append(members, c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(err, "iterate members of doc "+docID)
	}
	return members, nil
}

func (r *DocumentRepository) CreateComment(ctx context.Context, c *model.Comment) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	// lib/pq wants a string for JSONB, not []byte
	var position interface{}
	if len(c.Position) > 0 {
		position = string(c.Position)
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr(err, "begin add comment")
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO comments (id, document_id, user_id, content, position, is_resolved, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, NOW(), NOW())
		RETURNING created_at, updated_at`,
		c.ID, c.DocumentID, c.UserID, c.Content, position,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return wrapErr(err, "add comment to doc "+c.DocumentID)
	}
	if err := insertActivity(ctx, tx, c.DocumentID, c.UserID, "comment"); err != nil {
		return wrapErr(err, "log comment activity for doc "+c.DocumentID)
	}
	if err := tx.Commit(); err != nil {
		return wrapErr(err, "commit comment")
	}
	c.IsResolved = false
	return nil
}

func (r *DocumentRepository) GetComment(ctx context.Context, commentID string) (*model.Comment, error) {
	var c model.Comment
	var position []byte
	var resolvedAt sql.NullTime
	err := r.DB.QueryRowContext(ctx, `
		SELECT id, document_id, user_id, content, position, is_resolved, resolved_at, created_at, updated_at
		FROM comments WHERE id = $1`, commentID).
		Scan(&c.ID, &c.DocumentID, &c.UserID, &c.Content, &position, &c.IsResolved, &resolvedAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, wrapErr(err, "get comment "+commentID)
	}
	if len(position) > 0 {
		c.Position = json.RawMessage(position)
	}
	if resolvedAt.Valid {
		c.ResolvedAt = &resolvedAt.Time
	}
	return &c, nil
}

func (r *DocumentRepository) UpdateCommentContent(ctx context.Context, commentID, content string) (time.Time, error) {
	var updatedAt time.Time
	err := r.DB.QueryRowContext(ctx,
		`UPDATE comments SET content = $1, updated_at = NOW() WHERE id = $2 RETURNING updated_at`,
		content, commentID).Scan(&updatedAt)
	if err != nil {
		return time.Time{}, wrapErr(err, "update comment "+commentID)
	}
	return updatedAt, nil
}

func (r *DocumentRepository) SetCommentResolved(ctx context.Context, commentID string, resolvedAt *time.Time) (time.Time, error) {
	var updatedAt time.Time
	err := r.DB.QueryRowContext(ctx,
		`UPDATE comments SET is_resolved = $1, resolved_at = $2, updated_at = NOW() WHERE id = $3 RETURNING updated_at`,
		resolvedAt != nil, resolvedAt, commentID).Scan(&updatedAt)
	if err != nil {
		return time.Time{}, wrapErr(err, "resolve comment "+commentID)
	}
	return updatedAt, nil
}

func (r *DocumentRepository) DeleteComment(ctx context.Context, commentID string) (int, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, wrapErr(err, "begin delete comment")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM comment_replies WHERE comment_id = $1", commentID)
	if err != nil {
		return 0, wrapErr(err, "delete replies of comment "+commentID)
	}
	replies, _ := res.RowsAffected()

	res, err = tx.ExecContext(ctx, "DELETE FROM comments WHERE id = $1", commentID)
	if err != nil {
		return 0, wrapErr(err, "delete comment "+commentID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, fmt.Errorf("delete comment %s: %w", commentID, model.ErrNotFound)
	}
	if err := tx.Commit(); err != nil {
		return 0, wrapErr(err, "commit delete comment")
	}
	return int(replies), nil
}

func (r *DocumentRepository) CreateReply(ctx context.Context, reply *model.Reply) error {
	if reply.ID == "" {
		reply.ID = uuid.NewString()
	}
	err := r.DB.QueryRowContext(ctx, `
		INSERT INTO comment_replies (id, comment_id, author_id, content, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING created_at, updated_at`,
		reply.ID, reply.CommentID, reply.AuthorID, reply.Content,
	).Scan(&reply.CreatedAt, &reply.UpdatedAt)
	if err != nil {
		return wrapErr(err, "reply to comment "+reply.CommentID)
	}
	return nil
}

func (r *DocumentRepository) ListComments(ctx context.Context, docID string) ([]model.Comment, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT c.id, c.document_id, c.user_id, c.content, c.position, c.is_resolved, c.resolved_at, c.created_at, c.updated_at,
			COALESCE(u.name, ''), COALESCE(u.email, '')
		FROM comments c LEFT JOIN users u ON u.id = c.user_id
		WHERE c.document_id = $1 ORDER BY c.created_at ASC`, docID)
	if err != nil {
		return nil, wrapErr(err, "get comments for doc "+docID)
	}
	defer rows.Close()

	comments := []model.Comment{}
	index := make(map[string]int)
	for rows.Next() {
		var c model.Comment
		var position []byte
		var resolvedAt sql.NullTime
		author := model.User{}
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.UserID, &c.Content, &position, &c.IsResolved, &resolvedAt,
			&c.CreatedAt, &c.UpdatedAt, &author.Name, &author.Email); err != nil {
			return nil, wrapErr(err, "scan comment row")
		}
		if len(position) > 0 {
			c.Position = json.RawMessage(position)
		}
		if resolvedAt.Valid {
			c.ResolvedAt = &resolvedAt.Time
		}
		author.ID = c.UserID
		c.Author = &author
		c.Replies = []model.Reply{}
		index[c.ID] = len(comments)
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(err, "iterate comments")
	}

	replyRows, err := r.DB.QueryContext(ctx, `
		SELECT r.id, r.comment_id, r.author_id, r.content, r.created_at, r.updated_at,
			COALESCE(u.name, ''), COALESCE(u.email, '')
		FROM comment_replies r JOIN comments c ON c.id = r.comment_id LEFT JOIN users u ON u.id = r.author_id
		WHERE c.document_id = $1 ORDER BY r.created_at ASC`, docID)
	if err != nil {
		return nil, wrapErr(err, "get replies for doc "+docID)
	}
	defer replyRows.Close()

	for replyRows.Next() {
		var reply model.Reply
		author := model.User{}
		if err := replyRows.Scan(&reply.ID, &reply.CommentID, &reply.AuthorID, &reply.Content,
			&reply.CreatedAt, &reply.UpdatedAt, &author.Name, &author.Email); err != nil {
			return nil, wrapErr(err, "scan reply row")
		}
		author.ID = reply.AuthorID
		reply.Author = &author
		if i, ok := index[reply.CommentID]; ok {
			comments[i].Replies = append(comments[i].Replies, reply)
		}
	}
	return comments, replyRows.Err()
}
