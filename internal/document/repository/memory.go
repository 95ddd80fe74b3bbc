package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"naskahcollab/internal/document/model"

	"github.com/google/uuid"
)

// MemoryRepository is an in-process Store used by the memory driver and tests.
type MemoryRepository struct {
	mu         sync.RWMutex
	users      map[string]model.User
	documents  map[string]model.Document
	collabs    map[string]map[string]model.Collaborator // docID -> userID -> edge
	comments   map[string]model.Comment
	replies    map[string]model.Reply
	activities []model.Activity
	now        func() time.Time
	last       time.Time
}

var _ Store = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:     make(map[string]model.User),
		documents: make(map[string]model.Document),
		collabs:   make(map[string]map[string]model.Collaborator),
		comments:  make(map[string]model.Comment),
		replies:   make(map[string]model.Reply),
		now:       time.Now,
	}
}

// AddUser registers an identity so it can own documents and be invited.
func (m *MemoryRepository) AddUser(u model.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

// Activities returns a copy of the activity log.
func (m *MemoryRepository) Activities() []model.Activity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.Activity(nil), m.activities...)
}

// ReplyCount reports how many replies are stored for a comment.
func (m *MemoryRepository) ReplyCount(commentID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, r := range m.replies {
		if r.CommentID == commentID {
			n++
		}
	}
	return n
}

// tick returns a strictly increasing timestamp so creation order is stable.
// Callers hold the write lock.
func (m *MemoryRepository) tick() time.Time {
	t := m.now().UTC()
	if !t.After(m.last) {
		t = m.last.Add(time.Microsecond)
	}
	m.last = t
	return t
}

func (m *MemoryRepository) logActivity(docID, userID, action string, at time.Time) {
	m.activities = append(m.activities, model.Activity{
		ID: uuid.NewString(), DocumentID: docID, UserID: userID, Action: action, CreatedAt: at,
	})
}

func notFound(what string) error {
	return fmt.Errorf("%s: %w", what, model.ErrNotFound)
}

func (m *MemoryRepository) GetUser(_ context.Context, userID string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, notFound("get user " + userID)
	}
	return &u, nil
}

func (m *MemoryRepository) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			u := u
			return &u, nil
		}
	}
	return nil, notFound("get user by email " + email)
}

func (m *MemoryRepository) GetDocument(_ context.Context, docID string) (*model.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.documents[docID]
	if !ok {
		return nil, notFound("get document " + docID)
	}
	return &d, nil
}

func (m *MemoryRepository) CreateDocument(_ context.Context, doc *model.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[doc.OwnerID]; !ok {
		return fmt.Errorf("create document: owner %s: %w", doc.OwnerID, model.ErrNotFound)
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if _, exists := m.documents[doc.ID]; exists {
		return fmt.Errorf("create document %s: %w: duplicate id", doc.ID, model.ErrPersistence)
	}
	if doc.Title == "" {
		doc.Title = model.DefaultTitle
	}
	now := m.tick()
	doc.CreatedAt, doc.UpdatedAt = now, now
	m.documents[doc.ID] = *doc
	return nil
}

func (m *MemoryRepository) UpdateContent(_ context.Context, docID, content string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.documents[docID]
	if !ok {
		return time.Time{}, notFound("update content for doc " + docID)
	}
	d.Content = content
	d.UpdatedAt = m.tick()
	m.documents[docID] = d
	return d.UpdatedAt, nil
}

func (m *MemoryRepository) UpdateTitle(_ context.Context, docID, title string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.documents[docID]
	if !ok {
		return time.Time{}, notFound("update title for doc " + docID)
	}
	d.Title = title
	d.UpdatedAt = m.tick()
	m.documents[docID] = d
	return d.UpdatedAt, nil
}

func (m *MemoryRepository) SaveDocument(_ context.Context, docID, title, content, userID string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.documents[docID]
	if !ok {
		return time.Time{}, notFound("save doc " + docID)
	}
	d.Title = title
	d.Content = content
	d.UpdatedAt = m.tick()
	m.documents[docID] = d
	m.logActivity(docID, userID, "save", d.UpdatedAt)
	return d.UpdatedAt, nil
}

func (m *MemoryRepository) DeleteDocument(_ context.Context, docID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.documents[docID]; !ok {
		return notFound("delete doc " + docID)
	}
	delete(m.documents, docID)
	delete(m.collabs, docID)
	for id, c := range m.comments {
		if c.DocumentID != docID {
			continue
		}
		for rid, r := range m.replies {
			if r.CommentID == id {
				delete(m.replies, rid)
			}
		}
		delete(m.comments, id)
	}
	return nil
}

func (m *MemoryRepository) ListDocumentsByUser(_ context.Context, userID string) ([]model.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var docs []model.Document
	for id, d := range m.documents {
		_, shared := m.collabs[id][userID]
		if d.OwnerID == userID || shared {
			docs = append(docs, d)
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].UpdatedAt.After(docs[j].UpdatedAt) })
	return docs, nil
}

func (m *MemoryRepository) GetCollaborator(_ context.Context, docID, userID string) (*model.Collaborator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collabs[docID][userID]
	if !ok {
		return nil, notFound(fmt.Sprintf("get collaborator %s on doc %s", userID, docID))
	}
	return &c, nil
}

func (m *MemoryRepository) UpsertCollaborator(_ context.Context, c *model.Collaborator) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.documents[c.DocumentID]; !ok {
		return notFound("add collaborator to doc " + c.DocumentID)
	}
	if _, ok := m.users[c.UserID]; !ok {
		return notFound("add collaborator " + c.UserID)
	}
	edges := m.collabs[c.DocumentID]
	if edges == nil {
		edges = make(map[string]model.Collaborator)
		m.collabs[c.DocumentID] = edges
	}
	if existing, ok := edges[c.UserID]; ok {
		existing.Permission = c.Permission
		edges[c.UserID] = existing
		*c = existing
		return nil
	}
	c.InvitedAt = m.tick()
	edges[c.UserID] = *c
	return nil
}

func (m *MemoryRepository) RemoveCollaborator(_ context.Context, docID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collabs[docID][userID]; !ok {
		return notFound("remove collaborator " + userID)
	}
	delete(m.collabs[docID], userID)
	return nil
}

func (m *MemoryRepository) AcceptInvitation(_ context.Context, docID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collabs[docID][userID]
	if !ok || c.AcceptedAt != nil {
		return notFound(fmt.Sprintf("pending invitation for %s on doc %s", userID, docID))
	}
	now := m.tick()
	c.AcceptedAt = &now
	m.collabs[docID][userID] = c
	return nil
}

func (m *MemoryRepository) ListMembers(_ context.Context, docID string) ([]model.CollaboratorInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.documents[docID]
	if !ok {
		return nil, nil
	}
	owner := m.users[d.OwnerID]
	members := []model.CollaboratorInfo{{ID: owner.ID, Name: owner.Name, Email: owner.Email, Permission: "owner", Accepted: true}}

	edges := make([]model.Collaborator, 0, len(m.collabs[docID]))
	for _, c := range m.collabs[docID] {
		edges = append(edges, c)
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].InvitedAt.Before(edges[j].InvitedAt) })
	for _, c := range edges {
		u := m.users[c.UserID]
		members = append(members, model.CollaboratorInfo{
			ID: u.ID, Name: u.Name, Email: u.Email, Permission: c.Permission, Accepted: c.AcceptedAt != nil,
		})
	}
	return members, nil
}

func (m *MemoryRepository) CreateComment(_ context.Context, c *model.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.documents[c.DocumentID]; !ok {
		return notFound("add comment to doc " + c.DocumentID)
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := m.tick()
	c.CreatedAt, c.UpdatedAt = now, now
	c.IsResolved = false
	c.ResolvedAt = nil
	stored := *c
	stored.Author = nil
	stored.Replies = nil
	m.comments[c.ID] = stored
	m.logActivity(c.DocumentID, c.UserID, "comment", now)
	return nil
}

func (m *MemoryRepository) GetComment(_ context.Context, commentID string) (*model.Comment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.comments[commentID]
	if !ok {
		return nil, notFound("get comment " + commentID)
	}
	return &c, nil
}

func (m *MemoryRepository) UpdateCommentContent(_ context.Context, commentID, content string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.comments[commentID]
	if !ok {
		return time.Time{}, notFound("update comment " + commentID)
	}
	c.Content = content
	c.UpdatedAt = m.tick()
	m.comments[commentID] = c
	return c.UpdatedAt, nil
}

func (m *MemoryRepository) SetCommentResolved(_ context.Context, commentID string, resolvedAt *time.Time) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.comments[commentID]
	if !ok {
		return time.Time{}, notFound("resolve comment " + commentID)
	}
	c.IsResolved = resolvedAt != nil
	c.ResolvedAt = resolvedAt
	c.UpdatedAt = m.tick()
	m.comments[commentID] = c
	return c.UpdatedAt, nil
}

func (m *MemoryRepository) DeleteComment(_ context.Context, commentID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.comments[commentID]; !ok {
		return 0, notFound("delete comment " + commentID)
	}
	removed := 0
	for id, r := range m.replies {
		if r.CommentID == commentID {
			delete(m.replies, id)
			removed++
		}
	}
	delete(m.comments, commentID)
	return removed, nil
}

func (m *MemoryRepository) CreateReply(_ context.Context, r *model.Reply) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.comments[r.CommentID]; !ok {
		return notFound("reply to comment " + r.CommentID)
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := m.tick()
	r.CreatedAt, r.UpdatedAt = now, now
	stored := *r
	stored.Author = nil
	m.replies[r.ID] = stored
	return nil
}

func (m *MemoryRepository) ListComments(_ context.Context, docID string) ([]model.Comment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	comments := []model.Comment{}
	for _, c := range m.comments {
		if c.DocumentID == docID {
			c.Author = m.author(c.UserID)
			c.Replies = []model.Reply{}
			comments = append(comments, c)
		}
	}
	sort.Slice(comments, func(i, j int) bool { return comments[i].CreatedAt.Before(comments[j].CreatedAt) })

	index := make(map[string]int, len(comments))
	for i, c := range comments {
		index[c.ID] = i
	}
	var replies []model.Reply
	for _, r := range m.replies {
		if _, ok := index[r.CommentID]; ok {
			r.Author = m.author(r.AuthorID)
			replies = append(replies, r)
		}
	}
	sort.Slice(replies, func(i, j int) bool { return replies[i].CreatedAt.Before(replies[j].CreatedAt) })
	for _, r := range replies {
		i := index[r.CommentID]
		comments[i].Replies = append(comments[i].Replies, r)
	}
	return comments, nil
}

func (m *MemoryRepository) author(userID string) *model.User {
	u, ok := m.users[userID]
	if !ok {
		return &model.User{ID: userID}
	}
	return &u
}
