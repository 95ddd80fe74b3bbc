package socket

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"naskahcollab/internal/document/model"
	"naskahcollab/internal/document/repository"
	"naskahcollab/internal/document/service"
	"naskahcollab/internal/permission"
	"naskahcollab/pkg/debounce"
	"naskahcollab/pkg/logger"
	"naskahcollab/pkg/metrics"
)

// PresenceMirror receives a copy of a session's participants after every
// change so other processes can read who is online.
type PresenceMirror interface {
	Publish(ctx context.Context, docID string, participants []model.Participant) error
}

type Options struct {
	AutoSaveDelay time.Duration
	GracePeriod   time.Duration
	SendBuffer    int
	Mirror        PresenceMirror
}

// session is the in-memory state of one open document. content and title
// may be ahead of the store while edits are waiting for auto-save.
type session struct {
	docID        string
	title        string
	content      string
	lastModified time.Time
	participants map[string]*model.Participant
	members      map[*Client]bool
}

func (s *session) list() []model.Participant {
	out := make([]model.Participant, 0, len(s.participants))
	for _, p := range s.participants {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Hub owns the connection registry (one routable connection per user) and
// the session registry (one session per open document). All of its maps are
// guarded by mu; sends to client buffers happen under mu and never block.
type Hub struct {
	Register   chan *Client
	Unregister chan *Client

	store      repository.Store
	resolver   *permission.Resolver
	docs       *service.DocumentService
	comments   *service.CommentService
	mirror     PresenceMirror
	autosave   *debounce.Coalescer[string]
	grace      time.Duration
	sendBuffer int
	now        func() time.Time

	mu       sync.Mutex
	clients  map[string]*Client
	sessions map[string]*session

	presence chan string
	quit     chan struct{}
	stopOnce sync.Once
}

func NewHub(store repository.Store, opts Options) *Hub {
	if opts.AutoSaveDelay <= 0 {
		opts.AutoSaveDelay = 2 * time.Second
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = 30 * time.Second
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	h := &Hub{
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		store:      store,
		resolver:   permission.NewResolver(store),
		mirror:     opts.Mirror,
		autosave:   debounce.New[string](opts.AutoSaveDelay),
		grace:      opts.GracePeriod,
		sendBuffer: opts.SendBuffer,
		now:        time.Now,
		clients:    make(map[string]*Client),
		sessions:   make(map[string]*session),
		presence:   make(chan string, 256),
		quit:       make(chan struct{}),
	}
	if h.mirror != nil {
		go h.presenceWorker()
	}
	return h
}

// Use attaches the services that handle comment and invitation events.
func (h *Hub) Use(docs *service.DocumentService, comments *service.CommentService) {
	h.docs = docs
	h.comments = comments
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.register(client)
		case client := <-h.Unregister:
			h.unregister(client)
		case <-h.quit:
			return
		}
	}
}

// register makes client the routable connection for its user. A previous
// connection stays open but no longer receives direct messages.
func (h *Hub) register(c *Client) {
	h.mu.Lock()
	if prev, ok := h.clients[c.User.ID]; ok && prev != c {
		logger.Sugar.Infof("User %s reconnected, replacing previous connection", c.User.ID)
	}
	h.clients[c.User.ID] = c
	h.mu.Unlock()
	metrics.ConnectionOpened()
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if h.clients[c.User.ID] == c {
		delete(h.clients, c.User.ID)
	}
	docID := h.detachLocked(c)
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
	h.mu.Unlock()

	metrics.ConnectionClosed()
	if docID != "" {
		h.queuePresence(docID)
	}
}

// RouteTo returns the user's current connection.
func (h *Hub) RouteTo(userID string) (*Client, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[userID]
	return c, ok
}

func (h *Hub) SendToUser(userID, eventType string, payload any) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[userID]
	if !ok {
		return false
	}
	data, err := encode(eventType, "", userID, payload)
	if err != nil {
		logger.Sugar.Errorf("Error marshalling %s for user %s: %v", eventType, userID, err)
		return false
	}
	return h.sendLocked(c, data)
}

// Broadcast delivers to every connection in the document's session.
func (h *Hub) Broadcast(docID, eventType string, payload any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.sessions[docID]; ok {
		h.fanOutLocked(s, eventType, "", payload, nil)
	}
}

func (h *Hub) CloseDocument(docID string) {
	h.RemoveDocument(docID)
}

// RemoveDocument forcefully removes a document from memory and disconnects clients.
// This is called when a document is deleted via the API.
func (h *Hub) RemoveDocument(docID string) {
	h.mu.Lock()
	if s, ok := h.sessions[docID]; ok {
		for c := range s.members {
			c.docID = ""
			if c.Conn != nil {
				c.Conn.Close() // readPump exits and unregisters
			}
		}
		delete(h.sessions, docID)
		metrics.SessionClosed()
	}
	h.mu.Unlock()

	h.autosave.Cancel(docID)
	h.queuePresence(docID)
}

// Participants returns a copy of the session's participant list.
func (h *Hub) Participants(docID string) []model.Participant {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[docID]
	if !ok {
		return nil
	}
	return s.list()
}

func (h *Hub) SessionActive(docID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.sessions[docID]
	return ok
}

// Join adds the client to the document's session, creating the document
// (owned by the caller) when it does not exist yet. The caller needs at
// least view access on an existing document.
func (h *Hub) Join(ctx context.Context, c *Client, docID string) error {
	if docID == "" {
		return fmt.Errorf("%w: documentId is required", model.ErrValidation)
	}
	decision, err := h.resolveOrCreate(ctx, docID, c.User)
	if err != nil {
		return err
	}
	if !decision.Can(permission.ActionRead) {
		return fmt.Errorf("join document %s: %w", docID, model.ErrAccessDenied)
	}

	h.mu.Lock()
	if c.closed {
		h.mu.Unlock()
		return nil
	}
	var left string
	if c.docID != "" && c.docID != docID {
		left = h.detachLocked(c)
	}

	s, ok := h.sessions[docID]
	if !ok {
		doc := decision.Document
		s = &session{
			docID:        docID,
			title:        doc.Title,
			content:      doc.Content,
			lastModified: doc.UpdatedAt,
			participants: make(map[string]*model.Participant),
			members:      make(map[*Client]bool),
		}
		h.sessions[docID] = s
		metrics.SessionOpened()
	}

	p := &model.Participant{
		ID:           c.User.ID,
		Name:         c.User.Name,
		Role:         decision.Level.Role(),
		Status:       model.StatusActive,
		LastActivity: h.now(),
	}
	s.participants[c.User.ID] = p
	s.members[c] = true
	c.docID = docID

	joined := DocumentJoined{
		DocumentID: docID,
		Document:   DocumentSnapshot{Title: s.title, Content: s.content, LastModified: s.lastModified},
		Users:      s.list(),
	}
	if data, err := encode(EventDocumentJoined, docID, c.User.ID, joined); err == nil {
		h.sendLocked(c, data)
	}
	h.fanOutLocked(s, EventUserJoined, c.User.ID, UserJoined{DocumentID: docID, User: *p}, c)
	h.mu.Unlock()

	logger.Sugar.Infof("User %s joined document %s as %s", c.User.ID, docID, p.Role)
	if left != "" {
		h.queuePresence(left)
	}
	h.queuePresence(docID)
	return nil
}

func (h *Hub) resolveOrCreate(ctx context.Context, docID string, user model.User) (permission.Decision, error) {
	decision, err := h.resolver.Resolve(ctx, docID, user.ID)
	if err == nil || !errors.Is(err, model.ErrNotFound) {
		return decision, err
	}

	doc := &model.Document{ID: docID, Title: model.DefaultTitle, OwnerID: user.ID}
	if cerr := h.store.CreateDocument(ctx, doc); cerr != nil {
		// another join may have created it in the meantime
		if d, rerr := h.resolver.Resolve(ctx, docID, user.ID); rerr == nil {
			return d, nil
		}
		return permission.Decision{}, cerr
	}
	logger.Sugar.Infof("Created document %s for user %s on first join", docID, user.ID)
	return permission.Decision{Level: permission.Owner, Document: doc}, nil
}

// Leave detaches the client from its current document without closing it.
func (h *Hub) Leave(c *Client) {
	h.mu.Lock()
	docID := h.detachLocked(c)
	h.mu.Unlock()
	if docID != "" {
		h.queuePresence(docID)
	}
}

// detachLocked removes c from its session. When no other connection of the
// same user remains, the participant goes away and a sweep is scheduled
// after the grace period. It returns the document c was in.
func (h *Hub) detachLocked(c *Client) string {
	docID := c.docID
	if docID == "" {
		return ""
	}
	c.docID = ""
	s, ok := h.sessions[docID]
	if !ok {
		return docID
	}
	delete(s.members, c)
	for m := range s.members {
		if m.User.ID == c.User.ID {
			return docID
		}
	}

	p, ok := s.participants[c.User.ID]
	if !ok {
		return docID
	}
	p.Status = model.StatusAway
	p.LastActivity = h.now()
	p.Cursor = nil
	h.fanOutLocked(s, EventUserLeft, c.User.ID, UserLeft{DocumentID: docID, UserID: c.User.ID, UserName: c.User.Name}, nil)

	time.AfterFunc(h.grace, func() { h.sweep(docID) })
	return docID
}

// sweep drops participants that have been away for the whole grace period.
// It is safe to run any number of times; a participant who came back is
// active again and is left alone.
func (h *Hub) sweep(docID string) {
	h.mu.Lock()
	s, ok := h.sessions[docID]
	if !ok {
		h.mu.Unlock()
		return
	}
	now := h.now()
	for id, p := range s.participants {
		if p.Status == model.StatusAway && now.Sub(p.LastActivity) >= h.grace {
			delete(s.participants, id)
		}
	}
	closed := len(s.participants) == 0 && len(s.members) == 0
	if closed {
		delete(h.sessions, docID)
		metrics.SessionClosed()
	}
	h.mu.Unlock()

	if closed {
		if h.autosave.Cancel(docID) {
			logger.Sugar.Warnf("Cancelled pending auto-save for closed document %s", docID)
		}
		logger.Sugar.Infof("Closed and cleaned up empty session: %s", docID)
	}
	h.queuePresence(docID)
}

// Shutdown stops the hub, writes pending auto-saves and closes every
// connection.
func (h *Hub) Shutdown(ctx context.Context) error {
	var pending []string
	h.stopOnce.Do(func() {
		pending = h.autosave.Stop()
		close(h.quit)
	})

	for _, docID := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		h.mu.Lock()
		s, ok := h.sessions[docID]
		var content string
		if ok {
			content = s.content
		}
		h.mu.Unlock()
		if ok {
			h.flush(ctx, docID, content)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.sessions {
		for c := range s.members {
			if c.Conn != nil {
				c.Conn.Close()
			}
		}
	}
	for _, c := range h.clients {
		if c.Conn != nil {
			c.Conn.Close()
		}
	}
	return nil
}

func (h *Hub) fanOutLocked(s *session, eventType, userID string, payload any, exclude *Client) {
	data, err := encode(eventType, s.docID, userID, payload)
	if err != nil {
		logger.Sugar.Errorf("Error marshalling %s broadcast: %v", eventType, err)
		return
	}
	for c := range s.members {
		if c == exclude {
			continue
		}
		h.sendLocked(c, data)
	}
}

// sendLocked never blocks. A client whose buffer is full is disconnected.
func (h *Hub) sendLocked(c *Client, data []byte) bool {
	if c.closed {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		logger.Sugar.Warnf("Client %s's send buffer is full. Closing connection.", c.User.ID)
		if c.Conn != nil {
			c.Conn.Close()
		}
		return false
	}
}

func (h *Hub) sendTo(c *Client, eventType, docID string, payload any) {
	data, err := encode(eventType, docID, c.User.ID, payload)
	if err != nil {
		logger.Sugar.Errorf("Error marshalling %s for %s: %v", eventType, c.User.ID, err)
		return
	}
	h.mu.Lock()
	h.sendLocked(c, data)
	h.mu.Unlock()
}

func (h *Hub) queuePresence(docID string) {
	if h.mirror == nil {
		return
	}
	select {
	case h.presence <- docID:
	default:
		logger.Sugar.Warnf("Presence queue full, dropping update for %s", docID)
	}
}

// presenceWorker publishes the current participant list of each queued document.
func (h *Hub) presenceWorker() {
	for {
		select {
		case docID := <-h.presence:
			participants := h.Participants(docID)
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := h.mirror.Publish(ctx, docID, participants); err != nil {
				logger.Sugar.Warnf("Failed to mirror presence for %s: %v", docID, err)
			}
			cancel()
		case <-h.quit:
			return
		}
	}
}
