package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"naskahcollab/internal/document/model"
	"naskahcollab/internal/document/service"
	"naskahcollab/internal/permission"
	"naskahcollab/middleware"
	"naskahcollab/pkg/logger"
	"naskahcollab/socket"
)

// LiveEditor runs title and save requests through the live session so
// connected clients see REST edits too.
type LiveEditor interface {
	UpdateTitle(ctx context.Context, user model.User, docID, title string, sender *socket.Client) (time.Time, error)
	SaveDocument(ctx context.Context, user model.User, docID, title, content string, sender *socket.Client) (time.Time, error)
	Participants(docID string) []model.Participant
}

// PresenceReader is the read side of the presence mirror.
type PresenceReader interface {
	Snapshot(ctx context.Context, docID string) ([]model.Participant, error)
}

type DocumentHandler struct {
	Docs     *service.DocumentService
	Comments *service.CommentService
	Live     LiveEditor
	// Presence is optional; without it the live session answers.
	Presence PresenceReader

	resolver *permission.Resolver
}

func NewDocumentHandler(docs *service.DocumentService, comments *service.CommentService, live LiveEditor) *DocumentHandler {
	return &DocumentHandler{
		Docs:     docs,
		Comments: comments,
		Live:     live,
		resolver: permission.NewResolver(docs.Repo),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Sugar.Errorf("Handler: Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, op string, err error) {
	status := model.HTTPStatus(err)
	msg := err.Error()
	switch model.ErrorCode(err) {
	case model.CodeInternal:
		msg = "Internal server error"
	case model.CodePersistence:
		msg = "Database error"
	}
	if status >= http.StatusInternalServerError {
		logger.Sugar.Errorf("Handler: %s failed: %v", op, err)
	} else {
		logger.Sugar.Debugf("Handler: %s rejected: %v", op, err)
	}
	http.Error(w, msg, status)
}

// prepare checks the method and the identity set by the auth middleware.
func prepare(w http.ResponseWriter, r *http.Request, method string) (model.User, bool) {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return model.User{}, false
	}
	user, ok := middleware.IdentityFrom(r.Context())
	if !ok || user.ID == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return model.User{}, false
	}
	return user, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func requireQuery(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		http.Error(w, "Missing "+name+" parameter", http.StatusBadRequest)
		return "", false
	}
	return v, true
}

func (h *DocumentHandler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	user, ok := prepare(w, r, http.MethodPost)
	if !ok {
		return
	}

	var req model.CreateDocRequest
	_ = json.NewDecoder(r.Body).Decode(&req) // Ignore error, default to empty

	docID, err := h.Docs.CreateDocument(r.Context(), user.ID, req.Title)
	if err != nil {
		writeError(w, "create document", err)
		return
	}
	writeJSON(w, http.StatusCreated, model.CreateDocResponse{DocID: docID})
}

func (h *DocumentHandler) GetDocuments(w http.ResponseWriter, r *http.Request) {
	user, ok := prepare(w, r, http.MethodGet)
	if !ok {
		return
	}

	docs, err := h.Docs.ListDocuments(r.Context(), user.ID)
	if err != nil {
		writeError(w, "list documents", err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (h *DocumentHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	user, ok := prepare(w, r, http.MethodDelete)
	if !ok {
		return
	}
	docID, ok := requireQuery(w, r, "docId")
	if !ok {
		return
	}

	if err := h.Docs.DeleteDocument(r.Context(), user, docID); err != nil {
		writeError(w, "delete document "+docID, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Document deleted successfully"))
}

type titleResponse struct {
	DocumentID string    `json:"documentId"`
	Title      string    `json:"title"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (h *DocumentHandler) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	user, ok := prepare(w, r, http.MethodPut)
	if !ok {
		return
	}
	docID, ok := requireQuery(w, r, "docId")
	if !ok {
		return
	}

	var req model.UpdateDocRequest
	if !decodeBody(w, r, &req) {
		return
	}

	updatedAt, err := h.Live.UpdateTitle(r.Context(), user, docID, req.Title, nil)
	if err != nil {
		writeError(w, "update title of "+docID, err)
		return
	}
	writeJSON(w, http.StatusOK, titleResponse{DocumentID: docID, Title: req.Title, UpdatedAt: updatedAt})
}

type saveResponse struct {
	DocumentID string    `json:"documentId"`
	SavedAt    time.Time `json:"savedAt"`
}

func (h *DocumentHandler) SaveDocument(w http.ResponseWriter, r *http.Request) {
	user, ok := prepare(w, r, http.MethodPost)
	if !ok {
		return
	}

	var req model.SaveDocRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.DocID == "" {
		http.Error(w, "documentId is required", http.StatusBadRequest)
		return
	}

	savedAt, err := h.Live.SaveDocument(r.Context(), user, req.DocID, req.Title, req.Content, nil)
	if err != nil {
		writeError(w, "save document "+req.DocID, err)
		return
	}
	writeJSON(w, http.StatusOK, saveResponse{DocumentID: req.DocID, SavedAt: savedAt})
}

func (h *DocumentHandler) AddCollaborator(w http.ResponseWriter, r *http.Request) {
	user, ok := prepare(w, r, http.MethodPost)
	if !ok {
		return
	}

	var req model.InviteRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.Docs.Invite(r.Context(), user, req)
	if err != nil {
		writeError(w, "invite "+req.Email, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *DocumentHandler) ChangePermission(w http.ResponseWriter, r *http.Request) {
	user, ok := prepare(w, r, http.MethodPut)
	if !ok {
		return
	}

	var req model.PermissionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.Docs.ChangePermission(r.Context(), user, req); err != nil {
		writeError(w, "change permission", err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Permission updated"))
}

func (h *DocumentHandler) RemoveCollaborator(w http.ResponseWriter, r *http.Request) {
	user, ok := prepare(w, r, http.MethodDelete)
	if !ok {
		return
	}
	docID, ok := requireQuery(w, r, "docId")
	if !ok {
		return
	}
	target, ok := requireQuery(w, r, "userId")
	if !ok {
		return
	}

	if err := h.Docs.RemoveCollaborator(r.Context(), user, docID, target); err != nil {
		writeError(w, "remove collaborator", err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Collaborator removed"))
}

func (h *DocumentHandler) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	user, ok := prepare(w, r, http.MethodPost)
	if !ok {
		return
	}
	docID, ok := requireQuery(w, r, "docId")
	if !ok {
		return
	}

	if err := h.Docs.AcceptInvitation(r.Context(), user, docID); err != nil {
		writeError(w, "accept invitation", err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Invitation accepted"))
}

func (h *DocumentHandler) GetDocumentMembers(w http.ResponseWriter, r *http.Request) {
	user, ok := prepare(w, r, http.MethodGet)
	if !ok {
		return
	}
	docID, ok := requireQuery(w, r, "docId")
	if !ok {
		return
	}

	members, err := h.Docs.Members(r.Context(), user, docID)
	if err != nil {
		writeError(w, "list members of "+docID, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

func (h *DocumentHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	user, ok := prepare(w, r, http.MethodPost)
	if !ok {
		return
	}

	var req model.CommentRequest
	if !decodeBody(w, r, &req) {
		return
	}

	c, err := h.Comments.AddComment(r.Context(), user, req)
	if err != nil {
		writeError(w, "add comment", err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *DocumentHandler) ReplyComment(w http.ResponseWriter, r *http.Request) {
	user, ok := prepare(w, r, http.MethodPost)
	if !ok {
		return
	}

	var req model.ReplyRequest
	if !decodeBody(w, r, &req) {
		return
	}

	reply, err := h.Comments.Reply(r.Context(), user, req)
	if err != nil {
		writeError(w, "reply to comment "+req.CommentID, err)
		return
	}
	writeJSON(w, http.StatusCreated, reply)
}

func (h *DocumentHandler) GetComments(w http.ResponseWriter, r *http.Request) {
	user, ok := prepare(w, r, http.MethodGet)
	if !ok {
		return
	}
	docID, ok := requireQuery(w, r, "docId")
	if !ok {
		return
	}

	list, err := h.Comments.List(r.Context(), user, docID)
	if err != nil {
		writeError(w, "list comments of "+docID, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *DocumentHandler) ResolveComment(w http.ResponseWriter, r *http.Request) {
	user, ok := prepare(w, r, http.MethodPut)
	if !ok {
		return
	}

	var req model.ResolveRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.Comments.Resolve(r.Context(), user, req)
	if err != nil {
		writeError(w, "resolve comment "+req.CommentID, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *DocumentHandler) UpdateComment(w http.ResponseWriter, r *http.Request) {
	user, ok := prepare(w, r, http.MethodPut)
	if !ok {
		return
	}

	var req model.UpdateCommentRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.Comments.Update(r.Context(), user, req)
	if err != nil {
		writeError(w, "update comment "+req.CommentID, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *DocumentHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	user, ok := prepare(w, r, http.MethodDelete)
	if !ok {
		return
	}
	commentID, ok := requireQuery(w, r, "commentId")
	if !ok {
		return
	}

	res, err := h.Comments.Delete(r.Context(), user, commentID)
	if err != nil {
		writeError(w, "delete comment "+commentID, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type presenceResponse struct {
	DocumentID string              `json:"documentId"`
	Users      []model.Participant `json:"users"`
}

// GetPresence reports who is in the document, preferring the shared mirror.
func (h *DocumentHandler) GetPresence(w http.ResponseWriter, r *http.Request) {
	user, ok := prepare(w, r, http.MethodGet)
	if !ok {
		return
	}
	docID, ok := requireQuery(w, r, "docId")
	if !ok {
		return
	}
	if _, err := h.resolver.Require(r.Context(), docID, user.ID, permission.ActionRead); err != nil {
		writeError(w, "presence of "+docID, err)
		return
	}

	var users []model.Participant
	if h.Presence != nil {
		snap, err := h.Presence.Snapshot(r.Context(), docID)
		if err != nil {
			logger.Sugar.Warnf("Handler: presence mirror unavailable for %s: %v", docID, err)
		} else {
			users = snap
		}
	}
	if users == nil {
		users = h.Live.Participants(docID)
	}
	if users == nil {
		users = []model.Participant{}
	}
	writeJSON(w, http.StatusOK, presenceResponse{DocumentID: docID, Users: users})
}
