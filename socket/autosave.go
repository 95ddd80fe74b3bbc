package socket

import (
	"context"
	"time"

	"naskahcollab/pkg/logger"
	"naskahcollab/pkg/metrics"
)

const saveTimeout = 10 * time.Second

// scheduleAutoSave restarts the document's quiet period. When the timer
// fires the session's cached content is written, so an explicit save in
// between is never rolled back; content is only used if the session is gone.
func (h *Hub) scheduleAutoSave(docID, content string) {
	h.autosave.Schedule(docID, func() {
		h.mu.Lock()
		if s, ok := h.sessions[docID]; ok {
			content = s.content
		}
		h.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()
		h.flush(ctx, docID, content)
	})
}

// flush writes content and tells the whole session how it went. Nothing is
// retried; the next edit schedules a fresh save.
func (h *Hub) flush(ctx context.Context, docID, content string) {
	start := time.Now()
	savedAt, err := h.store.UpdateContent(ctx, docID, content)
	metrics.RecordAutoSave(err == nil, time.Since(start).Seconds())

	if err != nil {
		logger.Sugar.Errorf("Failed to auto-save doc %s: %v", docID, err)
		h.Broadcast(docID, EventSaveError, SaveError{
			DocumentID: docID,
			Error:      "Auto-save failed: " + publicMessage(err),
			Timestamp:  h.now().UTC(),
		})
		return
	}

	h.mu.Lock()
	if s, ok := h.sessions[docID]; ok && savedAt.After(s.lastModified) {
		s.lastModified = savedAt
	}
	h.mu.Unlock()

	logger.Sugar.Infof("Auto-saved document: %s", docID)
	h.Broadcast(docID, EventDocumentSaved, DocumentSaved{DocumentID: docID, Timestamp: savedAt, AutoSave: true})
}
