package model

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCode(t *testing.T) {
	cases := []struct {
		err    error
		code   string
		status int
	}{
		{err: fmt.Errorf("document doc-1: %w", ErrNotFound), code: CodeNotFound, status: http.StatusNotFound},
		{err: fmt.Errorf("add comment: %w", ErrAccessDenied), code: CodeAccessDenied, status: http.StatusForbidden},
		{err: fmt.Errorf("%w: content is required", ErrValidation), code: CodeValidation, status: http.StatusBadRequest},
		{err: fmt.Errorf("update content: %w", ErrPersistence), code: CodePersistence, status: http.StatusInternalServerError},
		{err: ErrUnauthenticated, code: CodeAuth, status: http.StatusUnauthorized},
		{err: errors.New("boom"), code: CodeInternal, status: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.code, ErrorCode(tc.err), tc.err.Error())
		assert.Equal(t, tc.status, HTTPStatus(tc.err), tc.err.Error())
	}
	assert.Empty(t, ErrorCode(nil))
}

func TestNewCommentListStats(t *testing.T) {
	list := NewCommentList("doc-1", []Comment{
		{ID: "c1", IsResolved: true},
		{ID: "c2"},
		{ID: "c3"},
	})
	assert.Equal(t, CommentStats{Total: 3, Resolved: 1, Unresolved: 2}, list.Stats)

	empty := NewCommentList("doc-2", nil)
	assert.NotNil(t, empty.Comments)
	assert.Equal(t, CommentStats{}, empty.Stats)
}
