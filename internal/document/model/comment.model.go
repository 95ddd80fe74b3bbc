package model

import (
	"encoding/json"
	"time"
)

type Comment struct {
	ID         string          `json:"id"`
	DocumentID string          `json:"documentId"`
	UserID     string          `json:"userId"`
	Content    string          `json:"content"`
	Position   json.RawMessage `json:"position,omitempty"`
	IsResolved bool            `json:"isResolved"`
	ResolvedAt *time.Time      `json:"resolvedAt,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
	Author     *User           `json:"author,omitempty"`
	Replies    []Reply         `json:"replies"`
}

type Reply struct {
	ID        string    `json:"id"`
	CommentID string    `json:"commentId"`
	AuthorID  string    `json:"authorId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Author    *User     `json:"author,omitempty"`
}

type CommentStats struct {
	Total      int `json:"total"`
	Resolved   int `json:"resolved"`
	Unresolved int `json:"unresolved"`
}

type CommentList struct {
	DocumentID string       `json:"documentId"`
	Comments   []Comment    `json:"comments"`
	Stats      CommentStats `json:"stats"`
}

// NewCommentList computes the aggregate counts for comments.
func NewCommentList(docID string, comments []Comment) CommentList {
	list := CommentList{DocumentID: docID, Comments: comments}
	if list.Comments == nil {
		list.Comments = []Comment{}
	}
	for _, c := range list.Comments {
		list.Stats.Total++
		if c.IsResolved {
			list.Stats.Resolved++
		}
	}
	list.Stats.Unresolved = list.Stats.Total - list.Stats.Resolved
	return list
}
