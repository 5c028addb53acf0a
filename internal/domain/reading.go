package domain

import (
	"fmt"
	"time"
)

type Bookmark struct {
	ID        string    `json:"id"`
	Key       BookKey   `json:"key"`
	Title     string    `json:"title"`
	Page      int       `json:"page"`
	Label     string    `json:"label"`
	CreatedAt time.Time `json:"created_at"`
}

// BookmarkID is unique per book and page, so bookmarking a page twice is a no-op.
func BookmarkID(key BookKey, page int) string {
	return fmt.Sprintf("%s_page_%d", key, page)
}

func BookmarkLabel(title string, page int) string {
	return fmt.Sprintf("%s - Page %d", title, page)
}

type Note struct {
	ID        string    `json:"id"`
	Key       BookKey   `json:"key"`
	Page      *int      `json:"page,omitempty"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
