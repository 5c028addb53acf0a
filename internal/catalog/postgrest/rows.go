package postgrest

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/datallboy/optolib/internal/domain"
)

// rowID accepts uuid strings as well as integer primary keys.
type rowID string

func (id *rowID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = rowID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = rowID(n.String())
	return nil
}

type categoryRow struct {
	ID    rowID  `json:"id"`
	Title string `json:"title"`
}

func (r categoryRow) ToDomain() domain.Category {
	return domain.Category{ID: string(r.ID), Title: strings.TrimSpace(r.Title)}
}

type bookRow struct {
	ID          rowID   `json:"id"`
	CategoryID  rowID   `json:"category_id"`
	Title       string  `json:"title"`
	Author      *string `json:"author"`
	Description *string `json:"description"`
	Image       *string `json:"image"`
	BookPDF     string  `json:"book_pdf"`
}

func (r bookRow) ToDomain() domain.Book {
	return domain.Book{
		ID:          string(r.ID),
		CategoryID:  string(r.CategoryID),
		Title:       strings.TrimSpace(r.Title),
		Author:      deref(r.Author),
		Description: deref(r.Description),
		Image:       deref(r.Image),
		PDFURL:      strings.TrimSpace(r.BookPDF),
	}
}

type featuredRow struct {
	ID          rowID   `json:"id"`
	LayoutType  int     `json:"layout_type"`
	Title       string  `json:"title"`
	Author      *string `json:"author"`
	Description *string `json:"description"`
	Image       *string `json:"image"`
	BookPDF     string  `json:"book_pdf"`
}

func (r featuredRow) ToDomain() domain.FeaturedEntry {
	return domain.FeaturedEntry{
		ID:          string(r.ID),
		LayoutType:  r.LayoutType,
		Title:       strings.TrimSpace(r.Title),
		Author:      deref(r.Author),
		Description: deref(r.Description),
		Image:       deref(r.Image),
		PDFURL:      strings.TrimSpace(r.BookPDF),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
