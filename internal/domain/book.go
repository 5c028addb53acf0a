package domain

import "strings"

// LayoutBookOfTheDay marks a featured entry for the highlighted home slot.
const LayoutBookOfTheDay = 1

const (
	DefaultAuthor      = "Unknown Author"
	DefaultDescription = "No description available"
	DefaultImage       = "https://via.placeholder.com/150x200?text=Book"
)

type Category struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Book is a row of the backend "books" table.
type Book struct {
	ID          string `json:"id"`
	CategoryID  string `json:"category_id"`
	Title       string `json:"title"`
	Author      string `json:"author,omitempty"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
	PDFURL      string `json:"book_pdf"`
}

// FeaturedEntry is a row of the backend "home_layouts" table.
type FeaturedEntry struct {
	ID          string `json:"id"`
	LayoutType  int    `json:"layout_type"`
	Title       string `json:"title"`
	Author      string `json:"author,omitempty"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
	PDFURL      string `json:"book_pdf"`
}

// Key is the local identity of the book. Title is only a fallback for rows without an id.
func (b Book) Key() BookKey {
	if id := strings.TrimSpace(b.ID); id != "" {
		return BookKey(id)
	}
	return BookKey(strings.TrimSpace(b.Title))
}

// Downloadable reports whether the row carries enough to be fetched and shown.
func (b Book) Downloadable() bool {
	return strings.TrimSpace(b.Title) != "" && strings.TrimSpace(b.PDFURL) != ""
}

// WithDefaults fills the optional display fields.
func (b Book) WithDefaults() Book {
	if b.Author == "" {
		b.Author = DefaultAuthor
	}
	if b.Description == "" {
		b.Description = DefaultDescription
	}
	if b.Image == "" {
		b.Image = DefaultImage
	}
	return b
}

// AsBook converts a featured entry so it can be downloaded like any catalog book.
func (f FeaturedEntry) AsBook() Book {
	return Book{
		ID:          f.ID,
		Title:       f.Title,
		Author:      f.Author,
		Description: f.Description,
		Image:       f.Image,
		PDFURL:      f.PDFURL,
	}
}

// Matches reports a case-insensitive substring match over title, author and description.
func (b Book) Matches(query string) bool {
	q := strings.ToLower(query)
	return strings.Contains(strings.ToLower(b.Title), q) ||
		strings.Contains(strings.ToLower(b.Author), q) ||
		strings.Contains(strings.ToLower(b.Description), q)
}
