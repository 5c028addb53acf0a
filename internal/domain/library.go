package domain

import (
	"regexp"
	"strings"
	"time"
)

// BookKey is the stable identity of a downloadable asset.
type BookKey string

func (k BookKey) String() string { return string(k) }

// DownloadRecord is the persisted proof that a complete file exists for a book.
type DownloadRecord struct {
	Key          BookKey   `json:"key"`
	Title        string    `json:"title"`
	FileName     string    `json:"file_name"`
	Size         int64     `json:"size"`
	SHA256       string    `json:"sha256"`
	DownloadedAt time.Time `json:"downloaded_at"`
}

// DownloadState is the merged view the UI renders for one book.
type DownloadState struct {
	Key        BookKey `json:"key"`
	Downloaded bool    `json:"downloaded"`
	InProgress bool    `json:"in_progress"`
	Progress   int     `json:"progress"`
}

var (
	badFileChars = regexp.MustCompile(`[\\/:*?"<>|\x00-\x1f]`)
	whitespace   = regexp.MustCompile(`\s`)
)

// FileName derives the library file name for a book: each whitespace or
// path-illegal character becomes "_", and ".pdf" is appended. When the key is
// not the title itself " (<key>)" is appended so equal titles never share a
// file. Sanitised parts contain no spaces, so a keyed name can never equal
// the name of a title-keyed book.
func FileName(key BookKey, title string) string {
	title = strings.TrimSpace(title)
	k := strings.TrimSpace(string(key))

	if title == "" {
		return sanitize(k) + ".pdf"
	}

	base := sanitize(title)
	if k != "" && k != title {
		base += " (" + sanitize(k) + ")"
	}

	return base + ".pdf"
}

func sanitize(s string) string {
	s = badFileChars.ReplaceAllString(s, "_")
	return whitespace.ReplaceAllString(s, "_")
}
