package store

import (
	"database/sql"
	"time"

	"github.com/datallboy/optolib/internal/domain"
)

// downloadDBO maps to the downloads table
type downloadDBO struct {
	BookKey      string `db:"book_key"`
	Title        string `db:"title"`
	FileName     string `db:"file_name"`
	Size         int64  `db:"size"`
	SHA256       string `db:"sha256"`
	DownloadedAt int64  `db:"downloaded_at"`
}

// Mapper: DBO to Domain DownloadRecord
func (d *downloadDBO) ToDomain() domain.DownloadRecord {
	return domain.DownloadRecord{
		Key:          domain.BookKey(d.BookKey),
		Title:        d.Title,
		FileName:     d.FileName,
		Size:         d.Size,
		SHA256:       d.SHA256,
		DownloadedAt: time.Unix(d.DownloadedAt, 0),
	}
}

// Mapper: Domain DownloadRecord to DBO
func (d *downloadDBO) FromDomain(rec domain.DownloadRecord) {
	d.BookKey = string(rec.Key)
	d.Title = rec.Title
	d.FileName = rec.FileName
	d.Size = rec.Size
	d.SHA256 = rec.SHA256

	if !rec.DownloadedAt.IsZero() {
		d.DownloadedAt = rec.DownloadedAt.Unix()
	} else {
		d.DownloadedAt = time.Now().Unix()
	}
}

// bookmarkDBO maps to the bookmarks table
type bookmarkDBO struct {
	ID        string `db:"id"`
	BookKey   string `db:"book_key"`
	Title     string `db:"title"`
	Page      int    `db:"page"`
	Label     string `db:"label"`
	CreatedAt int64  `db:"created_at"`
}

func (b *bookmarkDBO) ToDomain() domain.Bookmark {
	return domain.Bookmark{
		ID:        b.ID,
		Key:       domain.BookKey(b.BookKey),
		Title:     b.Title,
		Page:      b.Page,
		Label:     b.Label,
		CreatedAt: time.Unix(b.CreatedAt, 0),
	}
}

// noteDBO maps to the notes table
type noteDBO struct {
	ID        string        `db:"id"`
	BookKey   string        `db:"book_key"`
	Page      sql.NullInt64 `db:"page"`
	Body      string        `db:"body"`
	CreatedAt int64         `db:"created_at"`
	UpdatedAt int64         `db:"updated_at"`
}

func (n *noteDBO) ToDomain() domain.Note {
	note := domain.Note{
		ID:        n.ID,
		Key:       domain.BookKey(n.BookKey),
		Body:      n.Body,
		CreatedAt: time.Unix(0, n.CreatedAt),
		UpdatedAt: time.Unix(0, n.UpdatedAt),
	}
	if n.Page.Valid {
		p := int(n.Page.Int64)
		note.Page = &p
	}
	return note
}

func (n *noteDBO) FromDomain(note domain.Note) {
	n.ID = note.ID
	n.BookKey = string(note.Key)
	n.Body = note.Body
	n.Page = sql.NullInt64{}
	if note.Page != nil {
		n.Page = sql.NullInt64{Int64: int64(*note.Page), Valid: true}
	}
	n.CreatedAt = note.CreatedAt.UnixNano()
	n.UpdatedAt = note.UpdatedAt.UnixNano()
}
