package store

import (
	"context"
	"fmt"

	"github.com/datallboy/optolib/internal/domain"
)

// SaveDownload records a completed download. A re-download replaces the row.
func (s *PersistentStore) SaveDownload(ctx context.Context, rec domain.DownloadRecord) error {
	var dbo downloadDBO
	dbo.FromDomain(rec)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO downloads (book_key, title, file_name, size, sha256, downloaded_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(book_key) DO UPDATE SET
			title = excluded.title,
			file_name = excluded.file_name,
			size = excluded.size,
			sha256 = excluded.sha256,
			downloaded_at = excluded.downloaded_at`,
		dbo.BookKey, dbo.Title, dbo.FileName, dbo.Size, dbo.SHA256, dbo.DownloadedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save download %s: %w", rec.Key, err)
	}
	return nil
}

func (s *PersistentStore) GetDownloads(ctx context.Context) ([]domain.DownloadRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT book_key, title, file_name, size, sha256, downloaded_at
		FROM downloads ORDER BY title ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query downloads: %w", err)
	}
	defer rows.Close()

	var records []domain.DownloadRecord
	for rows.Next() {
		var dbo downloadDBO
		if err := rows.Scan(&dbo.BookKey, &dbo.Title, &dbo.FileName, &dbo.Size, &dbo.SHA256, &dbo.DownloadedAt); err != nil {
			return nil, fmt.Errorf("failed to scan download: %w", err)
		}
		records = append(records, dbo.ToDomain())
	}

	return records, rows.Err()
}

// DeleteDownload is idempotent.
func (s *PersistentStore) DeleteDownload(ctx context.Context, key domain.BookKey) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM downloads WHERE book_key = ?", string(key))
	return err
}

func (s *PersistentStore) ClearDownloads(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM downloads")
	return err
}
