package store

import (
	"context"
	"database/sql"
	"errors"
)

// GetImportedFileHash returns the sha256 recorded for path, or an empty
// string if the file was never imported.
func (s *Store) GetImportedFileHash(ctx context.Context, path string) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, `SELECT sha256 FROM imported_files WHERE path = ?`, path).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return hash, err
}

// setImportedFileHash records the sha256 of an imported file.
func setImportedFileHash(ctx context.Context, db execer, path, hash string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO imported_files (path, sha256) VALUES (?, ?)
		 ON CONFLICT(path) DO UPDATE SET sha256 = excluded.sha256`,
		path, hash,
	)
	return err
}
