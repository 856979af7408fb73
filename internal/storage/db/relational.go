package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/webkeep/webkeep/internal/archival/command"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var _ Provider = (*Relational)(nil)

// Relational is the sqlite-backed catalog: the primary, normalized Database Storage
// Provider. Generalized from the teacher's bookmarks schema (one table per entity,
// embedded migrations, CURRENT_TIMESTAMP defaults) to the archive-artifact data model.
type Relational struct {
	db *sql.DB
}

// NewRelational opens (but does not migrate) the sqlite catalog at path.
func NewRelational(path string) (*Relational, error) {
	sqlDB, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("db: failed to open database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1) // sqlite: avoid SQLITE_BUSY under the worker pool's concurrent writers
	return &Relational{db: sqlDB}, nil
}

// Migrate applies any .sql files under migrations/ not yet recorded in schema_migrations,
// each inside its own transaction.
func (r *Relational) Migrate() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("db: failed to create schema_migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("db: failed to read migrations directory: %w", err)
	}

	var migrations []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		migrations = append(migrations, entry.Name())
	}
	sort.Strings(migrations)

	for _, migration := range migrations {
		version := strings.TrimSuffix(migration, ".sql")

		var exists bool
		if err := r.db.QueryRow(`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = ?)`, version).Scan(&exists); err != nil {
			return fmt.Errorf("db: failed to check migration %s: %w", version, err)
		}
		if exists {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + migration)
		if err != nil {
			return fmt.Errorf("db: failed to read migration %s: %w", migration, err)
		}

		tx, err := r.db.Begin()
		if err != nil {
			return fmt.Errorf("db: failed to begin transaction for %s: %w", migration, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("db: failed to apply migration %s: %w", migration, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			tx.Rollback()
			return fmt.Errorf("db: failed to record migration %s: %w", migration, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("db: failed to commit migration %s: %w", migration, err)
		}
		log.Printf("db: applied migration %s", migration)
	}
	return nil
}

// Close releases the underlying sqlite connection.
func (r *Relational) Close() error {
	return r.db.Close()
}

func (r *Relational) CreateArticle(ctx context.Context, article ArchivedURL) (ArchivedURL, error) {
	existing, err := r.GetArticle(ctx, article.ItemID)
	if err == nil {
		return existing, nil
	}
	if err != ErrNotFound {
		return ArchivedURL{}, err
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO archived_urls (url, item_id, name, created_at) VALUES (?, ?, ?, ?)`,
		article.URL, article.ItemID, nullString(article.Name), time.Now())
	if err != nil {
		return ArchivedURL{}, fmt.Errorf("db: failed to insert archived_url: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return ArchivedURL{}, fmt.Errorf("db: failed to read inserted id: %w", err)
	}
	return r.getArticleByID(ctx, id)
}

// GetArticleByID looks up an ArchivedURL by its numeric primary key.
func (r *Relational) GetArticleByID(ctx context.Context, id int64) (ArchivedURL, error) {
	return r.getArticleByID(ctx, id)
}

func (r *Relational) getArticleByID(ctx context.Context, id int64) (ArchivedURL, error) {
	return r.scanArticle(r.db.QueryRowContext(ctx,
		`SELECT id, url, item_id, name, created_at, total_size_bytes FROM archived_urls WHERE id = ?`, id))
}

func (r *Relational) GetArticle(ctx context.Context, itemID string) (ArchivedURL, error) {
	return r.scanArticle(r.db.QueryRowContext(ctx,
		`SELECT id, url, item_id, name, created_at, total_size_bytes FROM archived_urls WHERE item_id = ?`, itemID))
}

func (r *Relational) GetArticleByURL(ctx context.Context, url string) (ArchivedURL, error) {
	return r.scanArticle(r.db.QueryRowContext(ctx,
		`SELECT id, url, item_id, name, created_at, total_size_bytes FROM archived_urls WHERE url = ?`, url))
}

func (r *Relational) scanArticle(row *sql.Row) (ArchivedURL, error) {
	var a ArchivedURL
	var name sql.NullString
	if err := row.Scan(&a.ID, &a.URL, &a.ItemID, &name, &a.CreatedAt, &a.TotalSizeBytes); err != nil {
		if err == sql.ErrNoRows {
			return ArchivedURL{}, ErrNotFound
		}
		return ArchivedURL{}, fmt.Errorf("db: failed to scan archived_url: %w", err)
	}
	a.Name = name.String
	return a, nil
}

func (r *Relational) ListArticles(ctx context.Context, limit, offset int) ([]ArchivedURL, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, url, item_id, name, created_at, total_size_bytes FROM archived_urls ORDER BY id DESC LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("db: failed to list archived_urls: %w", err)
	}
	defer rows.Close()

	var out []ArchivedURL
	for rows.Next() {
		var a ArchivedURL
		var name sql.NullString
		if err := rows.Scan(&a.ID, &a.URL, &a.ItemID, &name, &a.CreatedAt, &a.TotalSizeBytes); err != nil {
			return nil, fmt.Errorf("db: failed to scan archived_url row: %w", err)
		}
		a.Name = name.String
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *Relational) GetArtifact(ctx context.Context, itemID, archiver string) (ArchiveArtifact, error) {
	article, err := r.GetArticle(ctx, itemID)
	if err != nil {
		return ArchiveArtifact{}, err
	}
	return r.getArtifactByURLAndArchiver(ctx, article.ID, archiver)
}

func (r *Relational) getArtifactByURLAndArchiver(ctx context.Context, archivedURLID int64, archiver string) (ArchiveArtifact, error) {
	a, err := r.scanArtifact(r.db.QueryRowContext(ctx, artifactSelect+` WHERE archived_url_id = ? AND archiver = ?`, archivedURLID, archiver))
	if err != nil {
		return ArchiveArtifact{}, err
	}
	a.StorageUploads, err = r.listUploads(ctx, a.ID)
	return a, err
}

const artifactSelect = `SELECT id, archived_url_id, archiver, success, exit_code, saved_path, size_bytes, status, task_id,
	uploaded_to_storage, all_uploads_succeeded, local_file_deleted, local_file_deleted_at, created_at, updated_at
	FROM archive_artifacts`

func (r *Relational) scanArtifact(row *sql.Row) (ArchiveArtifact, error) {
	var a ArchiveArtifact
	var exitCode sql.NullInt64
	var savedPath sql.NullString
	var sizeBytes sql.NullInt64
	var taskID sql.NullString
	var deletedAt sql.NullTime
	var updatedAt sql.NullTime
	if err := row.Scan(&a.ID, &a.ArchivedURLID, &a.Archiver, &a.Success, &exitCode, &savedPath, &sizeBytes, &a.Status,
		&taskID, &a.UploadedToStorage, &a.AllUploadsSucceeded, &a.LocalFileDeleted, &deletedAt, &a.CreatedAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return ArchiveArtifact{}, ErrNotFound
		}
		return ArchiveArtifact{}, fmt.Errorf("db: failed to scan archive_artifact: %w", err)
	}
	if exitCode.Valid {
		v := int(exitCode.Int64)
		a.ExitCode = &v
	}
	a.SavedPath = savedPath.String
	if sizeBytes.Valid {
		a.SizeBytes = &sizeBytes.Int64
	}
	a.TaskID = taskID.String
	if deletedAt.Valid {
		a.LocalFileDeletedAt = &deletedAt.Time
	}
	if updatedAt.Valid {
		a.UpdatedAt = &updatedAt.Time
	}
	return a, nil
}

func (r *Relational) ListArtifacts(ctx context.Context, itemID string) ([]ArchiveArtifact, error) {
	article, err := r.GetArticle(ctx, itemID)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, artifactSelect+` WHERE archived_url_id = ? ORDER BY archiver`, article.ID)
	if err != nil {
		return nil, fmt.Errorf("db: failed to list artifacts: %w", err)
	}
	defer rows.Close()

	var out []ArchiveArtifact
	for rows.Next() {
		var a ArchiveArtifact
		var exitCode sql.NullInt64
		var savedPath sql.NullString
		var sizeBytes sql.NullInt64
		var taskID sql.NullString
		var deletedAt sql.NullTime
		var updatedAt sql.NullTime
		if err := rows.Scan(&a.ID, &a.ArchivedURLID, &a.Archiver, &a.Success, &exitCode, &savedPath, &sizeBytes, &a.Status,
			&taskID, &a.UploadedToStorage, &a.AllUploadsSucceeded, &a.LocalFileDeleted, &deletedAt, &a.CreatedAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("db: failed to scan artifact row: %w", err)
		}
		if exitCode.Valid {
			v := int(exitCode.Int64)
			a.ExitCode = &v
		}
		a.SavedPath = savedPath.String
		if sizeBytes.Valid {
			a.SizeBytes = &sizeBytes.Int64
		}
		a.TaskID = taskID.String
		if deletedAt.Valid {
			a.LocalFileDeletedAt = &deletedAt.Time
		}
		if updatedAt.Valid {
			a.UpdatedAt = &updatedAt.Time
		}
		uploads, err := r.listUploads(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		a.StorageUploads = uploads
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *Relational) listUploads(ctx context.Context, artifactID int64) ([]StorageUploadRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT artifact_id, provider_name, success, storage_uri, original_size, stored_size, compression_ratio, uploaded_at, error
		 FROM storage_uploads WHERE artifact_id = ? ORDER BY id`, artifactID)
	if err != nil {
		return nil, fmt.Errorf("db: failed to list storage_uploads: %w", err)
	}
	defer rows.Close()

	var out []StorageUploadRecord
	for rows.Next() {
		var u StorageUploadRecord
		var uri, errText sql.NullString
		var orig, stored sql.NullInt64
		var ratio sql.NullFloat64
		var uploadedAt sql.NullTime
		if err := rows.Scan(&u.ArtifactID, &u.ProviderName, &u.Success, &uri, &orig, &stored, &ratio, &uploadedAt, &errText); err != nil {
			return nil, fmt.Errorf("db: failed to scan storage_upload row: %w", err)
		}
		u.StorageURI = uri.String
		if orig.Valid {
			u.OriginalSize = &orig.Int64
		}
		if stored.Valid {
			u.StoredSize = &stored.Int64
		}
		if ratio.Valid {
			u.CompressionRatio = &ratio.Float64
		}
		if uploadedAt.Valid {
			u.UploadedAt = &uploadedAt.Time
		}
		u.Error = errText.String
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *Relational) UpsertPendingArtifact(ctx context.Context, archivedURLID int64, archiver, taskID string) (ArchiveArtifact, error) {
	existing, err := r.getArtifactByURLAndArchiver(ctx, archivedURLID, archiver)
	if err == nil {
		return existing, nil
	}
	if err != ErrNotFound {
		return ArchiveArtifact{}, err
	}

	now := time.Now()
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO archive_artifacts (archived_url_id, archiver, status, task_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		archivedURLID, archiver, StatusPending, nullString(taskID), now)
	if err != nil {
		return ArchiveArtifact{}, fmt.Errorf("db: failed to insert pending artifact: %w", err)
	}
	return r.getArtifactByURLAndArchiver(ctx, archivedURLID, archiver)
}

// UpdateArtifactStatus writes a terminal outcome. It rejects StatusPending, so a terminal
// status is never silently replaced with pending here; RequeueArtifact is the only path
// that resets status, by design (spec §8 monotonic-status invariant).
func (r *Relational) UpdateArtifactStatus(ctx context.Context, u ArtifactStatusUpdate) error {
	if u.Status == StatusPending {
		return fmt.Errorf("db: UpdateArtifactStatus cannot set artifact %d to pending; use RequeueArtifact", u.ArtifactID)
	}
	now := time.Now()
	var exitCode sql.NullInt64
	if u.ExitCode != nil {
		exitCode = sql.NullInt64{Int64: int64(*u.ExitCode), Valid: true}
	}
	var sizeBytes sql.NullInt64
	if u.SizeBytes != nil {
		sizeBytes = sql.NullInt64{Int64: *u.SizeBytes, Valid: true}
	}

	args := []any{u.Status, u.Success, exitCode, nullString(u.SavedPath), sizeBytes, now}
	set := `status = ?, success = ?, exit_code = ?, saved_path = ?, size_bytes = ?, updated_at = ?`
	if u.UploadedToStorage != nil {
		set += `, uploaded_to_storage = ?`
		args = append(args, *u.UploadedToStorage)
	}
	args = append(args, u.ArtifactID)

	res, err := r.db.ExecContext(ctx, `UPDATE archive_artifacts SET `+set+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("db: failed to update artifact %d: %w", u.ArtifactID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if u.SizeBytes != nil {
		if err := r.recomputeTotalSize(ctx, u.ArtifactID); err != nil {
			return err
		}
	}
	return nil
}

// recomputeTotalSize keeps ArchivedUrl.total_size_bytes equal to the sum of size_bytes
// over its successful artifacts, per the size-consistency invariant.
func (r *Relational) recomputeTotalSize(ctx context.Context, artifactID int64) error {
	var archivedURLID int64
	if err := r.db.QueryRowContext(ctx, `SELECT archived_url_id FROM archive_artifacts WHERE id = ?`, artifactID).Scan(&archivedURLID); err != nil {
		return fmt.Errorf("db: failed to resolve archived_url_id for artifact %d: %w", artifactID, err)
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE archived_urls SET total_size_bytes = (
			SELECT COALESCE(SUM(size_bytes), 0) FROM archive_artifacts
			WHERE archived_url_id = ? AND status = ? AND size_bytes IS NOT NULL
		) WHERE id = ?`, archivedURLID, StatusSuccess, archivedURLID)
	if err != nil {
		return fmt.Errorf("db: failed to recompute total_size_bytes for %d: %w", archivedURLID, err)
	}
	return nil
}

func (r *Relational) RecordStorageUploads(ctx context.Context, artifactID int64, uploads []StorageUploadRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("db: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM storage_uploads WHERE artifact_id = ?`, artifactID); err != nil {
		return fmt.Errorf("db: failed to clear prior storage_uploads for %d: %w", artifactID, err)
	}

	allOK := len(uploads) > 0
	for _, u := range uploads {
		var orig, stored sql.NullInt64
		if u.OriginalSize != nil {
			orig = sql.NullInt64{Int64: *u.OriginalSize, Valid: true}
		}
		if u.StoredSize != nil {
			stored = sql.NullInt64{Int64: *u.StoredSize, Valid: true}
		}
		var ratio sql.NullFloat64
		if u.CompressionRatio != nil {
			ratio = sql.NullFloat64{Float64: *u.CompressionRatio, Valid: true}
		}
		uploadedAt := time.Now()
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO storage_uploads (artifact_id, provider_name, success, storage_uri, original_size, stored_size, compression_ratio, uploaded_at, error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			artifactID, u.ProviderName, u.Success, nullString(u.StorageURI), orig, stored, ratio, uploadedAt, nullString(u.Error)); err != nil {
			return fmt.Errorf("db: failed to insert storage_upload for %s: %w", u.ProviderName, err)
		}
		allOK = allOK && u.Success
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE archive_artifacts SET uploaded_to_storage = ?, all_uploads_succeeded = ?, updated_at = ? WHERE id = ?`,
		len(uploads) > 0, allOK, time.Now(), artifactID); err != nil {
		return fmt.Errorf("db: failed to update upload flags for %d: %w", artifactID, err)
	}

	return tx.Commit()
}

func (r *Relational) MarkLocalFileDeleted(ctx context.Context, artifactID int64) error {
	now := time.Now()
	res, err := r.db.ExecContext(ctx,
		`UPDATE archive_artifacts SET local_file_deleted = 1, local_file_deleted_at = ?, updated_at = ? WHERE id = ? AND all_uploads_succeeded = 1`,
		now, now, artifactID)
	if err != nil {
		return fmt.Errorf("db: failed to mark artifact %d cleaned: %w", artifactID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("db: artifact %d is not eligible for cleanup: %w", artifactID, ErrNotFound)
	}
	return nil
}

// RequeueArtifact is the only operation allowed to move a terminal artifact back to
// pending (spec §4.6's explicit requeue transition).
func (r *Relational) RequeueArtifact(ctx context.Context, artifactID int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE archive_artifacts SET status = ?, success = 0, exit_code = NULL, saved_path = NULL, size_bytes = NULL,
			uploaded_to_storage = 0, all_uploads_succeeded = 0, local_file_deleted = 0, local_file_deleted_at = NULL, updated_at = ?
		WHERE id = ?`, StatusPending, time.Now(), artifactID)
	if err != nil {
		return fmt.Errorf("db: failed to requeue artifact %d: %w", artifactID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM storage_uploads WHERE artifact_id = ?`, artifactID); err != nil {
		return fmt.Errorf("db: failed to clear storage_uploads for requeue of %d: %w", artifactID, err)
	}
	return r.recomputeTotalSize(ctx, artifactID)
}

func (r *Relational) UpdateArticleMetadata(ctx context.Context, meta URLMetadata) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO url_metadata (archived_url_id, title, byline, text, word_count, reading_time_minutes)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(archived_url_id) DO UPDATE SET
			title = excluded.title, byline = excluded.byline, text = excluded.text,
			word_count = excluded.word_count, reading_time_minutes = excluded.reading_time_minutes`,
		meta.ArchivedURLID, meta.Title, meta.Byline, meta.Text, meta.WordCount, meta.ReadingTimeMinutes)
	if err != nil {
		return fmt.Errorf("db: failed to upsert url_metadata for %d: %w", meta.ArchivedURLID, err)
	}
	return nil
}

func (r *Relational) DeleteArtifactByRowID(ctx context.Context, rowid int64) (ArchiveArtifact, error) {
	a, err := r.scanArtifact(r.db.QueryRowContext(ctx, artifactSelect+` WHERE id = ?`, rowid))
	if err != nil {
		return ArchiveArtifact{}, err
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM archive_artifacts WHERE id = ?`, rowid); err != nil {
		return ArchiveArtifact{}, fmt.Errorf("db: failed to delete artifact %d: %w", rowid, err)
	}
	return a, nil
}

func (r *Relational) DeleteArtifactsByItem(ctx context.Context, itemID string) ([]ArchiveArtifact, error) {
	article, err := r.GetArticle(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return r.deleteArtifactsByArchivedURLID(ctx, article.ID)
}

func (r *Relational) DeleteArtifactsByURL(ctx context.Context, url string) ([]ArchiveArtifact, error) {
	article, err := r.GetArticleByURL(ctx, url)
	if err != nil {
		return nil, err
	}
	return r.deleteArtifactsByArchivedURLID(ctx, article.ID)
}

func (r *Relational) deleteArtifactsByArchivedURLID(ctx context.Context, archivedURLID int64) ([]ArchiveArtifact, error) {
	rows, qerr := r.db.QueryContext(ctx, artifactSelect+` WHERE archived_url_id = ?`, archivedURLID)
	if qerr != nil {
		return nil, fmt.Errorf("db: failed to list artifacts for deletion: %w", qerr)
	}
	var out []ArchiveArtifact
	for rows.Next() {
		a, serr := scanArtifactRow(rows)
		if serr != nil {
			rows.Close()
			return nil, serr
		}
		out = append(out, a)
	}
	rows.Close()

	if _, err := r.db.ExecContext(ctx, `DELETE FROM archive_artifacts WHERE archived_url_id = ?`, archivedURLID); err != nil {
		return nil, fmt.Errorf("db: failed to delete artifacts for archived_url %d: %w", archivedURLID, err)
	}
	return out, nil
}

func scanArtifactRow(rows *sql.Rows) (ArchiveArtifact, error) {
	var a ArchiveArtifact
	var exitCode sql.NullInt64
	var savedPath sql.NullString
	var sizeBytes sql.NullInt64
	var taskID sql.NullString
	var deletedAt sql.NullTime
	var updatedAt sql.NullTime
	if err := rows.Scan(&a.ID, &a.ArchivedURLID, &a.Archiver, &a.Success, &exitCode, &savedPath, &sizeBytes, &a.Status,
		&taskID, &a.UploadedToStorage, &a.AllUploadsSucceeded, &a.LocalFileDeleted, &deletedAt, &a.CreatedAt, &updatedAt); err != nil {
		return ArchiveArtifact{}, fmt.Errorf("db: failed to scan artifact row: %w", err)
	}
	if exitCode.Valid {
		v := int(exitCode.Int64)
		a.ExitCode = &v
	}
	a.SavedPath = savedPath.String
	if sizeBytes.Valid {
		a.SizeBytes = &sizeBytes.Int64
	}
	a.TaskID = taskID.String
	if deletedAt.Valid {
		a.LocalFileDeletedAt = &deletedAt.Time
	}
	if updatedAt.Valid {
		a.UpdatedAt = &updatedAt.Time
	}
	return a, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// --- command.Logger implementation ---
//
// The relational catalog is also where CommandExecution/CommandOutputLine rows live;
// the document store never sees them (they are operational telemetry, not article data,
// so dual persistence does not fan them out).

var _ command.Logger = (*Relational)(nil)

func (r *Relational) CreateExecution(ctx context.Context, e command.Execution) (int64, error) {
	var archivedURLID sql.NullInt64
	if e.ArchivedURL != nil {
		archivedURLID = sql.NullInt64{Int64: *e.ArchivedURL, Valid: true}
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO command_executions (command, start_time, timeout_seconds, timed_out, archived_url_id, archiver)
		VALUES (?, ?, ?, 0, ?, ?)`,
		e.Command, e.StartTime, e.Timeout.Seconds(), archivedURLID, nullString(e.Archiver))
	if err != nil {
		return 0, fmt.Errorf("db: failed to insert command_execution: %w", err)
	}
	return res.LastInsertId()
}

func (r *Relational) AppendOutputLine(ctx context.Context, line command.OutputLine) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO command_output_lines (execution_id, timestamp, stream, line, line_number)
		VALUES (?, ?, ?, ?, ?)`,
		line.ExecutionID, line.Timestamp, string(line.Stream), line.Line, line.LineNumber)
	if err != nil {
		return fmt.Errorf("db: failed to insert command_output_line: %w", err)
	}
	return nil
}

func (r *Relational) FinalizeExecution(ctx context.Context, executionID int64, endTime time.Time, exitCode *int, timedOut bool) error {
	var code sql.NullInt64
	if exitCode != nil {
		code = sql.NullInt64{Int64: int64(*exitCode), Valid: true}
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE command_executions SET end_time = ?, exit_code = ?, timed_out = ? WHERE id = ?`,
		endTime, code, timedOut, executionID)
	if err != nil {
		return fmt.Errorf("db: failed to finalize command_execution %d: %w", executionID, err)
	}
	return nil
}

func (r *Relational) GetExecution(ctx context.Context, executionID int64) (command.Execution, error) {
	var e command.Execution
	var endTime sql.NullTime
	var exitCode sql.NullInt64
	var timeoutSeconds sql.NullFloat64
	var archivedURLID sql.NullInt64
	var archiver sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT id, command, start_time, end_time, exit_code, timeout_seconds, timed_out, archived_url_id, archiver
		FROM command_executions WHERE id = ?`, executionID).
		Scan(&e.ID, &e.Command, &e.StartTime, &endTime, &exitCode, &timeoutSeconds, &e.TimedOut, &archivedURLID, &archiver)
	if err != nil {
		if err == sql.ErrNoRows {
			return command.Execution{}, ErrNotFound
		}
		return command.Execution{}, fmt.Errorf("db: failed to scan command_execution %d: %w", executionID, err)
	}
	if endTime.Valid {
		e.EndTime = &endTime.Time
	}
	if exitCode.Valid {
		v := int(exitCode.Int64)
		e.ExitCode = &v
	}
	if timeoutSeconds.Valid {
		e.Timeout = time.Duration(timeoutSeconds.Float64 * float64(time.Second))
	}
	if archivedURLID.Valid {
		e.ArchivedURL = &archivedURLID.Int64
	}
	e.Archiver = archiver.String
	return e, nil
}

func (r *Relational) GetOutputLines(ctx context.Context, executionID int64) ([]command.OutputLine, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT execution_id, timestamp, stream, line, line_number FROM command_output_lines
		WHERE execution_id = ? ORDER BY stream, line_number`, executionID)
	if err != nil {
		return nil, fmt.Errorf("db: failed to list command_output_lines for %d: %w", executionID, err)
	}
	defer rows.Close()

	var out []command.OutputLine
	for rows.Next() {
		var l command.OutputLine
		var stream string
		if err := rows.Scan(&l.ExecutionID, &l.Timestamp, &stream, &l.Line, &l.LineNumber); err != nil {
			return nil, fmt.Errorf("db: failed to scan command_output_line: %w", err)
		}
		l.Stream = command.Stream(stream)
		out = append(out, l)
	}
	return out, rows.Err()
}
