package store

import (
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/tmshv/podmirror/internal"
)

//go:embed migrations/*.sql
var migrations embed.FS

type SqliteStore struct {
	logger *zap.SugaredLogger
	db     *sql.DB
}

func (s *SqliteStore) Close() error {
	return s.db.Close()
}

func (s *SqliteStore) setup() error {
	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{
		MigrationsTable: "migrations",
	})
	if err != nil {
		return err
	}

	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return err
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return err
	}
	err = m.Up()
	if err != nil {
		if err == migrate.ErrNoChange {
			s.logger.Debug("Nothing to migrate")
			return nil
		}
		return err
	}

	s.logger.Debug("Successfully migrated to the latest version")
	return nil
}

func (s *SqliteStore) StartRun(feedURL string, episodes int) (string, error) {
	stmt, err := s.db.Prepare(`
        INSERT INTO
        runs(id, feed_url, episodes, started_at)
        VALUES
        (?, ?, ?, ?)
    `)
	if err != nil {
		return "", err
	}
	defer stmt.Close()

	id := uuid.NewString()
	_, err = stmt.Exec(id, feedURL, episodes, time.Now().UTC())
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *SqliteStore) AddDownload(d internal.Download) error {
	stmt, err := s.db.Prepare(`
        INSERT OR REPLACE INTO
        downloads(run_id, identifier, url, path, status, bytes, error, finished_at)
        VALUES
        (?, ?, ?, ?, ?, ?, ?, ?)
    `)
	if err != nil {
		return err
	}
	defer stmt.Close()

	finishedAt := d.FinishedAt
	if finishedAt.IsZero() {
		finishedAt = time.Now().UTC()
	}
	_, err = stmt.Exec(d.RunID, d.Identifier, d.URL, d.Path, d.Status, d.Bytes, d.Error, finishedAt)
	return err
}

func (s *SqliteStore) FinishRun(runID string, succeeded int, failed int) error {
	stmt, err := s.db.Prepare(`
        UPDATE runs
        SET succeeded = ?, failed = ?, finished_at = ?
        WHERE id = ?
    `)
	if err != nil {
		return err
	}
	defer stmt.Close()

	res, err := stmt.Exec(succeeded, failed, time.Now().UTC(), runID)
	if err != nil {
		return err
	}

	x, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if x == 0 {
		return errors.Newf("run %s not found", runID)
	}
	return nil
}

func (s *SqliteStore) GetRun(runID string) (internal.Run, error) {
	var run internal.Run
	var finishedAt sql.NullTime
	row := s.db.QueryRow(`
        SELECT id, feed_url, episodes, succeeded, failed, started_at, finished_at
        FROM runs
        WHERE id = ?
        LIMIT 1
        ;
    `, runID)
	err := row.Scan(
		&run.ID,
		&run.FeedURL,
		&run.Episodes,
		&run.Succeeded,
		&run.Failed,
		&run.StartedAt,
		&finishedAt,
	)
	if err != nil {
		return internal.Run{}, err
	}
	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}
	return run, nil
}

func (s *SqliteStore) GetRunDownloads(runID string) ([]internal.Download, error) {
	result := make([]internal.Download, 0)
	rows, err := s.db.Query(`
        SELECT
            run_id,
            identifier,
            url,
            path,
            status,
            bytes,
            error,
            finished_at
        FROM downloads
        WHERE run_id = ?
        ORDER BY identifier
        ;
    `, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var d internal.Download
		err := rows.Scan(
			&d.RunID,
			&d.Identifier,
			&d.URL,
			&d.Path,
			&d.Status,
			&d.Bytes,
			&d.Error,
			&d.FinishedAt,
		)
		if err != nil {
			s.logger.Warnw("Failed to get row", "error", err)
			continue
		}
		result = append(result, d)
	}

	return result, rows.Err()
}

func NewSqliteStore(dbpath string, logger *zap.SugaredLogger) (*SqliteStore, error) {
	// Connect to the SQLite database.
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=on", dbpath))
	if err != nil {
		return nil, err
	}
	// downloads are recorded from many transfer goroutines
	db.SetMaxOpenConns(1)

	store := SqliteStore{
		db:     db,
		logger: logger,
	}

	err = store.setup()
	if err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "migrate %s", dbpath)
	}

	return &store, nil
}
