// Package assembler materializes a vault database image into a private
// in-memory SQLite database and exposes the raw query surface over it.
//
// An image is loaded by attaching it from a short-lived 0600 temp file and
// copying its schema and rows into the in-memory database; the file is
// zeroed and removed before Load returns. Export uses SQLite's native
// serialize API on the pinned connection.
package assembler

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/lanedirt/AliasVault-sub004/internal/common"
	"github.com/lanedirt/AliasVault-sub004/internal/migrations"

	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

var sqliteHeader = []byte("SQLite format 3\x00")

// tempDir is where Load stages images; "" means os.TempDir.
var tempDir = ""

type serializer interface {
	Serialize() ([]byte, error)
}

// Handle is one live in-memory vault database.
type Handle struct {
	mu   sync.Mutex
	db   *sqlx.DB
	conn *sqlx.Conn
	inTx bool
}

func openMemory(ctx context.Context) (*sqlx.DB, *sqlx.Conn, error) {
	db, err := sqlx.Open(driverName, ":memory:")
	if err != nil {
		return nil, nil, err
	}
	// every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)

	conn, err := db.Connx(ctx)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return db, conn, nil
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", common.ErrCorruptVault, fmt.Sprintf(format, args...))
}

// Load builds a fresh in-memory database from image. It fails with
// common.ErrCorruptVault when the image cannot be opened or holds no tables.
func Load(ctx context.Context, image []byte) (*Handle, error) {
	if len(image) < 100 || !bytes.HasPrefix(image, sqliteHeader) {
		return nil, corrupt("not a database image")
	}

	img := common.CloneBytes(image)
	defer common.WipeByteArray(img)
	// keep the staged file in rollback-journal mode so no -wal/-shm appear
	if img[18] == 2 || img[19] == 2 {
		img[18], img[19] = 1, 1
	}

	path, err := stageImage(img)
	if err != nil {
		return nil, fmt.Errorf("%w: stage image: %v", common.ErrStorage, err)
	}
	defer scrubFile(path, len(img))

	db, conn, err := openMemory(ctx)
	if err != nil {
		return nil, corrupt("open: %v", err)
	}
	h := &Handle{db: db, conn: conn}

	tables, err := copyAttached(ctx, conn, path)
	if err != nil {
		h.Dispose()
		return nil, corrupt("read image: %v", err)
	}
	if tables == 0 {
		h.Dispose()
		return nil, corrupt("no tables found")
	}

	return h, nil
}

// stageImage writes img to a new temp file (created 0600) and returns its path.
func stageImage(img []byte) (string, error) {
	f, err := os.CreateTemp(tempDir, "vault-*.db")
	if err != nil {
		return "", err
	}
	if _, err := f.Write(img); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// scrubFile overwrites the staged plaintext with zeros before removing it.
func scrubFile(path string, size int) {
	_ = os.WriteFile(path, make([]byte, size), 0o600)
	_ = os.Remove(path)
}

type schemaObject struct {
	Type string `db:"type"`
	Name string `db:"name"`
	SQL  string `db:"sql"`
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// copyAttached attaches the database at path as "src", recreates its tables
// in main, copies their rows and then recreates indexes, views and triggers.
// It returns the number of user tables copied.
func copyAttached(ctx context.Context, conn *sqlx.Conn, path string) (n int, err error) {
	if _, err := conn.ExecContext(ctx, `ATTACH DATABASE ? AS src`, path); err != nil {
		return 0, err
	}
	defer func() {
		if _, derr := conn.ExecContext(context.WithoutCancel(ctx), `DETACH DATABASE src`); derr != nil && err == nil {
			err = derr
		}
	}()

	var objects []schemaObject
	err = conn.SelectContext(ctx, &objects,
		`SELECT type, name, sql FROM src.sqlite_master
		 WHERE sql IS NOT NULL AND name NOT LIKE 'sqlite_%'
		 ORDER BY CASE type WHEN 'table' THEN 0 WHEN 'index' THEN 1 WHEN 'view' THEN 2 ELSE 3 END, rowid`)
	if err != nil {
		return 0, err
	}

	if _, err := conn.ExecContext(ctx, `BEGIN`); err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_, _ = conn.ExecContext(context.WithoutCancel(ctx), `ROLLBACK`)
		}
	}()

	// triggers are created after the rows so they do not fire on the copy
	for _, o := range objects {
		if o.Type != "table" {
			continue
		}
		if _, err = conn.ExecContext(ctx, o.SQL); err != nil {
			return 0, fmt.Errorf("create %s: %w", o.Name, err)
		}
		q := fmt.Sprintf(`INSERT INTO main.%[1]s SELECT * FROM src.%[1]s`, quoteIdent(o.Name))
		if _, err = conn.ExecContext(ctx, q); err != nil {
			return 0, fmt.Errorf("copy %s: %w", o.Name, err)
		}
		n++
	}
	if err = copySequence(ctx, conn); err != nil {
		return 0, err
	}
	for _, o := range objects {
		if o.Type == "table" {
			continue
		}
		if _, err = conn.ExecContext(ctx, o.SQL); err != nil {
			return 0, fmt.Errorf("create %s %s: %w", o.Type, o.Name, err)
		}
	}

	var userVersion int64
	if err = conn.QueryRowContext(ctx, `PRAGMA src.user_version`).Scan(&userVersion); err != nil {
		return 0, err
	}
	if _, err = conn.ExecContext(ctx, fmt.Sprintf(`PRAGMA main.user_version = %d`, userVersion)); err != nil {
		return 0, err
	}

	if _, err = conn.ExecContext(ctx, `COMMIT`); err != nil {
		return 0, err
	}
	return n, nil
}

// copySequence carries AUTOINCREMENT counters over when the image has them.
func copySequence(ctx context.Context, conn *sqlx.Conn) error {
	var has int
	err := conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM src.sqlite_master WHERE name = 'sqlite_sequence'`).Scan(&has)
	if err != nil || has == 0 {
		return err
	}
	_, err = conn.ExecContext(ctx,
		`INSERT INTO main.sqlite_sequence (name, seq) SELECT name, seq FROM src.sqlite_sequence`)
	return err
}

// NewEmpty returns the image of an empty vault with the current schema.
func NewEmpty(ctx context.Context) ([]byte, error) {
	db, err := sql.Open(driverName, ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	if err := migrations.RunVault(ctx, db); err != nil {
		return nil, err
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}
	defer conn.Close()

	return serialize(conn)
}

func serialize(conn *sql.Conn) ([]byte, error) {
	var image []byte
	err := conn.Raw(func(driverConn any) error {
		s, ok := driverConn.(serializer)
		if !ok {
			return errors.New("driver does not support serialize")
		}
		var err error
		image, err = s.Serialize()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to serialize database: %w", err)
	}
	return image, nil
}

// IsOpen reports whether the handle still holds a database.
func (h *Handle) IsOpen() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conn != nil
}

// InTransaction reports whether Begin was called without a matching
// Commit or Rollback.
func (h *Handle) InTransaction() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.inTx
}

// Export serializes the database into a standalone image.
func (h *Handle) Export(ctx context.Context) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.conn == nil {
		return nil, common.ErrNotInitialized
	}
	if h.inTx {
		return nil, fmt.Errorf("%w: cannot export during a transaction", common.ErrUpdate)
	}
	return serialize(h.conn.Conn)
}

// Dispose releases the database. It is safe to call more than once.
func (h *Handle) Dispose() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.conn != nil {
		_ = h.conn.Close()
		h.conn = nil
	}
	if h.db != nil {
		_ = h.db.Close()
		h.db = nil
	}
	h.inTx = false
}
