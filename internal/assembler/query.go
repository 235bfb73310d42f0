package assembler

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/lanedirt/AliasVault-sub004/internal/common"
	"github.com/lanedirt/AliasVault-sub004/internal/models"
)

// BlobMarker prefixes a string parameter carrying base64 data that must be
// bound as a BLOB.
const BlobMarker = "av-base64-to-blob:"

// Row maps column names to nil, int64, float64, string or []byte.
type Row map[string]any

// BlobParam returns the marked string form of b.
func BlobParam(b []byte) string {
	return BlobMarker + base64.StdEncoding.EncodeToString(b)
}

func bindParams(params []any) ([]any, error) {
	args := make([]any, len(params))
	for i, p := range params {
		s, ok := p.(string)
		if !ok || !strings.HasPrefix(s, BlobMarker) {
			args[i] = p
			continue
		}
		b, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(s, BlobMarker))
		if err != nil {
			return nil, fmt.Errorf("invalid blob parameter %d: %v", i+1, err)
		}
		args[i] = b
	}
	return args, nil
}

func normalize(v any) any {
	switch t := v.(type) {
	case time.Time:
		return models.FormatTimestamp(t)
	case bool:
		if t {
			return int64(1)
		}
		return int64(0)
	case int:
		return int64(t)
	default:
		return v
	}
}

// Query runs a read statement and returns every row.
func (h *Handle) Query(ctx context.Context, query string, params ...any) ([]Row, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.conn == nil {
		return nil, common.ErrNotInitialized
	}

	args, err := bindParams(params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrQuery, err)
	}

	rows, err := h.conn.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrQuery, err)
	}
	defer rows.Close()

	result := []Row{}
	for rows.Next() {
		m := map[string]any{}
		if err := rows.MapScan(m); err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrQuery, err)
		}
		for k, v := range m {
			m[k] = normalize(v)
		}
		result = append(result, Row(m))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrQuery, err)
	}
	return result, nil
}

// Select scans every row of query into dest, a pointer to a slice of
// structs with db tags.
func (h *Handle) Select(ctx context.Context, dest any, query string, params ...any) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.conn == nil {
		return common.ErrNotInitialized
	}

	args, err := bindParams(params)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrQuery, err)
	}

	if err := h.conn.SelectContext(ctx, dest, query, args...); err != nil {
		return fmt.Errorf("%w: %v", common.ErrQuery, err)
	}
	return nil
}

// Execute runs a mutating statement and returns SQLite's changes() count.
func (h *Handle) Execute(ctx context.Context, query string, params ...any) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.conn == nil {
		return 0, common.ErrNotInitialized
	}

	args, err := bindParams(params)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", common.ErrUpdate, err)
	}

	if _, err := h.conn.ExecContext(ctx, query, args...); err != nil {
		return 0, fmt.Errorf("%w: %v", common.ErrUpdate, err)
	}

	var changes int64
	if err := h.conn.QueryRowContext(ctx, `SELECT changes()`).Scan(&changes); err != nil {
		return 0, fmt.Errorf("%w: %v", common.ErrUpdate, err)
	}
	return changes, nil
}

func isTxStatement(stmt string) bool {
	s := strings.ToUpper(strings.Join(strings.Fields(stmt), " "))
	return strings.HasPrefix(s, "BEGIN TRANSACTION") ||
		s == "BEGIN" ||
		strings.HasPrefix(s, "COMMIT") ||
		strings.HasPrefix(s, "ROLLBACK")
}

// ExecuteRaw runs a script of ';'-separated statements. Transaction control
// statements in the script are skipped; the caller brackets the script.
func (h *Handle) ExecuteRaw(ctx context.Context, script string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.conn == nil {
		return common.ErrNotInitialized
	}

	for _, stmt := range strings.Split(script, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" || isTxStatement(stmt) {
			continue
		}
		if _, err := h.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: %v", common.ErrUpdate, err)
		}
	}
	return nil
}

// Begin opens a transaction. Transactions do not nest.
func (h *Handle) Begin(ctx context.Context) error {
	return h.txStatement(ctx, "BEGIN TRANSACTION", false, true)
}

// Commit ends the open transaction, keeping its effects.
func (h *Handle) Commit(ctx context.Context) error {
	return h.txStatement(ctx, "COMMIT", true, false)
}

// Rollback ends the open transaction, discarding its effects.
func (h *Handle) Rollback(ctx context.Context) error {
	return h.txStatement(ctx, "ROLLBACK", true, false)
}

func (h *Handle) txStatement(ctx context.Context, stmt string, wantTx, nextTx bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.conn == nil {
		return common.ErrNotInitialized
	}
	if h.inTx != wantTx {
		if wantTx {
			return fmt.Errorf("%w: no active transaction", common.ErrUpdate)
		}
		return fmt.Errorf("%w: transaction already active", common.ErrUpdate)
	}

	if _, err := h.conn.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("%w: %v", common.ErrUpdate, err)
	}
	h.inTx = nextTx
	return nil
}
