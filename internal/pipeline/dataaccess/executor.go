// internal/pipeline/dataaccess/executor.go
package dataaccess

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	stderrors "nycdb-insight/internal/common/errors"
	"nycdb-insight/internal/common/logger"
	"nycdb-insight/internal/common/metrics"
	"nycdb-insight/internal/pipeline/compiler"
)

// ResultSet is the generic row payload every downstream stage consumes. Rows
// keep column order out of the picture on purpose; the analyzer addresses
// columns by name.
type ResultSet struct {
	Rows     []map[string]interface{} `json:"rows"`
	RowCount int                      `json:"rowCount"`
	Cached   bool                     `json:"-"`
}

// Options tunes the executor.
type Options struct {
	QueryTimeout time.Duration
	CacheTTL     time.Duration
}

func (o *Options) applyDefaults() {
	if o.QueryTimeout <= 0 {
		o.QueryTimeout = 30 * time.Second
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = 2 * time.Minute
	}
}

// Executor runs compiled queries against the dataset store. A nil cache
// client disables caching entirely.
type Executor struct {
	db     *sql.DB
	cache  *redis.Client
	opts   Options
	logger logger.Logger
}

func NewExecutor(db *sql.DB, cache *redis.Client, opts Options, log logger.Logger) *Executor {
	opts.applyDefaults()
	return &Executor{
		db:     db,
		cache:  cache,
		opts:   opts,
		logger: log.WithFields(map[string]interface{}{"stage": "dataaccess"}),
	}
}

// Execute runs the query under the configured timeout. Failures carry the
// query intent for diagnostics but never the SQL text or parameter values.
func (e *Executor) Execute(ctx context.Context, cq *compiler.CompiledQuery) (*ResultSet, error) {
	key := cacheKey(cq)

	if rs, ok := e.cacheGet(ctx, key); ok {
		metrics.CacheHits.WithLabelValues("hit").Inc()
		return rs, nil
	}
	if e.cache != nil {
		metrics.CacheHits.WithLabelValues("miss").Inc()
	}

	queryCtx, cancel := context.WithTimeout(ctx, e.opts.QueryTimeout)
	defer cancel()

	start := time.Now()
	rows, err := e.db.QueryContext(queryCtx, cq.SQL(), cq.Params...)
	if err != nil {
		if errors.Is(queryCtx.Err(), context.DeadlineExceeded) {
			e.logger.Error("query timed out", map[string]interface{}{
				"intent":    string(cq.Intent),
				"timeoutMs": e.opts.QueryTimeout.Milliseconds(),
			})
			return nil, stderrors.NewQueryTimeoutError(string(cq.Intent))
		}
		e.logger.Error("query failed", map[string]interface{}{
			"intent": string(cq.Intent),
			"error":  err.Error(),
		})
		return nil, stderrors.NewDataAccessError(string(cq.Intent), err)
	}
	defer rows.Close()

	rs, err := scanRows(rows)
	if err != nil {
		return nil, stderrors.NewDataAccessError(string(cq.Intent), err)
	}

	e.logger.Info("query executed", map[string]interface{}{
		"intent":     string(cq.Intent),
		"rowCount":   rs.RowCount,
		"durationMs": time.Since(start).Milliseconds(),
	})

	e.cacheSet(ctx, key, rs)
	return rs, nil
}

// scanRows materializes every row into a name-addressed map. Byte slices are
// converted to strings so cached and fresh results are interchangeable.
func scanRows(rows *sql.Rows) (*ResultSet, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	rs := &ResultSet{Rows: []map[string]interface{}{}}
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		row := make(map[string]interface{}, len(cols))
		for i, col := range cols {
			switch v := values[i].(type) {
			case []byte:
				row[col] = string(v)
			default:
				row[col] = v
			}
		}
		rs.Rows = append(rs.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	rs.RowCount = len(rs.Rows)
	return rs, nil
}

// cacheKey fingerprints the statement and its bound values. Two queries with
// the same SQL but different parameters never collide.
func cacheKey(cq *compiler.CompiledQuery) string {
	h := sha256.New()
	h.Write([]byte(cq.SQL()))
	for _, p := range cq.Params {
		fmt.Fprintf(h, "|%v", p)
	}
	return "query:result:" + hex.EncodeToString(h.Sum(nil))
}

func (e *Executor) cacheGet(ctx context.Context, key string) (*ResultSet, bool) {
	if e.cache == nil {
		return nil, false
	}
	val, err := e.cache.Get(ctx, key).Result()
	if err != nil {
		// Cache misses and cache outages look the same to callers.
		return nil, false
	}
	var rs ResultSet
	if err := json.Unmarshal([]byte(val), &rs); err != nil {
		return nil, false
	}
	rs.RowCount = len(rs.Rows)
	rs.Cached = true
	return &rs, true
}

func (e *Executor) cacheSet(ctx context.Context, key string, rs *ResultSet) {
	if e.cache == nil {
		return
	}
	data, err := json.Marshal(rs)
	if err != nil {
		return
	}
	if err := e.cache.Set(ctx, key, data, e.opts.CacheTTL).Err(); err != nil {
		e.logger.Warn("result cache write failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
