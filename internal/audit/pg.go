// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"medgateway/pkg/errors"
)

// PgSink Postgres 审计存储；生产部署用
type PgSink struct {
	pool *pgxpool.Pool

	// Append 必须全序化才能维护哈希链；网关单实例部署，进程内锁即可
	mu sync.Mutex
}

const createAuditTable = `
CREATE TABLE IF NOT EXISTS audit_records (
	seq            BIGSERIAL PRIMARY KEY,
	id             TEXT NOT NULL UNIQUE,
	correlation_id TEXT NOT NULL,
	subject_id     TEXT NOT NULL,
	role           TEXT NOT NULL,
	tool           TEXT NOT NULL,
	adapter        TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL,
	code           TEXT NOT NULL DEFAULT '',
	error_detail   TEXT NOT NULL DEFAULT '',
	anomaly        TEXT NOT NULL DEFAULT '',
	params         JSONB,
	result         JSONB,
	attempts       INT NOT NULL DEFAULT 0,
	latency_ms     BIGINT NOT NULL DEFAULT 0,
	regulated      BOOLEAN NOT NULL DEFAULT FALSE,
	started_at     TIMESTAMPTZ NOT NULL,
	finished_at    TIMESTAMPTZ NOT NULL,
	prev_hash      TEXT NOT NULL DEFAULT '',
	hash           TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_subject ON audit_records (subject_id, started_at);
CREATE INDEX IF NOT EXISTS idx_audit_correlation ON audit_records (correlation_id);
`

// NewPgSink 连接审计数据库并确保表存在
func NewPgSink(ctx context.Context, dsn string) (*PgSink, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.Wrap(errors.KindInfrastructure, "audit_store_init", "audit pool create failed", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(errors.KindInfrastructure, "audit_store_init", "audit database unreachable", err)
	}
	if _, err := pool.Exec(ctx, createAuditTable); err != nil {
		pool.Close()
		return nil, errors.Wrap(errors.KindInfrastructure, "audit_store_init", "audit schema migrate failed", err)
	}
	return &PgSink{pool: pool}, nil
}

// Append 实现 Sink；事务内读链尾、算哈希、插入
func (s *PgSink) Append(ctx context.Context, r *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.New().String()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(errors.KindInfrastructure, "audit_write_failed", "audit tx begin failed", errors.ErrAuditWrite)
	}
	defer tx.Rollback(ctx)

	var prev string
	err = tx.QueryRow(ctx, `SELECT hash FROM audit_records ORDER BY seq DESC LIMIT 1`).Scan(&prev)
	if err != nil && err != pgx.ErrNoRows {
		return errors.Wrap(errors.KindInfrastructure, "audit_write_failed",
			fmt.Sprintf("audit chain tail read failed: %v", err), errors.ErrAuditWrite)
	}
	r.PrevHash = prev
	r.Hash = ComputeRecordHash(*r)

	paramsJSON, err := json.Marshal(r.Params)
	if err != nil {
		return errors.Wrap(errors.KindInfrastructure, "audit_write_failed", "audit params marshal failed", errors.ErrAuditWrite)
	}
	resultJSON, err := json.Marshal(r.Result)
	if err != nil {
		return errors.Wrap(errors.KindInfrastructure, "audit_write_failed", "audit result marshal failed", errors.ErrAuditWrite)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO audit_records
			(id, correlation_id, subject_id, role, tool, adapter, status, code, error_detail, anomaly,
			 params, result, attempts, latency_ms, regulated, started_at, finished_at, prev_hash, hash)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		r.ID, r.CorrelationID, r.SubjectID, r.Role, r.Tool, r.Adapter, r.Status, r.Code, r.ErrorDetail, r.Anomaly,
		paramsJSON, resultJSON, r.Attempts, r.LatencyMS, r.Regulated, r.StartedAt, r.FinishedAt, r.PrevHash, r.Hash)
	if err != nil {
		return errors.Wrap(errors.KindInfrastructure, "audit_write_failed",
			fmt.Sprintf("audit insert failed: %v", err), errors.ErrAuditWrite)
	}
	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(errors.KindInfrastructure, "audit_write_failed",
			fmt.Sprintf("audit commit failed: %v", err), errors.ErrAuditWrite)
	}
	return nil
}

// Query 实现 Sink
func (s *PgSink) Query(ctx context.Context, f Filter) ([]Record, error) {
	query := `SELECT id, correlation_id, subject_id, role, tool, adapter, status, code, error_detail, anomaly,
	                 params, result, attempts, latency_ms, regulated, started_at, finished_at, prev_hash, hash
	            FROM audit_records WHERE 1=1`
	args := []any{}
	n := 0
	add := func(clause string, v any) {
		n++
		args = append(args, v)
		query += fmt.Sprintf(" AND %s $%d", clause, n)
	}
	if f.SubjectID != "" {
		add("subject_id =", f.SubjectID)
	}
	if f.Tool != "" {
		add("tool =", f.Tool)
	}
	if f.CorrelationID != "" {
		add("correlation_id =", f.CorrelationID)
	}
	if !f.From.IsZero() {
		add("started_at >=", f.From)
	}
	if !f.To.IsZero() {
		add("started_at <=", f.To)
	}
	if f.Regulated != nil {
		add("regulated =", *f.Regulated)
	}
	query += " ORDER BY seq ASC"
	if f.Limit > 0 {
		n++
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", n)
	}
	if f.Offset > 0 {
		n++
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", n)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.KindInfrastructure, "audit_query_failed", "audit query failed", err)
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		var (
			r          Record
			paramsJSON []byte
			resultJSON []byte
			startedAt  time.Time
			finishedAt time.Time
		)
		if err := rows.Scan(&r.ID, &r.CorrelationID, &r.SubjectID, &r.Role, &r.Tool, &r.Adapter,
			&r.Status, &r.Code, &r.ErrorDetail, &r.Anomaly, &paramsJSON, &resultJSON,
			&r.Attempts, &r.LatencyMS, &r.Regulated,
			&startedAt, &finishedAt, &r.PrevHash, &r.Hash); err != nil {
			return nil, errors.Wrap(errors.KindInfrastructure, "audit_query_failed", "audit scan failed", err)
		}
		r.StartedAt = startedAt
		r.FinishedAt = finishedAt
		if len(paramsJSON) > 0 {
			_ = json.Unmarshal(paramsJSON, &r.Params)
		}
		if len(resultJSON) > 0 {
			_ = json.Unmarshal(resultJSON, &r.Result)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close 实现 Sink
func (s *PgSink) Close(ctx context.Context) error {
	s.pool.Close()
	return nil
}
