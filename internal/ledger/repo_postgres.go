package ledger

import (
	"context"
	"database/sql"
	"time"
)

// PostgresRepo persists ledger entries to the routing_ledger table.
//
// Schema (INSERT-only by policy):
//
//	CREATE TABLE routing_ledger (
//	    id              UUID PRIMARY KEY,
//	    tenant_id       TEXT NOT NULL,
//	    call_id         TEXT NOT NULL,
//	    kind            TEXT NOT NULL,
//	    department_id   TEXT,
//	    department_name TEXT,
//	    rule_id         TEXT,
//	    reason          TEXT,
//	    confidence      DOUBLE PRECISION,
//	    sentiment       DOUBLE PRECISION,
//	    intent          TEXT,
//	    escalation_id   TEXT,
//	    strategy        TEXT,
//	    status          TEXT,
//	    attempt         INT,
//	    metadata        JSONB,
//	    created_at      TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX ON routing_ledger (tenant_id, created_at);
//	CREATE INDEX ON routing_ledger (tenant_id, call_id, created_at);
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const insertEntry = `
INSERT INTO routing_ledger (
    id, tenant_id, call_id, kind,
    department_id, department_name, rule_id, reason, confidence, sentiment, intent,
    escalation_id, strategy, status, attempt,
    metadata, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,NULLIF($16,'')::jsonb,$17)`

func (r *PostgresRepo) Append(ctx context.Context, e Entry) error {
	_, err := r.db.ExecContext(ctx, insertEntry,
		e.ID, e.TenantID, e.CallID, string(e.Kind),
		e.DepartmentID, e.DepartmentName, e.RuleID, e.Reason, e.Confidence, e.Sentiment, e.Intent,
		e.EscalationID, e.Strategy, e.Status, e.Attempt,
		e.Metadata, e.CreatedAt,
	)
	return err
}

const selectColumns = `
    id, tenant_id, call_id, kind,
    COALESCE(department_id, ''), COALESCE(department_name, ''), COALESCE(rule_id, ''),
    COALESCE(reason, ''), COALESCE(confidence, 0), COALESCE(sentiment, 0), COALESCE(intent, ''),
    COALESCE(escalation_id, ''), COALESCE(strategy, ''), COALESCE(status, ''), COALESCE(attempt, 0),
    COALESCE(metadata::text, ''), created_at`

func (r *PostgresRepo) List(ctx context.Context, tenantID string, from, to time.Time) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+selectColumns+`
		 FROM routing_ledger
		 WHERE tenant_id = $1 AND created_at >= $2 AND created_at < $3
		 ORDER BY created_at, id`,
		tenantID, from, to,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (r *PostgresRepo) ByCall(ctx context.Context, tenantID, callID string) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+selectColumns+`
		 FROM routing_ledger
		 WHERE tenant_id = $1 AND call_id = $2
		 ORDER BY created_at, id`,
		tenantID, callID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var out []Entry
	for rows.Next() {
		var e Entry
		var kind string
		if err := rows.Scan(
			&e.ID, &e.TenantID, &e.CallID, &kind,
			&e.DepartmentID, &e.DepartmentName, &e.RuleID,
			&e.Reason, &e.Confidence, &e.Sentiment, &e.Intent,
			&e.EscalationID, &e.Strategy, &e.Status, &e.Attempt,
			&e.Metadata, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		e.Kind = Kind(kind)
		out = append(out, e)
	}
	return out, rows.Err()
}
