package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/solidus-pim/server/internal/audit"
)

var _ audit.Store = (*AuditRepository)(nil)

func (r *AuditRepository) Insert(ctx context.Context, entry audit.Entry) error {
	_, err := r.queryer().Exec(ctx, `
INSERT INTO audit_logs (occurred_at, action, actor, entity_type, entity_id, status, changes, request_id, ip_address, user_agent)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`,
		entry.Time,
		entry.Action,
		entry.Actor,
		nullIfEmpty(entry.EntityType),
		nullIfEmpty(entry.EntityID),
		entry.Status,
		entry.Changes,
		nullIfEmpty(entry.RequestID),
		nullIfEmpty(entry.IPAddress),
		nullIfEmpty(entry.UserAgent),
	)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

func (r *AuditRepository) List(ctx context.Context, filters audit.Filters) ([]audit.Entry, int64, error) {
	queryer := r.queryer()

	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}

	var total int64
	err := queryer.QueryRow(ctx, `
SELECT count(*)
  FROM audit_logs
 WHERE ($1 = '' OR actor = $1)
   AND ($2 = '' OR action = $2)
   AND ($3 = '' OR entity_type = $3)
   AND ($4 = '' OR entity_id = $4)
   AND ($5::timestamptz IS NULL OR occurred_at >= $5)
`, filters.Actor, filters.Action, filters.EntityType, filters.EntityID, filters.Since).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count audit logs: %w", err)
	}

	rows, err := queryer.Query(ctx, `
SELECT id::text, occurred_at, action, actor, entity_type, entity_id, status, changes, request_id, ip_address, user_agent
  FROM audit_logs
 WHERE ($1 = '' OR actor = $1)
   AND ($2 = '' OR action = $2)
   AND ($3 = '' OR entity_type = $3)
   AND ($4 = '' OR entity_id = $4)
   AND ($5::timestamptz IS NULL OR occurred_at >= $5)
 ORDER BY occurred_at DESC, id DESC
 LIMIT $6 OFFSET $7
`, filters.Actor, filters.Action, filters.EntityType, filters.EntityID, filters.Since, limit, filters.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		var entry audit.Entry
		var entityType, entityID, requestID, ipAddress, userAgent *string
		var occurredAt pgtype.Timestamptz
		if err := rows.Scan(
			&entry.ID,
			&occurredAt,
			&entry.Action,
			&entry.Actor,
			&entityType,
			&entityID,
			&entry.Status,
			&entry.Changes,
			&requestID,
			&ipAddress,
			&userAgent,
		); err != nil {
			return nil, 0, fmt.Errorf("scan audit log: %w", err)
		}
		entry.Time = occurredAt.Time
		entry.EntityType = derefString(entityType)
		entry.EntityID = derefString(entityID)
		entry.RequestID = derefString(requestID)
		entry.IPAddress = derefString(ipAddress)
		entry.UserAgent = derefString(userAgent)
		entries = append(entries, entry)
	}
	return entries, total, rows.Err()
}

func (r *AuditRepository) CountOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var count int64
	err := r.queryer().QueryRow(ctx, `
SELECT count(*) FROM audit_logs WHERE occurred_at < $1
`, cutoff).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count old audit logs: %w", err)
	}
	return count, nil
}

func (r *AuditRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.queryer().Exec(ctx, `
DELETE FROM audit_logs WHERE occurred_at < $1
`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old audit logs: %w", err)
	}
	return tag.RowsAffected(), nil
}
