package chread

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/triage-ai/errgate/internal/storage"
	"go.uber.org/zap"
)

// Reader provides read access to the ClickHouse diagnostic_events table.
type Reader struct {
	conn   driver.Conn
	logger *zap.Logger
}

// NewReader opens a ClickHouse connection for read queries.
func NewReader(dsn string, logger *zap.Logger) (*Reader, error) {
	conn, err := storage.Open(dsn)
	if err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}
	return &Reader{conn: conn, logger: logger}, nil
}

// Close closes the ClickHouse connection.
func (r *Reader) Close() error {
	return r.conn.Close()
}

// EventRow represents a single row from the diagnostic_events table.
type EventRow struct {
	EventID     string
	ProjectID   string
	Timestamp   time.Time
	Severity    string
	Message     string
	MessageHash string
	Trace       string
	TraceLines  uint32
	Source      string
}

// ListEventsParams holds filters and pagination for event listing.
type ListEventsParams struct {
	ProjectID   string
	Severity    *string
	MessageHash *string
	StartTime   *time.Time
	EndTime     *time.Time
	Page        int
	PageSize    int
}

const eventColumns = "event_id, project_id, timestamp, severity, message, message_hash, trace, trace_lines, source"

// buildFilter turns params into a WHERE clause and its named arguments.
func buildFilter(params ListEventsParams) (string, []any) {
	conditions := []string{"project_id = @project_id"}
	args := []any{clickhouse.Named("project_id", params.ProjectID)}

	if params.Severity != nil {
		conditions = append(conditions, "severity = @severity")
		args = append(args, clickhouse.Named("severity", *params.Severity))
	}
	if params.MessageHash != nil {
		conditions = append(conditions, "message_hash = @message_hash")
		args = append(args, clickhouse.Named("message_hash", *params.MessageHash))
	}
	if params.StartTime != nil {
		conditions = append(conditions, "timestamp >= @start_time")
		args = append(args, clickhouse.Named("start_time", *params.StartTime))
	}
	if params.EndTime != nil {
		conditions = append(conditions, "timestamp <= @end_time")
		args = append(args, clickhouse.Named("end_time", *params.EndTime))
	}

	return strings.Join(conditions, " AND "), args
}

// ListEvents returns paginated, filtered diagnostic events and the total count.
func (r *Reader) ListEvents(ctx context.Context, params ListEventsParams) ([]EventRow, int, error) {
	where, args := buildFilter(params)
	offset := (params.Page - 1) * params.PageSize

	var total uint64
	countQuery := fmt.Sprintf("SELECT count() FROM diagnostic_events WHERE %s", where)
	if err := r.conn.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListEvents count: %w", err)
	}

	dataQuery := fmt.Sprintf(
		"SELECT %s FROM diagnostic_events WHERE %s ORDER BY timestamp DESC LIMIT @limit OFFSET @offset",
		eventColumns, where,
	)
	args = append(args,
		clickhouse.Named("limit", uint32(params.PageSize)),
		clickhouse.Named("offset", uint32(offset)),
	)

	rows, err := r.conn.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("ListEvents query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(
			&e.EventID, &e.ProjectID, &e.Timestamp, &e.Severity,
			&e.Message, &e.MessageHash, &e.Trace, &e.TraceLines, &e.Source,
		); err != nil {
			return nil, 0, fmt.Errorf("ListEvents scan: %w", err)
		}
		events = append(events, e)
	}

	return events, int(total), rows.Err()
}

// GetEvent returns a single event by project ID and event ID, or nil if not found.
func (r *Reader) GetEvent(ctx context.Context, projectID, eventID string) (*EventRow, error) {
	row := r.conn.QueryRow(ctx,
		"SELECT "+eventColumns+" FROM diagnostic_events "+
			"WHERE project_id = @project_id AND event_id = @event_id",
		clickhouse.Named("project_id", projectID),
		clickhouse.Named("event_id", eventID),
	)

	var e EventRow
	if err := row.Scan(
		&e.EventID, &e.ProjectID, &e.Timestamp, &e.Severity,
		&e.Message, &e.MessageHash, &e.Trace, &e.TraceLines, &e.Source,
	); err != nil {
		// ClickHouse doesn't return sql.ErrNoRows, so check for empty result
		return nil, fmt.Errorf("GetEvent: %w", err)
	}
	if e.EventID == "" {
		return nil, nil
	}
	return &e, nil
}

// SeverityCount holds a severity and how many events carried it.
type SeverityCount struct {
	Severity string `json:"severity"`
	Count    int    `json:"count"`
}

// MessageCount holds a message group and its count.
type MessageCount struct {
	MessageHash string    `json:"message_hash"`
	Message     string    `json:"message"`
	Count       int       `json:"count"`
	LastSeen    time.Time `json:"last_seen"`
}

// Summary holds forwarded-event aggregations for a project.
type Summary struct {
	Total       int             `json:"total"`
	BySeverity  []SeverityCount `json:"by_severity"`
	TopMessages []MessageCount  `json:"top_messages"`
}

// topMessagesLimit bounds the top_messages list.
const topMessagesLimit = 10

// GetSummary aggregates forwarded events for a project over the last days.
func (r *Reader) GetSummary(ctx context.Context, projectID string, days int) (*Summary, error) {
	rangeStart := time.Now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
	args := []any{
		clickhouse.Named("project_id", projectID),
		clickhouse.Named("range_start", rangeStart),
	}

	summary := &Summary{
		BySeverity:  []SeverityCount{},
		TopMessages: []MessageCount{},
	}

	rows, err := r.conn.Query(ctx,
		"SELECT severity, count() AS c FROM diagnostic_events "+
			"WHERE project_id = @project_id AND timestamp >= @range_start "+
			"GROUP BY severity ORDER BY c DESC",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("GetSummary severity: %w", err)
	}
	for rows.Next() {
		var sc SeverityCount
		var c uint64
		if err := rows.Scan(&sc.Severity, &c); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("GetSummary severity scan: %w", err)
		}
		sc.Count = int(c)
		summary.Total += sc.Count
		summary.BySeverity = append(summary.BySeverity, sc)
	}
	_ = rows.Close()

	rows, err = r.conn.Query(ctx,
		"SELECT message_hash, any(message), count() AS c, max(timestamp) FROM diagnostic_events "+
			"WHERE project_id = @project_id AND timestamp >= @range_start "+
			"GROUP BY message_hash ORDER BY c DESC LIMIT @limit",
		append(args, clickhouse.Named("limit", uint32(topMessagesLimit)))...,
	)
	if err != nil {
		return nil, fmt.Errorf("GetSummary messages: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var mc MessageCount
		var c uint64
		if err := rows.Scan(&mc.MessageHash, &mc.Message, &c, &mc.LastSeen); err != nil {
			return nil, fmt.Errorf("GetSummary messages scan: %w", err)
		}
		mc.Count = int(c)
		summary.TopMessages = append(summary.TopMessages, mc)
	}

	return summary, rows.Err()
}
