package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"rpcgate/internal/pkg/log"
	"rpcgate/internal/pkg/storage"
)

const (
	statsTable = "dispatch_stats"
	// keeps a multi-row insert below the sqlite bound variables limit
	insertChunkSize = 500
)

func (s *Storage) BatchInsertStats(ctx context.Context, stats []storage.Stat) error {
	if len(stats) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("tx begin error: %s", err)
	}

	defer func() {
		err := tx.Rollback()
		if err != nil && err != sql.ErrTxDone {
			log.Logger.General.Errorf("tx rollback error: %s", err)
		}
	}()

	for start := 0; start < len(stats); start += insertChunkSize {
		end := min(start+insertChunkSize, len(stats))

		builder := sq.Insert(statsTable).Columns(
			"sts_timestamp",
			"sts_client_hash",
			"sts_request_id",
			"sts_status",
			"sts_execution_time_ms",
			"sts_rpc_method",
			"sts_rpc_used",
			"sts_retries",
			"sts_cached",
			"sts_rpc_error_code",
			"sts_user_agent",
		)
		for _, st := range stats[start:end] {
			builder = builder.Values(
				st.Timestamp.UnixMilli(),
				st.ClientHash,
				st.RequestID,
				st.Status,
				st.ExecutionTimeMs,
				st.RpcMethod,
				st.RpcUsed,
				st.Retries,
				st.Cached,
				st.RpcErrorCode,
				st.UserAgent,
			)
		}

		query, args, err := builder.ToSql()
		if err != nil {
			return fmt.Errorf("ToSql: %s", err)
		}
		_, err = tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("insert: %s", err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("tx commit error: %s", err)
	}

	return nil
}

// MethodSummaries aggregates stats saved at or after since, busiest method first.
func (s *Storage) MethodSummaries(ctx context.Context, since time.Time) (res []storage.MethodSummary, err error) {
	query, args, err := sq.Select(
		"sts_rpc_method",
		"count(*) AS total",
		"sum(sts_cached)",
		"sum(CASE WHEN sts_status >= 400 THEN 1 ELSE 0 END)",
		"avg(sts_retries)",
		"avg(sts_execution_time_ms)",
	).
		From(statsTable).
		Where(sq.GtOrEq{"sts_timestamp": since.UnixMilli()}).
		GroupBy("sts_rpc_method").
		OrderBy("total DESC", "sts_rpc_method").
		ToSql()
	if err != nil {
		return res, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return res, fmt.Errorf("select: %s", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m storage.MethodSummary
		err = rows.Scan(&m.RpcMethod, &m.Total, &m.Cached, &m.Failed, &m.AvgRetries, &m.AvgExecTimeMs)
		if err != nil {
			return res, fmt.Errorf("scan: %s", err)
		}
		res = append(res, m)
	}

	return res, rows.Err()
}
