package clickhouse

import (
	"context"
	"database/sql"
	"fmt"

	"rpcgate/internal/pkg/log"
	"rpcgate/internal/pkg/storage"
)

func (s *Storage) BatchInsertStats(ctx context.Context, stats []storage.Stat) error {
	if len(stats) == 0 {
		return nil
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("tx begin error: %s", err)
	}

	defer func() {
		err := tx.Rollback()
		if err != nil && err != sql.ErrTxDone {
			log.Logger.General.Errorf("tx rollback error: %s", err)
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO stats (
        server_id,
        timestamp,
        client_hash,
        request_id,
        status,
        execution_time_ms,
        rpc_method,
        rpc_used,
        retries,
        cached,
        rpc_error_code,
        user_agent
	)`)
	if err != nil {
		return fmt.Errorf("prepare statement error: %s", err)
	}

	for _, st := range stats {
		_, err = stmt.ExecContext(ctx,
			s.hostname,
			st.Timestamp,
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
		if err != nil {
			return fmt.Errorf("exec statement error: %s", err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("tx commit error: %s", err)
	}

	return nil
}
