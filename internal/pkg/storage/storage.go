package storage

import (
	"context"
	"time"
)

// Stat is one served gateway request.
type Stat struct {
	Timestamp       time.Time
	ClientHash      string
	RequestID       string
	Status          uint16
	ExecutionTimeMs int64
	RpcMethod       string
	RpcUsed         string
	Retries         uint8
	Cached          bool
	RpcErrorCode    string
	UserAgent       string
}

type StatsSaver interface {
	BatchInsertStats(ctx context.Context, stats []Stat) error
}

// MethodSummary is an aggregate over saved stats for one rpc method.
type MethodSummary struct {
	RpcMethod     string  `json:"rpcMethod" csv:"rpc_method"`
	Total         int64   `json:"total" csv:"total"`
	Cached        int64   `json:"cached" csv:"cached"`
	Failed        int64   `json:"failed" csv:"failed"`
	AvgRetries    float64 `json:"avgRetries" csv:"avg_retries"`
	AvgExecTimeMs float64 `json:"avgExecTimeMs" csv:"avg_exec_time_ms"`
}
