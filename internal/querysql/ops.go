package querysql

import (
	"context"
	"fmt"

	"github.com/roach88/nodesync/internal/queryir"
	"github.com/roach88/nodesync/internal/store"
)

// QueryOps compiles f and reads the matching ops from s in journal order.
func QueryOps(ctx context.Context, s *store.Store, f queryir.OpFilter) ([]store.OpRow, error) {
	if f.RunID == "" {
		return nil, fmt.Errorf("op query requires a run id")
	}
	sql, params, err := NewSQLCompiler().Compile(f.Query())
	if err != nil {
		return nil, err
	}
	return s.QueryOps(ctx, sql, params...)
}
