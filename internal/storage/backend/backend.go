// Package backend opens the storage stack shared by the command-line tools.
// Postgres holds run records, trigger history and solver diagnostics;
// ClickHouse holds tranche cashflows and aggregates. A side without a DSN
// falls back to in-memory stores.
package backend

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/hansheng-openbits/mbs-mock-sub001/internal/storage"
	chstore "github.com/hansheng-openbits/mbs-mock-sub001/internal/storage/clickhouse"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/storage/memory"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/storage/migrations"
	pgstore "github.com/hansheng-openbits/mbs-mock-sub001/internal/storage/postgres"
)

// Options selects the databases to connect to.
type Options struct {
	PostgresDSN   string
	ClickHouseDSN string
	Migrate       bool // apply embedded migrations after connecting
	Logger        zerolog.Logger
}

// Backend owns the open connections behind a storage.Stores bundle.
type Backend struct {
	Stores   storage.Stores
	Postgres bool // relational stores are database-backed
	Click    bool // analytic stores are database-backed

	closers []func()
}

// Open connects to the configured databases. On error every connection
// opened so far is closed.
func Open(ctx context.Context, opts Options) (*Backend, error) {
	b := &Backend{}
	log := opts.Logger.With().Str("component", "storage").Logger()

	if opts.PostgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, opts.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		b.closers = append(b.closers, pool.Close)
		if opts.Migrate {
			applied, err := migrations.RunPostgresMigrations(ctx, pool, log)
			if err != nil {
				b.Close()
				return nil, fmt.Errorf("postgres migrations: %w", err)
			}
			log.Info().Strs("files", applied).Msg("postgres migrations applied")
		}
		b.Stores.Runs = pgstore.NewRunStore(pool)
		b.Stores.Triggers = pgstore.NewTriggerHistoryStore(pool)
		b.Stores.Diagnostics = pgstore.NewDiagnosticsStore(pool)
		b.Postgres = true
	} else {
		b.Stores.Runs = memory.NewRunStore()
		b.Stores.Triggers = memory.NewTriggerHistoryStore()
		b.Stores.Diagnostics = memory.NewDiagnosticsStore()
	}

	if opts.ClickHouseDSN != "" {
		var (
			conn *chstore.Conn
			err  error
		)
		if opts.Migrate {
			conn, err = migrations.RunClickhouseMigrations(ctx, opts.ClickHouseDSN, log)
		} else {
			conn, err = chstore.NewConn(ctx, opts.ClickHouseDSN)
		}
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
		b.closers = append(b.closers, func() { _ = conn.Close() })
		b.Stores.Cashflows = chstore.NewCashflowStore(conn)
		b.Stores.Aggregates = chstore.NewTrancheAggregateStore(conn)
		b.Click = true
	} else {
		b.Stores.Cashflows = memory.NewCashflowStore()
		b.Stores.Aggregates = memory.NewTrancheAggregateStore()
	}

	log.Debug().Bool("postgres", b.Postgres).Bool("clickhouse", b.Click).Msg("storage opened")
	return b, nil
}

// Durable reports whether every store outlives the process.
func (b *Backend) Durable() bool {
	return b.Postgres && b.Click
}

// Close releases connections in reverse order of opening.
func (b *Backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}
