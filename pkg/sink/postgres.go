package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	_ "github.com/lib/pq"
)

var tableNamePattern = regexp.MustCompile("^[a-zA-Z0-9_]+$")

const postgresColumns = 6

// postgresMaxRows keeps one INSERT under the 65535 bind parameter limit.
const postgresMaxRows = 65535 / postgresColumns

// PostgresOutput upserts records keyed by (tx_hash, log_index). A batch is
// written in one transaction, split into as many INSERTs as needed.
type PostgresOutput struct {
	db    *sql.DB
	table string

	maxRows int // rows per INSERT, postgresMaxRows when 0
}

func NewPostgresOutput(url, table string) (*PostgresOutput, error) {
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name: %s", table)
	}
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	p := &PostgresOutput{db: db, table: table}
	if err := p.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

func (p *PostgresOutput) migrate(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id SERIAL PRIMARY KEY,
			block_number BIGINT,
			tx_hash TEXT,
			log_index INT,
			network TEXT,
			event_name TEXT,
			data JSONB,
			created_at TIMESTAMPTZ DEFAULT NOW(),
			UNIQUE (tx_hash, log_index)
		);
		CREATE INDEX IF NOT EXISTS idx_%s_block ON %s (block_number);
	`, p.table, p.table, p.table)
	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}

func (p *PostgresOutput) Name() string { return "postgres" }

func (p *PostgresOutput) Send(ctx context.Context, batch Batch) error {
	if len(batch.Records) == 0 {
		return nil
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	rows := p.maxRows
	if rows <= 0 || rows > postgresMaxRows {
		rows = postgresMaxRows
	}
	for start := 0; start < len(batch.Records); start += rows {
		end := start + rows
		if end > len(batch.Records) {
			end = len(batch.Records)
		}
		if err := p.insert(ctx, tx, batch.Network, batch.Records[start:end]); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (p *PostgresOutput) insert(ctx context.Context, tx *sql.Tx, network string, records []Record) error {
	valueStrings := make([]string, 0, len(records))
	valueArgs := make([]interface{}, 0, len(records)*postgresColumns)
	for i, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			return err
		}
		n := i * postgresColumns
		valueStrings = append(valueStrings, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4, n+5, n+6))
		valueArgs = append(valueArgs, r.Log.BlockNumber, r.Log.TxHash.Hex(), r.Log.Index, network, r.EventName, data)
	}
	stmt := fmt.Sprintf("INSERT INTO %s (block_number, tx_hash, log_index, network, event_name, data) VALUES %s ON CONFLICT (tx_hash, log_index) DO NOTHING",
		p.table, strings.Join(valueStrings, ","))
	_, err := tx.ExecContext(ctx, stmt, valueArgs...)
	return err
}

func (p *PostgresOutput) Close() error { return p.db.Close() }
