// Package pgstore implements the agent storage on PostgreSQL. All record types
// share one table, tags are kept in a jsonb column and queried by containment.
package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/findy-network/findy-agent-core/agent/storage/api"
	"github.com/findy-network/findy-common-go/dto"
	"github.com/golang/glog"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kelseyhightower/envconfig"
	"github.com/lainio/err2"
)

// Config is read from the FCLI_PG_ prefixed environment variables.
type Config struct {
	DSN      string `envconfig:"DSN"`
	Table    string `envconfig:"TABLE" default:"agent_records"`
	MaxConns int32  `envconfig:"MAX_CONNS" default:"10"`
	MinConns int32  `envconfig:"MIN_CONNS" default:"1"`
}

// LoadConfig reads the config from the environment.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("FCLI_PG", &c); err != nil {
		return nil, err
	}
	return &c, nil
}

type Store struct {
	pool  *pgxpool.Pool
	table string
}

// New connects to the database and makes sure the records table exists.
func New(ctx context.Context, cfg Config) (s *Store, err error) {
	defer err2.Handle(&err, "pgstore new")

	if cfg.DSN == "" {
		return nil, errors.New("FCLI_PG_DSN is required")
	}
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, err
	}
	pcfg.MaxConns = cfg.MaxConns
	pcfg.MinConns = cfg.MinConns

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	s = &Store{pool: pool, table: pgx.Identifier{cfg.Table}.Sanitize()}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	glog.V(1).Infoln("postgres storage ready, table:", cfg.Table)
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	type  TEXT  NOT NULL,
	id    TEXT  NOT NULL,
	value BYTEA NOT NULL,
	tags  JSONB NOT NULL DEFAULT '{}'::jsonb,
	PRIMARY KEY (type, id)
)`, s.table))
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS %s ON %s USING GIN (tags)`,
		pgx.Identifier{stripQuotes(s.table) + "_tags_idx"}.Sanitize(), s.table))
	return err
}

func (s *Store) Save(ctx context.Context, item api.Item) (err error) {
	defer err2.Handle(&err, "pgstore save")

	_, err = s.pool.Exec(ctx, fmt.Sprintf(`INSERT INTO %s (type, id, value, tags)
VALUES ($1, $2, $3, $4::jsonb)
ON CONFLICT (type, id) DO UPDATE SET value = EXCLUDED.value, tags = EXCLUDED.tags`, s.table),
		item.Type, item.ID, item.Value, tagsJSON(item.Tags))
	return err
}

func (s *Store) Get(ctx context.Context, typ, id string) (item *api.Item, err error) {
	defer err2.Handle(&err, "pgstore get")

	item = &api.Item{Type: typ, ID: id}
	var tags []byte
	err = s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT value, tags FROM %s WHERE type = $1 AND id = $2`, s.table),
		typ, id).Scan(&item.Value, &tags)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, api.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	item.Tags = make(map[string]string)
	dto.FromJSON(tags, &item.Tags)
	return item, nil
}

func (s *Store) Query(ctx context.Context, typ string, filter api.TagFilter) (items []api.Item, err error) {
	defer err2.Handle(&err, "pgstore query")

	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT id, value, tags FROM %s WHERE type = $1 AND tags @> $2::jsonb ORDER BY id`,
		s.table), typ, tagsJSON(filter))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items = make([]api.Item, 0)
	for rows.Next() {
		item := api.Item{Type: typ, Tags: make(map[string]string)}
		var tags []byte
		if err := rows.Scan(&item.ID, &item.Value, &tags); err != nil {
			return nil, err
		}
		dto.FromJSON(tags, &item.Tags)
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) Delete(ctx context.Context, typ, id string) (err error) {
	defer err2.Handle(&err, "pgstore delete")

	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE type = $1 AND id = $2`, s.table), typ, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return api.ErrNotFound
	}
	return nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func tagsJSON(tags map[string]string) string {
	if len(tags) == 0 {
		return "{}"
	}
	return string(dto.ToJSONBytes(tags))
}

func stripQuotes(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
