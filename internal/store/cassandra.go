package store

import (
	"context"
	"errors"
	"fmt"

	config "example.com/tweetgraph/internal/init"
	"example.com/tweetgraph/migrations"
	"github.com/gocql/gocql"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/cassandra"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// --- Interfaces ---

type SessionInterface interface {
	Query(stmt string, values ...interface{}) *gocql.Query
	NewBatch(batchType gocql.BatchType) *gocql.Batch
	ExecuteBatch(batch *gocql.Batch) error
	Close()
}

// statementRunner executes single statements. Writes that span a CAS table
// and its index go through it.
type statementRunner interface {
	Exec(ctx context.Context, stmt string, values ...interface{}) error
	// CAS runs a conditional statement. When it is not applied, prev holds
	// the current row.
	CAS(ctx context.Context, prev map[string]interface{}, stmt string, values ...interface{}) (bool, error)
}

type sessionRunner struct {
	session SessionInterface
}

func (r sessionRunner) Exec(ctx context.Context, stmt string, values ...interface{}) error {
	return r.session.Query(stmt, values...).WithContext(ctx).Exec()
}

func (r sessionRunner) CAS(ctx context.Context, prev map[string]interface{}, stmt string, values ...interface{}) (bool, error) {
	return r.session.Query(stmt, values...).WithContext(ctx).MapScanCAS(prev)
}

// --- Store Implementation ---

// CassandraStore keeps one table per access path. Uniqueness is guarded by
// lightweight transactions on the owning table. Index rows written after a
// CAS are rolled back when they fail and rewritten on every retry; tweet
// copies are written in logged batches.
type CassandraStore struct {
	Session SessionInterface

	runner statementRunner
}

func (s *CassandraStore) stmts() statementRunner {
	if s.runner != nil {
		return s.runner
	}
	return sessionRunner{session: s.Session}
}

// NewCassandra ensures the keyspace and schema exist, then connects.
func NewCassandra(cfg *config.Config) (*CassandraStore, error) {
	if err := ensureKeyspace(cfg); err != nil {
		return nil, fmt.Errorf("failed to ensure keyspace: %w", err)
	}

	if err := runMigrations(cfg); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	cluster := newCluster(cfg, cfg.CassandraKeyspace)
	cluster.Consistency = gocql.Quorum
	cluster.SerialConsistency = gocql.LocalSerial

	sess, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create Cassandra session: %w", err)
	}

	logg.Info("store", "Connected to Cassandra keyspace (host anonymized)")
	return &CassandraStore{Session: sess}, nil
}

func newCluster(cfg *config.Config, keyspace string) *gocql.ClusterConfig {
	cluster := gocql.NewCluster(cfg.CassandraHost)
	cluster.Keyspace = keyspace
	cluster.Timeout = cfg.CassandraTimeout
	cluster.ConnectTimeout = cfg.CassandraTimeout

	if cfg.CassandraUsername != "" && cfg.CassandraPassword != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.CassandraUsername,
			Password: cfg.CassandraPassword,
		}
	}

	if cfg.CassandraDC != "" {
		cluster.HostFilter = gocql.DataCentreHostFilter(cfg.CassandraDC)
	}
	return cluster
}

// --- Ensure keyspace exists before migrations ---

func ensureKeyspace(cfg *config.Config) error {
	sess, err := newCluster(cfg, "system").CreateSession()
	if err != nil {
		return fmt.Errorf("failed to connect to Cassandra system keyspace: %w", err)
	}
	defer sess.Close()

	query := fmt.Sprintf(`
        CREATE KEYSPACE IF NOT EXISTS %s
        WITH replication = {'class': 'SimpleStrategy', 'replication_factor': 1};
    `, cfg.CassandraKeyspace)

	if err := sess.Query(query).Exec(); err != nil {
		return fmt.Errorf("failed to create keyspace: %w", err)
	}

	logg.Info("store", "Ensured Cassandra keyspace exists (keyspace name anonymized)")
	return nil
}

// --- Migration runner ---

func runMigrations(cfg *config.Config) error {
	src, err := iofs.New(migrations.Cassandra, "cassandra")
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	dbURL := fmt.Sprintf(
		"cassandra://%s/%s?x-migrations-table=schema_migrations&x-multi-statement=true",
		cfg.CassandraHost, cfg.CassandraKeyspace,
	)
	if cfg.CassandraUsername != "" && cfg.CassandraPassword != "" {
		dbURL += fmt.Sprintf("&username=%s&password=%s", cfg.CassandraUsername, cfg.CassandraPassword)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, dbURL)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		logg.Info("store", "No new migrations to apply")
	} else {
		logg.Info("store", "Migrations applied successfully")
	}
	return nil
}

// Close gracefully closes Cassandra session.
func (s *CassandraStore) Close() {
	if s.Session != nil {
		s.Session.Close()
		logg.Info("store", "Cassandra session closed")
	}
}

var _ StoreInterface = (*CassandraStore)(nil)
