package integration

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/BradenHooton/sentinel/internal/database"
	"github.com/BradenHooton/sentinel/internal/repositories"
)

// TestDB manages PostgreSQL testcontainer and database operations
type TestDB struct {
	Container  testcontainers.Container
	ConnString string
	Pool       *pgxpool.Pool
	DB         *database.DB
}

// Repositories groups every repository backed by the test database
type Repositories struct {
	AuditLogs      *repositories.AuditLogRepository
	FailureRecords *repositories.FailureRecordRepository
	LoginEvents    *repositories.LoginEventRepository
	Anomalies      *repositories.AnomalyRepository
	GeoRules       *repositories.GeoRuleRepository
	IPReputation   *repositories.IPReputationRepository
	Policies       *repositories.PasswordPolicyRepository
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// migrationsDir resolves the repository migrations directory from this file
func migrationsDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "migrations")
}

// SetupTestDatabase creates a PostgreSQL testcontainer, runs migrations, returns TestDB
func SetupTestDatabase(ctx context.Context) (*TestDB, error) {
	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("sentinel"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := database.NewFromPool(pool, quietLogger())
	if err := db.Migrate(ctx, migrationsDir()); err != nil {
		pool.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &TestDB{
		Container:  container,
		ConnString: connStr,
		Pool:       pool,
		DB:         db,
	}, nil
}

// Teardown stops the container and closes the connection pool
func (db *TestDB) Teardown(ctx context.Context) error {
	if db.Pool != nil {
		db.Pool.Close()
	}
	if db.Container != nil {
		return db.Container.Terminate(ctx)
	}
	return nil
}

// CleanupTables truncates all tables for test isolation
func (db *TestDB) CleanupTables(ctx context.Context) error {
	tables := []string{
		"window_counters",
		"window_blocks",
		"failure_records",
		"login_events",
		"anomalies",
		"geo_access_rules",
		"geo_access_logs",
		"ip_reputation",
		"honeypot_interactions",
		"password_history",
		"password_policies",
		"audit_logs",
	}

	for _, table := range tables {
		if _, err := db.Pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}

	return nil
}

// InitializeRepositories creates all repository instances from database wrapper
func InitializeRepositories(db *database.DB) Repositories {
	return Repositories{
		AuditLogs:      repositories.NewAuditLogRepository(db),
		FailureRecords: repositories.NewFailureRecordRepository(db),
		LoginEvents:    repositories.NewLoginEventRepository(db),
		Anomalies:      repositories.NewAnomalyRepository(db),
		GeoRules:       repositories.NewGeoRuleRepository(db),
		IPReputation:   repositories.NewIPReputationRepository(db),
		Policies:       repositories.NewPasswordPolicyRepository(db),
	}
}

// SeedPasswordPolicy inserts a tenant password policy
func SeedPasswordPolicy(ctx context.Context, pool *pgxpool.Pool, tenantID string, minLength int) error {
	_, err := pool.Exec(ctx, `
		INSERT INTO password_policies (tenant_id, min_length, require_uppercase, require_lowercase,
			require_numbers, require_special_chars, min_special_chars, max_repeated_chars,
			prevent_common_passwords, prevent_username_in_password, password_history_count)
		VALUES ($1, $2, true, true, true, true, 1, 3, true, true, 5)
	`, tenantID, minLength)
	if err != nil {
		return fmt.Errorf("failed to insert password policy: %w", err)
	}
	return nil
}
