package testsupport

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/radieske/stream-wager-engine/internal/repo"
	"github.com/radieske/stream-wager-engine/internal/shared/db"
)

// PostgresDSNEnv aponta para um Postgres descartável; sem ela os testes de integração são pulados
const PostgresDSNEnv = "WAGER_TEST_POSTGRES_DSN"

// NewPostgresStore cria um schema isolado por teste e devolve o store com pool de várias conexões
func NewPostgresStore(t testing.TB) *repo.Store {
	t.Helper()
	dsn := os.Getenv(PostgresDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", PostgresDSNEnv)
	}
	ctx := context.Background()

	admin, err := db.ConnectPostgres(dsn)
	if err != nil {
		t.Fatalf("Failed to connect to postgres: %v", err)
	}
	schema := "t_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if _, err := admin.ExecContext(ctx, `CREATE SCHEMA `+schema); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}
	t.Cleanup(func() {
		_, _ = admin.ExecContext(context.Background(), `DROP SCHEMA `+schema+` CASCADE`)
		_ = admin.Close()
	})

	sqlDB, err := db.ConnectPostgres(withSearchPath(dsn, schema))
	if err != nil {
		t.Fatalf("Failed to connect to test schema: %v", err)
	}
	sqlDB.SetMaxOpenConns(16)
	t.Cleanup(func() { _ = sqlDB.Close() })

	store := repo.NewStore(sqlDB, repo.Postgres)
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Failed to migrate test schema: %v", err)
	}
	return store
}

// lib/pq repassa parâmetros desconhecidos do DSN como parâmetros de sessão
func withSearchPath(dsn, schema string) string {
	if !strings.Contains(dsn, "://") {
		return dsn + " search_path=" + schema
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&search_path=" + schema
	}
	return dsn + "?search_path=" + schema
}
