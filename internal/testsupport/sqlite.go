// Package testsupport monta dependências reais (SQLite em memória) para os testes dos serviços
package testsupport

import (
	"context"
	"testing"

	"github.com/radieske/stream-wager-engine/internal/repo"
	"github.com/radieske/stream-wager-engine/internal/shared/db"
)

// NewStore abre um banco SQLite em memória com o schema aplicado
func NewStore(t testing.TB) *repo.Store {
	t.Helper()

	sqlDB, err := db.ConnectSQLite(":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	store := repo.NewStore(sqlDB, repo.SQLite)
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	return store
}
