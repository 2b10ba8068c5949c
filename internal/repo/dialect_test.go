package repo

import "testing"

func TestRebindPostgres(t *testing.T) {
	got := Postgres.rebind(`UPDATE wallets SET balance_hard=?, updated_at=? WHERE user_id=?`)
	want := `UPDATE wallets SET balance_hard=$1, updated_at=$2 WHERE user_id=$3`
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestRebindSQLiteUnchanged(t *testing.T) {
	q := `SELECT id FROM bets WHERE id=?`
	if got := SQLite.rebind(q); got != q {
		t.Errorf("Expected query unchanged, got %q", got)
	}
}

func TestForUpdateOnlyOnPostgres(t *testing.T) {
	if Postgres.forUpdate() != " FOR UPDATE" {
		t.Error("Expected FOR UPDATE suffix on postgres")
	}
	if SQLite.forUpdate() != "" {
		t.Error("Expected no lock suffix on sqlite")
	}
}
