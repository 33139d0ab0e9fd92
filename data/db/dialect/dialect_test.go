package dialect

import (
	"errors"
	"testing"
)

func TestRebind_Postgres(t *testing.T) {
	d := New("postgres")
	q := "SELECT * FROM t WHERE a = ? AND b IN (?, ?)"
	got := d.Rebind(q)
	want := "SELECT * FROM t WHERE a = $1 AND b IN ($2, $3)"
	if got != want {
		t.Fatalf("Rebind mismatch\nwant: %s\ngot:  %s", want, got)
	}
}

func TestRebind_NoChangeForMySQLSQLite(t *testing.T) {
	tests := []struct {
		name string
		d    Dialect
	}{
		{"mysql", New("mysql")},
		{"sqlite", New("sqlite")},
		{"unknown", New("unknown")},
	}

	orig := "DELETE FROM t WHERE id = ? AND name = ?"
	for _, tt := range tests {
		if got := tt.d.Rebind(orig); got != orig {
			t.Fatalf("%s: expected no change, got %s", tt.name, got)
		}
	}
}

func TestQuoteIdentifier(t *testing.T) {
	if got := New("sqlite").QuoteIdentifier("main.events"); got != `"main"."events"` {
		t.Fatalf("sqlite quote: %s", got)
	}
	if got := New("mysql").QuoteIdentifier("events"); got != "`events`" {
		t.Fatalf("mysql quote: %s", got)
	}
	if got := New("").QuoteIdentifier("events"); got != "events" {
		t.Fatalf("unknown quote: %s", got)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	sqliteErr := errors.New("constraint failed: UNIQUE constraint failed: events.aggregate_type, events.aggregate_id, events.sequence (1555)")
	if !New("sqlite").IsUniqueViolation(sqliteErr) {
		t.Fatal("expected sqlite unique violation")
	}
	if New("sqlite").IsUniqueViolation(errors.New("no such table: events")) {
		t.Fatal("unexpected unique violation")
	}
	if !New("postgres").IsUniqueViolation(errors.New(`pq: duplicate key value violates unique constraint "events_pkey"`)) {
		t.Fatal("expected postgres unique violation")
	}
	if New("mysql").IsUniqueViolation(nil) {
		t.Fatal("nil is not a violation")
	}
}

func TestIsLockContention(t *testing.T) {
	cases := []struct {
		dialect string
		err     error
		want    bool
	}{
		{"sqlite", errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{"sqlite", errors.New("database table is locked"), true},
		{"sqlite", errors.New("UNIQUE constraint failed: events.sequence"), false},
		{"mysql", errors.New("Error 1205: Lock wait timeout exceeded; try restarting transaction"), true},
		{"mysql", errors.New("Error 1213: Deadlock found when trying to get lock"), true},
		{"postgres", errors.New("pq: could not serialize access due to concurrent update"), true},
		{"postgres", errors.New("pq: relation \"events\" does not exist"), false},
		{"sqlite", nil, false},
	}
	for _, c := range cases {
		if got := New(c.dialect).IsLockContention(c.err); got != c.want {
			t.Errorf("%s IsLockContention(%v) = %v, want %v", c.dialect, c.err, got, c.want)
		}
	}
}
