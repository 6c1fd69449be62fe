package storage

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	logx "dmrelay/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, d := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: d}, logx.Nop())
		if err != nil || st != nil {
			t.Fatalf("Open(%q) = %v, %v; want nil, nil", d, st, err)
		}
	}
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatal("expected unknown driver error")
	}
}

func TestFileStoreAppends(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "store", "dmrelay.json")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx := context.Background()
	if err := st.AppendSummary(ctx, Summary{RunID: "r1", Target: "a", GuildID: "1", Result: "completed", Total: 3, Success: 3}); err != nil {
		t.Fatalf("AppendSummary: %v", err)
	}
	if err := st.AppendSummary(ctx, Summary{RunID: "r1", Target: "b", GuildID: "2", Result: "connect_failed", Error: "auth"}); err != nil {
		t.Fatalf("AppendSummary: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, "store", "dmrelay.summaries.jsonl"))
	if err != nil {
		t.Fatalf("open summaries: %v", err)
	}
	defer f.Close()
	var got []Summary
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var s Summary
		if err := json.Unmarshal(sc.Bytes(), &s); err != nil {
			t.Fatalf("bad line %q: %v", sc.Text(), err)
		}
		got = append(got, s)
	}
	if len(got) != 2 || got[0].Success != 3 || got[1].Error != "auth" {
		t.Fatalf("summaries = %+v", got)
	}
	if got[0].At.IsZero() {
		t.Fatal("At must default to now")
	}
}

func TestSQLiteStoreAppends(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "dmrelay.db")
	st, err := Open(Config{Driver: "sqlite", Path: path, BusyTimeout: time.Second}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := st.AppendSummary(context.Background(), Summary{RunID: "r1", Target: "a", GuildID: "1", Result: "completed", Total: 2, Success: 1, Failed: 1, DMClosed: 1}); err != nil {
		t.Fatalf("AppendSummary: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	var total, failed, dmClosed int
	var community sql.NullString
	if err := db.QueryRow(`SELECT total, failed, dm_closed, community FROM summaries WHERE run_id = ?`, "r1").Scan(&total, &failed, &dmClosed, &community); err != nil {
		t.Fatalf("query: %v", err)
	}
	if total != 2 || failed != 1 || dmClosed != 1 || community.Valid {
		t.Fatalf("row = total=%d failed=%d dm_closed=%d community=%v", total, failed, dmClosed, community)
	}
}
