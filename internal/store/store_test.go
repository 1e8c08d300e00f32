package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"

	"github.com/starford/dtokit/internal/apperr"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "dtokit-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM entities`).Scan(&count); err != nil {
		t.Fatalf("entities table missing: %v", err)
	}
}

func TestCreateAndGet(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	created, err := db.Create(ctx, "user", map[string]any{"email": "a@b.c", "age": 30})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == "" || created.Checksum == "" {
		t.Fatalf("created = %+v", created)
	}

	got, err := db.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Kind != "user" || got.Attributes["email"] != "a@b.c" {
		t.Errorf("got = %+v", got)
	}
	if got.Attributes["age"] != json.Number("30") {
		t.Errorf("age = %#v", got.Attributes["age"])
	}
	if got.Checksum != created.Checksum {
		t.Errorf("checksum = %q, want %q", got.Checksum, created.Checksum)
	}
	if got.CreatedAt.IsZero() {
		t.Error("created_at not stored")
	}
}

func TestGetMissing(t *testing.T) {
	db := testDB(t)
	_, err := db.Get(context.Background(), "nope")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateWithOptimisticLocking(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	e, _ := db.Create(ctx, "user", map[string]any{"v": 1})

	updated, err := db.Update(ctx, e.ID, map[string]any{"v": 2}, e.Checksum)
	if err != nil {
		t.Fatalf("Update with correct checksum: %v", err)
	}
	if updated.Checksum == e.Checksum {
		t.Error("checksum should change")
	}

	_, err = db.Update(ctx, e.ID, map[string]any{"v": 3}, e.Checksum)
	if !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("stale checksum err = %v, want ErrConflict", err)
	}

	if _, err := db.Update(ctx, e.ID, map[string]any{"v": 4}, ""); err != nil {
		t.Errorf("update without If-Match: %v", err)
	}
	got, _ := db.Get(ctx, e.ID)
	if got.Attributes["v"] != json.Number("4") {
		t.Errorf("v = %v, want 4", got.Attributes["v"])
	}

	if _, err := db.Update(ctx, "missing", nil, ""); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing update err = %v", err)
	}
}

func TestDelete(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	e, _ := db.Create(ctx, "user", nil)
	if err := db.Delete(ctx, e.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := db.Delete(ctx, e.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestList(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, _ = db.Create(ctx, "user", map[string]any{"i": i})
	}
	_, _ = db.Create(ctx, "order", nil)

	all, total, err := db.List(ctx, "", 0, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 4 || len(all) != 4 {
		t.Errorf("total=%d len=%d, want 4", total, len(all))
	}

	users, total, _ := db.List(ctx, "user", 2, 0)
	if total != 3 || len(users) != 2 {
		t.Errorf("users total=%d len=%d", total, len(users))
	}
	for _, u := range users {
		if u.Kind != "user" {
			t.Errorf("kind = %q", u.Kind)
		}
	}

	empty, total, _ := db.List(ctx, "nothing", 10, 0)
	if total != 0 || empty == nil || len(empty) != 0 {
		t.Errorf("empty list = %v (%d)", empty, total)
	}
}

func TestLargeIntegersRoundTrip(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	big := json.Number("9007199254740993")
	created, err := db.Create(ctx, "user", map[string]any{"id": big})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := db.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Attributes["id"] != big {
		t.Errorf("id = %#v, want %s", got.Attributes["id"], big)
	}
}
