// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package allowlist

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	aliceID = uuid.MustParse("6f1d8a4e-4c3b-4d7a-9a57-0d1c2b3a4f50")
	bobID   = uuid.MustParse("0b9e7f2c-1a3d-4e5f-8c6b-7a8d9e0f1a2b")
)

func newFileList(t *testing.T) (*FileList, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "whitelist.yaml")
	l, err := LoadFile(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	return l, path
}

func newRedisList(t *testing.T) (*RedisList, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisList(rdb, "test:", zerolog.Nop()), mr
}

func forEachList(t *testing.T, fn func(t *testing.T, l List)) {
	t.Run("file", func(t *testing.T) {
		t.Parallel()
		l, _ := newFileList(t)
		fn(t, l)
	})
	t.Run("redis", func(t *testing.T) {
		t.Parallel()
		l, _ := newRedisList(t)
		fn(t, l)
	})
}

func TestListAddContainsRemove(t *testing.T) {
	t.Parallel()
	forEachList(t, func(t *testing.T, l List) {
		ctx := context.Background()
		if ok, err := l.Contains(ctx, aliceID); err != nil || ok {
			t.Fatalf("Contains before Add: got (%v, %v)", ok, err)
		}
		if added, err := l.Add(ctx, aliceID, "Alice"); err != nil || !added {
			t.Fatalf("Add: got (%v, %v), want added", added, err)
		}
		if added, err := l.Add(ctx, aliceID, "Alice2"); err != nil || added {
			t.Errorf("second Add: got (%v, %v), want no-op", added, err)
		}
		if ok, err := l.Contains(ctx, aliceID); err != nil || !ok {
			t.Errorf("Contains after Add: got (%v, %v)", ok, err)
		}
		if removed, err := l.Remove(ctx, aliceID); err != nil || !removed {
			t.Errorf("Remove: got (%v, %v)", removed, err)
		}
		if removed, err := l.Remove(ctx, aliceID); err != nil || removed {
			t.Errorf("second Remove: got (%v, %v), want no-op", removed, err)
		}
		if ok, _ := l.Contains(ctx, aliceID); ok {
			t.Error("Contains after Remove should be false")
		}
	})
}

func TestListEntriesSorted(t *testing.T) {
	t.Parallel()
	forEachList(t, func(t *testing.T, l List) {
		ctx := context.Background()
		_, _ = l.Add(ctx, bobID, "Bob")
		_, _ = l.Add(ctx, aliceID, "Alice")
		entries, err := l.Entries(ctx)
		if err != nil {
			t.Fatalf("Entries: %v", err)
		}
		if len(entries) != 2 || entries[0].Username != "Alice" || entries[1].Username != "Bob" {
			t.Errorf("Entries: got %+v", entries)
		}
		if entries[0].ID != aliceID {
			t.Errorf("first id: got %s, want %s", entries[0].ID, aliceID)
		}
	})
}

func TestFileListPersists(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l, path := newFileList(t)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("file should not exist before the first change, stat err=%v", err)
	}
	if _, err := l.Add(ctx, aliceID, "Alice"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	for _, want := range []string{"entries:", "uuid: " + aliceID.String(), "username: Alice"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("file missing %q:\n%s", want, data)
		}
	}

	reloaded, err := LoadFile(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if ok, _ := reloaded.Contains(ctx, aliceID); !ok {
		t.Error("reloaded list should contain alice")
	}
	matches, _ := filepath.Glob(filepath.Join(filepath.Dir(path), ".whitelist.yaml.*"))
	if len(matches) != 0 {
		t.Errorf("temp files left behind: %v", matches)
	}
}

func TestLoadFileExistingFormat(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "whitelist.yaml")
	doc := "entries:\n" +
		"  - uuid: " + aliceID.String() + "\n" +
		"    username: Alice\n" +
		"  - uuid: " + bobID.String() + "\n" +
		"    username: Bob\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	l, err := LoadFile(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	entries, _ := l.Entries(context.Background())
	if len(entries) != 2 {
		t.Errorf("entries: got %d, want 2", len(entries))
	}
}

func TestLoadFileRejectsBadUUID(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "whitelist.yaml")
	if err := os.WriteFile(path, []byte("entries:\n  - uuid: nope\n    username: x\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := LoadFile(path, zerolog.Nop()); err == nil {
		t.Error("LoadFile should reject an invalid uuid")
	}
}

func TestFileListRollsBackOnWriteFailure(t *testing.T) {
	t.Parallel()
	l, path := newFileList(t)
	// A directory in place of the file makes the final rename fail.
	if err := os.Mkdir(path, 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	ctx := context.Background()
	if _, err := l.Add(ctx, aliceID, "Alice"); err == nil {
		t.Fatal("Add should fail when the file cannot be written")
	}
	if ok, _ := l.Contains(ctx, aliceID); ok {
		t.Error("failed Add must not leave the entry in memory")
	}
	matches, _ := filepath.Glob(filepath.Join(filepath.Dir(path), ".whitelist.yaml.*"))
	if len(matches) != 0 {
		t.Errorf("temp files left behind: %v", matches)
	}
}

func TestFileListConcurrentAdd(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l, path := newFileList(t)

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = l.Add(ctx, uuid.New(), "p")
		}()
	}
	wg.Wait()

	reloaded, err := LoadFile(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	entries, _ := reloaded.Entries(ctx)
	if len(entries) != 16 {
		t.Errorf("persisted entries: got %d, want 16", len(entries))
	}
}

func TestRedisListLayout(t *testing.T) {
	t.Parallel()
	l, mr := newRedisList(t)
	if _, err := l.Add(context.Background(), aliceID, "Alice"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if got := mr.HGet("test:allowlist", aliceID.String()); got != "Alice" {
		t.Errorf("hash field: got %q, want %q", got, "Alice")
	}

	mr.HSet("test:allowlist", "not-a-uuid", "ghost")
	entries, err := l.Entries(context.Background())
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("invalid fields should be skipped, got %+v", entries)
	}
}
