package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// setupTestRedis creates a miniredis instance for testing Lua scripts
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	return client, mr
}

func TestCommitScript(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer client.Close()

	ctx := context.Background()
	if err := mr.Set("lock", "tok"); err != nil {
		t.Fatalf("set lock: %v", err)
	}

	tests := []struct {
		name    string
		token   string
		wantErr bool
		wantSet bool
	}{
		{name: "wrong token", token: "other", wantErr: true},
		{name: "held lock", token: "tok", wantSet: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := redis.NewScript(commitScript).Run(ctx, client,
				[]string{"lock", "k", "idx", "z"},
				tt.token,
				opSet, "v", "",
				opSAdd, "m", "",
				opZAdd, "00000000000000000001", "0",
			).Err()
			if (err != nil) != tt.wantErr {
				t.Fatalf("commit error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !isLockLost(err) {
				t.Errorf("expected lock lost error, got %v", err)
			}
			if mr.Exists("k") != tt.wantSet {
				t.Errorf("key k exists = %v, want %v", mr.Exists("k"), tt.wantSet)
			}
			if tt.wantSet {
				if ok, _ := mr.SIsMember("idx", "m"); !ok {
					t.Error("expected set member m")
				}
				members, _ := mr.ZMembers("z")
				if len(members) != 1 {
					t.Errorf("expected one zset member, got %v", members)
				}
			}
		})
	}
}

func TestReleaseLockScript(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer client.Close()

	ctx := context.Background()
	if err := mr.Set("lock", "tok"); err != nil {
		t.Fatalf("set lock: %v", err)
	}

	script := redis.NewScript(releaseLockScript)
	if err := script.Run(ctx, client, []string{"lock"}, "other").Err(); err != nil {
		t.Fatalf("release with foreign token: %v", err)
	}
	if !mr.Exists("lock") {
		t.Fatal("lock released by foreign token")
	}

	if err := script.Run(ctx, client, []string{"lock"}, "tok").Err(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if mr.Exists("lock") {
		t.Error("expected lock to be released")
	}
}
