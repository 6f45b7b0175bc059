package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goodtune/accesstime/internal/auth"
	"github.com/goodtune/accesstime/internal/config"
	"github.com/goodtune/accesstime/internal/storage"
)

func writeTestConfig(t *testing.T, storageType string) {
	t.Helper()

	dir := t.TempDir()
	body := `
storage:
  type: ` + storageType + `
  path: ` + filepath.Join(dir, "data", "accesstime.db") + `
token:
  initial_balances:
    alice: 50
auth:
  jwt_secret: secret
logging:
  level: error
`
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	old := configPath
	configPath = path
	t.Cleanup(func() { configPath = old })
}

func TestOpenStorage(t *testing.T) {
	for _, typ := range []string{"bolt", "sqlite"} {
		t.Run(typ, func(t *testing.T) {
			store, err := openStorage(config.StorageConfig{
				Type: typ,
				Path: filepath.Join(t.TempDir(), "store.db"),
			}, nil)
			if err != nil {
				t.Fatalf("openStorage: %v", err)
			}
			defer store.Close()

			err = store.Update(context.Background(), func(tx storage.Tx) error {
				return tx.PutSettings(storage.Settings{Admin: "admin", Token: "token"})
			})
			if err != nil {
				t.Fatalf("Update: %v", err)
			}
		})
	}

	if _, err := openStorage(config.StorageConfig{Type: "etcd"}, nil); err == nil {
		t.Fatal("expected error for unsupported storage type")
	}
}

func TestNewAppPurchaseFlow(t *testing.T) {
	writeTestConfig(t, "bolt")

	a, err := newApp(&bytes.Buffer{})
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.close()

	ctx := context.Background()
	if err := a.svc.Init(auth.WithPrincipal(ctx, "admin"), "admin", "tokens"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := a.svc.SetPackage(auth.WithPrincipal(ctx, "admin"), 1, 20, 600); err != nil {
		t.Fatalf("SetPackage: %v", err)
	}

	orderID, err := a.svc.Purchase(auth.WithPrincipal(ctx, "alice"), "alice", 1)
	if err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	if orderID != 1 {
		t.Errorf("order id = %d, want 1", orderID)
	}

	balance, err := a.ledger.Balance(ctx, "alice")
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if balance != 30 {
		t.Errorf("alice balance = %d, want 30", balance)
	}
}

func TestSetupLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(config.LoggingConfig{Level: "info", Format: "json"}, &buf)
	logger.Info().Msg("hello")
	if !strings.Contains(buf.String(), `"message":"hello"`) {
		t.Errorf("expected JSON output, got %q", buf.String())
	}

	buf.Reset()
	logger = setupLogger(config.LoggingConfig{Level: "info", Format: "text"}, &buf)
	logger.Info().Msg("hello")
	if strings.Contains(buf.String(), `"message"`) || !strings.Contains(buf.String(), "hello") {
		t.Errorf("expected console output, got %q", buf.String())
	}
}
