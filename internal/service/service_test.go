package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/goodtune/accesstime/internal/audit"
	"github.com/goodtune/accesstime/internal/auth"
	"github.com/goodtune/accesstime/internal/clock"
	"github.com/goodtune/accesstime/internal/policy"
	"github.com/goodtune/accesstime/internal/storage"
	"github.com/goodtune/accesstime/internal/storage/bolt"
	redisstore "github.com/goodtune/accesstime/internal/storage/redis"
	"github.com/goodtune/accesstime/internal/storage/sqlite"
	"github.com/goodtune/accesstime/internal/token"
	"github.com/goodtune/accesstime/internal/usage"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	admin = "admin"
	user  = "user"
)

type recordingSink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordingSink) Publish(_ context.Context, event audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingSink) topics() []audit.Topic {
	r.mu.Lock()
	defer r.mu.Unlock()
	topics := make([]audit.Topic, 0, len(r.events))
	for _, e := range r.events {
		topics = append(topics, e.Topic)
	}
	return topics
}

func (r *recordingSink) last() audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

type testEnv struct {
	svc    *Service
	store  storage.Store
	ledger token.Ledger
	clock  *clock.TestClock
	sink   *recordingSink
}

type openStore func(t *testing.T) storage.Store

func openBolt(t *testing.T) storage.Store {
	t.Helper()

	store, err := bolt.Open(filepath.Join(t.TempDir(), "accesstime.bolt"))
	if err != nil {
		t.Fatalf("open bolt store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func openSQLite(t *testing.T) storage.Store {
	t.Helper()

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "accesstime.db"))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func openRedis(t *testing.T) storage.Store {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redisstore.New(client, "test", 5*time.Second)
}

var backends = []struct {
	name string
	open openStore
}{
	{"bolt", openBolt},
	{"sqlite", openSQLite},
	{"redis", openRedis},
}

// eachBackend runs fn against an initialized env on every storage backend.
func eachBackend(t *testing.T, fn func(t *testing.T, env *testEnv)) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			fn(t, initializedOn(t, b.open))
		})
	}
}

func newTestEnv(t *testing.T, ledger token.Ledger) *testEnv {
	t.Helper()
	return newTestEnvOn(t, openBolt(t), ledger)
}

func newTestEnvOn(t *testing.T, store storage.Store, ledger token.Ledger) *testEnv {
	t.Helper()

	authz, err := policy.NewAuthorizer("", zerolog.Nop())
	if err != nil {
		t.Fatalf("NewAuthorizer: %v", err)
	}

	if ledger == nil {
		ledger = token.NewMemoryLedger(map[string]uint64{user: 100, "other": 100})
	}

	env := &testEnv{
		store:  store,
		ledger: ledger,
		clock:  clock.NewTestClock(1),
		sink:   &recordingSink{},
	}
	env.svc = New(Dependencies{
		Store:      store,
		Ledger:     ledger,
		Authorizer: authz,
		Clock:      env.clock,
		Sink:       env.sink,
	}, Config{CacheSize: 16}, zerolog.Nop())
	return env
}

// initialized returns a bolt env with init(admin, token) and package
// 1 = (10, 3600).
func initialized(t *testing.T) *testEnv {
	t.Helper()
	return initializedOn(t, openBolt)
}

func initializedOn(t *testing.T, open openStore) *testEnv {
	t.Helper()

	env := newTestEnvOn(t, open(t), nil)
	if err := env.svc.Init(as(admin), admin, "token"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := env.svc.SetPackage(as(admin), 1, 10, 3600); err != nil {
		t.Fatalf("SetPackage: %v", err)
	}
	return env
}

func as(principal string) context.Context {
	return auth.WithPrincipal(context.Background(), principal)
}

func (env *testEnv) session(t *testing.T, owner string) storage.Session {
	t.Helper()

	session, err := env.svc.Session(context.Background(), owner)
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	return session
}

func (env *testEnv) sequence(t *testing.T, owner string) uint64 {
	t.Helper()

	var seq uint64
	err := env.store.View(context.Background(), func(tx storage.Tx) error {
		var err error
		seq, err = tx.Sequence(owner)
		return err
	})
	if err != nil {
		t.Fatalf("Sequence: %v", err)
	}
	return seq
}

func TestScenarioPurchaseGrantStartPause(t *testing.T) {
	eachBackend(t, func(t *testing.T, env *testEnv) {
		ctx := context.Background()

		orderID, err := env.svc.Purchase(as(user), user, 1)
		if err != nil {
			t.Fatalf("Purchase: %v", err)
		}
		if orderID != 1 {
			t.Fatalf("order id = %d, want 1", orderID)
		}
		if s := env.session(t, user); s.RemainingSecs != 0 || s.StartedAt != 0 {
			t.Fatalf("purchase touched the session: %+v", s)
		}

		remaining, err := env.svc.Grant(as(user), user, user, 1)
		if err != nil {
			t.Fatalf("Grant: %v", err)
		}
		if remaining != 3600 {
			t.Fatalf("remaining after grant = %d, want 3600", remaining)
		}
		if s := env.session(t, user); s.RemainingSecs != 3600 || s.StartedAt != 0 {
			t.Fatalf("unexpected session after grant: %+v", s)
		}

		env.clock.Set(1000)
		session, transition, err := env.svc.Start(as(user), user)
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
		if transition != usage.Started || session.StartedAt != 1000 {
			t.Fatalf("Start = %v %+v, want started at 1000", transition, session)
		}

		if got, _ := env.svc.Remaining(ctx, user, 1120); got != 3480 {
			t.Fatalf("remaining(1120) = %d, want 3480", got)
		}

		env.clock.Set(1120)
		session, transition, err = env.svc.Pause(as(user), user)
		if err != nil {
			t.Fatalf("Pause: %v", err)
		}
		if transition != usage.Paused || session.RemainingSecs != 3480 || session.StartedAt != 0 {
			t.Fatalf("Pause = %v %+v, want {3480, 0}", transition, session)
		}

		if got, _ := env.svc.Remaining(ctx, user, 1720); got != 3480 {
			t.Fatalf("remaining(1720) = %d, want 3480", got)
		}

		balance, _ := env.ledger.Balance(ctx, user)
		adminBalance, _ := env.ledger.Balance(ctx, admin)
		if balance != 90 || adminBalance != 10 {
			t.Fatalf("balances = %d/%d, want 90/10", balance, adminBalance)
		}

		want := []audit.Topic{
			audit.TopicInit, audit.TopicPackageSet, audit.TopicPurchaseCreated,
			audit.TopicGrant, audit.TopicStart, audit.TopicPause,
		}
		got := env.sink.topics()
		if len(got) != len(want) {
			t.Fatalf("events = %v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("event[%d] = %s, want %s", i, got[i], want[i])
			}
		}
		if pause := env.sink.last(); pause.Payload["remaining"] != uint64(3480) {
			t.Errorf("pause event remaining = %v, want 3480", pause.Payload["remaining"])
		}
	})
}

func TestDoubleGrant(t *testing.T) {
	eachBackend(t, func(t *testing.T, env *testEnv) {
		for i := 0; i < 2; i++ {
			if _, err := env.svc.Purchase(as(user), user, 1); err != nil {
				t.Fatalf("Purchase: %v", err)
			}
		}

		if _, err := env.svc.Grant(as(admin), admin, user, 2); err != nil {
			t.Fatalf("Grant by admin: %v", err)
		}
		_, err := env.svc.Grant(as(user), user, user, 2)
		if !errors.Is(err, ErrAlreadyGranted) {
			t.Fatalf("expected ErrAlreadyGranted, got %v", err)
		}

		if s := env.session(t, user); s.RemainingSecs != 3600 {
			t.Fatalf("remaining = %d, want a single credit of 3600", s.RemainingSecs)
		}
		order, err := env.svc.GetOrder(context.Background(), user, 2)
		if err != nil {
			t.Fatalf("GetOrder: %v", err)
		}
		if !order.Credited {
			t.Fatal("expected order 2 to be credited")
		}
		if order, _ := env.svc.GetOrder(context.Background(), user, 1); order.Credited {
			t.Fatal("order 1 must remain uncredited")
		}
	})
}

func TestPurchaseMissingPackage(t *testing.T) {
	eachBackend(t, func(t *testing.T, env *testEnv) {
		_, err := env.svc.Purchase(as(user), user, 99)
		if !errors.Is(err, ErrPackageNotFound) {
			t.Fatalf("expected ErrPackageNotFound, got %v", err)
		}
		if seq := env.sequence(t, user); seq != 0 {
			t.Fatalf("sequence = %d, want 0", seq)
		}
		orders, err := env.svc.ListOrders(context.Background(), user)
		if err != nil {
			t.Fatalf("ListOrders: %v", err)
		}
		if len(orders) != 0 {
			t.Fatalf("expected no orders, got %+v", orders)
		}
		if balance, _ := env.ledger.Balance(context.Background(), user); balance != 100 {
			t.Fatalf("balance = %d, want 100", balance)
		}
	})
}

func TestOrderIDsArePerOwner(t *testing.T) {
	eachBackend(t, func(t *testing.T, env *testEnv) {
		steps := []struct {
			owner string
			want  uint64
		}{
			{user, 1},
			{"other", 1},
			{user, 2},
			{user, 3},
			{"other", 2},
		}
		for _, step := range steps {
			got, err := env.svc.Purchase(as(step.owner), step.owner, 1)
			if err != nil {
				t.Fatalf("Purchase(%s): %v", step.owner, err)
			}
			if got != step.want {
				t.Fatalf("Purchase(%s) = %d, want %d", step.owner, got, step.want)
			}
		}

		orders, err := env.svc.ListOrders(context.Background(), user)
		if err != nil {
			t.Fatalf("ListOrders: %v", err)
		}
		for i, order := range orders {
			if order.SequenceID != uint64(i+1) || order.Credited {
				t.Errorf("orders[%d] = %+v", i, order)
			}
		}
	})
}

func TestGrantByStrangerIsUnauthorized(t *testing.T) {
	eachBackend(t, func(t *testing.T, env *testEnv) {
		if _, err := env.svc.Purchase(as(user), user, 1); err != nil {
			t.Fatalf("Purchase: %v", err)
		}
		before := len(env.sink.topics())

		_, err := env.svc.Grant(as("other"), "other", user, 1)
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}

		// Claiming to be someone the context is not authenticated as.
		_, err = env.svc.Grant(as("other"), admin, user, 1)
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized for impersonation, got %v", err)
		}

		if s := env.session(t, user); s.RemainingSecs != 0 {
			t.Fatalf("session changed: %+v", s)
		}
		if order, _ := env.svc.GetOrder(context.Background(), user, 1); order.Credited {
			t.Fatal("order was credited")
		}
		if after := len(env.sink.topics()); after != before {
			t.Fatalf("rejected grant emitted %d events", after-before)
		}
	})
}

func TestGrantMissingOrder(t *testing.T) {
	env := initialized(t)

	_, err := env.svc.Grant(as(user), user, user, 5)
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestGrantResolvesPackageAtGrantTime(t *testing.T) {
	eachBackend(t, func(t *testing.T, env *testEnv) {
		if _, err := env.svc.Purchase(as(user), user, 1); err != nil {
			t.Fatalf("Purchase: %v", err)
		}

		if err := env.svc.SetPackage(as(admin), 1, 10, 7200); err != nil {
			t.Fatalf("SetPackage: %v", err)
		}

		remaining, err := env.svc.Grant(as(user), user, user, 1)
		if err != nil {
			t.Fatalf("Grant: %v", err)
		}
		if remaining != 7200 {
			t.Fatalf("remaining = %d, want the current catalog duration 7200", remaining)
		}
	})
}

func TestInit(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	if _, err := env.svc.Admin(ctx); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("Admin before init: expected ErrNotInitialized, got %v", err)
	}
	if _, err := env.svc.Token(ctx); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("Token before init: expected ErrNotInitialized, got %v", err)
	}

	if err := env.svc.Init(as(user), admin, "token"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Init as someone else: expected ErrUnauthorized, got %v", err)
	}

	if err := env.svc.Init(as(admin), admin, "token"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := env.svc.Init(as(admin), admin, "token2"); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("second Init: expected ErrAlreadyInitialized, got %v", err)
	}

	if got, _ := env.svc.Admin(ctx); got != admin {
		t.Errorf("Admin = %q, want %q", got, admin)
	}
	if got, _ := env.svc.Token(ctx); got != "token" {
		t.Errorf("Token = %q, want token", got)
	}
}

func TestOperationsBeforeInit(t *testing.T) {
	env := newTestEnv(t, nil)

	if err := env.svc.SetPackage(as(admin), 1, 10, 60); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("SetPackage: expected ErrNotInitialized, got %v", err)
	}
	if _, err := env.svc.Purchase(as(user), user, 1); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Purchase: expected ErrNotInitialized, got %v", err)
	}
	if _, err := env.svc.Grant(as(user), user, user, 1); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Grant: expected ErrNotInitialized, got %v", err)
	}
}

func TestSetPackageRequiresAdmin(t *testing.T) {
	env := initialized(t)

	tests := []struct {
		name string
		ctx  context.Context
	}{
		{"anonymous", context.Background()},
		{"user", as(user)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := env.svc.SetPackage(tt.ctx, 1, 1, 1)
			if !errors.Is(err, ErrUnauthorized) {
				t.Fatalf("expected ErrUnauthorized, got %v", err)
			}
		})
	}

	pkg, err := env.svc.GetPackage(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetPackage: %v", err)
	}
	if pkg.Price != 10 || pkg.DurationSecs != 3600 {
		t.Fatalf("package changed: %+v", pkg)
	}
}

func TestCatalogReads(t *testing.T) {
	env := initialized(t)
	ctx := context.Background()

	if _, err := env.svc.GetPackage(ctx, 2); !errors.Is(err, ErrPackageNotFound) {
		t.Fatalf("expected ErrPackageNotFound, got %v", err)
	}

	// Cached read followed by an overwrite must see the new value.
	if _, err := env.svc.GetPackage(ctx, 1); err != nil {
		t.Fatalf("GetPackage: %v", err)
	}
	if err := env.svc.SetPackage(as(admin), 1, 20, 60); err != nil {
		t.Fatalf("SetPackage: %v", err)
	}
	pkg, err := env.svc.GetPackage(ctx, 1)
	if err != nil {
		t.Fatalf("GetPackage: %v", err)
	}
	if pkg.Price != 20 || pkg.DurationSecs != 60 {
		t.Fatalf("stale package: %+v", pkg)
	}

	if err := env.svc.SetPackage(as(admin), 2, 5, 30); err != nil {
		t.Fatalf("SetPackage: %v", err)
	}
	packages, err := env.svc.ListPackages(ctx)
	if err != nil {
		t.Fatalf("ListPackages: %v", err)
	}
	if len(packages) != 2 || packages[0].ID != 1 || packages[1].ID != 2 {
		t.Fatalf("unexpected packages: %+v", packages)
	}
}

func TestCatalogCacheFollowsStoreKind(t *testing.T) {
	if env := initialized(t); env.svc.cache == nil {
		t.Error("expected the catalog cache on an exclusive bolt store")
	}
	if env := initializedOn(t, openSQLite); env.svc.cache != nil {
		t.Error("expected no catalog cache on a shared sqlite store")
	}
}

func TestCatalogReadsSeeOtherProcessWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accesstime.db")
	open := func(t *testing.T) storage.Store {
		store, err := sqlite.Open(path)
		if err != nil {
			t.Fatalf("open sqlite store: %v", err)
		}
		t.Cleanup(func() { _ = store.Close() })
		return store
	}

	server := initializedOn(t, open)
	operator := newTestEnvOn(t, open(t), nil)
	ctx := context.Background()

	if _, err := server.svc.GetPackage(ctx, 1); err != nil {
		t.Fatalf("GetPackage: %v", err)
	}
	if err := operator.svc.SetPackage(as(admin), 1, 50, 60); err != nil {
		t.Fatalf("SetPackage: %v", err)
	}

	pkg, err := server.svc.GetPackage(ctx, 1)
	if err != nil {
		t.Fatalf("GetPackage: %v", err)
	}
	if pkg.Price != 50 || pkg.DurationSecs != 60 {
		t.Fatalf("GetPackage = %+v, want the operator's {50, 60}", pkg)
	}

	if _, err := server.svc.Purchase(as(user), user, 1); err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	if balance, _ := server.ledger.Balance(ctx, user); balance != 100-pkg.Price {
		t.Fatalf("balance = %d, want %d", balance, 100-pkg.Price)
	}
}

func TestPurchaseEventCarriesTokenReference(t *testing.T) {
	env := initialized(t)
	if _, err := env.svc.Purchase(as(user), user, 1); err != nil {
		t.Fatalf("Purchase: %v", err)
	}

	event := env.sink.last()
	if event.Topic != audit.TopicPurchaseCreated {
		t.Fatalf("last event = %s, want %s", event.Topic, audit.TopicPurchaseCreated)
	}
	if event.Payload["token"] != "token" {
		t.Errorf("token = %v, want the reference recorded at init", event.Payload["token"])
	}
}

func TestPurchaseRequiresOwner(t *testing.T) {
	env := initialized(t)

	for _, ctx := range []context.Context{context.Background(), as("other"), as(admin)} {
		if _, err := env.svc.Purchase(ctx, user, 1); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	}
	if balance, _ := env.ledger.Balance(context.Background(), user); balance != 100 {
		t.Fatalf("balance = %d, want 100", balance)
	}
}

func TestPurchaseInsufficientBalance(t *testing.T) {
	env := initialized(t)
	if err := env.svc.SetPackage(as(admin), 2, 1000, 60); err != nil {
		t.Fatalf("SetPackage: %v", err)
	}

	_, err := env.svc.Purchase(as(user), user, 2)
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if seq := env.sequence(t, user); seq != 0 {
		t.Fatalf("sequence = %d, want 0", seq)
	}
}

// failingLedger reports a healthy balance but refuses every transfer.
type failingLedger struct {
	err error
}

func (f failingLedger) Transfer(context.Context, string, string, uint64) error { return f.err }
func (f failingLedger) Balance(context.Context, string) (uint64, error)        { return 1 << 20, nil }

func TestPurchaseLedgerErrorPropagatesUnchanged(t *testing.T) {
	env := newTestEnv(t, failingLedger{err: token.ErrInsufficientFunds})
	if err := env.svc.Init(as(admin), admin, "token"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := env.svc.SetPackage(as(admin), 1, 10, 3600); err != nil {
		t.Fatalf("SetPackage: %v", err)
	}

	_, err := env.svc.Purchase(as(user), user, 1)
	if err != token.ErrInsufficientFunds {
		t.Fatalf("expected token.ErrInsufficientFunds unchanged, got %v", err)
	}
	if seq := env.sequence(t, user); seq != 0 {
		t.Fatalf("sequence = %d, want 0 after failed transfer", seq)
	}
	if _, err := env.svc.GetOrder(context.Background(), user, 1); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected no order, got %v", err)
	}
	for _, topic := range env.sink.topics() {
		if topic == audit.TopicPurchaseCreated {
			t.Fatal("aborted purchase published an event")
		}
	}
}

func TestStartAndPauseNoOps(t *testing.T) {
	env := initialized(t)
	env.clock.Set(500)

	_, transition, err := env.svc.Start(as(user), user)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if transition != usage.Unchanged {
		t.Fatalf("Start with empty balance = %v, want unchanged", transition)
	}

	_, transition, err = env.svc.Pause(as(user), user)
	if err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if transition != usage.Unchanged {
		t.Fatalf("Pause while paused = %v, want unchanged", transition)
	}

	if _, err := env.svc.Purchase(as(user), user, 1); err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	if _, err := env.svc.Grant(as(user), user, user, 1); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if _, _, err := env.svc.Start(as(user), user); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// A second start does not reset the clock.
	env.clock.Set(600)
	session, transition, err := env.svc.Start(as(user), user)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if transition != usage.Unchanged || session.StartedAt != 500 {
		t.Fatalf("second Start = %v %+v, want unchanged at 500", transition, session)
	}

	starts := 0
	for _, topic := range env.sink.topics() {
		if topic == audit.TopicStart {
			starts++
		}
		if topic == audit.TopicPause {
			t.Fatal("no-op pause emitted an event")
		}
	}
	if starts != 1 {
		t.Fatalf("start events = %d, want 1", starts)
	}

	if _, _, err := env.svc.Start(as("other"), user); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Start by another principal: expected ErrUnauthorized, got %v", err)
	}
}

func TestAccessAndActivity(t *testing.T) {
	env := initialized(t)
	ctx := context.Background()

	if _, err := env.svc.Purchase(as(user), user, 1); err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	if _, err := env.svc.Grant(as(admin), admin, user, 1); err != nil {
		t.Fatalf("Grant: %v", err)
	}

	access, err := env.svc.Access(ctx, user)
	if err != nil {
		t.Fatalf("Access: %v", err)
	}
	if access.ExpiresAt != 0 {
		t.Fatalf("paused ExpiresAt = %d, want 0", access.ExpiresAt)
	}
	if active, _ := env.svc.IsActive(ctx, user, 100); active {
		t.Fatal("paused session reported active")
	}

	env.clock.Set(1000)
	if _, _, err := env.svc.Start(as(user), user); err != nil {
		t.Fatalf("Start: %v", err)
	}

	access, _ = env.svc.Access(ctx, user)
	if access.Owner != user || access.ExpiresAt != 4600 {
		t.Fatalf("Access = %+v, want expiry 4600", access)
	}
	if active, _ := env.svc.IsActive(ctx, user, 4599); !active {
		t.Fatal("expected session active before expiry")
	}
	if active, _ := env.svc.IsActive(ctx, user, 4600); active {
		t.Fatal("expected session inactive at expiry")
	}
}

func TestRemainingNeverIncreasesWhileRunning(t *testing.T) {
	env := initialized(t)
	ctx := context.Background()

	if _, err := env.svc.Purchase(as(user), user, 1); err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	if _, err := env.svc.Grant(as(user), user, user, 1); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	env.clock.Set(10)
	if _, _, err := env.svc.Start(as(user), user); err != nil {
		t.Fatalf("Start: %v", err)
	}

	prev := uint64(1<<64 - 1)
	for now := uint64(10); now < 5000; now += 250 {
		got, err := env.svc.Remaining(ctx, user, now)
		if err != nil {
			t.Fatalf("Remaining: %v", err)
		}
		if got > prev {
			t.Fatalf("remaining rose from %d to %d at %d", prev, got, now)
		}
		prev = got
	}
	if prev != 0 {
		t.Fatalf("remaining = %d after expiry, want 0", prev)
	}
}

func TestErrorCodes(t *testing.T) {
	tests := []struct {
		err  *Error
		code int
	}{
		{ErrAlreadyInitialized, 1},
		{ErrNotInitialized, 2},
		{ErrUnauthorized, 3},
		{ErrPackageNotFound, 4},
		{ErrInsufficientBalance, 5},
		{ErrOrderNotFound, 6},
		{ErrAlreadyGranted, 7},
	}
	for _, tt := range tests {
		if tt.err.Code != tt.code {
			t.Errorf("%s code = %d, want %d", tt.err.Name, tt.err.Code, tt.code)
		}
	}

	wrapped := unauthorized("bob may not grant")
	domainErr, ok := AsError(wrapped)
	if !ok || domainErr != ErrUnauthorized {
		t.Fatalf("AsError(%v) = %v, %v", wrapped, domainErr, ok)
	}
}
