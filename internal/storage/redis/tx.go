package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/goodtune/accesstime/internal/storage"
	"github.com/redis/go-redis/v9"
)

// ErrReadOnly is returned by writes attempted inside View.
var ErrReadOnly = errors.New("redis: write in read-only transaction")

const (
	opSet  = "set"
	opSAdd = "sadd"
	opZAdd = "zadd"
)

type writeOp struct {
	kind  string
	key   string
	value string
	score string
}

// redisTx buffers writes until commit. Reads see the buffered writes first.
type redisTx struct {
	ctx      context.Context
	client   *redis.Client
	keys     keyspace
	readOnly bool

	ops     []writeOp
	values  map[string]string
	members map[string]map[string]struct{}
}

func newRedisTx(ctx context.Context, client *redis.Client, keys keyspace, readOnly bool) *redisTx {
	return &redisTx{
		ctx:      ctx,
		client:   client,
		keys:     keys,
		readOnly: readOnly,
		values:   make(map[string]string),
		members:  make(map[string]map[string]struct{}),
	}
}

func (t *redisTx) get(key string) (string, error) {
	if v, ok := t.values[key]; ok {
		return v, nil
	}
	v, err := t.client.Get(t.ctx, key).Result()
	if err == redis.Nil {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	return v, nil
}

func (t *redisTx) set(key, value string) error {
	if t.readOnly {
		return ErrReadOnly
	}
	t.values[key] = value
	t.ops = append(t.ops, writeOp{kind: opSet, key: key, value: value})
	return nil
}

// addMember records an index write; zset members all share score 0 so
// they sort lexically.
func (t *redisTx) addMember(kind, key, member string) error {
	if t.readOnly {
		return ErrReadOnly
	}
	if t.members[key] == nil {
		t.members[key] = make(map[string]struct{})
	}
	t.members[key][member] = struct{}{}
	t.ops = append(t.ops, writeOp{kind: kind, key: key, value: member, score: "0"})
	return nil
}

// pendingMembers merges stored index members with buffered ones.
func (t *redisTx) pendingMembers(key string, stored []string) []string {
	seen := make(map[string]struct{}, len(stored))
	for _, m := range stored {
		seen[m] = struct{}{}
	}
	for m := range t.members[key] {
		if _, ok := seen[m]; !ok {
			stored = append(stored, m)
		}
	}
	return stored
}

func getValue[T any](t *redisTx, key string) (*T, error) {
	raw, err := t.get(key)
	if err != nil {
		return nil, err
	}
	var value T
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &value, nil
}

func (t *redisTx) putValue(key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return t.set(key, string(data))
}

func (t *redisTx) Settings() (*storage.Settings, error) {
	return getValue[storage.Settings](t, t.keys.settings())
}

func (t *redisTx) PutSettings(settings storage.Settings) error {
	return t.putValue(t.keys.settings(), settings)
}

func (t *redisTx) Package(id uint32) (*storage.Package, error) {
	return getValue[storage.Package](t, t.keys.pkg(id))
}

func (t *redisTx) PutPackage(pkg storage.Package) error {
	if err := t.putValue(t.keys.pkg(pkg.ID), pkg); err != nil {
		return err
	}
	return t.addMember(opSAdd, t.keys.packages(), strconv.FormatUint(uint64(pkg.ID), 10))
}

func (t *redisTx) Packages() ([]storage.Package, error) {
	stored, err := t.client.SMembers(t.ctx, t.keys.packages()).Result()
	if err != nil {
		return nil, fmt.Errorf("list packages: %w", err)
	}
	ids := t.pendingMembers(t.keys.packages(), stored)

	packages := make([]storage.Package, 0, len(ids))
	for _, raw := range ids {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid package id %q: %w", raw, err)
		}
		pkg, err := t.Package(uint32(id))
		if err != nil {
			return nil, err
		}
		packages = append(packages, *pkg)
	}
	sort.Slice(packages, func(i, j int) bool { return packages[i].ID < packages[j].ID })
	return packages, nil
}

func (t *redisTx) Session(owner string) (*storage.Session, error) {
	return getValue[storage.Session](t, t.keys.session(owner))
}

func (t *redisTx) PutSession(session storage.Session) error {
	if session.Owner == "" {
		return fmt.Errorf("session owner is required")
	}
	return t.putValue(t.keys.session(session.Owner), session)
}

func (t *redisTx) Sequence(owner string) (uint64, error) {
	raw, err := t.get(t.keys.sequence(owner))
	if err == storage.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid sequence for %s: %w", owner, err)
	}
	return value, nil
}

func (t *redisTx) PutSequence(owner string, value uint64) error {
	return t.set(t.keys.sequence(owner), strconv.FormatUint(value, 10))
}

func (t *redisTx) Order(owner string, sequenceID uint64) (*storage.Order, error) {
	return getValue[storage.Order](t, t.keys.order(owner, sequenceID))
}

func (t *redisTx) InsertOrder(order storage.Order) error {
	_, err := t.Order(order.Owner, order.SequenceID)
	if err == nil {
		return storage.ErrAlreadyExists
	}
	if err != storage.ErrNotFound {
		return err
	}
	return t.PutOrder(order)
}

func (t *redisTx) PutOrder(order storage.Order) error {
	if order.Owner == "" {
		return fmt.Errorf("order owner is required")
	}
	if err := t.putValue(t.keys.order(order.Owner, order.SequenceID), order); err != nil {
		return err
	}
	return t.addMember(opZAdd, t.keys.orders(order.Owner), sequenceMember(order.SequenceID))
}

func (t *redisTx) Orders(owner string) ([]storage.Order, error) {
	stored, err := t.client.ZRange(t.ctx, t.keys.orders(owner), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	members := t.pendingMembers(t.keys.orders(owner), stored)
	sort.Strings(members)

	orders := make([]storage.Order, 0, len(members))
	for _, member := range members {
		seq, err := strconv.ParseUint(member, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid order member %q: %w", member, err)
		}
		order, err := t.Order(owner, seq)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	return orders, nil
}

func sequenceMember(seq uint64) string {
	return fmt.Sprintf("%020d", seq)
}
