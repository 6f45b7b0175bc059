package token

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Balances are stored as decimal strings and compared by length then
// lexically, which is exact for non-negative integers without leading
// zeros. INCRBY/DECRBY do the arithmetic, limiting balances to int64.
const transferScript = `
local from_key = KEYS[1]   -- {prefix}:balance:{from}
local to_key = KEYS[2]     -- {prefix}:balance:{to}
local amount = ARGV[1]

local function ge(a, b)
  if #a ~= #b then
    return #a > #b
  end
  return a >= b
end

local balance = redis.call('GET', from_key)
if not balance then
  balance = '0'
end

if not ge(balance, amount) then
  return redis.error_reply('insufficient funds')
end

if from_key == to_key or amount == '0' then
  return 'OK'
end

local credited = redis.pcall('INCRBY', to_key, amount)
if type(credited) == 'table' and credited.err then
  return redis.error_reply('overflow')
end
redis.call('DECRBY', from_key, amount)
return 'OK'
`

const mintScript = `
local credited = redis.pcall('INCRBY', KEYS[1], ARGV[1])
if type(credited) == 'table' and credited.err then
  return redis.error_reply('overflow')
end
return credited
`

// RedisLedger keeps balances in Redis.
type RedisLedger struct {
	client *redis.Client
	prefix string
}

// NewRedisLedger creates a ledger storing balances under prefix.
func NewRedisLedger(client *redis.Client, prefix string) *RedisLedger {
	return &RedisLedger{client: client, prefix: prefix}
}

func (l *RedisLedger) key(account string) string {
	return l.prefix + ":balance:" + account
}

// Transfer moves amount from one account to another atomically.
func (l *RedisLedger) Transfer(ctx context.Context, from, to string, amount uint64) error {
	if err := authorize(ctx, from); err != nil {
		return err
	}
	if err := checkRange(amount); err != nil {
		return err
	}

	err := redis.NewScript(transferScript).Run(ctx, l.client,
		[]string{l.key(from), l.key(to)},
		strconv.FormatUint(amount, 10),
	).Err()
	return scriptError(err, "transfer")
}

// Balance returns the account balance; unknown accounts hold zero.
func (l *RedisLedger) Balance(ctx context.Context, account string) (uint64, error) {
	raw, err := l.client.Get(ctx, l.key(account)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	balance, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid balance for %s: %w", account, err)
	}
	return balance, nil
}

// Mint credits new units to account.
func (l *RedisLedger) Mint(ctx context.Context, account string, amount uint64) error {
	if err := checkRange(amount); err != nil {
		return err
	}
	err := redis.NewScript(mintScript).Run(ctx, l.client,
		[]string{l.key(account)},
		strconv.FormatUint(amount, 10),
	).Err()
	return scriptError(err, "mint")
}

func checkRange(amount uint64) error {
	if amount > 1<<63-1 {
		return ErrOverflow
	}
	return nil
}

func scriptError(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case strings.Contains(err.Error(), "insufficient funds"):
		return ErrInsufficientFunds
	case strings.Contains(err.Error(), "overflow"):
		return ErrOverflow
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
