package redis

import "strings"

const (
	// releaseLockScript deletes the lock only if it still carries our token
	releaseLockScript = `
local lock_key = KEYS[1]   -- {prefix}:lock
local token = ARGV[1]

if redis.call('GET', lock_key) == token then
  return redis.call('DEL', lock_key)
end
return 0
`

	// commitScript applies buffered transaction writes if the lock is held.
	// KEYS[1] is the lock and ARGV[1] its token; every following key has an
	// (op, value, score) triple in ARGV.
	commitScript = `
local token = ARGV[1]
if redis.call('GET', KEYS[1]) ~= token then
  return redis.error_reply('lock lost')
end

for i = 2, #KEYS do
  local base = 2 + (i - 2) * 3
  local op = ARGV[base]
  local value = ARGV[base + 1]
  local score = ARGV[base + 2]

  if op == 'set' then
    redis.call('SET', KEYS[i], value)
  elseif op == 'sadd' then
    redis.call('SADD', KEYS[i], value)
  elseif op == 'zadd' then
    redis.call('ZADD', KEYS[i], score, value)
  else
    return redis.error_reply('unknown op ' .. op)
  end
end

return #KEYS - 1
`
)

func isLockLost(err error) bool {
	return err != nil && strings.Contains(err.Error(), "lock lost")
}
