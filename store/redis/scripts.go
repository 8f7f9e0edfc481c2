package redis

import goredis "github.com/redis/go-redis/v9"

// enqueueScript inserts a job hash unless it exists.
//
// KEYS[1] job hash, KEYS[2] index. ARGV[1] id, ARGV[2] run_at score,
// ARGV[3..] field/value pairs. Returns 0 when the job already exists.
var enqueueScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV, 3))
redis.call('ZADD', KEYS[2], ARGV[2], ARGV[1])
return 1
`)

// updateScript overwrites an existing job hash and re-scores it.
//
// Same arguments as enqueueScript. Returns 0 when the job does not exist.
var updateScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV, 3))
redis.call('ZADD', KEYS[2], ARGV[2], ARGV[1])
return 1
`)

// findAndLockScript selects the first eligible job and locks it.
//
// KEYS[1] index. ARGV[1] now, ARGV[2] worker, ARGV[3] stale-before cut-off,
// ARGV[4] min priority or "", ARGV[5] max priority or "", ARGV[6] job key
// prefix, ARGV[7..] accepted queues. Returns the job ID or nil.
var findAndLockScript = goredis.NewScript(`
local now = tonumber(ARGV[1])
local worker = ARGV[2]
local stale = tonumber(ARGV[3])
local minp = tonumber(ARGV[4])
local maxp = tonumber(ARGV[5])
local prefix = ARGV[6]

local queues = nil
if #ARGV > 6 then
  queues = {}
  for i = 7, #ARGV do queues[ARGV[i]] = true end
end

local function blank(v) return v == false or v == '' end

-- Lua's string < follows the server locale; compare bytes instead.
local function bytesLess(a, b)
  for i = 1, math.min(#a, #b) do
    local x, y = string.byte(a, i), string.byte(b, i)
    if x ~= y then return x < y end
  end
  return #a < #b
end

local best, bestBy, bestPrio, bestRun
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', now)
for _, id in ipairs(ids) do
  local f = redis.call('HMGET', prefix .. id,
    'priority', 'run_at', 'locked_at', 'locked_by', 'failed_at', 'queue')
  local prio = tonumber(f[1])
  local runAt = tonumber(f[2])
  local by = f[4]
  if blank(by) then by = '' end
  local queue = f[6]
  if blank(queue) then queue = '' end

  local ok = prio ~= nil and runAt ~= nil and runAt <= now and blank(f[5])
  if ok and minp and prio < minp then ok = false end
  if ok and maxp and prio > maxp then ok = false end
  if ok and queues and not queues[queue] then ok = false end
  if ok then
    ok = (by ~= '' and by == worker) or blank(f[3]) or tonumber(f[3]) <= stale
  end

  if ok then
    local better = false
    if best == nil then
      better = true
    elseif by ~= bestBy then
      if bestBy == '' then better = true
      elseif by ~= '' then better = bytesLess(bestBy, by) end
    elseif prio ~= bestPrio then
      better = prio < bestPrio
    elseif runAt ~= bestRun then
      better = runAt < bestRun
    else
      better = bytesLess(id, best)
    end
    if better then
      best, bestBy, bestPrio, bestRun = id, by, prio, runAt
    end
  end
end

if best == nil then
  return nil
end
redis.call('HSET', prefix .. best, 'locked_at', ARGV[1], 'locked_by', worker, 'updated_at', ARGV[1])
return best
`)

// clearLocksScript releases every lock held by a worker.
//
// KEYS[1] index. ARGV[1] worker, ARGV[2] now, ARGV[3] job key prefix.
// Returns the number of jobs changed.
var clearLocksScript = goredis.NewScript(`
if ARGV[1] == '' then
  return 0
end
local n = 0
local ids = redis.call('ZRANGE', KEYS[1], 0, -1)
for _, id in ipairs(ids) do
  local key = ARGV[3] .. id
  if redis.call('HGET', key, 'locked_by') == ARGV[1] then
    redis.call('HSET', key, 'locked_at', '', 'locked_by', '', 'updated_at', ARGV[2])
    n = n + 1
  end
end
return n
`)
