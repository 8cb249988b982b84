package seatlock

import "github.com/redis/go-redis/v9"

// compareAndSetScript replaces KEYS[1] with ARGV[2] (PX ARGV[3]) only if
// it still holds exactly ARGV[1], the payload the caller inspected.
var compareAndSetScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
	return 1
end
return 0
`)

// compareAndDeleteScript deletes KEYS[1] only if it still holds ARGV[1].
var compareAndDeleteScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)
