package verify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps pending codes as Redis hashes that expire with the code.
// An entry written with a past ExpiresAt disappears immediately.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a Redis-backed code store.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "codeplat:verify:",
	}
}

func (r *RedisStore) key(email string) string {
	return r.prefix + email
}

// attemptScript spends one check while the key is alive and under budget.
// ARGV: now in unix millis, max attempts.
var attemptScript = redis.NewScript(`
local v = redis.call("HMGET", KEYS[1], "code_hash", "expires_at", "attempts")
if not v[1] then
	return {"missing"}
end
if tonumber(v[2]) <= tonumber(ARGV[1]) then
	redis.call("DEL", KEYS[1])
	return {"expired"}
end
if tonumber(v[3]) >= tonumber(ARGV[2]) then
	return {"exhausted"}
end
local n = redis.call("HINCRBY", KEYS[1], "attempts", 1)
return {"ok", v[1], v[2], n}
`)

// takeScript deletes the key only when the hash matches and it is unexpired.
// ARGV: code hash, now in unix millis.
var takeScript = redis.NewScript(`
local v = redis.call("HMGET", KEYS[1], "code_hash", "expires_at")
if v[1] == ARGV[1] and tonumber(v[2]) > tonumber(ARGV[2]) then
	redis.call("DEL", KEYS[1])
	return 1
end
return 0
`)

func (r *RedisStore) Put(ctx context.Context, email string, e Entry) error {
	key := r.key(email)
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, key)
		p.HSet(ctx, key,
			"code_hash", e.CodeHash,
			"expires_at", e.ExpiresAt.UnixMilli(),
			"attempts", e.Attempts,
		)
		p.PExpireAt(ctx, key, e.ExpiresAt)
		return nil
	})
	return err
}

func (r *RedisStore) Get(ctx context.Context, email string) (Entry, error) {
	vals, err := r.client.HGetAll(ctx, r.key(email)).Result()
	if err != nil {
		return Entry{}, err
	}
	if len(vals) == 0 {
		return Entry{}, ErrCodeNotFound
	}

	expMS, err := strconv.ParseInt(vals["expires_at"], 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("verify: bad expires_at: %w", err)
	}
	attempts, err := strconv.Atoi(vals["attempts"])
	if err != nil {
		return Entry{}, fmt.Errorf("verify: bad attempts: %w", err)
	}

	return Entry{
		CodeHash:  vals["code_hash"],
		ExpiresAt: time.UnixMilli(expMS).UTC(),
		Attempts:  attempts,
	}, nil
}

func (r *RedisStore) Attempt(ctx context.Context, email string, now time.Time, maxAttempts int) (Entry, error) {
	res, err := attemptScript.Run(ctx, r.client, []string{r.key(email)}, now.UnixMilli(), maxAttempts).Slice()
	if err != nil {
		return Entry{}, err
	}
	if len(res) == 0 {
		return Entry{}, errors.New("verify: empty attempt reply")
	}

	switch res[0] {
	case "missing":
		return Entry{}, ErrCodeNotFound
	case "expired":
		return Entry{}, ErrCodeExpired
	case "exhausted":
		return Entry{}, ErrTooManyAttempts
	case "ok":
	default:
		return Entry{}, fmt.Errorf("verify: unexpected attempt reply %v", res[0])
	}
	if len(res) != 4 {
		return Entry{}, fmt.Errorf("verify: short attempt reply (%d fields)", len(res))
	}

	hash, _ := res[1].(string)
	expStr, _ := res[2].(string)
	expMS, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("verify: bad expires_at: %w", err)
	}
	n, ok := res[3].(int64)
	if !ok {
		return Entry{}, fmt.Errorf("verify: bad attempts %v", res[3])
	}

	return Entry{
		CodeHash:  hash,
		ExpiresAt: time.UnixMilli(expMS).UTC(),
		Attempts:  int(n),
	}, nil
}

func (r *RedisStore) Take(ctx context.Context, email string, codeHash string, now time.Time) (bool, error) {
	n, err := takeScript.Run(ctx, r.client, []string{r.key(email)}, codeHash, now.UnixMilli()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *RedisStore) Delete(ctx context.Context, email string) error {
	return r.client.Del(ctx, r.key(email)).Err()
}

// NewRedisClient connects and pings within two seconds.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}
