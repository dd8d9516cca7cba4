// Package lease implements a short-lived exclusive claim on a blob,
// backed by Redis, so two coordinator replicas never process the same
// archive concurrently. Blob stores such as MinIO/S3 have no native
// object-lease API (unlike Azure Blob Storage), so a distributed mutex is
// built on top of Redis instead — the same client library already pulled
// in transitively for the task queue.
package lease

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Token identifies one successful acquisition. Only the holder that
// acquired a lease may release it; a Token prevents a replica from
// releasing a lease it no longer owns after the TTL has already rolled it
// over to someone else.
type Token struct {
	key   string
	value string
}

// Manager acquires and releases leases against a single Redis client.
type Manager struct {
	client *redis.Client
}

// NewManager constructs a Manager.
func NewManager(client *redis.Client) *Manager {
	return &Manager{client: client}
}

// releaseScript performs a compare-and-delete: the key is only removed if
// its value still matches the token that acquired it.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// Acquire attempts to claim the blob identified by container/name for ttl.
// The second return value is the "busy" signal called for by the Blob
// Store Gateway contract: false with a nil error means another holder
// currently owns the lease, not that anything went wrong.
func (m *Manager) Acquire(ctx context.Context, container, name string, ttl time.Duration) (Token, bool, error) {
	key := leaseKey(container, name)
	value, err := randomValue()
	if err != nil {
		return Token{}, false, err
	}
	ok, err := m.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return Token{}, false, err
	}
	if !ok {
		return Token{}, false, nil
	}
	return Token{key: key, value: value}, true, nil
}

// Release gives up a lease early. It is a no-op (not an error) if the
// lease already expired or is now held under another token, since the TTL
// guarantees eventual release either way. A zero-value Token (one that
// never came from a successful Acquire) is rejected with an error.
func (m *Manager) Release(ctx context.Context, tok Token) error {
	if tok.key == "" {
		return errors.New("lease: release called with zero-value token")
	}
	_, err := releaseScript.Run(ctx, m.client, []string{tok.key}, tok.value).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

func leaseKey(container, name string) string {
	return "bsp:lease:" + container + ":" + name
}

func randomValue() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
