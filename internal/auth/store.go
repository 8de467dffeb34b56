package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/nomina/internal/rbac"
	"github.com/odyssey-erp/nomina/internal/shared"
)

// CredentialStore persists sessions between requests. Load returns (nil, nil) when the
// session is absent. Touch moves LastActivityAt forward to at (never backward) and
// returns the stored value after the update.
type CredentialStore interface {
	Load(ctx context.Context, sessionID string) (*Session, error)
	Save(ctx context.Context, sess *Session) error
	Touch(ctx context.Context, sessionID string, at time.Time) (time.Time, error)
	Clear(ctx context.Context, sessionID string) error
}

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]Session
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]Session)}
}

// Load implements CredentialStore.
func (s *MemoryStore) Load(_ context.Context, sessionID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	return &sess, nil
}

// Save implements CredentialStore.
func (s *MemoryStore) Save(_ context.Context, sess *Session) error {
	if sess == nil || sess.ID == "" {
		return errors.New("auth: memory store: session id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = *sess
	return nil
}

// Touch implements CredentialStore.
func (s *MemoryStore) Touch(_ context.Context, sessionID string, at time.Time) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return time.Time{}, shared.ErrUnauthenticated
	}
	if at.After(sess.LastActivityAt) {
		sess.LastActivityAt = at
		s.sessions[sessionID] = sess
	}
	return sess.LastActivityAt, nil
}

// Clear implements CredentialStore.
func (s *MemoryStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

// RedisStore keeps sessions in a Redis hash per session, expiring with the credential.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore constructs a RedisStore.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "session:"}
}

const (
	fieldCredential   = "credential"
	fieldPrincipal    = "principal"
	fieldIssuedAt     = "issued_at"
	fieldExpiresAt    = "expires_at"
	fieldLastActivity = "last_activity"
)

// touchScript raises last_activity to ARGV[1] only when it moves forward.
var touchScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'last_activity')
if not cur then
  return -1
end
if tonumber(ARGV[1]) > tonumber(cur) then
  redis.call('HSET', KEYS[1], 'last_activity', ARGV[1])
  return tonumber(ARGV[1])
end
return tonumber(cur)
`)

// Load implements CredentialStore.
func (s *RedisStore) Load(ctx context.Context, sessionID string) (*Session, error) {
	values, err := s.client.HGetAll(ctx, s.redisKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("auth: redis load: %w: %v", shared.ErrCollaboratorUnavailable, err)
	}
	if len(values) == 0 {
		return nil, nil
	}
	var principal rbac.Principal
	if err := json.Unmarshal([]byte(values[fieldPrincipal]), &principal); err != nil {
		return nil, fmt.Errorf("auth: redis decode principal: %w", err)
	}
	sess := &Session{
		ID:         sessionID,
		Credential: values[fieldCredential],
		Principal:  principal,
	}
	sess.IssuedAt, _ = shared.NormalizeTimestamp(values[fieldIssuedAt])
	sess.ExpiresAt, _ = shared.NormalizeTimestamp(values[fieldExpiresAt])
	sess.LastActivityAt, _ = shared.NormalizeTimestamp(values[fieldLastActivity])
	return sess, nil
}

// Save implements CredentialStore.
func (s *RedisStore) Save(ctx context.Context, sess *Session) error {
	if sess == nil || sess.ID == "" {
		return errors.New("auth: redis store: session id required")
	}
	principal, err := json.Marshal(sess.Principal)
	if err != nil {
		return err
	}
	key := s.redisKey(sess.ID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			fieldCredential, sess.Credential,
			fieldPrincipal, string(principal),
			fieldIssuedAt, millis(sess.IssuedAt),
			fieldExpiresAt, millis(sess.ExpiresAt),
			fieldLastActivity, millis(sess.LastActivityAt),
		)
		if !sess.ExpiresAt.IsZero() {
			pipe.ExpireAt(ctx, key, sess.ExpiresAt)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("auth: redis save: %w: %v", shared.ErrCollaboratorUnavailable, err)
	}
	return nil
}

// Touch implements CredentialStore.
func (s *RedisStore) Touch(ctx context.Context, sessionID string, at time.Time) (time.Time, error) {
	stored, err := touchScript.Run(ctx, s.client, []string{s.redisKey(sessionID)}, millis(at)).Int64()
	if err != nil {
		return time.Time{}, fmt.Errorf("auth: redis touch: %w: %v", shared.ErrCollaboratorUnavailable, err)
	}
	if stored < 0 {
		return time.Time{}, shared.ErrUnauthenticated
	}
	return time.UnixMilli(stored).UTC(), nil
}

// Clear implements CredentialStore.
func (s *RedisStore) Clear(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.redisKey(sessionID)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("auth: redis clear: %w: %v", shared.ErrCollaboratorUnavailable, err)
	}
	return nil
}

func (s *RedisStore) redisKey(id string) string {
	return s.prefix + id
}

func millis(t time.Time) string {
	if t.IsZero() {
		return "0"
	}
	return strconv.FormatInt(t.UnixMilli(), 10)
}

var (
	_ CredentialStore = (*MemoryStore)(nil)
	_ CredentialStore = (*RedisStore)(nil)
)
