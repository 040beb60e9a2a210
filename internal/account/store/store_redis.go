package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"bondgateway/internal/account"
	id "bondgateway/pkg/domain"
	"bondgateway/pkg/platform/sentinel"
)

const (
	accountKeyPrefix = "bond_user_session:"
	// emailIndexKey maps normalized email to account ID.
	emailIndexKey = "bond_user_session_emails"
)

// Redis stores each account as a JSON session artifact. A zero ttl keeps
// records until they are deleted.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

type RedisOption func(*Redis)

func WithTTL(ttl time.Duration) RedisOption {
	return func(s *Redis) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func NewRedis(client *redis.Client, opts ...RedisOption) *Redis {
	s := &Redis{client: client}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func accountKey(userID id.UserID) string {
	return accountKeyPrefix + userID.String()
}

func (s *Redis) Save(ctx context.Context, acct *account.UserAccount) error {
	if acct == nil {
		return fmt.Errorf("account is required")
	}
	data, err := json.Marshal(acct)
	if err != nil {
		return fmt.Errorf("marshal account: %w", err)
	}
	email := account.NormalizeEmail(acct.Email)

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		owner, err := tx.HGet(ctx, emailIndexKey, email).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("read email index: %w", err)
		}
		if err == nil && owner != acct.ID.String() {
			return fmt.Errorf("email %q: %w", email, sentinel.ErrAlreadyUsed)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, accountKey(acct.ID), data, s.ttl)
			pipe.HSet(ctx, emailIndexKey, email, acct.ID.String())
			return nil
		})
		return err
	}, emailIndexKey)
	if err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return err
		}
		return fmt.Errorf("save account: %w", err)
	}
	return nil
}

func (s *Redis) FindByID(ctx context.Context, userID id.UserID) (*account.UserAccount, error) {
	data, err := s.client.Get(ctx, accountKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find account by id: %w", err)
	}
	var acct account.UserAccount
	if err := json.Unmarshal(data, &acct); err != nil {
		return nil, fmt.Errorf("unmarshal account: %w", err)
	}
	return &acct, nil
}

func (s *Redis) FindByEmail(ctx context.Context, email string) (*account.UserAccount, error) {
	raw, err := s.client.HGet(ctx, emailIndexKey, account.NormalizeEmail(email)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find account by email: %w", err)
	}
	userID, err := id.ParseUserID(raw)
	if err != nil {
		return nil, fmt.Errorf("corrupt email index entry: %w", err)
	}
	return s.FindByID(ctx, userID)
}

func (s *Redis) Delete(ctx context.Context, userID id.UserID) error {
	acct, err := s.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, accountKey(userID))
	pipe.HDel(ctx, emailIndexKey, account.NormalizeEmail(acct.Email))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return nil
}

func (s *Redis) Count(ctx context.Context) (int, error) {
	n, err := s.client.HLen(ctx, emailIndexKey).Result()
	if err != nil {
		return 0, fmt.Errorf("count accounts: %w", err)
	}
	return int(n), nil
}
