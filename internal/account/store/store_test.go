package store

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"bondgateway/internal/account"
	id "bondgateway/pkg/domain"
	"bondgateway/pkg/platform/sentinel"
)

// StoreSuite runs the same contract against every backend that can run
// without external services.
type StoreSuite struct {
	suite.Suite
	newStore func(t *testing.T) Store
	store    Store
	ctx      context.Context
}

func (s *StoreSuite) SetupTest() {
	s.store = s.newStore(s.T())
	s.ctx = context.Background()
}

func newAccount(email string) *account.UserAccount {
	return &account.UserAccount{
		ID:        id.NewUserID(),
		FirstName: "Emmanuel",
		LastName:  "Okonkwo",
		Email:     email,
		Phone:     "08012345678",
		BVNSuffix: "0000",
		WalletID:  "1234567890",
		JoinedAt:  time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC),
	}
}

func (s *StoreSuite) TestSaveAndFind() {
	acct := newAccount("emmanuel.okonkwo@email.com")
	acct.WalletBalance = 2_500_000
	require.NoError(s.T(), s.store.Save(s.ctx, acct))

	byID, err := s.store.FindByID(s.ctx, acct.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), acct.WalletID, byID.WalletID)
	assert.Equal(s.T(), int64(2_500_000), byID.WalletBalance)
	assert.True(s.T(), acct.JoinedAt.Equal(byID.JoinedAt))

	byEmail, err := s.store.FindByEmail(s.ctx, "  Emmanuel.Okonkwo@EMAIL.com ")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), acct.ID, byEmail.ID)

	n, err := s.store.Count(s.ctx)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 1, n)
}

func (s *StoreSuite) TestFindNotFound() {
	_, err := s.store.FindByID(s.ctx, id.NewUserID())
	assert.ErrorIs(s.T(), err, sentinel.ErrNotFound)

	_, err = s.store.FindByEmail(s.ctx, "nobody@email.com")
	assert.ErrorIs(s.T(), err, sentinel.ErrNotFound)
}

func (s *StoreSuite) TestEmailBelongsToOneAccount() {
	require.NoError(s.T(), s.store.Save(s.ctx, newAccount("taken@email.com")))

	err := s.store.Save(s.ctx, newAccount("TAKEN@email.com"))
	assert.ErrorIs(s.T(), err, sentinel.ErrAlreadyUsed)
}

func (s *StoreSuite) TestSaveIsIdempotentForSameAccount() {
	acct := newAccount("repeat@email.com")
	require.NoError(s.T(), s.store.Save(s.ctx, acct))
	acct.Phone = "08099999999"
	require.NoError(s.T(), s.store.Save(s.ctx, acct))

	got, err := s.store.FindByID(s.ctx, acct.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "08099999999", got.Phone)
}

func (s *StoreSuite) TestDelete() {
	acct := newAccount("gone@email.com")
	require.NoError(s.T(), s.store.Save(s.ctx, acct))
	require.NoError(s.T(), s.store.Delete(s.ctx, acct.ID))

	_, err := s.store.FindByEmail(s.ctx, "gone@email.com")
	assert.ErrorIs(s.T(), err, sentinel.ErrNotFound)
	assert.ErrorIs(s.T(), s.store.Delete(s.ctx, acct.ID), sentinel.ErrNotFound)

	n, err := s.store.Count(s.ctx)
	require.NoError(s.T(), err)
	assert.Zero(s.T(), n)
}

func TestInMemoryStore(t *testing.T) {
	suite.Run(t, &StoreSuite{newStore: func(*testing.T) Store { return NewInMemory() }})
}

func TestRedisStore(t *testing.T) {
	suite.Run(t, &StoreSuite{newStore: func(t *testing.T) Store {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		return NewRedis(client)
	}})
}

func TestRedisStore_KeyLayoutAndTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	s := NewRedis(client, WithTTL(time.Hour))

	acct := newAccount("ttl@email.com")
	require.NoError(t, s.Save(context.Background(), acct))

	key := "bond_user_session:" + acct.ID.String()
	assert.True(t, mr.Exists(key))
	assert.Equal(t, time.Hour, mr.TTL(key))
	assert.Equal(t, acct.ID.String(), mr.HGet(emailIndexKey, "ttl@email.com"))
}
