package receipts

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fadedpez/spinz/pkg/entities"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
)

type RedisCacheTestSuite struct {
	suite.Suite
	server *miniredis.Miniredis
	client *redis.Client
	cache  *RedisCache
	ctx    context.Context
}

func TestRedisCache(t *testing.T) {
	suite.Run(t, new(RedisCacheTestSuite))
}

func (s *RedisCacheTestSuite) SetupTest() {
	s.server = miniredis.RunT(s.T())
	s.client = redis.NewClient(&redis.Options{Addr: s.server.Addr()})
	s.cache = NewRedisCache(s.client, time.Hour)
	s.ctx = context.Background()
}

func (s *RedisCacheTestSuite) TearDownTest() {
	s.client.Close()
}

func receipt(id string) *entities.Receipt {
	return &entities.Receipt{
		ResultID:             id,
		AccountID:            "acc-1",
		Bet:                  10,
		Outcome:              entities.Outcome{"🍒", "🍒", "🍋"},
		Payout:               10,
		NewBalance:           100,
		AchievementsUnlocked: []string{"first-spin"},
		SettledAt:            time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (s *RedisCacheTestSuite) TestPutThenGet() {
	// Setup
	s.Require().NoError(s.cache.Put(s.ctx, "acc-1", "bet-1", "hash-1", receipt("res-1")))

	// Execute
	got, hash, err := s.cache.Get(s.ctx, "acc-1", "bet-1")

	// Assert
	s.Require().NoError(err)
	s.Equal("hash-1", hash)
	s.Equal(receipt("res-1"), got)
}

func (s *RedisCacheTestSuite) TestMiss() {
	_, _, err := s.cache.Get(s.ctx, "acc-1", "unknown")
	s.ErrorIs(err, ErrCacheMiss)
}

func (s *RedisCacheTestSuite) TestFirstPutWins() {
	s.Require().NoError(s.cache.Put(s.ctx, "acc-1", "bet-1", "hash-1", receipt("res-1")))
	s.Require().NoError(s.cache.Put(s.ctx, "acc-1", "bet-1", "hash-2", receipt("res-2")))

	got, hash, err := s.cache.Get(s.ctx, "acc-1", "bet-1")
	s.Require().NoError(err)
	s.Equal("res-1", got.ResultID)
	s.Equal("hash-1", hash)
}

func (s *RedisCacheTestSuite) TestEntriesExpire() {
	// Setup
	s.Require().NoError(s.cache.Put(s.ctx, "acc-1", "bet-1", "hash-1", receipt("res-1")))

	// Execute
	s.server.FastForward(time.Hour + time.Second)

	// Assert
	_, _, err := s.cache.Get(s.ctx, "acc-1", "bet-1")
	s.ErrorIs(err, ErrCacheMiss)
}

func (s *RedisCacheTestSuite) TestKeysAreScopedPerAccount() {
	s.Require().NoError(s.cache.Put(s.ctx, "a:b", "c", "hash-1", receipt("res-1")))

	_, _, err := s.cache.Get(s.ctx, "a", "b:c")
	s.ErrorIs(err, ErrCacheMiss)
}

func (s *RedisCacheTestSuite) TestServerDown() {
	s.server.Close()

	_, _, err := s.cache.Get(s.ctx, "acc-1", "bet-1")
	s.Error(err)
	s.NotErrorIs(err, ErrCacheMiss)
}
