package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"projectdesk/internal/identity/models"
	id "projectdesk/pkg/domain"
	"projectdesk/pkg/platform/sentinel"
)

type RedisCacheSuite struct {
	suite.Suite
	mr    *miniredis.Miniredis
	cache *RedisCache
	ctx   context.Context
}

func TestRedisCacheSuite(t *testing.T) {
	suite.Run(t, new(RedisCacheSuite))
}

func (s *RedisCacheSuite) SetupTest() {
	s.mr = miniredis.RunT(s.T())
	client := redis.NewClient(&redis.Options{Addr: s.mr.Addr()})
	s.T().Cleanup(func() { _ = client.Close() })
	s.cache = NewRedis(client, 30*time.Second)
	s.ctx = context.Background()
}

func (s *RedisCacheSuite) identity() *models.Identity {
	return &models.Identity{ID: id.NewUserID(), Username: "ana", Role: models.RoleCountryAdmin, Country: "USA", Active: true}
}

func (s *RedisCacheSuite) TestRoundTrip() {
	ident := s.identity()
	s.Require().NoError(s.cache.Set(s.ctx, ident, 0))

	got, err := s.cache.Get(s.ctx, ident.ID)
	s.Require().NoError(err)
	s.Equal(ident, got)
	s.Equal(30*time.Second, s.mr.TTL(keyPrefix+ident.ID.String()))
}

func (s *RedisCacheSuite) TestMissAndExpiry() {
	ident := s.identity()

	_, err := s.cache.Get(s.ctx, ident.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)

	s.Require().NoError(s.cache.Set(s.ctx, ident, 0))
	s.mr.FastForward(31 * time.Second)
	_, err = s.cache.Get(s.ctx, ident.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisCacheSuite) TestInvalidate() {
	ident := s.identity()
	s.Require().NoError(s.cache.Set(s.ctx, ident, 0))
	s.Require().NoError(s.cache.Invalidate(s.ctx, ident.ID))

	_, err := s.cache.Get(s.ctx, ident.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisCacheSuite) TestCorruptEntry() {
	ident := s.identity()
	s.Require().NoError(s.mr.Set(keyPrefix+ident.ID.String(), "{not json"))

	_, err := s.cache.Get(s.ctx, ident.ID)
	s.Error(err)
	s.NotErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisCacheSuite) TestSetRequiresID() {
	s.Error(s.cache.Set(s.ctx, &models.Identity{}, 0))
	s.Error(s.cache.Set(s.ctx, nil, 0))
}

func (s *RedisCacheSuite) TestSetAfterInvalidateIsDropped() {
	ident := s.identity()
	gen, err := s.cache.Generation(s.ctx, ident.ID)
	s.Require().NoError(err)
	s.Zero(gen)

	// The account changes while a resolver holds the old row.
	s.Require().NoError(s.cache.Invalidate(s.ctx, ident.ID))
	s.Require().NoError(s.cache.Set(s.ctx, ident, gen))

	_, err = s.cache.Get(s.ctx, ident.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)

	current, err := s.cache.Generation(s.ctx, ident.ID)
	s.Require().NoError(err)
	s.Equal(int64(1), current)
	s.Require().NoError(s.cache.Set(s.ctx, ident, current))
	_, err = s.cache.Get(s.ctx, ident.ID)
	s.NoError(err)
}
