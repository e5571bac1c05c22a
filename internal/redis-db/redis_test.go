package redis_db

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
)

func TestParseRedisURL(t *testing.T) {
	// Docker-style bare address
	opts, err := ParseRedisURL("redis:6379", false)
	assert.NoError(t, err)
	assert.Equal(t, "redis:6379", opts.Addr)

	// Full URL with password and db
	opts, err = ParseRedisURL("redis://:secret@localhost:6380/2", false)
	assert.NoError(t, err)
	assert.Equal(t, "localhost:6380", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 2, opts.DB)

	// Address without scheme but with path-ish host
	opts, err = ParseRedisURL("localhost:6379", false)
	assert.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedisClient([]string{mr.Addr()}, false)
	assert.NoError(t, err)
	assert.NotNil(t, client.Client())
	assert.NotNil(t, client.MakeRedisClient())
}

func TestNewRedisClientEmptyAddresses(t *testing.T) {
	_, err := NewRedisClient(nil, false)
	assert.Error(t, err)
}
