package redis

import (
	"context"
	"testing"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_InvalidURL(t *testing.T) {
	_, err := NewClient(Config{URL: "not a url"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse redis URL")
}

func TestNewClient_DefaultKey(t *testing.T) {
	rdb := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:0"})
	defer rdb.Close()

	c := newClient(rdb, "")
	assert.Equal(t, DefaultKey, c.key)

	c = newClient(rdb, "custom")
	assert.Equal(t, "custom", c.key)
}

func TestClient_SaveUnreachable(t *testing.T) {
	rdb := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	c := newClient(rdb, "")
	defer c.Close()

	err := c.Save(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "set failed")
}
