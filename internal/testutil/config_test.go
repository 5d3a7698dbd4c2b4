package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultTestDBConfig(t *testing.T) {
	t.Run("defaults to local test database port 55432", func(t *testing.T) {
		for _, k := range []string{"TEST_DB_HOST", "TEST_DB_PORT", "TEST_DB_USER", "TEST_DB_PASSWORD", "TEST_DB_NAME"} {
			t.Setenv(k, "")
		}
		cfg := DefaultTestDBConfig()
		assert.Equal(t, "localhost", cfg.Host)
		assert.Equal(t, "55432", cfg.Port)
		assert.Equal(t, "loginkit", cfg.User)
		assert.Equal(t, "loginkit", cfg.DBName)
	})

	t.Run("respects TEST_DB_PORT environment variable", func(t *testing.T) {
		t.Setenv("TEST_DB_PORT", "5432")
		assert.Equal(t, "5432", DefaultTestDBConfig().Port)
	})
}

func TestTestDBConfig_DSN(t *testing.T) {
	cfg := TestDBConfig{Host: "db", Port: "5432", User: "u", Password: "p@ss", DBName: "app"}
	assert.Equal(t, "postgres://u:p%40ss@db:5432/app?sslmode=disable", cfg.DSN(""))
	assert.Equal(t, "postgres://u:p%40ss@db:5432/app?search_path=test_x&sslmode=disable", cfg.DSN("test_x"))
}

func TestClock(t *testing.T) {
	c := NewClock(TestTime())
	c.Advance(time.Hour)
	assert.Equal(t, TestTime().Add(time.Hour), c.Now())
	c.Set(TestTime())
	assert.Equal(t, TestTime(), FixedTimeFunc(c.Now())())
}

func TestSetupTestRedis(t *testing.T) {
	mr, client := SetupTestRedis(t)
	assert.NoError(t, client.Set(t.Context(), "k", "v", 0).Err())
	got, err := mr.Get("k")
	assert.NoError(t, err)
	assert.Equal(t, "v", got)
}
