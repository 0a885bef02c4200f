package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func TestNew_EmptyURLDisablesRedis(t *testing.T) {
	c, err := New(context.Background(), Config{})
	if err != nil || c != nil {
		t.Fatalf("expected nil client and nil error, got %v, %v", c, err)
	}
}

func TestNew_BadURL(t *testing.T) {
	if _, err := New(context.Background(), Config{URL: "http://nope"}); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestNew_Pings(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := New(context.Background(), Config{URL: "redis://" + mr.Addr(), PoolSize: 2})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer c.Close()
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}

	mr.Close()
	if err := c.Ping(context.Background()); err == nil {
		t.Error("expected ping to fail once the server is gone")
	}
}
