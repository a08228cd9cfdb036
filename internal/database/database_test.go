package database

import (
	"context"
	"testing"
)

func TestOpen_MalformedDSN(t *testing.T) {
	if _, err := Open(context.Background(), "not a dsn"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestOpen_UnreachableHost(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // no dial should succeed on a cancelled context
	if _, err := Open(ctx, "mqa:pw@tcp(127.0.0.1:1)/mqa"); err == nil {
		t.Fatal("expected ping error")
	}
}
