package handler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/crossbus-io/crossbus/pkg/crossbus/xerrors"
)

func TestRegistry_HandleRejectsDuplicateName(t *testing.T) {
	r := New()
	fn := func(ctx context.Context, from string, data interface{}) (interface{}, error) { return nil, nil }
	if err := r.Handle("echo", fn, Options{}); err != nil {
		t.Fatalf("unexpected error registering first handler: %v", err)
	}
	if err := r.Handle("echo", fn, Options{}); !xerrors.IsCode(err, xerrors.CodeHandlerExists) {
		t.Fatalf("expected CodeHandlerExists for a duplicate name, got %v", err)
	}
}

func TestRegistry_InvokeNoHandler(t *testing.T) {
	r := New()
	_, err := r.Invoke(context.Background(), "missing", "peer-a", nil, time.Second)
	if !xerrors.IsCode(err, xerrors.CodeNoHandler) {
		t.Fatalf("expected CodeNoHandler, got %v", err)
	}
}

func TestRegistry_InvokeSuccess(t *testing.T) {
	r := New()
	_ = r.Handle("echo", func(ctx context.Context, from string, data interface{}) (interface{}, error) {
		return data, nil
	}, Options{})
	data, err := r.Invoke(context.Background(), "echo", "peer-a", "hi", time.Second)
	if err != nil || data != "hi" {
		t.Fatalf("expected data=hi err=nil, got data=%v err=%v", data, err)
	}
}

func TestRegistry_InvokeHandlerError(t *testing.T) {
	r := New()
	_ = r.Handle("fails", func(ctx context.Context, from string, data interface{}) (interface{}, error) {
		return nil, errors.New("boom")
	}, Options{})
	_, err := r.Invoke(context.Background(), "fails", "peer-a", nil, time.Second)
	if !xerrors.IsCode(err, xerrors.CodeHandlerError) {
		t.Fatalf("expected CodeHandlerError, got %v", err)
	}
}

func TestRegistry_InvokePanicIsConvertedToError(t *testing.T) {
	r := New()
	_ = r.Handle("panics", func(ctx context.Context, from string, data interface{}) (interface{}, error) {
		panic("unexpected")
	}, Options{})
	_, err := r.Invoke(context.Background(), "panics", "peer-a", nil, time.Second)
	if !xerrors.IsCode(err, xerrors.CodeHandlerError) {
		t.Fatalf("expected a panic to surface as CodeHandlerError, got %v", err)
	}
}

func TestRegistry_InvokeTimeout(t *testing.T) {
	r := New()
	_ = r.Handle("slow", func(ctx context.Context, from string, data interface{}) (interface{}, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, Options{Timeout: 10 * time.Millisecond})
	_, err := r.Invoke(context.Background(), "slow", "peer-a", nil, time.Second)
	if !xerrors.IsCode(err, xerrors.CodeHandlerTimeout) {
		t.Fatalf("expected CodeHandlerTimeout, got %v", err)
	}
}

func TestRegistry_InvokeAllowedPeersRejectsOthers(t *testing.T) {
	r := New()
	_ = r.Handle("restricted", func(ctx context.Context, from string, data interface{}) (interface{}, error) {
		return "ok", nil
	}, Options{AllowedPeers: []string{"trusted"}})

	_, err := r.Invoke(context.Background(), "restricted", "untrusted", nil, time.Second)
	if !xerrors.IsCode(err, xerrors.CodeUnauthorized) {
		t.Fatalf("expected CodeUnauthorized for a non-allowed peer, got %v", err)
	}

	data, err := r.Invoke(context.Background(), "restricted", "trusted", nil, time.Second)
	if err != nil || data != "ok" {
		t.Fatalf("expected the allowed peer to succeed, got data=%v err=%v", data, err)
	}
}

func TestRegistry_RemoveHandler(t *testing.T) {
	r := New()
	_ = r.Handle("temp", func(ctx context.Context, from string, data interface{}) (interface{}, error) { return nil, nil }, Options{})
	r.RemoveHandler("temp")
	if _, err := r.Invoke(context.Background(), "temp", "a", nil, time.Second); !xerrors.IsCode(err, xerrors.CodeNoHandler) {
		t.Fatalf("expected CodeNoHandler after removal, got %v", err)
	}
}
