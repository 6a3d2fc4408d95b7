package server

import (
	"errors"
	"testing"
)

func TestUsageError(t *testing.T) {
	err := usageError("broadcast", ErrNotAFunction)
	if err.Error() != "server: broadcast: requires a function argument" {
		t.Fatalf("Error()=%q", err.Error())
	}
	if !errors.Is(err, ErrNotAFunction) {
		t.Fatal("UsageError does not unwrap")
	}
}

func TestBroadcastErrorUnwrap(t *testing.T) {
	a, b := errors.New("a"), errors.New("b")
	err := &BroadcastError{Failures: []BroadcastFailure{
		{ConnectionID: "1", Err: a},
		{ConnectionID: "2", Err: b},
	}}
	if !errors.Is(err, a) || !errors.Is(err, b) {
		t.Fatal("BroadcastError does not unwrap every failure")
	}
	if got := err.Error(); got != "server: broadcast failed on 2 connection(s); 1: a; 2: b" {
		t.Fatalf("Error()=%q", got)
	}
}

func TestProtocolErrorUnwrap(t *testing.T) {
	inner := errors.New("bad")
	err := &ProtocolError{ConnectionID: "c", Err: inner}
	if !errors.Is(err, inner) {
		t.Fatal("ProtocolError does not unwrap")
	}
}
