package util

import (
	"strings"
	"testing"
)

func TestNewID(t *testing.T) {
	id := NewID("evt")
	if !strings.HasPrefix(id, "evt_") || len(id) != len("evt_")+32 {
		t.Fatalf("unexpected id %q", id)
	}
	if NewID("") == NewID("") {
		t.Fatal("ids must differ")
	}
}

func TestBlockID(t *testing.T) {
	id := BlockID(1740819600000)
	if !strings.HasPrefix(id, "block_1740819600000_") || len(id) != len("block_1740819600000_")+8 {
		t.Fatalf("unexpected block id %q", id)
	}
}
