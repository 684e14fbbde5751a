package hashkey

import (
	"path/filepath"
	"testing"
)

func TestCompact32DocVectors(t *testing.T) {
	if got := Left32(0x1234ABCD, 16); got != 0x1234 {
		t.Fatalf("Left32(0x1234ABCD, 16) = %#x, want 0x1234", got)
	}
	if got := Right32(0x1234ABCD, 0xFFFF); got != 0xABCD {
		t.Fatalf("Right32(0x1234ABCD, 0xFFFF) = %#x, want 0xABCD", got)
	}
	if got := Combined32(0x1234, 0xABCD, 16); got != 0x1234ABCD {
		t.Fatalf("Combined32(0x1234, 0xABCD, 16) = %#x, want 0x1234ABCD", got)
	}
	if got := HashValue32(0x1234567890ABCDEF, 16, 0xABCD); got != 0x1234ABCD {
		t.Fatalf("HashValue32(...) = %#x, want 0x1234ABCD", got)
	}
}

func TestConfigCompactRoundTrip(t *testing.T) {
	cfg := Config{ValueBits: 12, Capacity: 1000003}

	hashKey := uint64(0x9e3779b97f4a7c15)
	idx, compacted := cfg.Compact(hashKey)

	if idx != cfg.Index(hashKey) {
		t.Fatalf("Compact index %d != Index %d", idx, cfg.Index(hashKey))
	}

	slot := cfg.Slot(hashKey, 42)
	if Left32(slot.Value, cfg.ValueBits) != compacted {
		t.Fatalf("Slot's compacted key %#x != Compact's %#x", Left32(slot.Value, cfg.ValueBits), compacted)
	}
	if Right32(slot.Value, cfg.ValueMask()) != 42 {
		t.Fatalf("Slot's taxid %d != 42", Right32(slot.Value, cfg.ValueMask()))
	}
}

func TestSlot64GetSeqID(t *testing.T) {
	cfg := Config{ValueBits: 10, Capacity: 997}
	hashKey := uint64(0x1122334455667788)

	slot := cfg.SlotU64(hashKey, 123456)
	if got := slot.GetSeqID(); got != 123456 {
		t.Fatalf("GetSeqID() = %d, want 123456", got)
	}
}

func TestGetIdxBitsAndMask(t *testing.T) {
	cases := []struct {
		hashCapacity int
		wantBits     int
	}{
		{0, 1},
		{1, 1},
		{2, 1},
		{3, 2},
		{1024, 10},
		{1025, 11},
	}
	for _, c := range cases {
		cfg := Config{HashCapacity: c.hashCapacity}
		if got := cfg.GetIdxBits(); got != c.wantBits {
			t.Errorf("GetIdxBits() for capacity %d = %d, want %d", c.hashCapacity, got, c.wantBits)
		}
		if got := cfg.GetIdxMask(); got != (1<<uint(c.wantBits))-1 {
			t.Errorf("GetIdxMask() for capacity %d = %d, want %d", c.hashCapacity, got, (1<<uint(c.wantBits))-1)
		}
	}
}

func TestValueBitsForTaxonomy(t *testing.T) {
	if got, err := ValueBitsForTaxonomy(0, 10); err != nil || got != 10 {
		t.Fatalf("ValueBitsForTaxonomy(0, 10) = (%d, %v), want (10, nil)", got, err)
	}
	if got, err := ValueBitsForTaxonomy(16, 10); err != nil || got != 16 {
		t.Fatalf("ValueBitsForTaxonomy(16, 10) = (%d, %v), want (16, nil)", got, err)
	}
	if _, err := ValueBitsForTaxonomy(8, 10); err == nil {
		t.Fatalf("ValueBitsForTaxonomy(8, 10): expected an error (8 bits is too few)")
	}
}

func TestConfigWriteAndReadHeader(t *testing.T) {
	cfg := Config{
		Version:      1,
		Partition:    8,
		HashCapacity: 1 << 20,
		Capacity:     1 << 20,
		Size:         12345,
		ValueBits:    14,
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "hash_config.k2d")
	if err := cfg.WriteToFile(path); err != nil {
		t.Fatalf("WriteToFile: %v", err)
	}

	got, err := FromHashHeader(path)
	if err != nil {
		t.Fatalf("FromHashHeader: %v", err)
	}
	if got != cfg {
		t.Fatalf("round-tripped config = %+v, want %+v", got, cfg)
	}
}
