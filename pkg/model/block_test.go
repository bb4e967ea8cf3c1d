package model

import "testing"

func TestBlock_Len(t *testing.T) {
	tests := []struct {
		block Block
		want  int64
	}{
		{Block{Start: 1, End: 101}, 100},
		{Block{Start: 5, End: 6}, 1},
		{Block{Start: 7, End: 7}, 0},
		{Block{Start: 9, End: 3}, 0},
	}
	for _, tt := range tests {
		if got := tt.block.Len(); got != tt.want {
			t.Errorf("%v.Len() = %d, want %d", tt.block, got, tt.want)
		}
	}
}

func TestBlock_Contains(t *testing.T) {
	b := Block{Start: 10, End: 20}
	if !b.Contains(10) {
		t.Error("start should be inside the block")
	}
	if !b.Contains(19) {
		t.Error("end-1 should be inside the block")
	}
	if b.Contains(20) {
		t.Error("end is exclusive")
	}
	if b.Contains(9) {
		t.Error("start-1 should be outside the block")
	}
}

func TestBlock_String(t *testing.T) {
	if got := (Block{Start: 1, End: 101}).String(); got != "[1, 101)" {
		t.Errorf("String() = %q, want %q", got, "[1, 101)")
	}
}
