package fingerprint_test

import (
	"testing"

	"github.com/zephyrtronium/vose/fingerprint"
)

func TestOf(t *testing.T) {
	a := fingerprint.Of([]uint64{1, 2, 3})
	if b := fingerprint.Of([]uint8{1, 2, 3}); a != b {
		t.Errorf("fingerprint depends on type: %v vs %v", a, b)
	}
	if b := fingerprint.Of([]uint64{1, 2, 3}); a != b {
		t.Errorf("fingerprint is not deterministic: %v vs %v", a, b)
	}
	cases := [][]uint64{
		{1, 2},
		{1, 2, 4},
		{1, 2, 3, 0},
		{0, 1, 2, 3},
		{},
	}
	for _, w := range cases {
		if b := fingerprint.Of(w); a == b {
			t.Errorf("%v has the same fingerprint as [1 2 3]", w)
		}
	}
}

func TestString(t *testing.T) {
	h := fingerprint.Hash{0: 0xab, 31: 0x01}
	want := "ab00000000000000000000000000000000000000000000000000000000000001"
	if got := h.String(); got != want {
		t.Errorf("wrong string: want %q, got %q", want, got)
	}
}

func TestScan(t *testing.T) {
	want := fingerprint.Of([]uint32{4, 5})
	var h fingerprint.Hash
	if err := h.Scan(want[:]); err != nil {
		t.Errorf("couldn't scan: %v", err)
	}
	if h != want {
		t.Errorf("wrong scan: want %v, got %v", want, h)
	}
	if err := h.Scan(want[:4]); err != fingerprint.ErrShortHash {
		t.Errorf("wrong error for short hash: want %v, got %v", fingerprint.ErrShortHash, err)
	}
	if err := h.Scan("bocchi"); err != fingerprint.ErrHashType {
		t.Errorf("wrong error for string: want %v, got %v", fingerprint.ErrHashType, err)
	}
}
