package testfixtures

import "testing"

func TestIDGeneratorProducesSequentialIDs(t *testing.T) {
	gen := NewIDGenerator("event")

	first := gen.Next()
	second := gen.Next()

	if first != "event-1" || second != "event-2" {
		t.Fatalf("unexpected identifiers: %q, %q", first, second)
	}
	if gen.Issued() != 2 {
		t.Fatalf("expected 2 issued ids, got %d", gen.Issued())
	}
}

func TestIDGeneratorCanReset(t *testing.T) {
	gen := NewIDGenerator("")
	if first := gen.Next(); first != "id-1" {
		t.Fatalf("expected default prefix, got %q", first)
	}
	gen.Reset("rem")

	if next := gen.Next(); next != "rem-1" {
		t.Fatalf("expected rem-1 after reset, got %q", next)
	}
}
