package cmd

import "testing"

func TestParseSampleRange(t *testing.T) {
	first, last, err := parseSampleRange("10-25")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != 10 || last != 25 {
		t.Fatalf("got (%d, %d), want (10, 25)", first, last)
	}
}

func TestParseSampleRangeRejectsMissingDash(t *testing.T) {
	if _, _, err := parseSampleRange("1025"); err == nil {
		t.Fatal("expected error for missing dash")
	}
}

func TestParseSampleRangeRejectsNonNumeric(t *testing.T) {
	if _, _, err := parseSampleRange("a-b"); err == nil {
		t.Fatal("expected error for non-numeric range")
	}
}
