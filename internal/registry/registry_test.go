package registry

import (
	"math/big"
	"testing"
)

func TestSingleOutputRejectsEmptyUnpack(t *testing.T) {
	if _, err := singleOutput("getTotalReports", nil); err == nil {
		t.Fatal("an empty unpack must error, not panic downstream")
	}
	if _, err := singleOutput("getTotalReports", []interface{}{}); err == nil {
		t.Fatal("an empty unpack must error, not panic downstream")
	}
}

func TestSingleOutputRejectsExtraValues(t *testing.T) {
	out := []interface{}{big.NewInt(1), big.NewInt(2)}
	if _, err := singleOutput("getReportCountForTarget", out); err == nil {
		t.Fatal("a multi-value unpack must error")
	}
}

func TestSingleOutputPassesThrough(t *testing.T) {
	want := big.NewInt(42)
	got, err := singleOutput("getTotalReports", []interface{}{want})
	if err != nil {
		t.Fatalf("single-value unpack: %v", err)
	}
	if got != want {
		t.Fatalf("expected the unpacked value back, got %v", got)
	}
}
