package verify

import "testing"

func TestNewCode(t *testing.T) {
	code, hash, err := NewCode()
	if err != nil {
		t.Fatalf("NewCode failed: %v", err)
	}
	if len(code) != 6 {
		t.Fatalf("expected 6-digit code, got %q", code)
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			t.Fatalf("non-digit in code %q", code)
		}
	}
	if hash == code {
		t.Fatal("hash must not equal the code")
	}
	if !Check(hash, code) {
		t.Fatal("Check rejected the issued code")
	}
	if Check(hash, "000001") && code != "000001" {
		t.Fatal("Check accepted a wrong code")
	}
}
