package security

import "testing"

func TestHashAndVerifyPassword(t *testing.T) {
	salt, err := NewSalt()
	if err != nil {
		t.Fatalf("salt failed: %v", err)
	}
	hash, err := HashPassword("Passw0rd1", salt)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	ok, err := VerifyPassword(hash, "Passw0rd1", salt)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if !ok {
		t.Fatal("expected password verification success")
	}
	for _, wrong := range []string{"wrong-pass", "Passw0rd2", "passw0rd1", ""} {
		ok, err = VerifyPassword(hash, wrong, salt)
		if err != nil {
			t.Fatalf("verify wrong password errored: %v", err)
		}
		if ok {
			t.Fatalf("expected password verification failure for %q", wrong)
		}
	}
}

func TestHashDependsOnSalt(t *testing.T) {
	s1, _ := NewSalt()
	s2, _ := NewSalt()
	if s1 == s2 {
		t.Fatal("expected distinct salts")
	}
	h1, err := HashPassword("Passw0rd1", s1)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	h2, err := HashPassword("Passw0rd1", s2)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if h1 == h2 {
		t.Fatal("expected different hashes for different salts")
	}
	if ok, _ := VerifyPassword(h1, "Passw0rd1", s2); ok {
		t.Fatal("expected verification under the wrong salt to fail")
	}
}

func TestVerifyPasswordRejectsMalformedInput(t *testing.T) {
	salt, _ := NewSalt()
	if _, err := VerifyPassword("not-a-hash", "x", salt); err == nil {
		t.Fatal("expected format error")
	}
	if _, err := HashPassword("x", "%%%"); err == nil {
		t.Fatal("expected salt error")
	}
}
