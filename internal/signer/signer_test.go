package signer

import "testing"

func TestSigner_SignVerify(t *testing.T) {
	s := New("secret")
	body := []byte("platform_post|telegram|c1|u1|approved|hash|msg||")

	sig := s.Sign(body)
	if sig == "" {
		t.Fatal("signature should not be empty")
	}
	if !s.Verify(body, sig) {
		t.Error("valid signature should verify")
	}
}

func TestSigner_TamperedBody(t *testing.T) {
	s := New("secret")
	sig := s.Sign([]byte("original"))

	if s.Verify([]byte("tampered"), sig) {
		t.Error("tampered body should not verify")
	}
}

func TestSigner_WrongKey(t *testing.T) {
	body := []byte("body")
	sig := New("key-a").Sign(body)

	if New("key-b").Verify(body, sig) {
		t.Error("signature from a different key should not verify")
	}
}

func TestSigner_MalformedSignature(t *testing.T) {
	s := New("secret")

	// Не-hex строка не должна паниковать и не должна проходить
	if s.Verify([]byte("body"), "not-hex!") {
		t.Error("malformed signature should not verify")
	}
	if s.Verify([]byte("body"), "") {
		t.Error("empty signature should not verify")
	}
}

func TestSigner_Deterministic(t *testing.T) {
	s := New("secret")
	body := []byte("body")

	if s.Sign(body) != s.Sign(body) {
		t.Error("same body should always produce the same signature")
	}
}
