package security

import "testing"

func TestGenerateHMACIsDeterministic(t *testing.T) {
	first := GenerateHMAC("secret", "user-1")
	second := GenerateHMAC("secret", "user-1")
	if first != second {
		t.Fatalf("same secret and subject must yield the same token")
	}
	if first == "" {
		t.Fatalf("expected non-empty token")
	}
}

func TestGenerateHMACVariesWithInputs(t *testing.T) {
	base := GenerateHMAC("secret", "user-1")
	if GenerateHMAC("other-secret", "user-1") == base {
		t.Fatalf("different secrets must yield different tokens")
	}
	if GenerateHMAC("secret", "user-2") == base {
		t.Fatalf("different subjects must yield different tokens")
	}
}

func TestVerifyHMAC(t *testing.T) {
	token := GenerateHMAC("secret", "user-1")

	if !VerifyHMAC("secret", "user-1", token) {
		t.Fatalf("expected token to verify")
	}
	if VerifyHMAC("secret", "user-2", token) {
		t.Fatalf("token must not verify for another subject")
	}
	if VerifyHMAC("other-secret", "user-1", token) {
		t.Fatalf("token must not verify under another secret")
	}
	if VerifyHMAC("secret", "user-1", token+"x") {
		t.Fatalf("tampered token must not verify")
	}
}
