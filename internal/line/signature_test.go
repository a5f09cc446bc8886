package line

import "testing"

func TestVerifySignature(t *testing.T) {
	secret := "channel-secret"
	body := []byte(`{"events":[]}`)

	sig := Signature(secret, body)
	if !VerifySignature(secret, body, sig) {
		t.Fatal("valid signature rejected")
	}

	t.Run("tampered body", func(t *testing.T) {
		if VerifySignature(secret, []byte(`{"events":[{}]}`), sig) {
			t.Error("signature accepted for different body")
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		if VerifySignature("other-secret", body, sig) {
			t.Error("signature accepted under different secret")
		}
	})

	t.Run("garbage signature", func(t *testing.T) {
		if VerifySignature(secret, body, "not-base64-at-all") {
			t.Error("garbage signature accepted")
		}
	})
}
