package utils

import (
	"testing"
	"time"
)

func init() {
	SetNonceSecret("test-nonce-secret")
}

func TestCreateNonce_Length(t *testing.T) {
	nonce := CreateNonce("cart_delete_1", time.Now())
	if len(nonce) != 10 {
		t.Errorf("nonce length = %d, expected 10", len(nonce))
	}
}

func TestVerifyNonce_CurrentTick(t *testing.T) {
	now := time.Now()
	nonce := CreateNonce("cart_view_42", now)

	if age := VerifyNonce(nonce, "cart_view_42", now); age != 1 {
		t.Errorf("VerifyNonce() = %d, expected 1 for current tick", age)
	}
}

func TestVerifyNonce_PreviousTick(t *testing.T) {
	now := time.Now()
	nonce := CreateNonce("cart_view_42", now)

	later := now.Add(12 * time.Hour)
	if age := VerifyNonce(nonce, "cart_view_42", later); age != 2 {
		t.Errorf("VerifyNonce() = %d, expected 2 for previous tick", age)
	}
}

func TestVerifyNonce_Expired(t *testing.T) {
	now := time.Now()
	nonce := CreateNonce("cart_view_42", now)

	later := now.Add(25 * time.Hour)
	if age := VerifyNonce(nonce, "cart_view_42", later); age != 0 {
		t.Errorf("VerifyNonce() = %d, expected 0 after two ticks", age)
	}
}

func TestVerifyNonce_Invalid(t *testing.T) {
	now := time.Now()
	nonce := CreateNonce("cart_delete_1", now)

	tests := []struct {
		name   string
		nonce  string
		action string
	}{
		{"wrong action", nonce, "cart_delete_2"},
		{"tampered nonce", "aaaaaaaaaa", "cart_delete_1"},
		{"empty nonce", "", "cart_delete_1"},
		{"truncated nonce", nonce[:5], "cart_delete_1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if age := VerifyNonce(tt.nonce, tt.action, now); age != 0 {
				t.Errorf("VerifyNonce() = %d, expected 0", age)
			}
		})
	}
}

func TestVerifyNonce_DifferentSecretsDiffer(t *testing.T) {
	now := time.Now()
	SetNonceSecret("secret-one")
	first := CreateNonce("action", now)
	SetNonceSecret("secret-two")
	second := CreateNonce("action", now)
	SetNonceSecret("test-nonce-secret")

	if first == second {
		t.Error("nonces from different secrets should differ")
	}
}
