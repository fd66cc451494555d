// internal/utils/crypto_test.go
package utils

import "testing"

// TestEncryptDecryptRoundTrip 测试加解密往返
func TestEncryptDecryptRoundTrip(t *testing.T) {
	keys := []string{
		"short",
		"exactly-32-bytes-long-key-000000",
		"a-key-that-is-much-longer-than-thirty-two-bytes-in-total",
	}

	for _, key := range keys {
		ciphertext, err := Encrypt("secret-api-key", key)
		if err != nil {
			t.Fatalf("加密失败 (key=%q): %v", key, err)
		}
		if ciphertext == "secret-api-key" {
			t.Error("密文不应等于明文")
		}

		plaintext, err := Decrypt(ciphertext, key)
		if err != nil {
			t.Fatalf("解密失败 (key=%q): %v", key, err)
		}
		if plaintext != "secret-api-key" {
			t.Errorf("往返结果不正确: %q", plaintext)
		}
	}
}

// TestDecryptWrongKey 测试错误密钥的解密失败
func TestDecryptWrongKey(t *testing.T) {
	ciphertext, err := Encrypt("payload", "right-key")
	if err != nil {
		t.Fatalf("加密失败: %v", err)
	}

	if _, err := Decrypt(ciphertext, "wrong-key"); err == nil {
		t.Error("错误密钥的解密应该失败")
	}
}

// TestDecryptInvalidInput 测试非法密文的解密失败
func TestDecryptInvalidInput(t *testing.T) {
	if _, err := Decrypt("not-base64!!!", "key"); err == nil {
		t.Error("非法base64应该解密失败")
	}
	if _, err := Decrypt("c2hvcnQ=", "key"); err == nil {
		t.Error("过短的密文应该解密失败")
	}
}

// TestGenerateSecureKey 测试安全密钥生成
func TestGenerateSecureKey(t *testing.T) {
	key, err := GenerateSecureKey(32)
	if err != nil {
		t.Fatalf("生成密钥失败: %v", err)
	}
	if len(key) != 32 {
		t.Errorf("密钥长度不正确，期望: 32，实际: %d", len(key))
	}

	other, err := GenerateSecureKey(32)
	if err != nil {
		t.Fatalf("生成密钥失败: %v", err)
	}
	if string(key) == string(other) {
		t.Error("两次生成的密钥不应相同")
	}

	if _, err := GenerateSecureKey(0); err == nil {
		t.Error("非正长度应该被拒绝")
	}
}
