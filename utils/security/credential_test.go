package security

import (
	"testing"
)

func TestSealAndOpen(t *testing.T) {
	nodePriv, nodePub, err := GenCurve25519Key()
	if err != nil {
		t.Fatal(err)
	}
	opsPriv, opsPub, err := GenCurve25519Key()
	if err != nil {
		t.Fatal(err)
	}
	salt := []byte("spreadflow-test")

	// 封存端用运维私钥+节点公钥
	sealer, err := NewCredentialCipher(opsPriv, nodePub, salt)
	if err != nil {
		t.Fatal(err)
	}
	sealed, err := sealer.Seal("sk-live-abcdef0123456789")
	if err != nil {
		t.Fatal(err)
	}

	// 解封端用节点私钥+运维公钥
	opener, err := NewCredentialCipher(nodePriv, opsPub, salt)
	if err != nil {
		t.Fatal(err)
	}
	plain, err := opener.Open(sealed)
	if err != nil {
		t.Fatal(err)
	}
	if plain != "sk-live-abcdef0123456789" {
		t.Fatalf("unexpected plaintext: %s", plain)
	}
}

func TestOpenRejectsTampered(t *testing.T) {
	priv, pub, err := GenCurve25519Key()
	if err != nil {
		t.Fatal(err)
	}
	c, err := NewCredentialCipher(priv, pub, []byte("salt"))
	if err != nil {
		t.Fatal(err)
	}
	sealed, err := c.Seal("secret")
	if err != nil {
		t.Fatal(err)
	}
	// 篡改最后一个字符
	b := []byte(sealed)
	if b[len(b)-5] == 'A' {
		b[len(b)-5] = 'B'
	} else {
		b[len(b)-5] = 'A'
	}
	if _, err := c.Open(string(b)); err == nil {
		t.Fatal("expected tampered ciphertext to fail")
	}
}

func TestNewCredentialCipherBadKey(t *testing.T) {
	if _, err := NewCredentialCipher([]byte("short"), make([]byte, 32), nil); err == nil {
		t.Fatal("expected error for short private key")
	}
}

func TestMd5(t *testing.T) {
	if got := Md5("abc"); got != "900150983cd24fb0d6963f7d28e17f72" {
		t.Fatalf("unexpected md5: %s", got)
	}
	if Md5WithSalt("abc", "x") == Md5("abc") {
		t.Fatal("salt should change the digest")
	}
}
