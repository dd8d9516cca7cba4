package ziparchive

import (
	"archive/zip"
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"testing"
)

func buildOuterZip(t *testing.T, entries map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, data := range entries {
		f, err := w.Create(name)
		if err != nil {
			t.Fatalf("create entry %s: %v", name, err)
		}
		if _, err := f.Write(data); err != nil {
			t.Fatalf("write entry %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func signedOuterZip(t *testing.T, pub *rsa.PublicKey, priv *rsa.PrivateKey, inner []byte, entryNames [2]string) []byte {
	t.Helper()
	digest := sha256.Sum256(inner)
	signature, err := rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA256, digest[:])
	if err != nil {
		t.Fatalf("sign inner zip: %v", err)
	}
	return buildOuterZip(t, map[string][]byte{
		entryNames[0]: inner,
		entryNames[1]: signature,
	})
}

func publicKeyBase64(t *testing.T, pub *rsa.PublicKey) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	return base64.StdEncoding.EncodeToString(der)
}

func TestVerifyNoneBypassesSignature(t *testing.T) {
	inner := []byte("inner archive bytes")
	outer := buildOuterZip(t, map[string][]byte{
		innerEntryName:     inner,
		signatureEntryName: []byte("not a real signature"),
	})
	got, err := Verify("none", outer, Candidate{Container: "c", ZipFileName: "z.zip"})
	if err != nil {
		t.Fatalf("Verify(none) returned error: %v", err)
	}
	if !bytes.Equal(got, inner) {
		t.Fatalf("Verify(none) returned %q, want %q", got, inner)
	}
}

func TestVerifySha256WithRsaSucceeds(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	inner := []byte("inner archive bytes for signing")
	outer := signedOuterZip(t, &priv.PublicKey, priv, inner, [2]string{innerEntryName, signatureEntryName})

	got, err := Verify("sha256withrsa", outer, Candidate{
		Container:       "c",
		ZipFileName:     "z.zip",
		PublicKeyBase64: publicKeyBase64(t, &priv.PublicKey),
	})
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if !bytes.Equal(got, inner) {
		t.Fatalf("Verify returned %q, want %q", got, inner)
	}
}

func TestVerifySha256WithRsaWrongKeyFails(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate other key: %v", err)
	}
	inner := []byte("inner archive bytes for signing")
	outer := signedOuterZip(t, &priv.PublicKey, priv, inner, [2]string{innerEntryName, signatureEntryName})

	_, err = Verify("sha256withrsa", outer, Candidate{
		Container:       "c",
		ZipFileName:     "z.zip",
		PublicKeyBase64: publicKeyBase64(t, &other.PublicKey),
	})
	if err == nil {
		t.Fatalf("expected Verify to fail with mismatched key")
	}
	if _, ok := err.(*Failure); !ok {
		t.Fatalf("expected *Failure, got %T: %v", err, err)
	}
}

func TestVerifyEntryNamesCaseInsensitive(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	inner := []byte("inner archive bytes")
	outer := signedOuterZip(t, &priv.PublicKey, priv, inner, [2]string{"ENVELOPE.ZIP", "SIGNATURE"})

	got, err := Verify("sha256withrsa", outer, Candidate{
		Container:       "c",
		ZipFileName:     "z.zip",
		PublicKeyBase64: publicKeyBase64(t, &priv.PublicKey),
	})
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if !bytes.Equal(got, inner) {
		t.Fatalf("Verify returned %q, want %q", got, inner)
	}
}

func TestVerifyRejectsWrongEntryCount(t *testing.T) {
	outer := buildOuterZip(t, map[string][]byte{
		innerEntryName: []byte("inner"),
	})
	_, err := Verify("none", outer, Candidate{Container: "c", ZipFileName: "z.zip"})
	if err == nil {
		t.Fatalf("expected failure for single-entry outer zip")
	}
}

func TestVerifyRejectsExtraEntry(t *testing.T) {
	outer := buildOuterZip(t, map[string][]byte{
		innerEntryName:     []byte("inner"),
		signatureEntryName: []byte("sig"),
		"extra.txt":        []byte("surprise"),
	})
	_, err := Verify("none", outer, Candidate{Container: "c", ZipFileName: "z.zip"})
	if err == nil {
		t.Fatalf("expected failure for three-entry outer zip")
	}
}

func TestVerifyUnsupportedAlgorithm(t *testing.T) {
	outer := buildOuterZip(t, map[string][]byte{
		innerEntryName:     []byte("inner"),
		signatureEntryName: []byte("sig"),
	})
	_, err := Verify("md5withrsa", outer, Candidate{Container: "c", ZipFileName: "z.zip"})
	if err == nil {
		t.Fatalf("expected error for unsupported algorithm")
	}
}
