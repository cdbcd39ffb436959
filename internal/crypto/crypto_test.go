package crypto

import (
	"bytes"
	"testing"
)

func TestU_GenerateKeyPair_Algorithms(t *testing.T) {
	algs := []AlgorithmID{AlgECDSAP256, AlgECDSAP384, AlgEd25519, AlgMLDSA44}

	for _, alg := range algs {
		kp, err := GenerateKeyPair(alg)
		if err != nil {
			t.Fatalf("GenerateKeyPair(%s) failed: %v", alg, err)
		}
		if kp.Algorithm != alg {
			t.Errorf("algorithm mismatch: %s vs %s", kp.Algorithm, alg)
		}
		if kp.PrivateKey == nil || kp.PublicKey == nil {
			t.Errorf("%s: nil key material", alg)
		}
		if got := AlgorithmOf(kp.PrivateKey); got != alg {
			t.Errorf("AlgorithmOf: %s vs %s", got, alg)
		}
	}
}

func TestU_GenerateKeyPair_Unknown(t *testing.T) {
	if _, err := GenerateKeyPair("no-such-alg"); err == nil {
		t.Error("expected error for unknown algorithm")
	}
}

func TestU_SignVerify_RoundTrip(t *testing.T) {
	message := []byte("the quick brown fox")

	for _, alg := range []AlgorithmID{AlgECDSAP256, AlgEd25519, AlgMLDSA44} {
		kp, err := GenerateKeyPair(alg)
		if err != nil {
			t.Fatalf("GenerateKeyPair(%s) failed: %v", alg, err)
		}

		sig, err := SignMessage(nil, alg, kp.PrivateKey, "", message)
		if err != nil {
			t.Fatalf("SignMessage(%s) failed: %v", alg, err)
		}

		ok, err := VerifyMessage(alg, kp.PublicKey, "", message, sig)
		if err != nil {
			t.Fatalf("VerifyMessage(%s) failed: %v", alg, err)
		}
		if !ok {
			t.Errorf("%s: valid signature rejected", alg)
		}

		ok, err = VerifyMessage(alg, kp.PublicKey, "", []byte("tampered"), sig)
		if err != nil {
			t.Fatalf("VerifyMessage(%s) failed: %v", alg, err)
		}
		if ok {
			t.Errorf("%s: tampered message accepted", alg)
		}
	}
}

func TestU_SignVerify_ExplicitHash(t *testing.T) {
	kp, err := GenerateKeyPair(AlgECDSAP256)
	if err != nil {
		t.Fatalf("GenerateKeyPair failed: %v", err)
	}

	message := []byte("payload")
	sig, err := SignMessage(nil, AlgECDSAP256, kp.PrivateKey, HashSHA384, message)
	if err != nil {
		t.Fatalf("SignMessage failed: %v", err)
	}

	// Same hash verifies; default hash (sha-256) does not.
	ok, err := VerifyMessage(AlgECDSAP256, kp.PublicKey, HashSHA384, message, sig)
	if err != nil || !ok {
		t.Fatalf("verify with matching hash: ok=%v err=%v", ok, err)
	}
	ok, _ = VerifyMessage(AlgECDSAP256, kp.PublicKey, "", message, sig)
	if ok {
		t.Error("signature verified under a different hash")
	}
}

func TestU_Ed25519_RejectsHashParam(t *testing.T) {
	kp, err := GenerateKeyPair(AlgEd25519)
	if err != nil {
		t.Fatalf("GenerateKeyPair failed: %v", err)
	}
	if _, err := SignMessage(nil, AlgEd25519, kp.PrivateKey, HashSHA256, []byte("m")); err == nil {
		t.Error("expected error for ed25519 with explicit hash")
	}
}

func TestU_PrivateKeyPEM_RoundTrip(t *testing.T) {
	for _, alg := range []AlgorithmID{AlgECDSAP256, AlgEd25519, AlgMLDSA65} {
		kp, err := GenerateKeyPair(alg)
		if err != nil {
			t.Fatalf("GenerateKeyPair(%s) failed: %v", alg, err)
		}

		data, err := MarshalPrivateKey(kp.PrivateKey)
		if err != nil {
			t.Fatalf("MarshalPrivateKey(%s) failed: %v", alg, err)
		}

		priv, err := ParsePrivateKey(data)
		if err != nil {
			t.Fatalf("ParsePrivateKey(%s) failed: %v", alg, err)
		}
		if got := AlgorithmOf(priv); got != alg {
			t.Errorf("algorithm after round trip: %s vs %s", got, alg)
		}

		// The parsed key must still produce verifiable signatures.
		sig, err := SignMessage(nil, alg, priv, "", []byte("m"))
		if err != nil {
			t.Fatalf("SignMessage after parse failed: %v", err)
		}
		ok, err := VerifyMessage(alg, kp.PublicKey, "", []byte("m"), sig)
		if err != nil || !ok {
			t.Errorf("%s: parsed key signature invalid: ok=%v err=%v", alg, ok, err)
		}
	}
}

func TestU_PublicKeyPEM_RoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair(AlgECDSAP384)
	if err != nil {
		t.Fatalf("GenerateKeyPair failed: %v", err)
	}

	data, err := MarshalPublicKey(kp.PublicKey)
	if err != nil {
		t.Fatalf("MarshalPublicKey failed: %v", err)
	}
	if !bytes.Contains(data, []byte("PUBLIC KEY")) {
		t.Error("missing PEM header")
	}

	pub, err := ParsePublicKey(data)
	if err != nil {
		t.Fatalf("ParsePublicKey failed: %v", err)
	}

	sig, err := SignMessage(nil, AlgECDSAP384, kp.PrivateKey, "", []byte("m"))
	if err != nil {
		t.Fatalf("SignMessage failed: %v", err)
	}
	ok, err := VerifyMessage(AlgECDSAP384, pub, "", []byte("m"), sig)
	if err != nil || !ok {
		t.Errorf("parsed public key rejected valid signature: ok=%v err=%v", ok, err)
	}
}

func TestU_Descriptor_Validate(t *testing.T) {
	cases := []struct {
		name    string
		desc    Descriptor
		wantErr bool
	}{
		{"valid", Descriptor{Algorithm: AlgECDSAP256, Usages: []KeyUsage{UsageSign, UsageVerify}}, false},
		{"unknown alg", Descriptor{Algorithm: "bogus", Usages: []KeyUsage{UsageSign}}, true},
		{"no usages", Descriptor{Algorithm: AlgEd25519}, true},
		{"bad usage", Descriptor{Algorithm: AlgEd25519, Usages: []KeyUsage{"encrypt"}}, true},
	}

	for _, tc := range cases {
		err := tc.desc.Validate()
		if (err != nil) != tc.wantErr {
			t.Errorf("%s: err=%v wantErr=%v", tc.name, err, tc.wantErr)
		}
	}
}

func TestU_ParseHash(t *testing.T) {
	if _, err := ParseHash("sha-256"); err != nil {
		t.Errorf("sha-256 should parse: %v", err)
	}
	if _, err := ParseHash(""); err != nil {
		t.Errorf("empty hash should parse: %v", err)
	}
	if _, err := ParseHash("md5"); err == nil {
		t.Error("md5 should not parse")
	}
}
