/*
Copyright 2025-present the openauthn authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package fido2

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"testing"
)

// mintAssertionAuthData builds authenticator data without attested
// credential data, the shape authenticators emit during authentication.
func mintAssertionAuthData(counter uint32) []byte {
	rpIDHash := sha256.Sum256([]byte("example.com"))
	data := append([]byte{}, rpIDHash[:]...)
	data = append(data, 0x05) // UP|UV
	return binary.BigEndian.AppendUint32(data, counter)
}

func mintAssertion(t *testing.T, key *ecdsa.PrivateKey, counter uint32, clientDataHash []byte) *Assertion {
	t.Helper()
	authData := mintAssertionAuthData(counter)
	digest := sha256.Sum256(append(append([]byte{}, authData...), clientDataHash...))
	sig, err := ecdsa.SignASN1(rand.Reader, key, digest[:])
	if err != nil {
		t.Fatal(err)
	}
	return &Assertion{AuthnData: authData, Signature: sig}
}

func registeredCredential(t *testing.T) (*ecdsa.PrivateKey, *Credential) {
	t.Helper()
	key := newECKey(t)
	credential, rest, err := ParseCredential(coseEC2Key(t, &key.PublicKey))
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 0 {
		t.Fatalf("ParseCredential() left %d trailing bytes", len(rest))
	}
	return key, credential
}

func TestVerifyAssertion(t *testing.T) {
	key, credential := registeredCredential(t)
	clientDataHash := sha256.Sum256([]byte("assertion client data"))
	assertion := mintAssertion(t, key, 42, clientDataHash[:])

	v := NewVerifier(nil, nil)
	counter, err := v.VerifyAssertion(assertion, clientDataHash[:], credential, 41)
	if err != nil {
		t.Fatalf("VerifyAssertion() returned error %q", err)
	}
	if counter != 42 {
		t.Errorf("counter is %d, want 42", counter)
	}
}

func TestVerifyAssertionCounterRollback(t *testing.T) {
	key, credential := registeredCredential(t)
	clientDataHash := sha256.Sum256([]byte("assertion client data"))
	assertion := mintAssertion(t, key, 42, clientDataHash[:])

	v := NewVerifier(nil, nil)
	_, err := v.VerifyAssertion(assertion, clientDataHash[:], credential, 42)
	var verificationErr *VerificationError
	if !errors.As(err, &verificationErr) {
		t.Fatalf("error is %T, want *VerificationError", err)
	}
	if verificationErr.Reason != ReasonMismatch {
		t.Errorf("error reason is %s, want mismatch", verificationErr.Reason)
	}
}

func TestVerifyAssertionNoCounter(t *testing.T) {
	key, credential := registeredCredential(t)
	clientDataHash := sha256.Sum256([]byte("assertion client data"))
	assertion := mintAssertion(t, key, 0, clientDataHash[:])

	// Both counters zero: the authenticator has no counter.
	v := NewVerifier(nil, nil)
	if _, err := v.VerifyAssertion(assertion, clientDataHash[:], credential, 0); err != nil {
		t.Fatalf("VerifyAssertion() returned error %q", err)
	}
}

func TestVerifyAssertionWrongKey(t *testing.T) {
	_, credential := registeredCredential(t)
	otherKey := newECKey(t)
	clientDataHash := sha256.Sum256([]byte("assertion client data"))
	assertion := mintAssertion(t, otherKey, 42, clientDataHash[:])

	v := NewVerifier(nil, nil)
	_, err := v.VerifyAssertion(assertion, clientDataHash[:], credential, 0)
	var verificationErr *VerificationError
	if !errors.As(err, &verificationErr) {
		t.Fatalf("error is %T, want *VerificationError", err)
	}
	if verificationErr.Reason != ReasonSignature {
		t.Errorf("error reason is %s, want signature", verificationErr.Reason)
	}
}
