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

import "strings"

// Reason classifies why a verification attempt failed.  Every failure in
// this package is a *VerificationError; the reason distinguishes, for
// example, a broken certificate chain from a merely invalid signature.
type Reason int

// Failure reasons.
const (
	ReasonDecode               Reason = iota + 1 // malformed or undecodable input structure
	ReasonUnsupportedFormat                      // attestation statement format is not a known format
	ReasonUnsupportedAlgorithm                   // digest or signature algorithm identifier is not supported
	ReasonSignature                              // a signature did not verify
	ReasonCertificateChain                       // certificate chain could not be anchored
	ReasonMismatch                               // decoded values disagree (AAGUID, name, extraData, key bytes, ...)
)

func (r Reason) String() string {
	switch r {
	case ReasonDecode:
		return "decode"
	case ReasonUnsupportedFormat:
		return "unsupported format"
	case ReasonUnsupportedAlgorithm:
		return "unsupported algorithm"
	case ReasonSignature:
		return "signature"
	case ReasonCertificateChain:
		return "certificate chain"
	case ReasonMismatch:
		return "mismatch"
	default:
		return "unknown"
	}
}

// VerificationError is the single error kind produced by attestation
// verification.  Type names the structure being verified, Field the part of
// it that failed, and Msg carries a human-readable cause.  The message is
// diagnostic output only and must never be treated as a trust signal.
type VerificationError struct {
	Reason Reason
	Type   string
	Field  string
	Msg    string
}

func (e *VerificationError) Error() string {
	s := "fido2/" + transformType(e.Type) + ": failed to verify"
	if e.Field != "" {
		s += " " + e.Field
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	return s
}

// Is reports whether target is a *VerificationError with the same reason,
// so callers can match reasons with errors.Is.
func (e *VerificationError) Is(target error) bool {
	t, ok := target.(*VerificationError)
	return ok && t.Reason == e.Reason
}

func decodeError(typ, field, msg string) *VerificationError {
	return &VerificationError{Reason: ReasonDecode, Type: typ, Field: field, Msg: msg}
}

func transformType(typ string) string {
	return strings.Replace(strings.ToLower(typ), " ", "_", -1)
}
