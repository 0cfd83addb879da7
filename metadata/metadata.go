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

// Package metadata supplies attestation trust anchors per authenticator
// model.  Anchors come from two sources: a FIDO Metadata Service blob (a
// JWT whose payload lists attestation root certificates per AAGUID) and a
// directory of PEM certificate files.  The Store exposes an immutable
// snapshot to verification calls; only Reload mutates it, by swapping the
// whole snapshot atomically.
package metadata

import (
	"bytes"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/openauthn/fido2"
)

// Config locates the trust-anchor sources.  Both are optional; an empty
// Store yields no anchors and every chain validation fails closed.
type Config struct {
	// BlobPath is the path of a FIDO MDS blob (JWT compact serialization).
	BlobPath string
	// KeystoreDir is a directory of PEM certificate files.  A file named
	// after an AAGUID scopes its certificates to that model; any other
	// file contributes anchors for all models.
	KeystoreDir string
}

type snapshot struct {
	byAAGUID map[uuid.UUID][]fido2.CertificateHolder
	global   []fido2.CertificateHolder
}

// Store is a trust-anchor source keyed by AAGUID.  It implements
// fido2.TrustAnchorSource.  Reads are lock-free; Reload is the only
// synchronized path.
type Store struct {
	cfg  Config
	log  *slog.Logger
	snap atomic.Pointer[snapshot]

	reloadMu sync.Mutex
}

// NewStore loads the configured sources and returns a ready Store.
func NewStore(cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{cfg: cfg, log: logger}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// TrustAnchors returns the anchors configured for the given AAGUID: the
// model-specific entries followed by the global ones.  The returned slice
// is an immutable snapshot and stays valid for the caller's lifetime even
// across a concurrent Reload.
func (s *Store) TrustAnchors(aaguid []byte) []fido2.CertificateHolder {
	snap := s.snap.Load()
	if snap == nil {
		return nil
	}

	var anchors []fido2.CertificateHolder
	if id, err := uuid.FromBytes(aaguid); err == nil {
		anchors = append(anchors, snap.byAAGUID[id]...)
	}
	anchors = append(anchors, snap.global...)
	return anchors
}

// Reload re-reads the configured sources and swaps in the new snapshot.
// Verification calls in flight keep the snapshot they started with.
func (s *Store) Reload() error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	snap := &snapshot{byAAGUID: make(map[uuid.UUID][]fido2.CertificateHolder)}

	if s.cfg.BlobPath != "" {
		data, err := os.ReadFile(s.cfg.BlobPath)
		if err != nil {
			return errors.Wrap(err, "reading MDS blob")
		}
		if err := loadBlob(data, snap); err != nil {
			return errors.Wrapf(err, "parsing MDS blob %s", s.cfg.BlobPath)
		}
	}

	if s.cfg.KeystoreDir != "" {
		if err := loadKeystore(s.cfg.KeystoreDir, snap); err != nil {
			return err
		}
	}

	s.snap.Store(snap)

	n := len(snap.global)
	for _, anchors := range snap.byAAGUID {
		n += len(anchors)
	}
	s.log.Debug("trust anchors loaded", "models", len(snap.byAAGUID), "anchors", n)
	return nil
}

type blobEntry struct {
	AAGUID   string `json:"aaguid"`
	Metadata struct {
		Description                 string   `json:"description"`
		AttestationRootCertificates []string `json:"attestationRootCertificates"`
	} `json:"metadataStatement"`
}

type blobPayload struct {
	Entries []blobEntry `json:"entries"`
}

// loadBlob parses an MDS blob in JWT compact serialization.  The blob's own
// signature is checked at distribution time, outside this process; here the
// payload is the source of truth for per-model roots.
func loadBlob(data []byte, snap *snapshot) error {
	parts := bytes.Split(data, []byte("."))
	if len(parts) != 3 {
		return errors.New("blob is not in JWT compact serialization")
	}
	payloadBytes, err := base64.RawURLEncoding.DecodeString(string(parts[1]))
	if err != nil {
		return errors.Wrap(err, "decoding payload")
	}

	var payload blobPayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return errors.Wrap(err, "decoding payload entries")
	}

	for _, entry := range payload.Entries {
		if entry.AAGUID == "" {
			continue
		}
		id, err := uuid.Parse(entry.AAGUID)
		if err != nil {
			return errors.Wrapf(err, "entry aaguid %q", entry.AAGUID)
		}
		for i, encoded := range entry.Metadata.AttestationRootCertificates {
			der, err := base64.StdEncoding.DecodeString(encoded)
			if err != nil {
				return errors.Wrapf(err, "entry %s root certificate %d", entry.AAGUID, i)
			}
			cert, err := x509.ParseCertificate(der)
			if err != nil {
				return errors.Wrapf(err, "entry %s root certificate %d", entry.AAGUID, i)
			}
			alias := entry.Metadata.Description
			if alias == "" {
				alias = entry.AAGUID
			}
			snap.byAAGUID[id] = append(snap.byAAGUID[id], fido2.CertificateHolder{Alias: alias, Cert: cert})
		}
	}
	return nil
}

// loadKeystore reads every PEM file in dir.  Files named after an AAGUID
// (with or without an extension) scope their certificates to that model;
// anything else becomes a global anchor with the file name as alias.
func loadKeystore(dir string, snap *snapshot) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return errors.Wrap(err, "reading keystore directory")
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return errors.Wrapf(err, "reading keystore file %s", name)
		}

		alias := strings.TrimSuffix(name, filepath.Ext(name))
		certs, err := parsePEMCertificates(data)
		if err != nil {
			return errors.Wrapf(err, "keystore file %s", name)
		}

		if id, err := uuid.Parse(alias); err == nil {
			for _, cert := range certs {
				snap.byAAGUID[id] = append(snap.byAAGUID[id], fido2.CertificateHolder{Alias: alias, Cert: cert})
			}
		} else {
			for _, cert := range certs {
				snap.global = append(snap.global, fido2.CertificateHolder{Alias: alias, Cert: cert})
			}
		}
	}
	return nil
}

func parsePEMCertificates(data []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	for len(data) > 0 {
		var block *pem.Block
		if block, data = pem.Decode(data); block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, errors.Wrap(err, "parsing certificate")
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		return nil, errors.New("no certificates found")
	}
	return certs, nil
}
