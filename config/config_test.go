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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openauthn/fido2"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fido2.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfigFile(t, `
rp_id: example.com
rp_name: Example
trust_store_dir: /etc/fido2/anchors
backchannel_workers: 8
backchannel_wait: 10s
`)

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "example.com", c.RPID)
	assert.Equal(t, "Example", c.RPName)
	assert.Equal(t, "/etc/fido2/anchors", c.TrustStoreDir)
	assert.Equal(t, 8, c.BackchannelWorkers)
	assert.Equal(t, 10*time.Second, c.BackchannelWait)
	assert.Equal(t, []int{fido2.COSEAlgES256, fido2.COSEAlgRS256}, c.CredentialAlgs)
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfigFile(t, `
rp_id: example.com
rp_name: Example
`)

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultBackchannelWorkers, c.BackchannelWorkers)
	assert.Equal(t, DefaultBackchannelWait, c.BackchannelWait)
}

func TestValid(t *testing.T) {
	valid := Config{
		RPID:               "example.com",
		RPName:             "Example",
		CredentialAlgs:     []int{fido2.COSEAlgES256},
		BackchannelWorkers: 4,
		BackchannelWait:    30 * time.Second,
	}
	require.NoError(t, valid.Valid())

	testCases := []struct {
		name   string
		modify func(*Config)
	}{
		{"missing rp name", func(c *Config) { c.RPName = "" }},
		{"missing rp id", func(c *Config) { c.RPID = "" }},
		{"no credential algorithms", func(c *Config) { c.CredentialAlgs = nil }},
		{"unsupported credential algorithm", func(c *Config) { c.CredentialAlgs = []int{42} }},
		{"zero workers", func(c *Config) { c.BackchannelWorkers = 0 }},
		{"zero wait", func(c *Config) { c.BackchannelWait = 0 }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := valid
			tc.modify(&c)
			assert.Error(t, c.Valid())
		})
	}
}

func TestLoadInvalid(t *testing.T) {
	path := writeConfigFile(t, `
rp_id: example.com
`)
	_, err := Load(path)
	assert.Error(t, err)
}
