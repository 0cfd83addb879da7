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

// Package config loads and validates the server settings consumed by the
// verification engine and its collaborators.
package config

import (
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/openauthn/fido2"
)

// Config represents Relying Party and server settings.
// Zero value Config is not valid.
type Config struct {
	RPID   string `mapstructure:"rp_id"`
	RPName string `mapstructure:"rp_name"`

	// CredentialAlgs lists the accepted COSE credential algorithms.
	CredentialAlgs []int `mapstructure:"credential_algs"`

	// TrustStoreDir is the keystore directory of PEM trust anchors.
	TrustStoreDir string `mapstructure:"trust_store_dir"`
	// MetadataBlobPath is the path of the FIDO MDS blob, if any.
	MetadataBlobPath string `mapstructure:"metadata_blob_path"`

	// BackchannelWorkers bounds the session-termination notifier pool.
	BackchannelWorkers int `mapstructure:"backchannel_workers"`
	// BackchannelWait is the overall wait before giving up on
	// outstanding notifications.
	BackchannelWait time.Duration `mapstructure:"backchannel_wait"`
}

// Defaults applied by Load when a setting is absent.
const (
	DefaultBackchannelWorkers = 4
	DefaultBackchannelWait    = 30 * time.Second
)

// Load reads settings from the given file (optional) and from FIDO2_*
// environment variables, applies defaults, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("fido2")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault("credential_algs", []int{fido2.COSEAlgES256, fido2.COSEAlgRS256})
	v.SetDefault("backchannel_workers", DefaultBackchannelWorkers)
	v.SetDefault("backchannel_wait", DefaultBackchannelWait)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	if err := c.Valid(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Valid checks Config settings and returns error if it is invalid.
func (c *Config) Valid() error {
	if c.RPName == "" {
		return errors.New("rp name is required")
	}
	if c.RPID == "" {
		return errors.New("rp id is required")
	}
	if _, err := url.Parse(c.RPID); err != nil {
		return errors.New("rp id " + c.RPID + " is not a valid URI: " + err.Error())
	}
	if len(c.CredentialAlgs) == 0 {
		return errors.New("there must be at least one credential algorithm")
	}
	for _, alg := range c.CredentialAlgs {
		if !fido2.SignatureAlgorithmSupported(alg) {
			return errors.New("credential algorithm " + strconv.Itoa(alg) + " is not supported")
		}
	}
	if c.BackchannelWorkers <= 0 {
		return errors.New("backchannel workers must be a positive number")
	}
	if c.BackchannelWait <= 0 {
		return errors.New("backchannel wait must be a positive duration")
	}
	return nil
}
