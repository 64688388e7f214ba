package security

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
)

// CredentialsKeyEnv is the environment variable holding the passphrase used
// to decrypt credentials.json's secret fields, if encryption at rest is in
// use. Unset means the file is plaintext.
const CredentialsKeyEnv = "ENGINE_CREDENTIALS_KEY"

// AdapterEntry is one venue account as the core sees it: mostly opaque, per
// spec §6 ("the core treats this as opaque beyond 'is this account
// enabled'"), decoded loosely via mapstructure so unknown per-venue fields
// pass through without the core needing to know about them.
type AdapterEntry struct {
	ExchangeName     string `mapstructure:"exchange_name"`
	APIKey           string `mapstructure:"api_key"`
	APISecret        string `mapstructure:"api_secret"`
	APIPassphrase    string `mapstructure:"api_passphrase"`
	LeverageOverride *int   `mapstructure:"leverage_override"`
	Enabled          bool   `mapstructure:"enabled"`
	CopyTrading      bool   `mapstructure:"copy_trading"`

	Extra map[string]interface{} `mapstructure:",remain"`
}

// Document is the on-disk shape of credentials.json: a flat list of generic
// adapter entries.
type Document []map[string]interface{}

// LoadCredentials reads credentials.json at path and decodes it into
// AdapterEntry values. If cipher is non-nil, api_key/api_secret/
// api_passphrase are decrypted in place before decoding; a nil cipher
// assumes the file is plaintext.
func LoadCredentials(path string, cipher *Cipher) ([]AdapterEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	entries := make([]AdapterEntry, 0, len(doc))
	for i, raw := range doc {
		if cipher != nil {
			if err := decryptSecretFields(raw, cipher); err != nil {
				return nil, fmt.Errorf("decrypt credentials entry %d: %w", i, err)
			}
		}
		var entry AdapterEntry
		if err := mapstructure.Decode(raw, &entry); err != nil {
			return nil, fmt.Errorf("decode credentials entry %d: %w", i, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

var secretFields = []string{"api_key", "api_secret", "api_passphrase"}

func decryptSecretFields(raw map[string]interface{}, cipher *Cipher) error {
	for _, field := range secretFields {
		v, ok := raw[field]
		if !ok {
			continue
		}
		s, ok := v.(string)
		if !ok || s == "" {
			continue
		}
		plain, err := cipher.Decrypt(s)
		if err != nil {
			return fmt.Errorf("field %s: %w", field, err)
		}
		raw[field] = plain
	}
	return nil
}
