package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/calmisko/gatepipe/internal/config"
	"github.com/calmisko/gatepipe/internal/core"
)

// Default credential locations for API key extraction.
const (
	DefaultAPIKeyHeader = "X-API-Key"
	DefaultAPIKeyQuery  = "api_key"
)

// Stored key form prefixes.
const (
	sha256Prefix = "sha256:"
	bcryptPrefix = "bcrypt:"
)

type keyForm int

const (
	plaintextKey keyForm = iota
	sha256Key
	bcryptKey
)

// apikeyRecord is one parsed entry of the key table. The stored form
// is resolved once at construction.
type apikeyRecord struct {
	form     keyForm
	secret   []byte
	identity core.Identity
}

// apikeyProvider verifies API keys extracted from a header or query
// parameter against a static key table.
type apikeyProvider struct {
	header string
	query  string
	keys   []apikeyRecord
}

func newAPIKeyProvider(cfg *config.APIKeyConfig) (*apikeyProvider, error) {
	p := &apikeyProvider{
		header: cfg.Header,
		query:  cfg.Query,
	}
	if p.header == "" {
		p.header = DefaultAPIKeyHeader
	}
	if p.query == "" {
		p.query = DefaultAPIKeyQuery
	}

	for i, entry := range cfg.Keys {
		if entry.Key == "" {
			return nil, fmt.Errorf("api key entry %d: empty key", i)
		}
		if entry.Subject == "" {
			return nil, fmt.Errorf("api key entry %d: empty subject", i)
		}

		record := apikeyRecord{
			identity: core.Identity{
				Subject:  entry.Subject,
				TenantID: entry.TenantID,
				Method:   core.AuthMethodAPIKey,
				Roles:    append([]string(nil), entry.Roles...),
				Scopes:   append([]string(nil), entry.Scopes...),
			},
		}

		switch {
		case strings.HasPrefix(entry.Key, sha256Prefix):
			digest, err := hex.DecodeString(strings.TrimPrefix(entry.Key, sha256Prefix))
			if err != nil {
				return nil, fmt.Errorf("api key entry %d: invalid sha256 digest: %w", i, err)
			}
			if len(digest) != sha256.Size {
				return nil, fmt.Errorf("api key entry %d: sha256 digest must be %d bytes", i, sha256.Size)
			}
			record.form = sha256Key
			record.secret = digest
		case strings.HasPrefix(entry.Key, bcryptPrefix):
			record.form = bcryptKey
			record.secret = []byte(strings.TrimPrefix(entry.Key, bcryptPrefix))
		default:
			record.form = plaintextKey
			record.secret = []byte(entry.Key)
		}

		p.keys = append(p.keys, record)
	}

	return p, nil
}

// extract returns the API key carried by the request, if any. The
// header takes precedence over the query parameter.
func (p *apikeyProvider) extract(req *core.Request) (string, bool) {
	if key := req.Header(p.header); key != "" {
		return key, true
	}
	if key := req.QueryParam(p.query); key != "" {
		return key, true
	}
	return "", false
}

// verify checks the presented key against the key table and returns
// the matching identity.
func (p *apikeyProvider) verify(key string) (*core.Identity, bool) {
	presented := []byte(key)
	digest := sha256.Sum256(presented)

	for i := range p.keys {
		record := &p.keys[i]

		var match bool
		switch record.form {
		case sha256Key:
			match = subtle.ConstantTimeCompare(digest[:], record.secret) == 1
		case bcryptKey:
			match = bcrypt.CompareHashAndPassword(record.secret, presented) == nil
		default:
			match = subtle.ConstantTimeCompare(presented, record.secret) == 1
		}

		if match {
			identity := record.identity
			identity.Roles = append([]string(nil), record.identity.Roles...)
			identity.Scopes = append([]string(nil), record.identity.Scopes...)
			return &identity, true
		}
	}
	return nil, false
}

// HashAPIKey returns the stored form of a key hashed with SHA-256,
// suitable for the key table.
func HashAPIKey(key string) string {
	digest := sha256.Sum256([]byte(key))
	return sha256Prefix + hex.EncodeToString(digest[:])
}
