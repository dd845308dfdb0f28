package auth

import (
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/calmisko/gatepipe/internal/config"
	"github.com/calmisko/gatepipe/internal/core"
)

const (
	basicScheme       = "Basic "
	DefaultBasicRealm = "restricted"
)

// basicUserRecord is one parsed entry of the user table.
type basicUserRecord struct {
	username []byte
	form     keyForm
	secret   []byte
	identity core.Identity
}

// basicProvider verifies HTTP basic credentials against a static user
// table.
type basicProvider struct {
	realm string
	users []basicUserRecord
}

func newBasicProvider(cfg *config.BasicConfig) (*basicProvider, error) {
	p := &basicProvider{realm: cfg.Realm}
	if p.realm == "" {
		p.realm = DefaultBasicRealm
	}

	for i, entry := range cfg.Users {
		if entry.Username == "" {
			return nil, fmt.Errorf("basic auth entry %d: empty username", i)
		}
		if entry.Password == "" {
			return nil, fmt.Errorf("basic auth entry %d: empty password", i)
		}

		record := basicUserRecord{
			username: []byte(entry.Username),
			identity: core.Identity{
				Subject:  entry.Username,
				TenantID: entry.TenantID,
				Method:   core.AuthMethodBasic,
				Roles:    append([]string(nil), entry.Roles...),
				Scopes:   append([]string(nil), entry.Scopes...),
			},
		}

		if strings.HasPrefix(entry.Password, bcryptPrefix) {
			record.form = bcryptKey
			record.secret = []byte(strings.TrimPrefix(entry.Password, bcryptPrefix))
		} else {
			record.form = plaintextKey
			record.secret = []byte(entry.Password)
		}

		p.users = append(p.users, record)
	}

	return p, nil
}

// extract returns the base64 credentials carried by the Authorization
// header, if any.
func (p *basicProvider) extract(req *core.Request) (string, bool) {
	header := req.Header("Authorization")
	if len(header) < len(basicScheme) {
		return "", false
	}
	if !strings.EqualFold(header[:len(basicScheme)], basicScheme) {
		return "", false
	}
	encoded := strings.TrimSpace(header[len(basicScheme):])
	return encoded, encoded != ""
}

// verify decodes the credentials and checks them against the user
// table.
func (p *basicProvider) verify(encoded string) (*core.Identity, bool) {
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, false
	}
	username, password, found := strings.Cut(string(decoded), ":")
	if !found {
		return nil, false
	}

	presentedUser := []byte(username)
	presentedPass := []byte(password)

	for i := range p.users {
		record := &p.users[i]

		if subtle.ConstantTimeCompare(presentedUser, record.username) != 1 {
			continue
		}

		var match bool
		if record.form == bcryptKey {
			match = bcrypt.CompareHashAndPassword(record.secret, presentedPass) == nil
		} else {
			match = subtle.ConstantTimeCompare(presentedPass, record.secret) == 1
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

// Realm returns the realm sent in WWW-Authenticate challenges.
func (p *basicProvider) Realm() string {
	return p.realm
}
