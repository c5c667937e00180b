package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Seed is the on-disk registry format (YAML or JSON):
//
//	tenants:
//	  - id: tenant1
//	    clients:
//	      - client_id: c1
//	        client_secret: dev-only-plaintext   # hashed on load
//	        redirect_uris: [https://example.com/callback]
//	        grant_types: [authorization_code, refresh_token]
//	        response_types: [code]
//	        allowed_scopes: [profile, email]
//	    scopes:
//	      - name: email
//	        claims: [email, email_verified]
type Seed struct {
	Tenants []SeedTenant `json:"tenants" yaml:"tenants"`
}

type SeedTenant struct {
	ID      string       `json:"id" yaml:"id"`
	Clients []SeedClient `json:"clients" yaml:"clients"`
	Scopes  []Scope      `json:"scopes" yaml:"scopes"`
}

type SeedClient struct {
	Client       `json:",inline" yaml:",inline"`
	ClientSecret string `json:"client_secret" yaml:"client_secret"`
}

// LoadFile parses a registry seed, choosing the decoder by extension.
func LoadFile(path string) (Seed, error) {
	var seed Seed
	b, err := os.ReadFile(path)
	if err != nil {
		return seed, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(b, &seed)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &seed)
	default:
		return seed, fmt.Errorf("registry file %s: unsupported extension", path)
	}
	if err != nil {
		return seed, fmt.Errorf("registry parse: %w", err)
	}
	return seed, nil
}

// Resolve flattens the seed into tenant-bound records, hashing plaintext
// secrets.
func (s Seed) Resolve() ([]Client, []Scope, error) {
	var clients []Client
	var scopes []Scope
	for _, t := range s.Tenants {
		for _, sc := range t.Clients {
			c := sc.Client
			c.TenantID = t.ID
			if c.ClientSecretHash == "" && sc.ClientSecret != "" {
				h, err := HashSecret(sc.ClientSecret)
				if err != nil {
					return nil, nil, fmt.Errorf("hash secret for %s/%s: %w", t.ID, c.ClientID, err)
				}
				c.ClientSecretHash = h
			}
			if len(c.ResponseTypes) == 0 {
				c.ResponseTypes = []string{"code"}
			}
			clients = append(clients, c)
		}
		for _, sc := range t.Scopes {
			sc.TenantID = t.ID
			scopes = append(scopes, sc)
		}
	}
	return clients, scopes, nil
}
