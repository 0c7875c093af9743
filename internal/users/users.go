// Package users holds review-service identities and an offline directory of
// them loaded from YAML.
package users

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Identity is a registered review-service user.
type Identity struct {
	PHID     string `json:"phid" yaml:"phid"`
	Username string `json:"username" yaml:"username"`
}

// Lookup is the result of resolving one contact string. Found is false when
// nothing matched; such entries are never omitted from a result list.
type Lookup struct {
	Identity Identity
	Found    bool
}

// Record is one user entry in a directory file.
type Record struct {
	Username string   `yaml:"username"`
	PHID     string   `yaml:"phid"`
	Emails   []string `yaml:"emails"`
}

type file struct {
	Users []Record `yaml:"users"`
}

// ErrInvalidRecord is returned for directory entries missing a username or PHID.
var ErrInvalidRecord = errors.New("invalid user record")

// Directory resolves identities from an in-memory user list.
type Directory struct {
	byEmail    map[string]Identity
	byPHID     map[string]Identity
	byUsername map[string]Identity
}

// NewDirectory indexes records. Emails and usernames match case-insensitively.
func NewDirectory(records []Record) (*Directory, error) {
	d := &Directory{
		byEmail:    make(map[string]Identity),
		byPHID:     make(map[string]Identity),
		byUsername: make(map[string]Identity),
	}
	for i, r := range records {
		if r.Username == "" || r.PHID == "" {
			return nil, fmt.Errorf("%w: entry %d", ErrInvalidRecord, i)
		}
		id := Identity{PHID: r.PHID, Username: r.Username}
		d.byPHID[r.PHID] = id
		d.byUsername[strings.ToLower(r.Username)] = id
		for _, e := range r.Emails {
			d.byEmail[strings.ToLower(strings.TrimSpace(e))] = id
		}
	}
	return d, nil
}

// LoadFile reads a directory from a YAML file of the form:
//
//	users:
//	  - username: alice
//	    phid: PHID-USER-alice
//	    emails: [alice@example.com]
func LoadFile(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading users file: %w", err)
	}
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing users file: %w", err)
	}
	return NewDirectory(f.Users)
}

// UsersFromEmails resolves each email in order.
func (d *Directory) UsersFromEmails(_ context.Context, emails []string) ([]Lookup, error) {
	out := make([]Lookup, len(emails))
	for i, e := range emails {
		id, ok := d.byEmail[strings.ToLower(strings.TrimSpace(e))]
		out[i] = Lookup{Identity: id, Found: ok}
	}
	return out, nil
}

// UsernamesFromPHIDs maps PHIDs to usernames in order. Unknown PHIDs are
// returned verbatim so the rendered message still names them.
func (d *Directory) UsernamesFromPHIDs(_ context.Context, phids []string) ([]string, error) {
	out := make([]string, len(phids))
	for i, p := range phids {
		if id, ok := d.byPHID[p]; ok {
			out[i] = id.Username
		} else {
			out[i] = p
		}
	}
	return out, nil
}

// ByUsername finds a user by name.
func (d *Directory) ByUsername(name string) (Identity, bool) {
	id, ok := d.byUsername[strings.ToLower(name)]
	return id, ok
}
