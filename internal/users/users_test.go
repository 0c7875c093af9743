package users

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `users:
  - username: alice
    phid: PHID-USER-alice
    emails: [alice@example.com, a.smith@example.org]
  - username: bob
    phid: PHID-USER-bob
    emails:
      - bob@example.com
`

func loadSample(t *testing.T) *Directory {
	t.Helper()
	path := filepath.Join(t.TempDir(), "users.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))
	d, err := LoadFile(path)
	require.NoError(t, err)
	return d
}

func TestUsersFromEmails(t *testing.T) {
	d := loadSample(t)
	got, err := d.UsersFromEmails(context.Background(),
		[]string{"nobody@example.com", "BOB@example.com", "a.smith@example.org"})
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.False(t, got[0].Found)
	assert.Equal(t, Lookup{Identity: Identity{PHID: "PHID-USER-bob", Username: "bob"}, Found: true}, got[1])
	assert.Equal(t, "alice", got[2].Identity.Username)
}

func TestUsernamesFromPHIDs(t *testing.T) {
	d := loadSample(t)
	got, err := d.UsernamesFromPHIDs(context.Background(),
		[]string{"PHID-USER-bob", "PHID-USER-ghost", "PHID-USER-alice"})
	require.NoError(t, err)
	assert.Equal(t, []string{"bob", "PHID-USER-ghost", "alice"}, got)
}

func TestByUsername(t *testing.T) {
	d := loadSample(t)
	id, ok := d.ByUsername("Alice")
	require.True(t, ok)
	assert.Equal(t, "PHID-USER-alice", id.PHID)

	_, ok = d.ByUsername("carol")
	assert.False(t, ok)
}

func TestNewDirectory_InvalidRecord(t *testing.T) {
	_, err := NewDirectory([]Record{{Username: "x"}})
	assert.True(t, errors.Is(err, ErrInvalidRecord))
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
