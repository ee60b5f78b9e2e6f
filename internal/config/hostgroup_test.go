package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeHostgroupFile(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "hostgroups.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const sampleHostgroupYAML = `
credentials:
  - name: prod
    user: monitor
    password: s3cret
    tls_mode: required
hostgroups:
  - name: cluster-a
    members:
      - host: db1.internal
        port: 3306
        credential: prod
        title: Primary
      - host: db2.internal
        port: 3306
        credential: prod
        title: Replica
`

func TestLoadHostgroupFileParsesCredentialsAndMembers(t *testing.T) {
	path := writeHostgroupFile(t, sampleHostgroupYAML)
	hf, err := LoadHostgroupFile(path)
	require.NoError(t, err)
	require.Len(t, hf.Credentials, 1)
	require.Len(t, hf.Hostgroups, 1)
	assert.Equal(t, "cluster-a", hf.Hostgroups[0].Name)
	assert.Len(t, hf.Hostgroups[0].Members, 2)
}

func TestCredentialByNameFindsAndMisses(t *testing.T) {
	path := writeHostgroupFile(t, sampleHostgroupYAML)
	hf, err := LoadHostgroupFile(path)
	require.NoError(t, err)

	cred, ok := hf.CredentialByName("prod")
	require.True(t, ok)
	assert.Equal(t, "monitor", cred.User)

	_, ok = hf.CredentialByName("nonexistent")
	assert.False(t, ok)
}

func TestEndpointsResolvesCredentialsForNamedHostgroup(t *testing.T) {
	path := writeHostgroupFile(t, sampleHostgroupYAML)
	hf, err := LoadHostgroupFile(path)
	require.NoError(t, err)

	eps, err := hf.Endpoints("cluster-a")
	require.NoError(t, err)
	require.Len(t, eps, 2)
	assert.Equal(t, "db1.internal", eps[0].Host)
	assert.Equal(t, "monitor", eps[0].User)
	assert.Equal(t, "s3cret", eps[0].Password)
	assert.Equal(t, "cluster-a", eps[0].HostgroupName)
	assert.Equal(t, "Primary", eps[0].DisplayTitle)
}

func TestEndpointsUnknownHostgroupNameIsError(t *testing.T) {
	path := writeHostgroupFile(t, sampleHostgroupYAML)
	hf, err := LoadHostgroupFile(path)
	require.NoError(t, err)

	_, err = hf.Endpoints("does-not-exist")
	assert.Error(t, err)
}

func TestEndpointsUnknownCredentialReferenceIsError(t *testing.T) {
	path := writeHostgroupFile(t, `
credentials:
  - name: prod
    user: monitor
hostgroups:
  - name: cluster-a
    members:
      - host: db1.internal
        port: 3306
        credential: missing-profile
`)
	hf, err := LoadHostgroupFile(path)
	require.NoError(t, err)

	_, err = hf.Endpoints("cluster-a")
	assert.Error(t, err, "a member referencing an unknown credential must fail resolution, not silently connect with zero-value creds")
}

func TestLoadHostgroupFileRejectsEmptyMembers(t *testing.T) {
	path := writeHostgroupFile(t, `
hostgroups:
  - name: empty-group
    members: []
`)
	_, err := LoadHostgroupFile(path)
	assert.Error(t, err, "a hostgroup with zero members fails the min=1 validation")
}

func TestLoadHostgroupFileMissingFileIsError(t *testing.T) {
	_, err := LoadHostgroupFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
