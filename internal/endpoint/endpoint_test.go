package endpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEndpointKeyPrefersSocket(t *testing.T) {
	e := Endpoint{Host: "db1", Port: 3306, Socket: "/var/run/mysqld/mysqld.sock"}
	assert.Equal(t, "/var/run/mysqld/mysqld.sock", e.Key())
}

func TestEndpointKeyFallsBackToHostPort(t *testing.T) {
	e := Endpoint{Host: "db1", Port: 3306}
	assert.Equal(t, "db1:3306", e.Key())
}

func TestVersionStringPrefersRaw(t *testing.T) {
	v := Version{Major: 8, Minor: 0, Patch: 34, Raw: "8.0.34-log"}
	assert.Equal(t, "8.0.34-log", v.String())
}

func TestVersionStringFallsBackToTriple(t *testing.T) {
	v := Version{Major: 8, Minor: 0, Patch: 34}
	assert.Equal(t, "8.0.34", v.String())
}
