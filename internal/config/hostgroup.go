package config

import (
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/dolphie-go/dolphie/internal/endpoint"
)

// CredentialProfile is one named set of connection credentials a hostgroup
// member can reference instead of repeating user/password inline.
type CredentialProfile struct {
	Name     string `yaml:"name" mapstructure:"name" validate:"required"`
	User     string `yaml:"user" mapstructure:"user" validate:"required"`
	Password string `yaml:"password" mapstructure:"password"`
	TLSMode  string `yaml:"tls_mode" mapstructure:"tls_mode" validate:"omitempty,oneof=off required verify-ca verify-identity"`
}

// HostgroupMember is one monitored endpoint within a hostgroup, decoded with
// mitchellh/mapstructure the way the teacher decodes generic YAML/INI
// sections into typed structs.
type HostgroupMember struct {
	Host       string `yaml:"host" mapstructure:"host" validate:"required"`
	Port       int    `yaml:"port" mapstructure:"port"`
	Socket     string `yaml:"socket" mapstructure:"socket"`
	Credential string `yaml:"credential" mapstructure:"credential" validate:"required"`
	Title      string `yaml:"title" mapstructure:"title"`
}

// Hostgroup is a named connect-wave group: every member is dialed together,
// governed by the connect-wave-in-progress guard condition.
type Hostgroup struct {
	Name    string            `yaml:"name" mapstructure:"name" validate:"required"`
	Members []HostgroupMember `yaml:"members" mapstructure:"members" validate:"min=1,dive"`
}

// HostgroupFile is the YAML document format: a list of credential profiles
// plus a list of hostgroups referencing them by name.
type HostgroupFile struct {
	Credentials []CredentialProfile `yaml:"credentials" mapstructure:"credentials" validate:"dive"`
	Hostgroups  []Hostgroup         `yaml:"hostgroups" mapstructure:"hostgroups" validate:"dive"`
}

// LoadHostgroupFile reads and validates the hostgroup/credential-profile
// YAML file at path.
func LoadHostgroupFile(path string) (*HostgroupFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading hostgroup file %s: %w", path, err)
	}

	var generic map[string]interface{}
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("parsing hostgroup file %s: %w", path, err)
	}

	var hf HostgroupFile
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &hf,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return nil, fmt.Errorf("building hostgroup decoder: %w", err)
	}
	if err := dec.Decode(generic); err != nil {
		return nil, fmt.Errorf("decoding hostgroup file %s: %w", path, err)
	}

	if err := validate.Struct(&hf); err != nil {
		return nil, fmt.Errorf("invalid hostgroup file %s: %w", path, err)
	}
	return &hf, nil
}

// CredentialByName looks up a profile by name, the lookup every hostgroup
// member performs to resolve its Credential field.
func (hf HostgroupFile) CredentialByName(name string) (CredentialProfile, bool) {
	for _, c := range hf.Credentials {
		if c.Name == name {
			return c, true
		}
	}
	return CredentialProfile{}, false
}

// Endpoints resolves every member of a named hostgroup to a connection
// Endpoint, substituting each member's referenced credential profile.
func (hf HostgroupFile) Endpoints(hostgroupName string) ([]endpoint.Endpoint, error) {
	var out []endpoint.Endpoint
	for _, hg := range hf.Hostgroups {
		if hg.Name != hostgroupName {
			continue
		}
		for _, m := range hg.Members {
			cred, ok := hf.CredentialByName(m.Credential)
			if !ok {
				return nil, fmt.Errorf("hostgroup %s: member %s references unknown credential %q", hg.Name, m.Host, m.Credential)
			}
			out = append(out, endpoint.Endpoint{
				Host:           m.Host,
				Port:           m.Port,
				Socket:         m.Socket,
				User:           cred.User,
				Password:       cred.Password,
				TLSMode:        endpoint.TLSMode(cred.TLSMode),
				CredentialName: cred.Name,
				HostgroupName:  hg.Name,
				DisplayTitle:   m.Title,
			})
		}
		return out, nil
	}
	return nil, fmt.Errorf("hostgroup %q not found", hostgroupName)
}
