package kb

import "errors"

// Entity type values used by the builtin table. Other values are accepted and
// rendered with the default colour.
const (
	TypePerson       = "Person"
	TypeCompany      = "Company"
	TypeCountry      = "Country"
	TypeOrganization = "Organization"
)

var (
	// ErrInvalidEntity is returned when an entity has no ID or no name.
	ErrInvalidEntity = errors.New("kb: entity needs an id and a name")

	// ErrDuplicateEntity is returned when an ID is added twice.
	ErrDuplicateEntity = errors.New("kb: duplicate entity id")

	// ErrUnsupportedFormat is returned for knowledge-base files that are not
	// JSON, YAML or XLSX.
	ErrUnsupportedFormat = errors.New("kb: unsupported file format")
)

// Entity is one record of the knowledge table.
type Entity struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Aliases     []string `json:"aliases,omitempty" yaml:"aliases,omitempty"`
	Description string   `json:"description" yaml:"description"`
	Wikipedia   string   `json:"wikipedia" yaml:"wikipedia"`
	Linked      []string `json:"linked,omitempty" yaml:"linked,omitempty"`
	Type        string   `json:"type" yaml:"type"`
}

// Names returns the canonical name followed by the aliases.
func (e Entity) Names() []string {
	names := make([]string, 0, 1+len(e.Aliases))
	names = append(names, e.Name)
	return append(names, e.Aliases...)
}
