package credpool

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/communitas-hq/partner-research/internal/model"
)

// credentialsFile is the on-disk shape of the credential list.
type credentialsFile struct {
	Credentials []model.CredentialSlot `yaml:"credentials"`
}

// LoadFile reads credential slots from a YAML file:
//
//	credentials:
//	  - id: scraper-1
//	    identifier: researcher@example.org
//	    secret: "..."
func LoadFile(path string) ([]*model.CredentialSlot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "credpool: read %s", path)
	}

	var f credentialsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "credpool: parse %s", path)
	}

	slots := make([]*model.CredentialSlot, 0, len(f.Credentials))
	for i := range f.Credentials {
		s := f.Credentials[i]
		if s.ID == "" || s.Identifier == "" || s.Secret == "" {
			return nil, eris.Errorf("credpool: credential %d missing id, identifier, or secret", i)
		}
		slots = append(slots, &s)
	}
	return slots, nil
}
