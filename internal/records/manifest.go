// Package records builds the sample database records written to each batch.
package records

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Manifest describes the record template and which of its fields receive a
// fresh random identifier on every build.
type Manifest struct {
	Template        map[string]interface{} `json:"template"`
	RandomizedPaths []string               `json:"randomizedPaths"`
}

const defaultTemplate = `{
    "_id": {
        "someId": "RANDOM_GUID"
    },
    "type": "addressDeclaration",
    "contractId": "RANDOM_GUID",
    "addressNumber": {
        "type": "AddressLine",
        "cryptoId": "RANDOM_GUID"
    },
    "addressLine2": null,
    "townCity": {
        "type": "AddressLine",
        "cryptoId": "RANDOM_GUID"
    },
    "postcode": "SM5 2LE",
    "processId": "RANDOM_GUID",
    "effectiveDate": {
        "type": "SPECIFIC_EFFECTIVE_DATE",
        "date": 20150320,
        "knownDate": 20150320
    },
    "paymentEffectiveDate": {
        "type": "SPECIFIC_EFFECTIVE_DATE",
        "date": 20150320,
        "knownDate": 20150320
    },
    "createdDateTime": {
        "$date": "2015-03-20T12:23:25.183Z"
    },
    "_version": 2,
    "_lastModifiedDateTime": {
        "$date": "2018-12-14T15:01:02.000+0000"
    }
}`

// DefaultManifest returns the address declaration record with its identifiers randomized
func DefaultManifest() *Manifest {
	var template map[string]interface{}
	if err := json.Unmarshal([]byte(defaultTemplate), &template); err != nil {
		panic(fmt.Sprintf("invalid built-in template: %v", err))
	}

	return &Manifest{
		Template: template,
		RandomizedPaths: []string{
			"_id.declarationId",
			"contractId",
			"addressNumber.cryptoId",
			"townCity.cryptoId",
			"processId",
		},
	}
}

// LoadManifest reads a manifest from a JSON file. A file without a "template"
// key is taken to be the template itself and keeps the default randomized paths.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template file: %w", err)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse template file %s: %w", path, err)
	}

	manifest := &Manifest{}
	if _, ok := doc["template"]; ok {
		if err := json.Unmarshal(data, manifest); err != nil {
			return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
		}
	} else {
		manifest.Template = doc
		manifest.RandomizedPaths = DefaultManifest().RandomizedPaths
	}

	if err := manifest.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest %s: %w", path, err)
	}
	return manifest, nil
}

// Validate checks that every randomized path can be set on the template
func (m *Manifest) Validate() error {
	if len(m.Template) == 0 {
		return fmt.Errorf("template cannot be empty")
	}

	for _, path := range m.RandomizedPaths {
		segments := strings.Split(path, ".")
		current := m.Template
		for i, segment := range segments {
			if segment == "" {
				return fmt.Errorf("invalid randomized path %q", path)
			}
			if i == len(segments)-1 {
				break
			}
			next, exists := current[segment]
			if !exists {
				break
			}
			nested, ok := next.(map[string]interface{})
			if !ok {
				return fmt.Errorf("randomized path %q crosses non-object field %q", path, segment)
			}
			current = nested
		}
	}

	return nil
}
