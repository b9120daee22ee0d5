package out

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"gametrack/internal/modules/catalog/domain"
	catalogout "gametrack/internal/modules/catalog/port/out"
)

type fileSignature struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Category    string   `yaml:"category"`
	Executables []string `yaml:"executable_names"`
}

type catalogFile struct {
	Signatures []fileSignature `yaml:"signatures"`
}

// FileSignatureSource reads the catalog from a local YAML file. Used as
// the offline source and for machines without a remote catalog endpoint.
type FileSignatureSource struct {
	path string
}

func NewFileSignatureSource(path string) catalogout.SignatureSource {
	return &FileSignatureSource{path: path}
}

func (s *FileSignatureSource) Fetch(_ context.Context) ([]domain.Signature, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	file := catalogFile{}
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode catalog file: %w", err)
	}
	signatures := make([]domain.Signature, 0, len(file.Signatures))
	for _, item := range file.Signatures {
		signatures = append(signatures, domain.Signature{
			ID:          item.ID,
			Name:        item.Name,
			Category:    item.Category,
			Executables: item.Executables,
		})
	}
	return signatures, nil
}
