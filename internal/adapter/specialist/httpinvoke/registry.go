package httpinvoke

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fairyhunter13/ai-career-assist/internal/domain"
)

// registryFile is the on-disk shape of the specialist endpoint map.
//
//	specialists:
//	  extractor: http://extractor:8080
//	  analyzer: http://analyzer:8080
//	  interviewer: http://interviewer:8080
//	  charter: http://charter:8080
type registryFile struct {
	Specialists map[string]string `yaml:"specialists"`
}

// LoadSet reads a YAML endpoint map and returns a SpecialistSet of HTTP
// clients. All four specialists must be present.
func LoadSet(path string, timeout time.Duration) (domain.SpecialistSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.SpecialistSet{}, fmt.Errorf("read specialists file: %w", err)
	}
	return ParseSet(raw, timeout)
}

// ParseSet builds a SpecialistSet from raw YAML.
func ParseSet(raw []byte, timeout time.Duration) (domain.SpecialistSet, error) {
	var file registryFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return domain.SpecialistSet{}, fmt.Errorf("parse specialists file: %w", err)
	}
	names := []domain.SpecialistName{
		domain.SpecialistExtractor,
		domain.SpecialistAnalyzer,
		domain.SpecialistInterviewer,
		domain.SpecialistCharter,
	}
	clients := make(map[domain.SpecialistName]*Client, len(names))
	for _, name := range names {
		url, ok := file.Specialists[string(name)]
		if !ok || url == "" {
			return domain.SpecialistSet{}, fmt.Errorf("missing endpoint for specialist %q", name)
		}
		clients[name] = NewClient(name, url, timeout)
	}
	return domain.SpecialistSet{
		Extractor:   clients[domain.SpecialistExtractor],
		Analyzer:    clients[domain.SpecialistAnalyzer],
		Interviewer: clients[domain.SpecialistInterviewer],
		Charter:     clients[domain.SpecialistCharter],
	}, nil
}
