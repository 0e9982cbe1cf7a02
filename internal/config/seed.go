package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Seed is the YAML file of services created at startup:
//
//	services:
//	  - name: example
//	    uri: https://example.com
//	    monitor_interval_ms: 30000
//	    thresholds:
//	      - {lower: 0, upper: 500}
type Seed struct {
	Services []SeedService `yaml:"services"`
}

type SeedService struct {
	Name            string          `yaml:"name"`
	URI             string          `yaml:"uri"`
	MonitorInterval int64           `yaml:"monitor_interval_ms"`
	Thresholds      []SeedThreshold `yaml:"thresholds"`
}

type SeedThreshold struct {
	Lower int64 `yaml:"lower"`
	Upper int64 `yaml:"upper"`
}

// LoadSeed reads and parses the seed file.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read seed file: %w", err)
	}
	var s Seed
	if err := yaml.UnmarshalStrict(data, &s); err != nil {
		return nil, fmt.Errorf("could not parse seed YAML: %w", err)
	}
	for i, svc := range s.Services {
		if svc.URI == "" || svc.MonitorInterval <= 0 {
			return nil, fmt.Errorf("seed service %d: uri and a positive monitor_interval_ms are required", i)
		}
	}
	return &s, nil
}
