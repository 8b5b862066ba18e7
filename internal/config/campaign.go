package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/nbelayachi/land-acquisition-pipeline-sub002/internal/domain"
)

// Campaign is a YAML manifest naming a campaign's inputs and outputs.
// Relative paths are resolved against the manifest's directory.
type Campaign struct {
	Name        string   `yaml:"name"`
	Parcels     string   `yaml:"parcels"`
	Owners      string   `yaml:"owners"`
	Geocodes    string   `yaml:"geocodes"`
	OutputDir   string   `yaml:"output_dir"`
	PrivateTags []string `yaml:"private_tags"`
}

// LoadCampaign reads and validates a campaign manifest.
func LoadCampaign(path string) (*Campaign, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read campaign: %w", err)
	}

	var c Campaign
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse campaign %s: %w", path, err)
	}
	if c.Name == "" {
		return nil, errors.New("campaign name is required")
	}
	if c.Parcels == "" || c.Owners == "" {
		return nil, errors.New("campaign parcels and owners are required")
	}

	base := filepath.Dir(path)
	c.Parcels = resolve(base, c.Parcels)
	c.Owners = resolve(base, c.Owners)
	c.Geocodes = resolve(base, c.Geocodes)
	if c.OutputDir == "" {
		c.OutputDir = filepath.Join("out", c.Name)
	}
	c.OutputDir = resolve(base, c.OutputDir)

	return &c, nil
}

// Rules returns the qualification rules for this campaign, falling back to
// the default private tags when the manifest sets none.
func (c *Campaign) Rules() domain.QualificationRules {
	if len(c.PrivateTags) == 0 {
		return domain.DefaultQualificationRules()
	}
	return domain.QualificationRules{PrivateTags: c.PrivateTags}
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
