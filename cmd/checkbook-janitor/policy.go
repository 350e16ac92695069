package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Policy is the janitor's retention configuration.
type Policy struct {
	Audit    AuditPolicy    `yaml:"audit"`
	Requests RequestsPolicy `yaml:"requests"`
}

// AuditPolicy controls audit log retention.
type AuditPolicy struct {
	RetentionDays int           `yaml:"retention_days"`
	Archive       ArchivePolicy `yaml:"archive"`
}

// ArchivePolicy controls S3 archiving of expiring audit entries.
type ArchivePolicy struct {
	Enabled      bool   `yaml:"enabled"`
	Bucket       string `yaml:"bucket"`
	Prefix       string `yaml:"prefix"`
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

// RequestsPolicy controls reviewed permission request retention.
type RequestsPolicy struct {
	RetentionDays int `yaml:"retention_days"`
}

// DefaultPolicy keeps 90 days of audit history and 30 days of reviewed
// requests, with archiving off.
func DefaultPolicy() Policy {
	return Policy{
		Audit:    AuditPolicy{RetentionDays: 90},
		Requests: RequestsPolicy{RetentionDays: 30},
	}
}

// LoadPolicy reads a policy file, filling unset fields from defaults.
func LoadPolicy(path string) (Policy, error) {
	policy := DefaultPolicy()
	if path == "" {
		return policy, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return policy, fmt.Errorf("failed to read policy file: %w", err)
	}
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return policy, fmt.Errorf("failed to parse policy file: %w", err)
	}

	if err := policy.Validate(); err != nil {
		return policy, err
	}
	return policy, nil
}

// Validate checks the policy for usable values.
func (p Policy) Validate() error {
	if p.Audit.RetentionDays <= 0 {
		return fmt.Errorf("audit retention_days must be positive, got %d", p.Audit.RetentionDays)
	}
	if p.Requests.RetentionDays <= 0 {
		return fmt.Errorf("requests retention_days must be positive, got %d", p.Requests.RetentionDays)
	}
	if p.Audit.Archive.Enabled && p.Audit.Archive.Bucket == "" {
		return fmt.Errorf("archive bucket is required when archiving is enabled")
	}
	return nil
}
