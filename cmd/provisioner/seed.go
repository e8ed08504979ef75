package main

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Seed file validation errors.
var (
	// ErrEmptySeed indicates the seed file lists no servers and no apps.
	ErrEmptySeed = errors.New("seed file lists no servers and no apps")

	// ErrServerMissingID indicates a server entry without an id.
	ErrServerMissingID = errors.New("server entry is missing an id")

	// ErrAppMissingName indicates an app entry without a name.
	ErrAppMissingName = errors.New("app entry is missing a name")

	// ErrAppMissingServer indicates an app entry without a server binding.
	ErrAppMissingServer = errors.New("app entry is missing a server_id")
)

type (
	// SeedFile is the YAML document the seed command consumes.
	//
	// Example:
	//
	//	servers:
	//	  - id: srv-alpha
	//	    name: Alpha
	//	    description: primary ingest host
	//	apps:
	//	  - name: checkout
	//	    description: checkout service
	//	    server_id: srv-alpha
	SeedFile struct {
		Servers []ServerSeed `yaml:"servers"`
		Apps    []AppSeed    `yaml:"apps"`
	}

	// ServerSeed registers one server.
	ServerSeed struct {
		ID          string `yaml:"id"`
		Name        string `yaml:"name"`
		Description string `yaml:"description"`
	}

	// AppSeed registers one application bound to a server.
	AppSeed struct {
		Name        string `yaml:"name"`
		Description string `yaml:"description"`
		ServerID    string `yaml:"server_id"`
	}
)

// LoadSeedFile reads and validates a tenant seed file.
func LoadSeedFile(path string) (*SeedFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}

	var seed SeedFile
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}

	if err := seed.Validate(); err != nil {
		return nil, err
	}

	return &seed, nil
}

// Validate checks the seed for entries the registry would reject.
func (s *SeedFile) Validate() error {
	if len(s.Servers) == 0 && len(s.Apps) == 0 {
		return ErrEmptySeed
	}

	for i, server := range s.Servers {
		if server.ID == "" {
			return fmt.Errorf("%w: servers[%d]", ErrServerMissingID, i)
		}
	}

	for i, app := range s.Apps {
		if app.Name == "" {
			return fmt.Errorf("%w: apps[%d]", ErrAppMissingName, i)
		}

		if app.ServerID == "" {
			return fmt.Errorf("%w: apps[%d] (%s)", ErrAppMissingServer, i, app.Name)
		}
	}

	return nil
}
