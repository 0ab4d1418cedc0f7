package persona

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/eburon/brokerdial/pkg/kv"
	"github.com/goccy/go-yaml"
)

// Store keeps the active persona in a kv.Store as JSON.
type Store struct {
	kv  kv.Store
	key kv.Key
}

// NewStore returns a Store that keeps the persona at key.
func NewStore(store kv.Store, key kv.Key) *Store {
	return &Store{kv: store, key: key}
}

// Get returns the stored persona, or Default when none was saved.
func (s *Store) Get(ctx context.Context) (Persona, error) {
	data, err := s.kv.Get(ctx, s.key)
	if errors.Is(err, kv.ErrNotFound) {
		return Default(), nil
	}
	if err != nil {
		return Persona{}, fmt.Errorf("persona: load: %w", err)
	}
	var p Persona
	if err := json.Unmarshal(data, &p); err != nil {
		return Persona{}, fmt.Errorf("persona: decode: %w", err)
	}
	return p, nil
}

// Set validates and saves p.
func (s *Store) Set(ctx context.Context, p Persona) error {
	if err := p.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, s.key, data); err != nil {
		return fmt.Errorf("persona: save: %w", err)
	}
	return nil
}

// Reset removes the saved persona so Get returns Default again.
func (s *Store) Reset(ctx context.Context) error {
	return s.kv.Delete(ctx, s.key)
}

// Parse decodes a persona from YAML. Fields left empty take their
// Default values.
func Parse(data []byte) (Persona, error) {
	var p Persona
	if err := yaml.UnmarshalWithOptions(data, &p, yaml.Strict()); err != nil {
		return Persona{}, fmt.Errorf("persona: parse: %w", err)
	}
	def := Default()
	for _, f := range []struct {
		dst *string
		src string
	}{
		{&p.Name, def.Name},
		{&p.Role, def.Role},
		{&p.Tone, def.Tone},
		{&p.LanguageStyle, def.LanguageStyle},
	} {
		if *f.dst == "" {
			*f.dst = f.src
		}
	}
	if p.Objectives == nil {
		p.Objectives = def.Objectives
	}
	if err := p.Validate(); err != nil {
		return Persona{}, err
	}
	return p, nil
}

// LoadFile reads a YAML persona file.
func LoadFile(path string) (Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Persona{}, fmt.Errorf("persona: read %s: %w", path, err)
	}
	return Parse(data)
}

// Marshal renders p as YAML, the format LoadFile reads.
func Marshal(p Persona) ([]byte, error) {
	return yaml.Marshal(p)
}
