package models

import (
	"sort"
	"strings"
)

// PersonaRegistry holds the preset personas offered to transports that cannot
// send a full persona object (DNS, SSH)
type PersonaRegistry struct {
	personas map[string]Persona
}

// NewPersonaRegistry creates a registry with the given presets
func NewPersonaRegistry(presets ...Persona) *PersonaRegistry {
	r := &PersonaRegistry{
		personas: make(map[string]Persona),
	}
	for _, p := range presets {
		r.Register(p)
	}
	return r
}

// Register adds a persona, replacing any preset with the same slug
func (r *PersonaRegistry) Register(p Persona) {
	if p.Slug() == "" {
		return
	}
	r.personas[p.Slug()] = p
}

// Get retrieves a persona by name or slug, case-insensitively
func (r *PersonaRegistry) Get(name string) (Persona, bool) {
	p, exists := r.personas[Persona{Name: strings.TrimSpace(name)}.Slug()]
	return p, exists
}

// List returns all presets ordered by slug
func (r *PersonaRegistry) List() []Persona {
	personas := make([]Persona, 0, len(r.personas))
	for _, p := range r.personas {
		personas = append(personas, p)
	}
	sort.Slice(personas, func(i, j int) bool {
		return personas[i].Slug() < personas[j].Slug()
	})
	return personas
}

// GetByUniverse returns all presets living in a universe
func (r *PersonaRegistry) GetByUniverse(universe string) []Persona {
	var personas []Persona
	for _, p := range r.List() {
		if strings.EqualFold(p.Universe, universe) {
			personas = append(personas, p)
		}
	}
	return personas
}
