// Package channel holds the registry of external contact channels that can be
// attached to an assignment.
package channel

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/slotkeeper/server/internal/model"
)

// Registry is an immutable list of channels keyed by ID
type Registry struct {
	channels []model.Channel
	byID     map[string]model.Channel
}

type file struct {
	Channels []model.Channel `yaml:"channels"`
}

// Empty returns a registry with no channels
func Empty() *Registry {
	return &Registry{byID: map[string]model.Channel{}}
}

// Load reads a YAML file of the form
//
//	channels:
//	  - id: wa-main
//	    name: WhatsApp main
//	    number: "+62 812 0000 0000"
//
// An empty path yields an empty registry.
func Load(path string) (*Registry, error) {
	if path == "" {
		return Empty(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read channels file: %w", err)
	}
	return Parse(raw)
}

// Parse builds a registry from YAML bytes
func Parse(raw []byte) (*Registry, error) {
	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse channels file: %w", err)
	}
	return New(f.Channels)
}

// New validates the channels and builds a registry. IDs must be non-empty and unique.
func New(channels []model.Channel) (*Registry, error) {
	r := &Registry{
		channels: make([]model.Channel, 0, len(channels)),
		byID:     make(map[string]model.Channel, len(channels)),
	}
	for i, c := range channels {
		c.ID = strings.TrimSpace(c.ID)
		if c.ID == "" {
			return nil, fmt.Errorf("channel %d: id is required", i)
		}
		if _, dup := r.byID[c.ID]; dup {
			return nil, fmt.Errorf("channel %q: duplicate id", c.ID)
		}
		r.byID[c.ID] = c
		r.channels = append(r.channels, c)
	}
	return r, nil
}

// List returns the channels in file order
func (r *Registry) List() []model.Channel {
	out := make([]model.Channel, len(r.channels))
	copy(out, r.channels)
	return out
}

// Get looks a channel up by ID
func (r *Registry) Get(id string) (model.Channel, error) {
	c, ok := r.byID[strings.TrimSpace(id)]
	if !ok {
		return model.Channel{}, fmt.Errorf("channel %q: %w", id, model.ErrChannelNotFound)
	}
	return c, nil
}
