package channel

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// MemoryRepository is a Repository kept in process memory. It backs tests and
// the database-less development mode.
type MemoryRepository struct {
	mu       sync.RWMutex
	channels map[string]Channel
	updates  int
}

// NewMemoryRepository creates a repository holding the given channels.
func NewMemoryRepository(channels ...Channel) *MemoryRepository {
	repo := &MemoryRepository{channels: make(map[string]Channel, len(channels))}
	for _, c := range channels {
		repo.channels[c.ID] = c
	}
	return repo
}

type seedFile struct {
	Channels []Channel `yaml:"channels"`
}

// LoadSeed reads channels from a YAML file of the form
//
//	channels:
//	  - id: "1"
//	    name: Example
//	    channel_id: UC...
func LoadSeed(path string) ([]Channel, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var f seedFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	out := make([]Channel, 0, len(f.Channels))
	for _, c := range f.Channels {
		out = append(out, c.Normalize())
	}
	return out, nil
}

func (r *MemoryRepository) List(_ context.Context) ([]Channel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Channel, 0, len(r.channels))
	for _, c := range r.channels {
		out = append(out, c)
	}
	SortByPosition(out)
	return out, nil
}

func (r *MemoryRepository) Update(_ context.Context, id string, update Update) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.channels[id]
	if !ok {
		return ErrNotFound
	}
	r.channels[id] = update.Apply(c)
	r.updates++
	return nil
}

// Get returns a single channel.
func (r *MemoryRepository) Get(id string) (Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.channels[id]
	return c, ok
}

// Delete removes a channel.
func (r *MemoryRepository) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.channels, id)
}

// UpdateCount returns how many updates were written.
func (r *MemoryRepository) UpdateCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.updates
}

// SortByPosition orders channels by display position, then by id.
func SortByPosition(channels []Channel) {
	sort.SliceStable(channels, func(i, j int) bool {
		if channels[i].Position != channels[j].Position {
			return channels[i].Position < channels[j].Position
		}
		return channels[i].ID < channels[j].ID
	})
}
