package collaborators

import (
	"context"
	"fmt"
	"sync"

	server "gamesession/server"
)

// ModEntry is the seed metadata for one featured mod.
type ModEntry struct {
	Mod       server.FeaturedMod
	Ladder1v1 bool
	Coop      bool
	Ranked    bool
}

// ModStore is an in-memory server.ModService seeded with known featured
// mods and their sim-mod version catalog.
type ModStore struct {
	mu       sync.RWMutex
	mods     map[string]ModEntry
	versions map[string]server.ModVersionRef // uid -> version ref
	latest   map[string]map[string]int       // technicalName -> file -> version
}

// NewModStore constructs a ModStore. seed maps technical name to its entry;
// versions maps sim-mod UID to its display metadata.
func NewModStore(seed map[string]ModEntry, versions map[string]server.ModVersionRef) *ModStore {
	mods := make(map[string]ModEntry, len(seed))
	for k, v := range seed {
		mods[k] = v
	}
	vers := make(map[string]server.ModVersionRef, len(versions))
	for k, v := range versions {
		vers[k] = v
	}
	return &ModStore{mods: mods, versions: vers, latest: make(map[string]map[string]int)}
}

// NewLadder1v1ModStore is a convenience constructor seeding a single
// rankable ladder mod, the common case in tests and in internal/app's
// default wiring.
func NewLadder1v1ModStore(technicalName string) *ModStore {
	return NewModStore(map[string]ModEntry{
		technicalName: {
			Mod:       server.FeaturedMod{TechnicalName: technicalName, Rankable: true, Version: 1},
			Ladder1v1: true,
			Ranked:    true,
		},
	}, nil)
}

func (m *ModStore) GetFeaturedMod(ctx context.Context, technicalName string) (server.FeaturedMod, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.mods[technicalName]
	return entry.Mod, ok, nil
}

func (m *ModStore) IsLadder1v1(ctx context.Context, technicalName string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mods[technicalName].Ladder1v1, nil
}

func (m *ModStore) IsCoop(ctx context.Context, technicalName string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mods[technicalName].Coop, nil
}

func (m *ModStore) IsModRanked(ctx context.Context, technicalName string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mods[technicalName].Ranked, nil
}

func (m *ModStore) FindModVersionsByUIDs(ctx context.Context, uids []string) ([]server.ModVersionRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]server.ModVersionRef, 0, len(uids))
	for _, uid := range uids {
		ref, ok := m.versions[uid]
		if !ok {
			return nil, fmt.Errorf("unknown sim mod uid %q", uid)
		}
		out = append(out, ref)
	}
	return out, nil
}

func (m *ModStore) GetLatestFileVersions(ctx context.Context, technicalName string) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]int, len(m.latest[technicalName]))
	for k, v := range m.latest[technicalName] {
		out[k] = v
	}
	return out, nil
}

var _ server.ModService = (*ModStore)(nil)
