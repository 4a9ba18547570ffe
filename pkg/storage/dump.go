package storage

import (
	"sort"

	"github.com/goccy/go-json"
	"github.com/invopop/jsonschema"
	"github.com/rotisserie/eris"
)

// Dump is the JSON document produced by World.DebugDump.
type Dump struct {
	World      string          `json:"world"`
	Tag        uint8           `json:"tag"`
	Components []ComponentDump `json:"components"`
	Archetypes []ArchetypeDump `json:"archetypes"`
	Filters    []FilterDump    `json:"filters"`
	Metrics    Metrics         `json:"metrics"`
}

// ComponentDump describes a registered component type.
type ComponentDump struct {
	ID     TypeID         `json:"id"`
	Name   string         `json:"name"`
	Hash   string         `json:"hash"`
	Count  int            `json:"count"`
	Schema map[string]any `json:"schema,omitempty"`
}

// ArchetypeDump describes a live archetype.
type ArchetypeDump struct {
	ID         int      `json:"id"`
	Hash       string   `json:"hash"`
	Components []string `json:"components"`
	Entities   int      `json:"entities"`
	Filters    []uint32 `json:"filters"`
}

// FilterDump describes a filter and the archetypes it currently matches.
type FilterDump struct {
	ID         uint32   `json:"id"`
	Include    []string `json:"include"`
	Exclude    []string `json:"exclude"`
	Archetypes []int    `json:"archetypes"`
	Entities   int      `json:"entities"`
}

// DebugDump returns a JSON snapshot of the world's committed layout. It is meant for debugging
// tools and is not a persistence format.
func (w *World) DebugDump() ([]byte, error) {
	dump, err := w.snapshot()
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(dump)
	if err != nil {
		return nil, eris.Wrap(err, "failed to marshal world dump")
	}
	return data, nil
}

func (w *World) snapshot() (Dump, error) {
	dump := Dump{
		World:      w.id.String(),
		Tag:        w.entities.tag,
		Components: make([]ComponentDump, 0, w.types.len()),
		Archetypes: make([]ArchetypeDump, 0, len(w.archetypes)),
		Filters:    make([]FilterDump, 0, w.filters.len()),
		Metrics:    w.Metrics(),
	}

	reflector := &jsonschema.Reflector{
		ExpandedStruct: true, // Inline the struct fields directly
	}
	for _, info := range w.types.infos {
		schema, err := schemaToMap(reflector.ReflectFromType(info.goType))
		if err != nil {
			return Dump{}, eris.Wrapf(err, "component %s", info.name)
		}
		dump.Components = append(dump.Components, ComponentDump{
			ID:     info.id,
			Name:   info.name,
			Hash:   info.hash.String(),
			Count:  w.stashes[info.id].Len(),
			Schema: schema,
		})
	}

	for _, a := range w.archetypes {
		filters := make([]uint32, 0, a.filters.Count())
		a.filters.Range(func(fid uint32) {
			filters = append(filters, fid)
		})
		dump.Archetypes = append(dump.Archetypes, ArchetypeDump{
			ID:         a.id,
			Hash:       a.hash.String(),
			Components: w.types.names(a.typeIDs()),
			Entities:   len(a.entities),
			Filters:    filters,
		})
	}
	sort.Slice(dump.Archetypes, func(i, j int) bool {
		return dump.Archetypes[i].ID < dump.Archetypes[j].ID
	})

	for _, f := range w.filters.filters {
		archetypes := make([]int, 0, f.archetypes.len())
		for id := range f.archetypes.all() {
			archetypes = append(archetypes, id)
		}
		sort.Ints(archetypes)
		dump.Filters = append(dump.Filters, FilterDump{
			ID:         f.id,
			Include:    w.types.names(f.includeIDs),
			Exclude:    w.types.names(f.excludeIDs),
			Archetypes: archetypes,
			Entities:   f.Len(),
		})
	}

	return dump, nil
}

// schemaToMap converts a jsonschema.Schema to a map, dropping the fields that are the same for
// every struct component.
func schemaToMap(schema *jsonschema.Schema) (map[string]any, error) {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, eris.Wrap(err, "failed to marshal schema")
	}
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, eris.Wrap(err, "failed to unmarshal schema")
	}
	delete(result, "$schema")
	delete(result, "additionalProperties")
	return result, nil
}

