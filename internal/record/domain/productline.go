package domain

import (
	"fmt"
	"sort"
	"strings"

	"github.com/smallbiznis/facesaju/internal/config"
)

// ProductLine is the schema a RecordStore is parameterised by: the closed
// set of report slots and which of them the legacy top-level paid flag
// mirrors.
type ProductLine struct {
	Name    string
	Slots   []SlotKey
	Primary SlotKey
}

func NewProductLine(name string, primary SlotKey, slots ...SlotKey) (ProductLine, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return ProductLine{}, ErrUnknownProductLine
	}
	if len(slots) == 0 {
		return ProductLine{}, fmt.Errorf("%w: %s has no slots", ErrUnknownSlot, name)
	}
	seen := make(map[SlotKey]struct{}, len(slots))
	for _, s := range slots {
		if _, dup := seen[s]; dup {
			return ProductLine{}, fmt.Errorf("%w: %s declared twice", ErrUnknownSlot, s)
		}
		seen[s] = struct{}{}
	}
	if _, ok := seen[primary]; !ok {
		return ProductLine{}, fmt.Errorf("%w: primary %s", ErrUnknownSlot, primary)
	}
	out := make([]SlotKey, len(slots))
	copy(out, slots)
	return ProductLine{Name: name, Slots: out, Primary: primary}, nil
}

func (p ProductLine) HasSlot(key SlotKey) bool {
	for _, s := range p.Slots {
		if s == key {
			return true
		}
	}
	return false
}

type Registry struct {
	lines map[string]ProductLine
}

func NewRegistry(lines ...ProductLine) (*Registry, error) {
	r := &Registry{lines: make(map[string]ProductLine, len(lines))}
	for _, l := range lines {
		if _, dup := r.lines[l.Name]; dup {
			return nil, fmt.Errorf("product line %q registered twice", l.Name)
		}
		r.lines[l.Name] = l
	}
	return r, nil
}

// NewRegistryFromCatalog builds the slot schema of every configured line.
// Slot sets are fixed for the process lifetime even if the catalog is
// reloaded.
func NewRegistryFromCatalog(holder *config.CatalogHolder) (*Registry, error) {
	catalog := holder.Get()
	lines := make([]ProductLine, 0, len(catalog.ProductLines))
	for _, pl := range catalog.ProductLines {
		slots := make([]SlotKey, 0, len(pl.Slots))
		for _, s := range pl.Slots {
			slots = append(slots, SlotKey(s))
		}
		line, err := NewProductLine(pl.Name, SlotKey(pl.PrimarySlot), slots...)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return NewRegistry(lines...)
}

func (r *Registry) Line(name string) (ProductLine, error) {
	line, ok := r.lines[strings.TrimSpace(name)]
	if !ok {
		return ProductLine{}, ErrUnknownProductLine
	}
	return line, nil
}

func (r *Registry) Lines() []ProductLine {
	out := make([]ProductLine, 0, len(r.lines))
	for _, l := range r.lines {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
