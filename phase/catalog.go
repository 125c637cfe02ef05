package phase

import (
	"fmt"
	"strings"
)

// Store is the read contract the coordinator, transition engine and renderers
// use to look phases up.
type Store interface {
	Phase(entityID, phaseID string) (*Phase, bool)
	DefaultPhase(entityID string) (*Phase, bool)
}

type entityCatalog struct {
	kind      Kind
	phases    []*Phase
	byID      map[string]int
	defaultID string
}

// Catalog is the per-entity ordered set of phases. Catalog order matters:
// compatibility ties resolve to the phase defined first.
type Catalog struct {
	entities map[string]*entityCatalog
	order    []string
}

func NewCatalog() *Catalog {
	return &Catalog{entities: make(map[string]*entityCatalog)}
}

// AddEntity registers an entity that phases can be inserted for.
func (c *Catalog) AddEntity(entityID string, kind Kind) error {
	entityID = strings.TrimSpace(entityID)
	if entityID == "" {
		return fmt.Errorf("%w: empty entity id", ErrInvalidPhase)
	}
	if kind != KindCharacter && kind != KindBackground {
		return fmt.Errorf("%w: entity %s: unknown kind %q", ErrInvalidPhase, entityID, kind)
	}
	if _, ok := c.entities[entityID]; ok {
		return fmt.Errorf("%w: entity %s", ErrDuplicate, entityID)
	}
	c.entities[entityID] = &entityCatalog{kind: kind, byID: make(map[string]int)}
	c.order = append(c.order, entityID)
	return nil
}

// Insert validates and adds a new phase. The first phase inserted for an
// entity becomes its default unless SetDefault says otherwise.
func (c *Catalog) Insert(p Phase) error {
	if err := p.Validate(); err != nil {
		return err
	}
	ec, ok := c.entities[p.EntityID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrEntityNotFound, p.EntityID)
	}
	if _, dup := ec.byID[p.ID]; dup {
		return fmt.Errorf("%w: phase %s/%s", ErrDuplicate, p.EntityID, p.ID)
	}
	ec.byID[p.ID] = len(ec.phases)
	ec.phases = append(ec.phases, p.normalized())
	if ec.defaultID == "" {
		ec.defaultID = p.ID
	}
	return nil
}

// Supersede replaces an existing phase record with a new one of the same id.
// The old record is left untouched for anyone still holding it.
func (c *Catalog) Supersede(p Phase) error {
	if err := p.Validate(); err != nil {
		return err
	}
	ec, ok := c.entities[p.EntityID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrEntityNotFound, p.EntityID)
	}
	idx, ok := ec.byID[p.ID]
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrPhaseNotFound, p.EntityID, p.ID)
	}
	ec.phases[idx] = p.normalized()
	return nil
}

// SetDefault picks the phase an entity starts in and falls back to.
func (c *Catalog) SetDefault(entityID, phaseID string) error {
	ec, ok := c.entities[entityID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrEntityNotFound, entityID)
	}
	if _, ok := ec.byID[phaseID]; !ok {
		return fmt.Errorf("%w: %s/%s", ErrPhaseNotFound, entityID, phaseID)
	}
	ec.defaultID = phaseID
	return nil
}

func (c *Catalog) Phase(entityID, phaseID string) (*Phase, bool) {
	if c == nil {
		return nil, false
	}
	ec, ok := c.entities[entityID]
	if !ok {
		return nil, false
	}
	idx, ok := ec.byID[phaseID]
	if !ok {
		return nil, false
	}
	return ec.phases[idx], true
}

func (c *Catalog) DefaultPhase(entityID string) (*Phase, bool) {
	if c == nil {
		return nil, false
	}
	ec, ok := c.entities[entityID]
	if !ok || ec.defaultID == "" {
		return nil, false
	}
	return c.Phase(entityID, ec.defaultID)
}

// Phases returns an entity's phases in catalog order.
func (c *Catalog) Phases(entityID string) []*Phase {
	if c == nil {
		return nil
	}
	ec, ok := c.entities[entityID]
	if !ok {
		return nil
	}
	return append([]*Phase(nil), ec.phases...)
}

// Entities returns entity ids in registration order.
func (c *Catalog) Entities() []string {
	if c == nil {
		return nil
	}
	return append([]string(nil), c.order...)
}

func (c *Catalog) Kind(entityID string) (Kind, bool) {
	if c == nil {
		return "", false
	}
	ec, ok := c.entities[entityID]
	if !ok {
		return "", false
	}
	return ec.kind, true
}

func (c *Catalog) HasEntity(entityID string) bool {
	_, ok := c.Kind(entityID)
	return ok
}
