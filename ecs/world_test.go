package ecs

import (
	"errors"
	"testing"

	"github.com/milk9111/stagesync/ecs/component"
)

func TestEntityLifecycle(t *testing.T) {
	w := NewWorld()
	a := CreateEntity(w)
	b := CreateEntity(w)
	if !IsAlive(w, a) || !IsAlive(w, b) {
		t.Fatal("fresh entities should be alive")
	}
	if a == b {
		t.Fatalf("expected distinct handles, got %v twice", a)
	}

	if !DestroyEntity(w, a) {
		t.Fatal("destroying a live entity should report true")
	}
	if DestroyEntity(w, a) {
		t.Fatal("destroying twice should report false")
	}
	if IsAlive(w, a) {
		t.Fatal("destroyed entity still alive")
	}

	c := CreateEntity(w)
	if c.id() != a.id() {
		t.Fatalf("expected slot %d to be reused, got %d", a.id(), c.id())
	}
	if c.generation() != a.generation()+1 {
		t.Fatalf("expected generation %d, got %d", a.generation()+1, c.generation())
	}
	if IsAlive(w, a) {
		t.Fatal("stale handle must not alias the reused slot")
	}
	if got := c.String(); got != "1v1" {
		t.Fatalf("expected 1v1, got %q", got)
	}

	live := Entities(w)
	if len(live) != 2 || live[0] != c || live[1] != b {
		t.Fatalf("expected [%v %v], got %v", c, b, live)
	}

	if IsAlive(nil, b) || IsAlive(w, 0) || IsAlive(w, makeEntity(99, 0)) {
		t.Fatal("nil world, zero entity and unknown slot are never alive")
	}
}

func TestComponentAccess(t *testing.T) {
	placement := component.PlacementComponent.Kind()
	box := component.HitBoxComponent.Kind()

	cases := []struct {
		name string
		run  func(t *testing.T, w *World, e Entity)
	}{
		{
			name: "add_get_has",
			run: func(t *testing.T, w *World, e Entity) {
				if err := Add(w, e, placement, &component.Placement{X: 100, Y: 50, Scale: 1}); err != nil {
					t.Fatal(err)
				}
				p, ok := Get(w, e, placement)
				if !ok || p.X != 100 || p.Y != 50 {
					t.Fatalf("unexpected placement %+v ok=%v", p, ok)
				}
				if !Has(w, e, placement) || Has(w, e, box) {
					t.Fatal("Has should only see the added kind")
				}
			},
		},
		{
			name: "add_replaces",
			run: func(t *testing.T, w *World, e Entity) {
				_ = Add(w, e, box, &component.HitBox{Width: 10, Height: 10})
				_ = Add(w, e, box, &component.HitBox{Width: 80, Height: 120})
				b, _ := Get(w, e, box)
				if b.Width != 80 || b.Height != 120 {
					t.Fatalf("expected replaced hitbox, got %+v", b)
				}
			},
		},
		{
			name: "pointer_is_shared",
			run: func(t *testing.T, w *World, e Entity) {
				_ = Add(w, e, placement, &component.Placement{Scale: 1})
				p, _ := Get(w, e, placement)
				p.X = 42
				again, _ := Get(w, e, placement)
				if again.X != 42 {
					t.Fatalf("mutation through Get not visible, X=%v", again.X)
				}
			},
		},
		{
			name: "remove",
			run: func(t *testing.T, w *World, e Entity) {
				_ = Add(w, e, placement, &component.Placement{})
				if !Remove(w, e, placement) {
					t.Fatal("first remove should report true")
				}
				if Remove(w, e, placement) {
					t.Fatal("second remove should report false")
				}
				if _, ok := Get(w, e, placement); ok {
					t.Fatal("removed component still readable")
				}
			},
		},
		{
			name: "destroy_drops_components",
			run: func(t *testing.T, w *World, e Entity) {
				_ = Add(w, e, placement, &component.Placement{})
				DestroyEntity(w, e)
				reused := CreateEntity(w)
				if Has(w, reused, placement) {
					t.Fatal("reused slot inherited a component")
				}
			},
		},
		{
			name: "errors",
			run: func(t *testing.T, w *World, e Entity) {
				if err := Add(w, e, placement, nil); !errors.Is(err, component.ErrNilComponent) {
					t.Fatalf("expected ErrNilComponent, got %v", err)
				}
				var zero component.ComponentKind[component.Placement]
				if err := Add(w, e, zero, &component.Placement{}); !errors.Is(err, component.ErrInvalidComponentKind) {
					t.Fatalf("expected ErrInvalidComponentKind, got %v", err)
				}
				DestroyEntity(w, e)
				if err := Add(w, e, placement, &component.Placement{}); !errors.Is(err, component.ErrEntityNotAlive) {
					t.Fatalf("expected ErrEntityNotAlive, got %v", err)
				}
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := NewWorld()
			tc.run(t, w, CreateEntity(w))
		})
	}
}

func TestFirst(t *testing.T) {
	w := NewWorld()
	selected := component.SelectedTagComponent.Kind()
	if _, ok := First(w, selected); ok {
		t.Fatal("empty world has no selection")
	}
	_ = CreateEntity(w)
	e := CreateEntity(w)
	_ = Add(w, e, selected, &component.SelectedTag{})
	if got, ok := First(w, selected); !ok || got != e {
		t.Fatalf("expected %v, got %v ok=%v", e, got, ok)
	}
}

func TestForEach(t *testing.T) {
	placement := component.PlacementComponent.Kind()
	box := component.HitBoxComponent.Kind()
	stageEnt := component.StageEntityComponent.Kind()
	selected := component.SelectedTagComponent.Kind()

	// e1: stage entity + placement + hitbox + selected
	// e2: stage entity + placement + hitbox
	// e3: stage entity + placement
	// e4: placement only
	w := NewWorld()
	e1, e2, e3, e4 := CreateEntity(w), CreateEntity(w), CreateEntity(w), CreateEntity(w)
	for i, e := range []Entity{e1, e2, e3} {
		_ = Add(w, e, stageEnt, &component.StageEntity{ID: string(rune('a' + i))})
	}
	for _, e := range []Entity{e1, e2, e3, e4} {
		_ = Add(w, e, placement, &component.Placement{Scale: 1})
	}
	_ = Add(w, e1, box, &component.HitBox{Width: 1, Height: 1})
	_ = Add(w, e2, box, &component.HitBox{Width: 2, Height: 2})
	_ = Add(w, e1, selected, &component.SelectedTag{})

	collect := func(run func(add func(Entity))) map[Entity]bool {
		seen := map[Entity]bool{}
		run(func(e Entity) { seen[e] = true })
		return seen
	}

	cases := []struct {
		name string
		got  map[Entity]bool
		want []Entity
	}{
		{"one", collect(func(add func(Entity)) {
			ForEach(w, placement, func(e Entity, _ *component.Placement) { add(e) })
		}), []Entity{e1, e2, e3, e4}},
		{"two", collect(func(add func(Entity)) {
			ForEach2(w, stageEnt, placement, func(e Entity, _ *component.StageEntity, _ *component.Placement) { add(e) })
		}), []Entity{e1, e2, e3}},
		{"three", collect(func(add func(Entity)) {
			ForEach3(w, stageEnt, placement, box, func(e Entity, _ *component.StageEntity, _ *component.Placement, _ *component.HitBox) {
				add(e)
			})
		}), []Entity{e1, e2}},
		{"four", collect(func(add func(Entity)) {
			ForEach4(w, stageEnt, placement, box, selected, func(e Entity, _ *component.StageEntity, _ *component.Placement, _ *component.HitBox, _ *component.SelectedTag) {
				add(e)
			})
		}), []Entity{e1}},
		{"missing_kind", collect(func(add func(Entity)) {
			ForEach(w, component.HoveredTagComponent.Kind(), func(e Entity, _ *component.HoveredTag) { add(e) })
		}), nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if len(tc.got) != len(tc.want) {
				t.Fatalf("expected %d entities, got %d", len(tc.want), len(tc.got))
			}
			for _, e := range tc.want {
				if !tc.got[e] {
					t.Fatalf("entity %v missing", e)
				}
			}
		})
	}
}

func TestForEachAllowsMutation(t *testing.T) {
	w := NewWorld()
	selected := component.SelectedTagComponent.Kind()
	hovered := component.HoveredTagComponent.Kind()
	var ents []Entity
	for range 5 {
		e := CreateEntity(w)
		ents = append(ents, e)
		_ = Add(w, e, selected, &component.SelectedTag{})
	}

	visited := 0
	ForEach(w, selected, func(e Entity, _ *component.SelectedTag) {
		visited++
		Remove(w, e, selected)
		_ = Add(w, e, hovered, &component.HoveredTag{})
	})
	if visited != len(ents) {
		t.Fatalf("expected %d visits, got %d", len(ents), visited)
	}
	if _, ok := First(w, selected); ok {
		t.Fatal("every selection should have been cleared")
	}
	for _, e := range ents {
		if !Has(w, e, hovered) {
			t.Fatalf("entity %v missing hovered tag", e)
		}
	}
}
