package simcore

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func TestCategoryTableReusesLowestFreedBit(t *testing.T) {
	tbl := newCategoryTable()
	for i, name := range []string{"A", "B", "C"} {
		id, err := tbl.register(name)
		if err != nil {
			t.Fatal(err)
		}
		if id != 1<<i {
			t.Fatalf("%s: expected bit %d, got %d", name, 1<<i, id)
		}
	}

	tbl.free("C")
	tbl.free("B")
	id, err := tbl.register("D")
	if err != nil {
		t.Fatal(err)
	}
	if id != 2 {
		t.Errorf("expected D to take the lowest freed bit 2, got %d", id)
	}
	if tbl.id("B") != 0 {
		t.Errorf("B should have lost its bit")
	}
	if got := tbl.live(); got != 2 {
		t.Errorf("expected 2 live categories, got %d", got)
	}

	// Re-occupying a freed name keeps its bit.
	if id, _ := tbl.register("C"); id != 4 {
		t.Errorf("expected C to keep bit 4, got %d", id)
	}
}

func TestCategoryTableExhaustion(t *testing.T) {
	tbl := newCategoryTable()
	var all uint32
	for i := 0; i < maxCategories; i++ {
		id, err := tbl.register(fmt.Sprintf("cat%d", i))
		if err != nil {
			t.Fatalf("category %d: %v", i, err)
		}
		if id == AllCategoriesID || all&id != 0 {
			t.Fatalf("category %d got overlapping id %x", i, id)
		}
		all |= id
	}

	_, err := tbl.register("one-too-many")
	if !errors.Is(err, ErrCategoryExhausted) {
		t.Fatalf("expected ErrCategoryExhausted, got %v", err)
	}
	var e *Error
	if !errors.As(err, &e) || e.Metadata["category"] != "one-too-many" {
		t.Errorf("expected metadata naming the category, got %v", err)
	}
}

func TestCategoryExpression(t *testing.T) {
	tbl := newCategoryTable()
	tbl.register("A")
	tbl.register("B")
	tbl.register("C")

	tests := []struct {
		expr string
		want uint32
	}{
		{"A", 1},
		{"A+C", 5},
		{" A + B ", 3},
		{"All-A", AllCategoriesID &^ 1},
		{"None+B", 2},
		{"A-A", 0},
		{"All-A-B+A", AllCategoriesID &^ 2},
		{"", 0},
	}
	for _, tt := range tests {
		got, err := tbl.parse(tt.expr)
		if err != nil {
			t.Errorf("%q: %v", tt.expr, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%q: expected %x, got %x", tt.expr, tt.want, got)
		}
	}

	if _, err := tbl.parse("A+Missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown category, got %v", err)
	}
}

func TestCategoryStaysWhileShared(t *testing.T) {
	r, _ := newTestRegistry(t)
	var freed []CategoryFreed
	Subscribe(r.Events(), func(e CategoryFreed) { freed = append(freed, e) })

	a := mustRegister(t, r, NewGameObject("a", "Enemy"))
	b := mustRegister(t, r, NewGameObject("b", "Enemy"))
	enemy := r.CategoryID("Enemy")
	if enemy == 0 || a.CategoryID() != enemy || b.CategoryID() != enemy {
		t.Fatalf("expected both objects on the Enemy bit, got %d %d %d", enemy, a.CategoryID(), b.CategoryID())
	}

	if err := r.DeleteGameObjectImmediately(a.ID()); err != nil {
		t.Fatal(err)
	}
	if len(freed) != 0 || r.LiveCategoryCount() != 1 {
		t.Fatalf("Enemy must stay occupied while b uses it")
	}

	if err := r.DeleteGameObjectImmediately(b.ID()); err != nil {
		t.Fatal(err)
	}
	if len(freed) != 1 || freed[0].Name != "Enemy" || freed[0].ID != enemy {
		t.Fatalf("expected Enemy to be freed once, got %+v", freed)
	}

	p := mustRegister(t, r, NewGameObject("p", "Player"))
	if p.CategoryID() != enemy {
		t.Errorf("expected Player to reuse bit %d, got %d", enemy, p.CategoryID())
	}
}

func TestRegisterFailsWhenCategoriesExhausted(t *testing.T) {
	r, _ := newTestRegistry(t)
	for i := 0; i < maxCategories; i++ {
		mustRegister(t, r, NewGameObject(fmt.Sprintf("o%d", i), fmt.Sprintf("cat%d", i)))
	}
	err := r.Register(NewGameObject("late", "overflow"))
	if !errors.Is(err, ErrCategoryExhausted) {
		t.Fatalf("expected ErrCategoryExhausted, got %v", err)
	}
	if got := len(r.AllGameObjectIDs()); got != maxCategories {
		t.Errorf("the failed object must not be inserted, have %d objects", got)
	}
}

func TestChangeCategoryRewritesBodyFilter(t *testing.T) {
	r, _ := newTestRegistry(t)
	obj := mustRegister(t, r, dynamicBox("crate", "Loose", mgl64.Vec3{}, 1))

	if err := r.ChangeCategory(obj.ID(), "Cargo"); err != nil {
		t.Fatal(err)
	}
	cargo := r.CategoryID("Cargo")
	body := obj.Physics().Body()
	if body.Type() != cargo || obj.CategoryID() != cargo {
		t.Errorf("expected type bits %d, got body %d object %d", cargo, body.Type(), obj.CategoryID())
	}
	if body.MaterialGroup() != materialGroup(cargo) {
		t.Errorf("expected material group %d, got %d", materialGroup(cargo), body.MaterialGroup())
	}
	for _, name := range r.Categories() {
		if name == "Loose" {
			t.Errorf("Loose should have been freed")
		}
	}
	if err := r.ChangeCategory(999, "Cargo"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
