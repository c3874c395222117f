package asset

import (
	"testing"
)

func TestTypeRegistry_Defaults(t *testing.T) {
	tr := NewDefaultTypeRegistry()

	tests := []struct {
		name string
		want string
	}{
		{"rock.png", "texture"},
		{"rock.JPG", "texture"},
		{"textures/v1.2/rock.jpeg", "texture"},
		{"wood.mat", "material"},
		{"crate.mdl", "model"},
		{"level.bundle", "bundle"},
		{"boom.ogg", "sound"},
		{".png", "texture"},
		{"png", "texture"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			typ, ok := tr.ForExtension(tt.name)
			if !ok {
				t.Fatalf("ForExtension(%q) found nothing", tt.name)
			}
			if typ.ID != tt.want {
				t.Errorf("ForExtension(%q) = %s, want %s", tt.name, typ.ID, tt.want)
			}
		})
	}

	if _, ok := tr.ForExtension("notes.doc"); ok {
		t.Error("doc should not resolve to a type")
	}
}

func TestTypeRegistry_SealedRejectsRegistration(t *testing.T) {
	tr := NewDefaultTypeRegistry()

	if _, err := tr.Register(AssetType{ID: "late", Extension: "late"}); err == nil {
		t.Error("expected error registering into sealed registry")
	}
}

func TestTypeRegistry_DuplicateExtension(t *testing.T) {
	tr := NewTypeRegistry()

	if _, err := tr.Register(AssetType{ID: "a", Extension: "dat"}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if _, err := tr.Register(AssetType{ID: "b", Extension: ".DAT"}); err == nil {
		t.Error("expected duplicate extension error")
	}
	if _, err := tr.Register(AssetType{ID: "a", Extension: "other"}); err == nil {
		t.Error("expected duplicate id error")
	}
}

func TestTypeRegistry_FlagsAndHandles(t *testing.T) {
	tr := NewDefaultTypeRegistry()

	model, ok := tr.ByID("model")
	if !ok {
		t.Fatal("model type missing")
	}
	if !model.Has(TypeHasDependencies) {
		t.Error("model should have dependencies")
	}
	if model.Has(TypeIsSimple) {
		t.Error("model should not be simple")
	}

	byHandle, ok := tr.ByHandle(model.Handle)
	if !ok || byHandle.ID != "model" {
		t.Errorf("ByHandle() = %v, %v", byHandle.ID, ok)
	}

	all := tr.All()
	if len(all) != len(DefaultTypes()) {
		t.Errorf("All() = %d types, want %d", len(all), len(DefaultTypes()))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].ID > all[i].ID {
			t.Errorf("All() not sorted: %s before %s", all[i-1].ID, all[i].ID)
		}
	}
}
