package identity

import "testing"

func TestStoreIdentify(t *testing.T) {
	store := NewStore([]Credential{
		{Token: "root-token", Identity: Identity{Name: "root", Role: RoleAdmin}},
		{Token: "ro-token", Identity: Identity{Name: "monitor", Role: RoleObserver}},
		{Token: "", Identity: Identity{Name: "broken", Role: RoleAdmin}},
	})

	tests := []struct {
		name  string
		token string
		want  Identity
	}{
		{"admin token", "root-token", Identity{Name: "root", Role: RoleAdmin}},
		{"observer token", "ro-token", Identity{Name: "monitor", Role: RoleObserver}},
		{"unknown token", "nope", Anonymous},
		{"empty token", "", Anonymous},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := store.Identify(tt.token); got != tt.want {
				t.Fatalf("Identify(%q) = %+v, want %+v", tt.token, got, tt.want)
			}
		})
	}
}

func TestEmptyTokenNeverAuthenticates(t *testing.T) {
	// A credential configured with an empty token must not grant the
	// anonymous caller its role.
	store := NewStore([]Credential{{Token: "", Identity: Identity{Name: "oops", Role: RoleAdmin}}})
	if got := store.Identify(""); got != Anonymous {
		t.Fatalf("empty token resolved to %+v, want Anonymous", got)
	}
}

func TestNilStoreIdentify(t *testing.T) {
	var store *Store
	if got := store.Identify("anything"); got != Anonymous {
		t.Fatalf("nil store resolved to %+v, want Anonymous", got)
	}
}

func TestGate(t *testing.T) {
	gate := Gate{}
	if !gate.IsAdministrator(Identity{Name: "root", Role: RoleAdmin}) {
		t.Fatal("admin identity rejected")
	}
	if gate.IsAdministrator(Identity{Name: "monitor", Role: RoleObserver}) {
		t.Fatal("observer identity accepted")
	}
	if gate.IsAdministrator(Anonymous) {
		t.Fatal("anonymous identity accepted")
	}
}
