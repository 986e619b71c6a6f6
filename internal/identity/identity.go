package identity

import "crypto/subtle"

// Role classifies the level of access granted to a caller of the control API.
type Role string

const (
	// RoleAdmin may invoke every control operation, including the
	// crash-injection and signal-delivery paths.
	RoleAdmin Role = "admin"
	// RoleObserver may read status, timelines and journal records.
	RoleObserver Role = "observer"
	// RoleNone is the role of unauthenticated callers.
	RoleNone Role = "none"
)

// Identity describes an authenticated caller of the control surface.
type Identity struct {
	Name string
	Role Role
}

// Anonymous is assigned to callers presenting no credentials.
var Anonymous = Identity{Name: "anonymous", Role: RoleNone}

// IsAdmin reports whether the identity carries administrator rights.
func (id Identity) IsAdmin() bool {
	return id.Role == RoleAdmin
}

// Credential pairs a bearer token with the identity it authenticates.
type Credential struct {
	Token    string
	Identity Identity
}

// Store resolves bearer tokens to identities. Lookup compares every stored
// token in constant time so the match position is not observable.
type Store struct {
	creds []Credential
}

// NewStore builds a Store from the provided credentials. Credentials with an
// empty token are ignored; an empty token must never authenticate.
func NewStore(creds []Credential) *Store {
	kept := make([]Credential, 0, len(creds))
	for _, c := range creds {
		if c.Token == "" {
			continue
		}
		kept = append(kept, c)
	}
	return &Store{creds: kept}
}

// Identify returns the identity matching the presented token, or Anonymous
// when the token is empty or unknown.
func (s *Store) Identify(token string) Identity {
	if s == nil || token == "" {
		return Anonymous
	}
	for _, c := range s.creds {
		if subtle.ConstantTimeCompare([]byte(c.Token), []byte(token)) == 1 {
			return c.Identity
		}
	}
	return Anonymous
}

// Gate is the production privilege check used by the admin core.
type Gate struct{}

// IsAdministrator reports whether the identity may invoke privileged
// control operations.
func (Gate) IsAdministrator(id Identity) bool {
	return id.IsAdmin()
}
