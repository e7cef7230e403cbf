package core

// Identity is a verified user as seen by the core layer.
type Identity struct {
	ID           string
	DisplayName  string
	IsPrivileged bool
}

// Name returns the display name, falling back to the id.
func (i Identity) Name() string {
	if i.DisplayName == "" {
		return i.ID
	}
	return i.DisplayName
}

// Directory resolves identity ids to identities.
// The hub only reads from it; implementations must be safe for concurrent use.
type Directory interface {
	Lookup(id string) (Identity, bool)
}
