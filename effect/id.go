package effect

import "github.com/google/uuid"

// ID identifies a running, debounced or throttled effect so it can be cancelled later.
// Two IDs are equal when their underlying UUIDs are equal.
type ID struct {
	uuid uuid.UUID
	name string
}

// NewID returns a fresh random ID.
func NewID() ID {
	return ID{uuid: uuid.New()}
}

// NamedID derives a stable ID from a name, so the same name always yields the same ID.
func NamedID(name string) ID {
	return ID{
		uuid: uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)),
		name: name,
	}
}

// IsZero reports whether the ID was never assigned.
func (id ID) IsZero() bool {
	return id.uuid == uuid.Nil
}

// UUID returns the underlying UUID.
func (id ID) UUID() uuid.UUID {
	return id.uuid
}

func (id ID) String() string {
	if id.name != "" {
		return id.name
	}
	return id.uuid.String()
}
