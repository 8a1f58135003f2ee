package types

// Identity is an authenticated caller identity supplied by the execution
// environment: a creator, a subscriber, or a billing account acting on its
// own behalf. subledger only ever compares identities.
type Identity string

// String implements fmt.Stringer.
func (i Identity) String() string { return string(i) }

// IsZero reports whether the identity is empty.
func (i Identity) IsZero() bool { return i == "" }
