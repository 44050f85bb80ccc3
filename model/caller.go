package model

// AnonymousUserID is the identity used for requests that carry no
// verifiable token. Anonymous callers get stateless turns: no history
// is loaded and nothing is persisted on their behalf.
const AnonymousUserID = "anonymous"

// Caller identifies who is making a request.
type Caller struct {
	UserID string
}

// Anonymous returns the caller identity for unverified requests.
func Anonymous() Caller {
	return Caller{UserID: AnonymousUserID}
}

// IsAnonymous reports whether the caller has no verified identity.
func (c Caller) IsAnonymous() bool {
	return c.UserID == "" || c.UserID == AnonymousUserID
}
