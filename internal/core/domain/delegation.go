package domain

// DelegationType selects how an endpoint accepts keys from other resellers.
type DelegationType string

const (
	// DelegationAuto accepts keys whose owner was created directly by the endpoint.
	DelegationAuto DelegationType = "auto"
	// DelegationManual accepts keys owned by an explicit list of resellers.
	DelegationManual DelegationType = "manual"
)

// DelegationRule is the per-endpoint delegation configuration. At most one per username.
type DelegationRule struct {
	Username     string         `json:"username"`
	Type         DelegationType `json:"type"`
	AllowedUsers []string       `json:"allowed_users,omitempty"`
}

// Allows reports whether the rule accepts a key owned by owner, whose parent is ownerParent.
// Auto delegation is one hop only: the owner's direct creator must be the endpoint.
func (r *DelegationRule) Allows(owner, ownerParent string) bool {
	switch r.Type {
	case DelegationAuto:
		return ownerParent != "" && ownerParent == r.Username
	case DelegationManual:
		for _, u := range r.AllowedUsers {
			if u == owner {
				return true
			}
		}
	}
	return false
}
