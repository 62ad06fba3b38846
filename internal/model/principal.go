package model

import (
	"strings"
)

// Principal is the acting user as established by the upstream gateway.
type Principal struct {
	UserID        int64 `json:"user_id"`
	Authenticated bool  `json:"authenticated"`
	CanVote       bool  `json:"can_vote"`
	CanModerate   bool  `json:"can_moderate"`
}

// Anonymous is the principal used when no identity was supplied.
var Anonymous = Principal{}

// Capability names accepted in capability lists.
const (
	CapabilityVote     = "vote"
	CapabilityModerate = "moderate"
)

// WithCapabilities returns p with capabilities parsed from a comma-separated list.
// Unknown names are ignored.
func (p Principal) WithCapabilities(list string) Principal {
	for _, c := range strings.Split(list, ",") {
		switch strings.ToLower(strings.TrimSpace(c)) {
		case CapabilityVote:
			p.CanVote = true
		case CapabilityModerate:
			p.CanModerate = true
		}
	}
	return p
}

// Capabilities returns the comma-separated capability list of p.
func (p Principal) Capabilities() string {
	var caps []string
	if p.CanVote {
		caps = append(caps, CapabilityVote)
	}
	if p.CanModerate {
		caps = append(caps, CapabilityModerate)
	}
	return strings.Join(caps, ",")
}
