// Package core provides client identity derivation.
package core

import "strings"

// ClientIdentity keys per-client quota state.
type ClientIdentity string

// ResolveIdentity derives the tracking key for a request. Authenticated users
// take precedence over source IPs, which take precedence over session IDs.
func ResolveIdentity(req *Request) ClientIdentity {
	if req == nil {
		return ""
	}
	if req.UserID != "" {
		return ClientIdentity("user:" + req.UserID)
	}
	if req.ClientIP != "" {
		return ClientIdentity("ip:" + req.ClientIP)
	}
	if req.SessionID != "" {
		return ClientIdentity("session:" + req.SessionID)
	}
	return ""
}

// Kind returns the identity namespace: user, ip, or session.
func (id ClientIdentity) Kind() string {
	s := string(id)
	if i := strings.IndexByte(s, ':'); i > 0 {
		return s[:i]
	}
	return ""
}

// IsIP reports whether the identity is keyed by source IP.
func (id ClientIdentity) IsIP() bool {
	return id.Kind() == "ip"
}

// IP returns the address for an ip-keyed identity, or empty.
func (id ClientIdentity) IP() string {
	if !id.IsIP() {
		return ""
	}
	return strings.TrimPrefix(string(id), "ip:")
}
