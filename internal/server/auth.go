package server

import "crypto/subtle"

// credentialMatches compares the admin shared secret in constant
// time. An empty configured secret matches nothing.
func credentialMatches(expected, provided string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(provided)) == 1
}
