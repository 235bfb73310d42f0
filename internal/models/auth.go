package models

import "slices"

// AuthMethod is an unlock method the user enabled.
type AuthMethod string

const (
	// AuthMethodBiometric gates the secure-store copy of the vault key.
	AuthMethodBiometric AuthMethod = "faceid"
	AuthMethodPassword  AuthMethod = "password"
)

func AuthMethodsFromStrings(s []string) []AuthMethod {
	out := make([]AuthMethod, 0, len(s))
	for _, m := range s {
		out = append(out, AuthMethod(m))
	}
	return out
}

func AuthMethodsToStrings(m []AuthMethod) []string {
	out := make([]string, 0, len(m))
	for _, v := range m {
		out = append(out, string(v))
	}
	return out
}

func HasAuthMethod(methods []AuthMethod, m AuthMethod) bool {
	return slices.Contains(methods, m)
}
