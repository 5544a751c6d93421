package shared

import "strings"

// PrivilegeSet is a case-insensitive set of granted privileges.
type PrivilegeSet map[string]struct{}

// NewPrivilegeSet builds a set from privilege names.
func NewPrivilegeSet(privs ...string) PrivilegeSet {
	set := make(PrivilegeSet, len(privs))
	for _, p := range privs {
		p = strings.TrimSpace(strings.ToLower(p))
		if p == "" {
			continue
		}
		set[p] = struct{}{}
	}
	return set
}

// ParsePrivileges reads a comma separated privilege list.
func ParsePrivileges(raw string) PrivilegeSet {
	return NewPrivilegeSet(strings.Split(raw, ",")...)
}

// Has reports whether privilege is granted.
func (s PrivilegeSet) Has(privilege string) bool {
	_, ok := s[strings.ToLower(privilege)]
	return ok
}
