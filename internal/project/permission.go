package project

import "strings"

// Permission is the capability set a user holds on a project. It replaces
// the stored "rwd" string with an explicit bitflag type; the string form is
// kept only at the persistence boundary.
type Permission uint8

const (
	PermRead Permission = 1 << iota
	PermWrite
	PermDelete
)

// ParsePermission converts the stored character-set form ("rwd") into a
// Permission. Unknown characters are ignored.
func ParsePermission(s string) Permission {
	var p Permission
	for _, c := range s {
		switch c {
		case 'r':
			p |= PermRead
		case 'w':
			p |= PermWrite
		case 'd':
			p |= PermDelete
		}
	}
	return p
}

// String renders the stored character-set form, always in "rwd" order.
func (p Permission) String() string {
	var b strings.Builder
	if p&PermRead != 0 {
		b.WriteByte('r')
	}
	if p&PermWrite != 0 {
		b.WriteByte('w')
	}
	if p&PermDelete != 0 {
		b.WriteByte('d')
	}
	return b.String()
}

func (p Permission) Has(cap Permission) bool {
	return p&cap == cap
}

// Access is the effective access of a (user, project) pair. The capability
// set and the creator flag gate different operations and are checked
// independently: rename needs PermDelete, project deletion and sharing need
// Creator.
type Access struct {
	Permission Permission
	Creator    bool
}

// NoAccess is what a user without a UserProject row gets.
var NoAccess = Access{}

func (a Access) CanRead() bool   { return a.Permission.Has(PermRead) }
func (a Access) CanWrite() bool  { return a.Permission.Has(PermWrite) }
func (a Access) CanDelete() bool { return a.Permission.Has(PermDelete) }

// AccessFromRow derives effective access from the unique UserProject row;
// a nil row means no access at all.
func AccessFromRow(row *UserProject) Access {
	if row == nil {
		return NoAccess
	}
	return Access{
		Permission: ParsePermission(row.Permission),
		Creator:    row.IsCreator,
	}
}
