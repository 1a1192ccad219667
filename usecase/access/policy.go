// Package access decides who may read and change segments.
package access

import "github.com/fastygo/segments/domain"

// Policy answers read and write eligibility for a caller on a segment. The
// segment may be nil when it does not exist yet.
type Policy interface {
	CanRead(caller domain.Caller, segment *domain.Segment) bool
	CanWrite(caller domain.Caller, segment *domain.Segment) bool
}

// RolePolicy lets anyone read and only admins write.
type RolePolicy struct{}

func NewRolePolicy() RolePolicy {
	return RolePolicy{}
}

func (RolePolicy) CanRead(domain.Caller, *domain.Segment) bool {
	return true
}

func (RolePolicy) CanWrite(caller domain.Caller, _ *domain.Segment) bool {
	return caller.IsAdmin()
}

var _ Policy = RolePolicy{}
