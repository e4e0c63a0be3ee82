package auth

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Operation names a business operation guarded by the role gate.
type Operation string

// HTTP operations.
const (
	OpAuthMe            Operation = "auth.me"
	OpCourseCreate      Operation = "course.create"
	OpCourseUpdate      Operation = "course.update"
	OpCourseBrowse      Operation = "course.browse"
	OpCourseEnrolled    Operation = "course.enrolled"
	OpCourseEnroll      Operation = "course.enroll"
	OpCourseDrop        Operation = "course.drop"
	OpEnrollmentApprove Operation = "enrollment.approve"
	OpEnrollmentReject  Operation = "enrollment.reject"
	OpAuditList         Operation = "audit.list"
)

// WebSocket channel subscriptions.
const (
	OpSubscribeCourseEvents     Operation = "ws.subscribe.course.events"
	OpSubscribeEnrollmentEvents Operation = "ws.subscribe.enrollment.events"
)

// Internal RPC methods.
const (
	OpRPCUsersGet     Operation = "rpc.users.get"
	OpRPCCoursesStats Operation = "rpc.courses.stats"
)

// ForbiddenError is returned when an identity's role is not among the
// roles permitted for an operation. Its message is safe to show the caller.
type ForbiddenError struct {
	Operation Operation
	Permitted []Role
	Actual    Role
}

func (e *ForbiddenError) Error() string {
	names := make([]string, len(e.Permitted))
	for i, r := range e.Permitted {
		names[i] = string(r)
	}
	return fmt.Sprintf("Only users with the following roles can access this resource: %s. Your role: %s",
		strings.Join(names, ", "), e.Actual)
}

func (e *ForbiddenError) Unwrap() error { return ErrForbidden }

// Authorize checks id's role against permitted. An empty permitted set
// allows everyone, including a nil identity. A non-empty set with a nil
// identity fails closed with ErrNoIdentity.
func Authorize(permitted []Role, id *Identity) error {
	if len(permitted) == 0 {
		return nil
	}
	if id == nil {
		return ErrNoIdentity
	}
	if slices.Contains(permitted, id.Role) {
		return nil
	}
	return &ForbiddenError{Permitted: slices.Clone(permitted), Actual: id.Role}
}

// Policy maps operations to their permitted roles. It is built once at
// startup and read-only afterwards.
type Policy struct {
	rules map[Operation][]Role
}

// NewPolicy copies rules into a new Policy.
func NewPolicy(rules map[Operation][]Role) *Policy {
	p := &Policy{rules: make(map[Operation][]Role, len(rules))}
	for op, roles := range rules {
		p.rules[op] = slices.Clone(roles)
	}
	return p
}

// DefaultPolicy returns the role table for every academia-core operation.
func DefaultPolicy() *Policy {
	return NewPolicy(map[Operation][]Role{
		OpAuthMe:            nil,
		OpCourseCreate:      {RoleLecturer},
		OpCourseUpdate:      {RoleLecturer},
		OpCourseBrowse:      {RoleLecturer, RoleAdmin, RoleStudent},
		OpCourseEnrolled:    {RoleStudent},
		OpCourseEnroll:      {RoleStudent},
		OpCourseDrop:        {RoleStudent},
		OpEnrollmentApprove: {RoleAdmin},
		OpEnrollmentReject:  {RoleAdmin},
		OpAuditList:         {RoleAdmin},

		OpSubscribeCourseEvents:     nil,
		OpSubscribeEnrollmentEvents: {RoleStudent, RoleAdmin},

		OpRPCUsersGet:     nil,
		OpRPCCoursesStats: nil,
	})
}

// Permitted returns a copy of the roles declared for op. Nil means the
// operation is unrestricted.
func (p *Policy) Permitted(op Operation) []Role {
	return slices.Clone(p.rules[op])
}

// Operations lists the operations the policy declares, sorted.
func (p *Policy) Operations() []Operation {
	return slices.Sorted(maps.Keys(p.rules))
}

// Authorize checks id against the roles declared for op.
func (p *Policy) Authorize(op Operation, id *Identity) error {
	err := Authorize(p.rules[op], id)
	if fe, ok := err.(*ForbiddenError); ok { //nolint:errorlint // Authorize returns the concrete type unwrapped
		fe.Operation = op
	}
	return err
}

// AuthorizeContext authorizes the identity attached to ctx for op, recording
// the decision on a trace span.
func (p *Policy) AuthorizeContext(ctx context.Context, op Operation) error {
	_, span := otel.Tracer(tracerName).Start(ctx, "auth.Policy.Authorize")
	defer span.End()
	span.SetAttributes(attribute.String("auth.operation", string(op)))

	err := p.Authorize(op, ActiveUser(ctx))
	if err != nil {
		span.SetStatus(codes.Error, "forbidden")
	}
	return err
}
