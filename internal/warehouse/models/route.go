package models

import (
	"strings"
	"time"

	id "freightdesk/pkg/domain"
	dErrors "freightdesk/pkg/domain-errors"
)

// RouteAssignment is the current last-mile run of an invoice.
type RouteAssignment struct {
	RouteID        id.RouteID `json:"route_id"`
	AssignedAt     time.Time  `json:"assigned_at"`
	ReassignReason string     `json:"reassign_reason,omitempty"`
}

// RouteEventKind names a change recorded in the route log.
type RouteEventKind string

const (
	RouteAssigned   RouteEventKind = "assigned"
	RouteReassigned RouteEventKind = "reassigned"
	RouteUnassigned RouteEventKind = "unassigned"
)

// RouteEvent is one append-only entry of an invoice's routing history.
type RouteEvent struct {
	Kind            RouteEventKind `json:"kind"`
	RouteID         id.RouteID     `json:"route_id,omitempty"`
	PreviousRouteID id.RouteID     `json:"previous_route_id,omitempty"`
	Reason          string         `json:"reason,omitempty"`
	At              time.Time      `json:"at"`
}

// LastRemovalReason returns the reason of the most recent unassignment, if any.
func (inv *Invoice) LastRemovalReason() string {
	for i := len(inv.RouteLog) - 1; i >= 0; i-- {
		if inv.RouteLog[i].Kind == RouteUnassigned {
			return inv.RouteLog[i].Reason
		}
	}
	return ""
}

// CanAssignRoute enforces the structural routing invariant: the container has
// been received and every item has been scanned.
func (inv *Invoice) CanAssignRoute(state ContainerState) error {
	if state != StateReceived {
		return dErrors.New(dErrors.CodeRouteNotEligible, "invoice "+inv.ID.String()+" is in a container that is "+string(state)+", not received")
	}
	if !inv.IsComplete() {
		return dErrors.New(dErrors.CodeRouteNotEligible, "invoice "+inv.ID.String()+" is "+string(inv.Completeness())+", not complete")
	}
	return nil
}

// AssignRoute sets the first route of an invoice. Call CanAssignRoute first.
func (inv *Invoice) AssignRoute(route id.RouteID, now time.Time) error {
	if inv.Route != nil {
		if inv.Route.RouteID == route {
			return nil
		}
		return dErrors.New(dErrors.CodeRouteNotEligible, "invoice "+inv.ID.String()+" is already on route "+inv.Route.RouteID.String()+"; reassign it instead")
	}
	inv.Route = &RouteAssignment{RouteID: route, AssignedAt: now}
	inv.RouteLog = append(inv.RouteLog, RouteEvent{Kind: RouteAssigned, RouteID: route, At: now})
	inv.UpdatedAt = now
	return nil
}

// ReassignRoute moves a routed invoice to another run.
func (inv *Invoice) ReassignRoute(route id.RouteID, reason string, now time.Time) error {
	if inv.Route == nil {
		return dErrors.New(dErrors.CodeNoRouteAssigned, "invoice "+inv.ID.String()+" has no route to reassign")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return dErrors.New(dErrors.CodeValidation, "reassignment reason is required")
	}
	previous := inv.Route.RouteID
	inv.Route = &RouteAssignment{RouteID: route, AssignedAt: now, ReassignReason: reason}
	inv.RouteLog = append(inv.RouteLog, RouteEvent{
		Kind:            RouteReassigned,
		RouteID:         route,
		PreviousRouteID: previous,
		Reason:          reason,
		At:              now,
	})
	inv.UpdatedAt = now
	return nil
}

// UnassignRoute removes the route. Unassigning an unrouted invoice is a no-op.
func (inv *Invoice) UnassignRoute(reason string, now time.Time) (changed bool) {
	if inv.Route == nil {
		return false
	}
	inv.RouteLog = append(inv.RouteLog, RouteEvent{
		Kind:            RouteUnassigned,
		PreviousRouteID: inv.Route.RouteID,
		Reason:          strings.TrimSpace(reason),
		At:              now,
	})
	inv.Route = nil
	inv.UpdatedAt = now
	return true
}
