package models

import (
	"strings"
	"time"
	"unicode/utf8"

	id "freightdesk/pkg/domain"
	dErrors "freightdesk/pkg/domain-errors"
)

// ContainerState is the lifecycle position of a container.
type ContainerState string

const (
	StateOpen      ContainerState = "open"
	StateClosed    ContainerState = "closed"
	StateInTransit ContainerState = "in_transit"
	StateReceived  ContainerState = "received"
	StateWorked    ContainerState = "worked"
)

const maxContainerCodeLength = 64

// ActiveStates are the states listed on the warehouse floor; worked
// containers are history.
var ActiveStates = []ContainerState{StateOpen, StateClosed, StateInTransit, StateReceived}

// HistoryStates holds the states shown in the history view.
var HistoryStates = []ContainerState{StateWorked}

// IsValid checks if the state is one of the supported values.
func (s ContainerState) IsValid() bool {
	switch s {
	case StateOpen, StateClosed, StateInTransit, StateReceived, StateWorked:
		return true
	}
	return false
}

// CanTransitionTo reports whether target directly follows s. Deletion is not a
// state; it is only allowed from open and removes the container.
func (s ContainerState) CanTransitionTo(target ContainerState) bool {
	switch s {
	case StateOpen:
		return target == StateClosed
	case StateClosed:
		return target == StateInTransit
	case StateInTransit:
		return target == StateReceived
	case StateReceived:
		return target == StateWorked
	}
	return false
}

// HasArrived reports whether the container reached the destination warehouse.
func (s ContainerState) HasArrived() bool {
	return s == StateReceived || s == StateWorked
}

// Container is the aggregate root for a consolidation unit.
//
// Invariants:
//   - Code is trimmed, non-empty and at most 64 characters
//   - State only moves forward: open → closed → in_transit → received → worked
//   - Timestamps for a state are set once, when the state is entered
//   - Membership is not stored here; invoices point at their container and
//     carry a member sequence allocated from NextMemberSeq
type Container struct {
	ID                   id.ContainerID `json:"id"`
	Code                 string         `json:"code"`
	State                ContainerState `json:"state"`
	CreatedAt            time.Time      `json:"created_at"`
	ClosedAt             *time.Time     `json:"closed_at,omitempty"`
	DepartedAt           *time.Time     `json:"departed_at,omitempty"`
	ReceivedAt           *time.Time     `json:"received_at,omitempty"`
	WorkedAt             *time.Time     `json:"worked_at,omitempty"`
	ReceiptNotes         string         `json:"receipt_notes,omitempty"`
	ForceClosed          bool           `json:"force_closed"`
	UnroutedAcknowledged bool           `json:"unrouted_acknowledged"`
	MemberSeq            int64          `json:"-"`
}

// NormalizeContainerCode trims the code and validates its shape.
func NormalizeContainerCode(code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", dErrors.New(dErrors.CodeInvariantViolation, "container code cannot be empty")
	}
	if utf8.RuneCountInString(code) > maxContainerCodeLength {
		return "", dErrors.New(dErrors.CodeInvariantViolation, "container code must be 64 characters or less")
	}
	return code, nil
}

// CodeKey is the case-insensitive uniqueness key for a container code.
func CodeKey(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

func NewContainer(containerID id.ContainerID, code string, now time.Time) (*Container, error) {
	if containerID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "container id cannot be nil")
	}
	code, err := NormalizeContainerCode(code)
	if err != nil {
		return nil, err
	}
	return &Container{
		ID:        containerID,
		Code:      code,
		State:     StateOpen,
		CreatedAt: now,
	}, nil
}

// RequireOpen fails with NotOpen unless the container accepts membership changes.
func (c *Container) RequireOpen() error {
	if c.State != StateOpen {
		return dErrors.New(dErrors.CodeNotOpen, "container "+c.Code+" is "+string(c.State)+", not open")
	}
	return nil
}

// RequireArrived fails with NotReceived unless the container has been received.
func (c *Container) RequireArrived() error {
	if !c.State.HasArrived() {
		return dErrors.New(dErrors.CodeNotReceived, "container "+c.Code+" has not been received")
	}
	return nil
}

// NextMemberSeq allocates the display position of a newly added invoice.
func (c *Container) NextMemberSeq() int64 {
	c.MemberSeq++
	return c.MemberSeq
}

// CanClose checks the state precondition of close. Invoice completeness is
// checked by the state machine, which has access to the members.
func (c *Container) CanClose() error {
	return c.RequireOpen()
}

// ApplyClose moves the container to closed. Call CanClose first.
func (c *Container) ApplyClose(now time.Time, forced bool) {
	c.State = StateClosed
	c.ClosedAt = &now
	c.ForceClosed = forced
}

// CanDelete checks that the container may be hard-deleted.
func (c *Container) CanDelete() error {
	return c.RequireOpen()
}

// Depart moves a closed container in transit. Departing an in-transit
// container is a no-op and reports changed=false.
func (c *Container) Depart(now time.Time) (changed bool, err error) {
	switch c.State {
	case StateInTransit:
		return false, nil
	case StateClosed:
		c.State = StateInTransit
		c.DepartedAt = &now
		return true, nil
	}
	return false, dErrors.New(dErrors.CodeInvalidState, "only closed containers can depart; container is "+string(c.State))
}

// ConfirmReceipt records arrival at the destination warehouse. Confirming an
// already received container is a no-op and keeps the original notes.
func (c *Container) ConfirmReceipt(notes string, now time.Time) (changed bool, err error) {
	switch c.State {
	case StateReceived, StateWorked:
		return false, nil
	case StateInTransit:
		c.State = StateReceived
		c.ReceivedAt = &now
		c.ReceiptNotes = strings.TrimSpace(notes)
		return true, nil
	}
	return false, dErrors.New(dErrors.CodeInvalidState, "only in-transit containers can be received; container is "+string(c.State))
}

// CanMarkWorked checks the state precondition of markWorked. Route coverage is
// checked by the state machine.
func (c *Container) CanMarkWorked() error {
	if c.State != StateReceived {
		return dErrors.New(dErrors.CodeInvalidState, "only received containers can be marked worked; container is "+string(c.State))
	}
	return nil
}

// ApplyWorked moves the container to history.
func (c *Container) ApplyWorked(now time.Time, acknowledgedUnrouted bool) {
	c.State = StateWorked
	c.WorkedAt = &now
	c.UnroutedAcknowledged = acknowledgedUnrouted
}

// Clone returns a deep copy.
func (c *Container) Clone() *Container {
	if c == nil {
		return nil
	}
	cp := *c
	cp.ClosedAt = cloneTime(c.ClosedAt)
	cp.DepartedAt = cloneTime(c.DepartedAt)
	cp.ReceivedAt = cloneTime(c.ReceivedAt)
	cp.WorkedAt = cloneTime(c.WorkedAt)
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
