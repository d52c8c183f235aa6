// Package lifecycle holds the transition tables for every stateful entity.
// Callers never compare statuses ad hoc; they ask the owning Machine.
package lifecycle

import (
	"errors"
	"fmt"

	"github.com/kiwari-pos/fulfillment/internal/enum"
)

var (
	ErrInvalidTransition = errors.New("invalid transition")
	ErrUnknownState      = errors.New("unknown state")
)

// Machine is an adjacency map of allowed transitions for one entity type.
// States with no outgoing edges are terminal.
type Machine struct {
	name  string
	edges map[string][]string
}

func newMachine(name string, edges map[string][]string) *Machine {
	return &Machine{name: name, edges: edges}
}

// Name returns the entity type the machine governs.
func (m *Machine) Name() string { return m.name }

// Known reports whether s is a state of this machine.
func (m *Machine) Known(s string) bool {
	_, ok := m.edges[s]
	return ok
}

// Terminal reports whether s has no outgoing edges.
func (m *Machine) Terminal(s string) bool {
	return m.Known(s) && len(m.edges[s]) == 0
}

// Can reports whether from -> to is an edge of the table.
func (m *Machine) Can(from, to string) bool {
	for _, s := range m.edges[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Next returns the states reachable from s in one step.
func (m *Machine) Next(s string) []string {
	out := make([]string, len(m.edges[s]))
	copy(out, m.edges[s])
	return out
}

// Check validates from -> to. Unknown target states are reported as
// ErrUnknownState so callers can surface them as input errors.
func (m *Machine) Check(from, to string) error {
	if !m.Known(to) {
		return fmt.Errorf("%s: %w: %q", m.name, ErrUnknownState, to)
	}
	if !m.Can(from, to) {
		return fmt.Errorf("%s: %w: %s -> %s", m.name, ErrInvalidTransition, from, to)
	}
	return nil
}

// Order governs orders.status.
var Order = newMachine(enum.EntityOrder, map[string][]string{
	enum.OrderStatusPending:        {enum.OrderStatusConfirmed, enum.OrderStatusPreparing, enum.OrderStatusCancelled},
	enum.OrderStatusConfirmed:      {enum.OrderStatusPreparing, enum.OrderStatusCancelled},
	enum.OrderStatusPreparing:      {enum.OrderStatusReady, enum.OrderStatusCancelled},
	enum.OrderStatusReady:          {enum.OrderStatusServed, enum.OrderStatusOutForDelivery, enum.OrderStatusCompleted, enum.OrderStatusCancelled},
	enum.OrderStatusServed:         {enum.OrderStatusCompleted},
	enum.OrderStatusOutForDelivery: {enum.OrderStatusDelivered, enum.OrderStatusFailed},
	enum.OrderStatusDelivered:      {enum.OrderStatusCompleted},
	enum.OrderStatusCompleted:      {enum.OrderStatusRefunded},
	enum.OrderStatusFailed:         {enum.OrderStatusCancelled},
	enum.OrderStatusCancelled:      {},
	enum.OrderStatusRefunded:       {},
})

// OrderItem governs order_items.status. Items only move while their order is
// in one of OrderItemEditable.
var OrderItem = newMachine(enum.EntityOrderItem, map[string][]string{
	enum.OrderItemStatusPending:   {enum.OrderItemStatusPreparing, enum.OrderItemStatusCancelled},
	enum.OrderItemStatusPreparing: {enum.OrderItemStatusReady, enum.OrderItemStatusCancelled},
	enum.OrderItemStatusReady:     {enum.OrderItemStatusServed, enum.OrderItemStatusCancelled},
	enum.OrderItemStatusServed:    {},
	enum.OrderItemStatusCancelled: {},
})

// OrderItemEditable is the set of order states in which item statuses may change.
var OrderItemEditable = map[string]bool{
	enum.OrderStatusConfirmed: true,
	enum.OrderStatusPreparing: true,
	enum.OrderStatusReady:     true,
	enum.OrderStatusServed:    true,
}

// MealAssignment governs meal_assignments.status.
var MealAssignment = newMachine(enum.EntityMealAssignment, map[string][]string{
	enum.AssignmentStatusPending:    {enum.AssignmentStatusAccepted, enum.AssignmentStatusRejected},
	enum.AssignmentStatusAccepted:   {enum.AssignmentStatusInProgress},
	enum.AssignmentStatusInProgress: {enum.AssignmentStatusCompleted},
	enum.AssignmentStatusRejected:   {},
	enum.AssignmentStatusCompleted:  {},
})

// Delivery governs deliveries.status. Cancellation is reachable from every
// non-terminal state.
var Delivery = newMachine(enum.EntityDelivery, map[string][]string{
	enum.DeliveryStatusPendingAssignment: {enum.DeliveryStatusAssigned, enum.DeliveryStatusCancelled},
	enum.DeliveryStatusAssigned:          {enum.DeliveryStatusPickedUp, enum.DeliveryStatusPendingAssignment, enum.DeliveryStatusCancelled},
	enum.DeliveryStatusPickedUp:          {enum.DeliveryStatusInTransit, enum.DeliveryStatusCancelled},
	enum.DeliveryStatusInTransit:         {enum.DeliveryStatusDelivered, enum.DeliveryStatusFailed, enum.DeliveryStatusCancelled},
	enum.DeliveryStatusFailed:            {enum.DeliveryStatusReturned, enum.DeliveryStatusPendingAssignment, enum.DeliveryStatusCancelled},
	enum.DeliveryStatusDelivered:         {},
	enum.DeliveryStatusReturned:          {},
	enum.DeliveryStatusCancelled:         {},
})

// RiderHolds reports whether a delivery in status s counts against its
// rider's active_deliveries_count.
func RiderHolds(s string) bool {
	switch s {
	case enum.DeliveryStatusAssigned, enum.DeliveryStatusPickedUp, enum.DeliveryStatusInTransit:
		return true
	}
	return false
}
