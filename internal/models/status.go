package models

// BookingStatus is the lifecycle state of a booking
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingCompeting BookingStatus = "competing"
	BookingConfirmed BookingStatus = "confirmed"
	BookingRejected  BookingStatus = "rejected"
	BookingCancelled BookingStatus = "cancelled"
	BookingCompleted BookingStatus = "completed"
)

// BookingStatuses lists every booking status in lifecycle order
var BookingStatuses = []BookingStatus{
	BookingPending, BookingCompeting, BookingConfirmed,
	BookingRejected, BookingCancelled, BookingCompleted,
}

// Valid reports whether s is a known booking status
func (s BookingStatus) Valid() bool {
	for _, known := range BookingStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// BookingAction is an event that may move a booking to another status
type BookingAction string

const (
	ActionFold     BookingAction = "fold"
	ActionApprove  BookingAction = "approve"
	ActionWin      BookingAction = "win"
	ActionLose     BookingAction = "lose"
	ActionReject   BookingAction = "reject"
	ActionCancel   BookingAction = "cancel"
	ActionComplete BookingAction = "complete"
)

// BookingActions lists every booking action
var BookingActions = []BookingAction{
	ActionFold, ActionApprove, ActionWin, ActionLose,
	ActionReject, ActionCancel, ActionComplete,
}

type bookingTransition struct {
	from   BookingStatus
	action BookingAction
}

// bookingTransitions is the full legality table; any pair missing here is rejected.
var bookingTransitions = map[bookingTransition]BookingStatus{
	{BookingPending, ActionFold}:       BookingCompeting,
	{BookingCompeting, ActionFold}:     BookingCompeting,
	{BookingPending, ActionApprove}:    BookingConfirmed,
	{BookingPending, ActionReject}:     BookingRejected,
	{BookingCompeting, ActionWin}:      BookingConfirmed,
	{BookingCompeting, ActionLose}:     BookingRejected,
	{BookingPending, ActionCancel}:     BookingCancelled,
	{BookingCompeting, ActionCancel}:   BookingCancelled,
	{BookingConfirmed, ActionCancel}:   BookingCancelled,
	{BookingConfirmed, ActionComplete}: BookingCompleted,
}

// NextBookingStatus returns the status reached by applying action to from.
// The boolean is false when the transition is not allowed.
func NextBookingStatus(from BookingStatus, action BookingAction) (BookingStatus, bool) {
	to, ok := bookingTransitions[bookingTransition{from: from, action: action}]
	return to, ok
}

// AuctionStatus is the lifecycle state of an auction
type AuctionStatus string

const (
	AuctionActive AuctionStatus = "active"
	AuctionClosed AuctionStatus = "closed"
)

// Valid reports whether s is a known auction status
func (s AuctionStatus) Valid() bool {
	return s == AuctionActive || s == AuctionClosed
}
