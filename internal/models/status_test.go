package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Every (status, action) pair is checked against the expected outcome; anything not listed is illegal.
func TestNextBookingStatus_Exhaustive(t *testing.T) {
	legal := map[BookingStatus]map[BookingAction]BookingStatus{
		BookingPending: {
			ActionFold:    BookingCompeting,
			ActionApprove: BookingConfirmed,
			ActionReject:  BookingRejected,
			ActionCancel:  BookingCancelled,
		},
		BookingCompeting: {
			ActionFold:   BookingCompeting,
			ActionWin:    BookingConfirmed,
			ActionLose:   BookingRejected,
			ActionCancel: BookingCancelled,
		},
		BookingConfirmed: {
			ActionCancel:   BookingCancelled,
			ActionComplete: BookingCompleted,
		},
	}

	for _, from := range BookingStatuses {
		for _, action := range BookingActions {
			from, action := from, action
			t.Run(string(from)+"/"+string(action), func(t *testing.T) {
				t.Parallel()
				got, ok := NextBookingStatus(from, action)
				want, allowed := legal[from][action]
				require.Equal(t, allowed, ok)
				if allowed {
					require.Equal(t, want, got)
				}
			})
		}
	}
}

// Terminal statuses accept no action at all
func TestNextBookingStatus_TerminalStates(t *testing.T) {
	for _, terminal := range []BookingStatus{BookingRejected, BookingCancelled, BookingCompleted} {
		for _, action := range BookingActions {
			_, ok := NextBookingStatus(terminal, action)
			require.False(t, ok, "%s accepted %s", terminal, action)
		}
	}
}

func TestStatusValid(t *testing.T) {
	for _, s := range BookingStatuses {
		require.True(t, s.Valid())
	}
	require.False(t, BookingStatus("archived").Valid())
	require.False(t, BookingStatus("").Valid())

	require.True(t, AuctionActive.Valid())
	require.True(t, AuctionClosed.Valid())
	require.False(t, AuctionStatus("paused").Valid())
}

func TestInterval(t *testing.T) {
	tests := []struct {
		name        string
		a, b        Interval
		wantOverlap bool
	}{
		{name: "shared_hour", a: span(1, 3), b: span(2, 4), wantOverlap: true},
		{name: "adjacent", a: span(1, 2), b: span(2, 3), wantOverlap: false},
		{name: "nested", a: span(1, 10), b: span(4, 5), wantOverlap: true},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.wantOverlap, tc.a.Overlaps(tc.b))
			require.Equal(t, tc.wantOverlap, tc.b.Overlaps(tc.a))
		})
	}

	require.True(t, span(1, 2).Valid())
	require.False(t, span(2, 2).Valid())
	require.False(t, span(3, 2).Valid())
}

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func span(start, end int) Interval {
	return Interval{
		Start: epoch.Add(time.Duration(start) * time.Hour),
		End:   epoch.Add(time.Duration(end) * time.Hour),
	}
}
