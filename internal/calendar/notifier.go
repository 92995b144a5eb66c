package calendar

import (
	"github.com/Teamworks-Executive-Suites/plutus/internal/storage/models"
)

// Notifier receives engine lifecycle events, typically to push them to
// connected dashboards.
type Notifier interface {
	SyncCompleted(result models.CalendarSyncResult)
	SyncFailed(propertyID, propertyName string, err error)
	ChannelRenewed(ch models.Channel)
	BookingProjected(b models.Booking)
}

type nopNotifier struct{}

func (nopNotifier) SyncCompleted(models.CalendarSyncResult) {}
func (nopNotifier) SyncFailed(string, string, error)        {}
func (nopNotifier) ChannelRenewed(models.Channel)           {}
func (nopNotifier) BookingProjected(models.Booking)         {}

func notifierOrNop(n Notifier) Notifier {
	if n == nil {
		return nopNotifier{}
	}
	return n
}
