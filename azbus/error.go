package azbus

import (
	"errors"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
)

// Azure package expects the user to elucidate errors like so:
//
//	    var servicebusError *azservicebus.Error
//	    if errors.As(err, &servicebusError) && servicebusError.Code == azservicebus.CodeUnauthorizedAccess {
//		         ...
//
// which is rather clumsy.
//
// This code adds the matching sentinel to the chain so one can:
//
//	if errors.Is(err, azbus.ErrConnectionLost) {
//	    ...
//
// which is easier and more idiomatic. The vendor error stays in the message so
// its original type and text are not lost.
var (
	ErrConnectionLost     = errors.New("connection lost")
	ErrLockLost           = errors.New("lock lost")
	ErrUnauthorizedAccess = errors.New("unauthorized")
	ErrTimeout            = errors.New("timeout")

	// ErrLockTokenUnknown is returned when a settlement operation refers to a
	// lock token that was never issued by this receiver or whose message has
	// already been settled.
	ErrLockTokenUnknown = errors.New("unknown lock token")

	// ErrReceiverClosed is returned by any operation attempted on a receiver
	// that has been closed or never opened.
	ErrReceiverClosed = errors.New("receiver is closed")
)

func NewAzbusError(err error) error {
	var servicebusError *azservicebus.Error
	if errors.As(err, &servicebusError) {
		switch servicebusError.Code {
		case azservicebus.CodeUnauthorizedAccess:
			return fmt.Errorf("%w: %v", ErrUnauthorizedAccess, err)
		case azservicebus.CodeConnectionLost:
			return fmt.Errorf("%w: %v", ErrConnectionLost, err)
		case azservicebus.CodeLockLost:
			return fmt.Errorf("%w: %v", ErrLockLost, err)
		case azservicebus.CodeTimeout:
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
	}
	return err
}
