package azbus

import (
	azlog "github.com/Azure/azure-sdk-for-go/sdk/azcore/log"
	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
)

// EnableAzureLogging redirects the azure SDK's own diagnostics to our logger
// at debug level.
func EnableAzureLogging(log Logger) {
	log.Debugf("Enabling Azure Logging")
	azlog.SetListener(func(event azlog.Event, s string) {
		log.Debugf("[%s] %s", event, s)
	})

	azlog.SetEvents(
		// EventReceiver represents operations that happen on Receivers.
		azservicebus.EventReceiver,
		// EventSender represents operations that happen on Senders.
		azservicebus.EventSender,
		// EventAdmin is used for operations in the azservicebus/admin.Client
		azservicebus.EventAdmin,
	)
}
