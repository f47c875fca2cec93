package azbus

import (
	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"

	"github.com/asbconnect/go-asbconnect/logger"
)

type Logger = logger.Logger

// so we dont have to import the azure repo everywhere
type (
	ReceivedMessage = azservicebus.ReceivedMessage
	OutMessage      = azservicebus.Message
	OutMessageBatch = azservicebus.MessageBatch
	RetryOptions    = azservicebus.RetryOptions
)
