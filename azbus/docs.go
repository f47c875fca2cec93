// Package azbus is a thin connector over the Azure Service Bus SDK.
//
// It exposes synchronous receive and settlement operations addressed by lock
// token, a sender, an administrative client for queue/topic/subscription/rule
// management, and an optional handler-driven subscribe mode. Retry, connection
// pooling, AMQP framing and wire compliance all live in the wrapped SDK; this
// package only translates between flat Message records and the vendor types.
//
// Pull-mode usage:
//
//	r := azbus.NewReceiver(log, azbus.ReceiverConfig{
//		ConnectionString: "blah-blah-blah...",
//		TopicOrQueueName: "orders",
//		Mode:             azbus.PeekLock,
//	})
//	if err := r.Open(); err != nil {
//		...
//	}
//	defer r.Close(context.Background())
//
//	msg, err := r.ReceiveMessage(ctx, azbus.WithWaitTime(5*time.Second))
//	if err != nil {
//		...
//	}
//	if msg == nil {
//		// nothing arrived before the wait expired
//		return
//	}
//	// process msg.Body ...
//	err = r.Complete(ctx, msg.LockToken)
//
// Subscribe-mode usage:
//
//	r := azbus.NewReceiver(log, cfg, azbus.WithHandlers(handler))
//	err := r.Listen()
//	if errors.Is(err, azbus.ErrUnauthorizedAccess) {
//		// connection string or entity name is wrong so die...
//	}
//
// Sending:
//
//	s := azbus.NewSender(log, azbus.SenderConfig{
//		ConnectionString: "blah-blah-blah...",
//		TopicOrQueueName: "orders",
//	})
//	defer s.Close(context.Background())
//	err := s.Send(ctx, azbus.NewOutMessage([]byte("Hello World")))
package azbus
