/*
Package events provides an in-memory broker that fans daemon events out to
subscribers.

The orchestrator publishes an event when a configuration task is applied or
fails, when a manifest is applied, when the IKE daemon reports an error and
when the error-notify connection is lost or re-established.

	broker := events.NewBroker()
	_ = broker.Start()
	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	for ev := range sub {
		fmt.Println(ev.Type, ev.Message)
	}

Publish never blocks the caller. Events that do not fit in the broker buffer
are counted by Dropped, and a subscriber whose channel is full misses the
event. Subscribers that need every error should read the store instead.
*/
package events
