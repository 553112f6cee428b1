package domain

// MessageBus decouples the transport from the dispatch pipeline. The
// transport publishes; the orchestrator and the status store consume.
type MessageBus interface {
	Publish(msg InboundMessage)
	PublishLifecycle(evt LifecycleEvent)
	Messages() <-chan InboundMessage
	Lifecycle() <-chan LifecycleEvent
	Close()
}
