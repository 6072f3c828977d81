package domain

// SubscriberState tracks a live event subscriber's lifecycle.
// Transitions: Connecting -> CatchingUp -> Live -> Closed. Closed is terminal;
// a reconnecting client gets a brand-new subscriber.
type SubscriberState int32

const (
	SubscriberConnecting SubscriberState = iota
	SubscriberCatchingUp
	SubscriberLive
	SubscriberClosed
)

func (s SubscriberState) String() string {
	switch s {
	case SubscriberConnecting:
		return "connecting"
	case SubscriberCatchingUp:
		return "catching_up"
	case SubscriberLive:
		return "live"
	case SubscriberClosed:
		return "closed"
	}
	return "unknown"
}
