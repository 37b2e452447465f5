package events

// Bus carries change notifications. StatsChanged holds at most one pending
// signal, so bursts of queue and registry changes collapse into one refresh.
type Bus struct {
	StatsChanged chan struct{}
}

func NewBus() *Bus {
	return &Bus{
		StatsChanged: make(chan struct{}, 1),
	}
}

// NotifyStats signals a stats refresh without blocking.
func (b *Bus) NotifyStats() {
	select {
	case b.StatsChanged <- struct{}{}:
	default:
	}
}
