package realtime

// Observer receives realtime counters. metrics.Registry implements it.
type Observer interface {
	ConnOpened()
	ConnClosed()
	ConnRejected(reason string)
	RoomJoin(result string)
	Submit(result string)
	Dropped()
}

type nopObserver struct{}

func (nopObserver) ConnOpened()         {}
func (nopObserver) ConnClosed()         {}
func (nopObserver) ConnRejected(string) {}
func (nopObserver) RoomJoin(string)     {}
func (nopObserver) Submit(string)       {}
func (nopObserver) Dropped()            {}
