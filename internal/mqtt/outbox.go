package mqtt

// bufferedMsg is a serialized message waiting for the broker.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox holds messages published while the broker is unreachable. When full
// the oldest message is dropped. Callers synchronize.
type outbox struct {
	msgs    []bufferedMsg
	start   int // oldest message
	n       int
	dropped int // since the last take
}

func newOutbox(size int) *outbox {
	if size < 1 {
		size = 1
	}
	return &outbox{msgs: make([]bufferedMsg, size)}
}

// add queues msg. It reports true on the first drop since the last take.
func (o *outbox) add(msg bufferedMsg) bool {
	if o.n < len(o.msgs) {
		o.msgs[(o.start+o.n)%len(o.msgs)] = msg
		o.n++
		return false
	}
	o.msgs[o.start] = msg
	o.start = (o.start + 1) % len(o.msgs)
	o.dropped++
	return o.dropped == 1
}

// take empties the outbox and returns its messages oldest first, with the
// number dropped since the previous take.
func (o *outbox) take() ([]bufferedMsg, int) {
	dropped := o.dropped
	if o.n == 0 {
		o.dropped = 0
		return nil, dropped
	}
	out := make([]bufferedMsg, o.n)
	for i := range out {
		out[i] = o.msgs[(o.start+i)%len(o.msgs)]
		o.msgs[(o.start+i)%len(o.msgs)] = bufferedMsg{}
	}
	o.start, o.n, o.dropped = 0, 0, 0
	return out, dropped
}

func (o *outbox) len() int { return o.n }

func (o *outbox) capacity() int { return len(o.msgs) }
