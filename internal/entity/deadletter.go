package entity

// DeadLetter pairs an envelope drained from the dead-letter queue with the
// broker-supplied delivery metadata. The body is kept verbatim for replay.
type DeadLetter struct {
	Envelope   *Envelope
	Raw        []byte
	RoutingKey string
	DeathCount int64
}
