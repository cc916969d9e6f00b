package mailbox

import "sync/atomic"

var envelopeSeq atomic.Uint64

func nextEnvelopeID() uint64 { return envelopeSeq.Add(1) }

// Envelope is the routed unit of mailbox traffic: a Message plus the
// addressing and delivery metadata the mailbox itself needs. ID is
// monotonic and only used for deduplication and logging, never for
// addressing.
type Envelope struct {
	ID          uint64
	Source      uint32
	Destination uint32
	RequireAck  bool
	Message     Message
}

// NewEnvelope stamps a fresh monotonic ID and returns a ready-to-send
// Envelope.
func NewEnvelope(source, destination uint32, requireAck bool, msg Message) Envelope {
	return Envelope{
		ID:          nextEnvelopeID(),
		Source:      source,
		Destination: destination,
		RequireAck:  requireAck,
		Message:     msg,
	}
}

// CEnvelope is the C-ABI-compatible mirror of Envelope. cmd/lunarisffi's
// send_global_c does not take this struct: it receives the same fields as
// separate C arguments. PayloadKindObject cannot cross the boundary at
// all; PayloadKindBytes is copied out of DataPtr/DataLen;
// PayloadKindForeignPeek/ForeignOwned pass the pointer through directly,
// with DataFree carrying the release callback for the owned case - see
// cmd/lunarisffi for the conversion.
type CEnvelope struct {
	ID          uint64
	Source      uint32
	Destination uint32
	RequireAck  uint8
	Opcode      uint32
	DataKind    uint8
	DataCode    uint32
	DataPtr     uintptr
	DataLen     uintptr
	DataFree    uintptr
}
