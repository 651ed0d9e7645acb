package pstreams

// ModuleInfo carries the static, immutable-after-registration identity
// and flow-control defaults of one half (read or write) of a module.
type ModuleInfo struct {
	IDNum  uint16
	IDName string
	MinPSZ int16
	MaxPSZ int16
	HiWat  uint16
	LoWat  uint16
}

// QueueInit is the per-direction descriptor a module author supplies: a
// plain struct of function fields, per the spec's own note that this
// maps as cleanly as a capability trait. Put is required; the rest are
// optional.
type QueueInit struct {
	// Put is invoked synchronously from the upstream neighbor's
	// putnext. It must forward, buffer, or consume msg — never drop it
	// without accounting.
	Put func(q *Queue, msg *MsgB) error

	// Srv is invoked by the scheduler. If nil, the scheduler uses the
	// default service procedure (drain via putnext while canput).
	Srv func(q *Queue) error

	// Open runs at Push (or Stream Open for the anchor queues). It may
	// set q.Private to per-queue state; the stream's memory regions are
	// not reachable from a hook, so such state is an ordinary Go value.
	Open func(q *Queue) error

	// Close runs at Pop (or Stream Close). It must release per-queue
	// state and drain the queue's FIFO.
	Close func(q *Queue) error

	// Mchk is an optional debug hook reporting statistics.
	Mchk func(q *Queue, code GetValCode) (int, error)

	Info *ModuleInfo
}

// ModuleTab is the pair of QueueInits that makes up one module, plus the
// unread mux slots the spec reserves for a future multiplexing feature.
type ModuleTab struct {
	RdInit *QueueInit
	WrInit *QueueInit

	// MuxRInit and MuxWInit exist for future mux support and must never
	// be read; pstreams invents no semantics for them.
	MuxRInit *QueueInit
	MuxWInit *QueueInit
}
