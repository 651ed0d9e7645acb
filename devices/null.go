// Package devices supplies the bottom-of-stack and pushable modules
// that make a pstreams Stream exercisable end-to-end: Null (a silent
// sink), Loopback (an echo module), and real UDP/TCP transports.
package devices

import "github.com/thomag/pstreams"

// Null builds the module table for a device that accepts and silently
// discards everything written to it and never produces anything on
// its read side. It is the simplest legal device module: its write
// put procedure frees every message it receives rather than forwarding
// it anywhere, and its read side is never driven by anything external.
func Null() *pstreams.ModuleTab {
	wrInfo := &pstreams.ModuleInfo{IDNum: 1, IDName: "NULL_WR", MaxPSZ: 1792, HiWat: 4096, LoWat: 1024}
	rdInfo := &pstreams.ModuleInfo{IDNum: 1, IDName: "NULL_RD", MaxPSZ: 1792, HiWat: 4096, LoWat: 1024}

	return &pstreams.ModuleTab{
		WrInit: &pstreams.QueueInit{
			Info: wrInfo,
			Put: func(q *pstreams.Queue, msg *pstreams.MsgB) error {
				pstreams.Freemsg(q.Stream(), msg)
				return nil
			},
		},
		RdInit: &pstreams.QueueInit{
			Info: rdInfo,
			Put: func(q *pstreams.Queue, msg *pstreams.MsgB) error {
				pstreams.Freemsg(q.Stream(), msg)
				return nil
			},
		},
	}
}
