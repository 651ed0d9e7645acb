package devices

import "github.com/thomag/pstreams"

// Loopback builds the module table for an echo module: every data
// message written to it is copied and handed back on its own read
// side; every control message is silently consumed. It is grounded on
// the classical STREAMS loopback driver — push it anywhere in a stack
// to turn writes into reads without touching a real transport.
func Loopback() *pstreams.ModuleTab {
	wrInfo := &pstreams.ModuleInfo{IDNum: 1, IDName: "LOOPBACK_WR", MaxPSZ: 128, HiWat: 1024, LoWat: 256}
	rdInfo := &pstreams.ModuleInfo{IDNum: 1, IDName: "LOOPBACK_RD", MaxPSZ: 128, HiWat: 1024, LoWat: 256}

	wput := func(q *pstreams.Queue, msg *pstreams.MsgB) error {
		data, ctl := pstreams.Ctlexpress(q, msg, alwaysMine)
		if ctl != nil {
			pstreams.Freemsg(q.Stream(), ctl)
		}
		if data == nil {
			return nil
		}
		cp, err := pstreams.Copymsg(q.Stream(), data)
		pstreams.Freemsg(q.Stream(), data)
		if err != nil {
			return err
		}
		pstreams.Putq(q, cp)
		return nil
	}

	wsrv := func(q *pstreams.Queue) error {
		for {
			msg := pstreams.Getq(q)
			if msg == nil {
				return nil
			}
			if !pstreams.Canput(q.Peer) {
				pstreams.Putbq(q, msg)
				return nil
			}
			pstreams.Putq(q.Peer, msg)
		}
	}

	rsrv := func(q *pstreams.Queue) error {
		for {
			msg := pstreams.Getq(q)
			if msg == nil {
				return nil
			}
			if !pstreams.Canput(q.Next) {
				pstreams.Putbq(q, msg)
				return nil
			}
			if err := pstreams.Putnext(q.Next, msg); err != nil {
				return err
			}
		}
	}

	// rput only runs when Loopback sits above another module
	// (its read queue receives real Putnext calls from below rather
	// than only the self-generated echo traffic wsrv queues directly
	// onto its peer); the classical echo driver never saw this case
	// since it was always the bottommost device.
	rput := func(q *pstreams.Queue, msg *pstreams.MsgB) error {
		pstreams.Putq(q, msg)
		return nil
	}

	return &pstreams.ModuleTab{
		WrInit: &pstreams.QueueInit{Info: wrInfo, Put: wput, Srv: wsrv},
		RdInit: &pstreams.QueueInit{Info: rdInfo, Put: rput, Srv: rsrv},
	}
}

// alwaysMine is Loopback's control-message discriminator: it claims
// and consumes every control message it sees, matching the echo
// module's "all control messages are dropped" behavior.
func alwaysMine(*pstreams.MsgB) bool { return true }
