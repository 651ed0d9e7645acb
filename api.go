package pstreams

// Putmsg builds a control/data message pair from ctl and data and
// submits it to the top of the stream. Unless flags carries HiPri, a
// full app-wr queue fails the call with Busy rather than buffering
// further. A nil or zero-length ctl is permitted (data-only message);
// a nil or zero-length data is permitted (control-only message).
func (s *Stream) Putmsg(ctl, data []byte, flags int) error {
	if s.lastError != NoError {
		return s.lastError
	}
	if flags&HiPri == 0 && !Canput(s.appWr) {
		s.lastError = Busy
		return Busy
	}

	band := Band(0)
	if flags&HiPri != 0 {
		band = Band(1)
	}

	var head *MsgB
	if len(ctl) > 0 {
		cb, err := allocb(s, len(ctl), band)
		if err != nil {
			s.lastError = err.(Error)
			s.log(s.appWr, LTError, "putmsg: ctl allocb failed: %v", err)
			return err
		}
		cb.Type = MProto
		Msgwrite(cb, ctl)
		head = cb
	}
	if len(data) > 0 {
		db, err := allocb(s, len(data), band)
		if err != nil {
			if head != nil {
				Freemsg(s, head)
			}
			s.lastError = err.(Error)
			s.log(s.appWr, LTError, "putmsg: data allocb failed: %v", err)
			return err
		}
		db.Type = MData
		Msgwrite(db, data)
		head = Linkb(head, db)
	}
	if head == nil {
		cb, err := allocb(s, 0, band)
		if err != nil {
			s.lastError = err.(Error)
			s.log(s.appWr, LTError, "putmsg: zero-length allocb failed: %v", err)
			return err
		}
		cb.Type = MProto
		head = cb
	}

	if err := Putnext(s.appWr, head); err != nil {
		s.log(s.appWr, LTError, "putmsg: putnext failed: %v", err)
		return err
	}
	return nil
}

// EsMsgPut behaves like Putmsg, except the data payload adopts a
// caller-owned buffer via esballoc instead of being copied into a
// pool-backed block. rtn is mandatory and runs once the last reference
// to esData is released.
func (s *Stream) EsMsgPut(ctl []byte, esData []byte, rtn FreeRoutine, flags int) error {
	if s.lastError != NoError {
		return s.lastError
	}
	if rtn.Free == nil {
		return GeneralError
	}
	if flags&HiPri == 0 && !Canput(s.appWr) {
		s.lastError = Busy
		return Busy
	}

	band := Band(0)
	if flags&HiPri != 0 {
		band = Band(1)
	}

	var head *MsgB
	if len(ctl) > 0 {
		cb, err := allocb(s, len(ctl), band)
		if err != nil {
			s.lastError = err.(Error)
			return err
		}
		cb.Type = MProto
		Msgwrite(cb, ctl)
		head = cb
	}

	db, err := Esballoc(s, esData, rtn)
	if err != nil {
		if head != nil {
			Freemsg(s, head)
		}
		s.lastError = err.(Error)
		return err
	}
	db.Type = MData
	db.Band = band
	head = Linkb(head, db)

	return Putnext(s.appWr, head)
}

// Getmsg dequeues at most one message from app-rd, splitting it into
// its control and data halves and copying each into ctl/data. If
// either output buffer is too small to hold its half, the message is
// restored to the head of app-rd and ReadBufferTooSmall is returned
// (and recorded as the stream's last error). flagsOut is set to HiPri
// if either half carried band 1 — Putmsg only allocates a control block
// when ctl is non-empty, so a HiPri, data-only submission carries the
// band on the data block alone, and both halves must be checked.
func (s *Stream) Getmsg(ctl, data *Buf) (flagsOut int, ok bool, err error) {
	if s.lastError != NoError {
		return 0, false, s.lastError
	}
	msg := Getq(s.appRd)
	if msg == nil {
		return 0, false, nil
	}

	ctlChain, dataChain, _ := Sift(msg, func(m *MsgB) SiftKind {
		if m.Type == MData {
			return SiftB
		}
		return SiftA
	})

	needCtl := Msgsize(ctlChain)
	needData := Msgsize(dataChain)
	if (ctl == nil && needCtl > 0) || (ctl != nil && needCtl > ctl.MaxLen) ||
		(data == nil && needData > 0) || (data != nil && needData > data.MaxLen) {
		rebuilt := Linkb(ctlChain, dataChain)
		Putbq(s.appRd, rebuilt)
		s.lastError = ReadBufferTooSmall
		s.log(s.appRd, LTError, "getmsg: buffer too small (ctl need=%d, data need=%d)", needCtl, needData)
		return 0, false, ReadBufferTooSmall
	}

	flags := 0
	if (ctlChain != nil && ctlChain.Band == Band(1)) || (dataChain != nil && dataChain.Band == Band(1)) {
		flags = HiPri
	}
	if ctl != nil {
		ctl.Len = Msgread(ctl.Buf[:ctl.MaxLen], ctlChain)
	}
	if data != nil {
		data.Len = Msgread(data.Buf[:data.MaxLen], dataChain)
	}

	if ctlChain != nil {
		Freemsg(s, ctlChain)
	}
	if dataChain != nil {
		Freemsg(s, dataChain)
	}
	return flags, true, nil
}

// Msgcount returns the number of messages currently queued at app-rd.
func (s *Stream) Msgcount() int {
	return Qsize(s.appRd)
}

// SetLogFile redirects the stream's log/trace sink to a rotating file
// at path. On failure the sink falls back to os.Stderr and the error
// is returned (not recorded as the stream's last error,
// since logging failures must not block message traffic).
func (s *Stream) SetLogFile(path string) error {
	return s.logSink.setFile(path)
}

// LastError returns the stream's sticky last-error code.
func (s *Stream) LastError() Error { return s.lastError }

// ClearError resets the stream's sticky last-error code to NoError.
func (s *Stream) ClearError() { s.lastError = NoError }
