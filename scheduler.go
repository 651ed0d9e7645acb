package pstreams

// CallSrvp runs one cooperative scheduler pass: first the downstream
// chain starting at app-wr, then the upstream chain starting at dev-rd,
// invoking each queue's service procedure (or defaultSrv if it has
// none). The host is responsible for invoking CallSrvp periodically;
// the framework itself never spawns a goroutine or blocks here.
func (s *Stream) CallSrvp() error {
	for q := s.appWr; q != nil; q = q.Next {
		if err := runSrvp(q); err != nil {
			return err
		}
	}
	for q := s.devRd; q != nil; q = q.Next {
		if err := runSrvp(q); err != nil {
			return err
		}
	}
	return nil
}

func runSrvp(q *Queue) error {
	if q.Init != nil && q.Init.Srv != nil {
		return q.Init.Srv(q)
	}
	return defaultSrv(q)
}
