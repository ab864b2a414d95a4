package session

import (
	"context"
	"time"
)

// Shutdown cancels the server's context, stopping new accepts immediately,
// then blocks until either every in-flight session has drained or
// GracePeriod elapses, whichever comes first. Callers typically run
// ListenAndServe(ctx) in a goroutine and call Shutdown(cancel, srv.Done())
// from a signal handler.
func Shutdown(cancel context.CancelFunc, done <-chan struct{}) {
	cancel()
	select {
	case <-done:
	case <-time.After(GracePeriod):
	}
}

// Done returns a channel that closes once every session started so far has
// finished, letting a caller pair it with Shutdown's bounded wait.
func (s *Server) Done() <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(ch)
	}()
	return ch
}
