package castframework

// PendingResult completes with the outcome of a request. It yields exactly
// one value; reading again after that returns nil.
type PendingResult <-chan error

// Completed returns a PendingResult that is already resolved with err.
func Completed(err error) PendingResult {
	ch := make(chan error, 1)
	ch <- err
	close(ch)
	return ch
}

func newPending() (PendingResult, func(error)) {
	ch := make(chan error, 1)
	return ch, func(err error) {
		ch <- err
		close(ch)
	}
}
