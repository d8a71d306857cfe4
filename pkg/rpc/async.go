package rpc

// Result carries the outcome of an operation run by Async.
type Result[T any] struct {
	Value T
	Err   error
}

// Async runs fn on its own goroutine and delivers the outcome on a buffered
// channel, so an abandoned receiver does not leak the goroutine. It wraps the
// blocking operations as-is: both styles see the same results.
//
//	ch := rpc.Async(func() (*big.Int, error) { return client.GasPrice(ctx) })
//	res := <-ch
func Async[T any](fn func() (T, error)) <-chan Result[T] {
	ch := make(chan Result[T], 1)
	go func() {
		v, err := fn()
		ch <- Result[T]{Value: v, Err: err}
	}()
	return ch
}
