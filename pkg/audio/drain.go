package audio

// Drain reads from ch until the channel is closed, discarding all values.
// Workers use it after cancellation so a producer blocked on a send can
// finish and close its channel.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
