package dyndb

import "time"

// SetBatchBackoff troca o backoff do BatchWrite durante o teste.
func SetBatchBackoff(f func(int) time.Duration) (restore func()) {
	prev := batchBackoff
	batchBackoff = f
	return func() { batchBackoff = prev }
}
