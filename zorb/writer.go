package zorb

import (
	"fmt"
	"sync"

	"github.com/somatic-tech/zorbgo/logger"
	"github.com/somatic-tech/zorbgo/packet"
)

// chunkWriteFunc issues one chunk to the transport and reports the outcome
// through done exactly once.
type chunkWriteFunc func(chunk []byte, done func(error))

// chunkedWriter frames payloads, queues their chunks, and drains the queue
// through the transport one chunk at a time. One logical write ("set") is a
// whole payload; its completion fires only when the queue reaches empty, so
// sets submitted while an earlier set is still draining complete together,
// in submission order.
//
// The drain is a plain loop in its own goroutine that blocks on each
// chunk's completion event. At most one drain runs at a time, which is what
// keeps a single write in flight on the link.
type chunkedWriter struct {
	write  chunkWriteFunc
	prefix string

	mu       sync.Mutex
	queue    *packet.Queue
	pending  []func(error)
	draining bool
	gen      int // bumped by Fail so a superseded drain exits quietly
}

func newChunkedWriter(prefix string, write chunkWriteFunc) *chunkedWriter {
	return &chunkedWriter{
		write:  write,
		prefix: prefix,
		queue:  packet.NewQueue(),
	}
}

// Submit frames payload and queues it for transmission. done fires exactly
// once: with nil after every chunk of the payload was acknowledged, or with
// the first error that stopped the drain. Framing errors (payload too
// large) are delivered synchronously without touching the queue.
func (w *chunkedWriter) Submit(payload []byte, done func(error)) {
	chunks, err := packet.Frame(payload)
	if err != nil {
		done(err)
		return
	}

	w.mu.Lock()
	for _, chunk := range chunks {
		w.queue.Enqueue(chunk)
	}
	w.queue.IncrementPendingSets()
	w.pending = append(w.pending, done)
	start := !w.draining
	if start {
		w.draining = true
	}
	gen := w.gen
	pendingSets := w.queue.PendingSets()
	w.mu.Unlock()

	logger.Debug(w.prefix, "queued %d byte payload as %d chunk(s), %d set(s) pending",
		len(payload), len(chunks), pendingSets)

	if start {
		go w.drain(gen)
	}
}

// drain sends queued chunks one at a time until the queue is empty, then
// flushes one completion per pending set in submission order. Exactly one
// drain holds the draining token at any moment, and only a drain ever
// releases or hands it over: that is what keeps a single write in flight on
// the link even across Fail.
func (w *chunkedWriter) drain(gen int) {
	for {
		w.mu.Lock()
		if w.gen != gen {
			w.handoffLocked()
			return
		}
		chunk, ok := w.queue.Dequeue()
		if !ok {
			callbacks := w.takePendingLocked()
			w.draining = false
			w.mu.Unlock()

			if len(callbacks) > 0 {
				logger.Debug(w.prefix, "✅ queue drained, completing %d set(s)", len(callbacks))
			}
			for _, cb := range callbacks {
				cb(nil)
			}
			return
		}
		remaining := w.queue.Len()
		w.mu.Unlock()

		logger.Trace(w.prefix, "→ chunk %d bytes (%d queued behind)", len(chunk), remaining)
		result := make(chan error, 1)
		w.write(chunk, func(err error) {
			result <- err
		})
		err := <-result

		w.mu.Lock()
		if w.gen != gen {
			// Fail already resolved every pending set while this chunk
			// was in flight; the link is idle again only now.
			w.handoffLocked()
			return
		}
		w.mu.Unlock()
		if err != nil {
			w.Fail(fmt.Errorf("chunk write: %w", err))
			w.mu.Lock()
			w.handoffLocked()
			return
		}
	}
}

// handoffLocked is the superseded drain's exit path: if submissions queued
// up behind the aborted generation, a fresh drain takes the token over now;
// otherwise the token is released. Callers hold w.mu, which is released on
// return.
func (w *chunkedWriter) handoffLocked() {
	if w.queue.Len() > 0 {
		gen := w.gen
		w.mu.Unlock()
		go w.drain(gen)
		return
	}
	w.draining = false
	w.mu.Unlock()
}

// Fail aborts the drain: remaining chunks are dropped and every pending
// set's callback fires with err. Queued-behind sets fail too rather than
// hang; a dead link gives them no path to completion. The draining token is
// left with the superseded drain, which may still have a chunk in flight;
// it re-arms the writer once that chunk's completion arrives, so no new
// write can overlap it.
func (w *chunkedWriter) Fail(err error) {
	w.mu.Lock()
	w.gen++
	dropped := w.queue.Clear()
	callbacks := w.takePendingLocked()
	w.mu.Unlock()

	if len(callbacks) == 0 {
		return
	}
	logger.Warn(w.prefix, "drain halted (%d chunk(s) dropped, %d set(s) failed): %v",
		dropped, len(callbacks), err)
	for _, cb := range callbacks {
		cb(err)
	}
}

// takePendingLocked pops as many callbacks as there are pending sets, in
// submission order, decrementing the counter once per callback. Callers
// hold w.mu.
func (w *chunkedWriter) takePendingLocked() []func(error) {
	n := w.queue.PendingSets()
	if n > len(w.pending) {
		n = len(w.pending)
	}
	callbacks := w.pending[:n:n]
	w.pending = w.pending[n:]
	for i := 0; i < n; i++ {
		w.queue.DecrementPendingSets()
	}
	return callbacks
}
