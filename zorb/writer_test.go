package zorb

import (
	"bytes"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/somatic-tech/zorbgo/packet"
)

// chunkRecorder is a fake transport write function that acknowledges chunks
// asynchronously, like a real link does.
type chunkRecorder struct {
	mu     sync.Mutex
	chunks [][]byte
	failAt int // 1-based chunk index to fail at, 0 for never
	delay  time.Duration
}

func (r *chunkRecorder) write(chunk []byte, done func(error)) {
	go func() {
		if r.delay > 0 {
			time.Sleep(r.delay)
		}
		r.mu.Lock()
		r.chunks = append(r.chunks, append([]byte(nil), chunk...))
		n := len(r.chunks)
		failAt := r.failAt
		r.mu.Unlock()

		if failAt > 0 && n >= failAt {
			done(errors.New("link write rejected"))
			return
		}
		done(nil)
	}()
}

func (r *chunkRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.chunks)
}

func (r *chunkRecorder) recorded() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]byte, len(r.chunks))
	copy(out, r.chunks)
	return out
}

func waitErr(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for completion callback")
		return nil
	}
}

func TestWriterCompletesAfterAllChunks(t *testing.T) {
	rec := &chunkRecorder{}
	w := newChunkedWriter("test", rec.write)

	payload := make([]byte, 45)
	for i := range payload {
		payload[i] = byte(i)
	}

	result := make(chan error, 1)
	w.Submit(payload, func(err error) { result <- err })

	if err := waitErr(t, result); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	chunks := rec.recorded()
	if len(chunks) != 3 {
		t.Fatalf("Expected 3 chunks for 45 byte payload, got %d", len(chunks))
	}

	var framed []byte
	for _, chunk := range chunks {
		framed = append(framed, chunk...)
	}
	if framed[0] != 3 {
		t.Errorf("Count header is %d, expected 3", framed[0])
	}
	if !bytes.Equal(framed[1:], payload) {
		t.Error("Reassembled chunks do not match the payload")
	}
}

func TestWriterEmptyPayloadResetChunk(t *testing.T) {
	rec := &chunkRecorder{}
	w := newChunkedWriter("test", rec.write)

	result := make(chan error, 1)
	w.Submit(nil, func(err error) { result <- err })

	if err := waitErr(t, result); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	chunks := rec.recorded()
	if len(chunks) != 1 || !bytes.Equal(chunks[0], []byte{0x00}) {
		t.Fatalf("Expected single [0x00] chunk, got %v", chunks)
	}
}

func TestWriterSingleFlight(t *testing.T) {
	var inFlight, maxSeen int32
	write := func(chunk []byte, done func(error)) {
		go func() {
			current := atomic.AddInt32(&inFlight, 1)
			for {
				seen := atomic.LoadInt32(&maxSeen)
				if current <= seen || atomic.CompareAndSwapInt32(&maxSeen, seen, current) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
			done(nil)
		}()
	}
	w := newChunkedWriter("test", write)

	results := make(chan error, 2)
	w.Submit(make([]byte, 400), func(err error) { results <- err })
	w.Submit(make([]byte, 200), func(err error) { results <- err })

	for i := 0; i < 2; i++ {
		if err := waitErr(t, results); err != nil {
			t.Fatalf("Submit %d failed: %v", i, err)
		}
	}

	if got := atomic.LoadInt32(&maxSeen); got != 1 {
		t.Fatalf("Observed %d concurrent writes, single-flight requires 1", got)
	}
}

func TestWriterBatchedCompletionsInSubmissionOrder(t *testing.T) {
	rec := &chunkRecorder{delay: time.Millisecond}
	w := newChunkedWriter("test", rec.write)

	payloadA := make([]byte, 100) // 6 chunks
	payloadB := make([]byte, 60)  // 4 chunks
	totalChunks := packet.Count(len(payloadA)) + packet.Count(len(payloadB))

	var mu sync.Mutex
	var order []string
	var writesAtCompletion []int
	finished := make(chan struct{}, 2)

	w.Submit(payloadA, func(err error) {
		mu.Lock()
		order = append(order, "A")
		writesAtCompletion = append(writesAtCompletion, rec.count())
		mu.Unlock()
		if err != nil {
			t.Errorf("Payload A failed: %v", err)
		}
		finished <- struct{}{}
	})
	w.Submit(payloadB, func(err error) {
		mu.Lock()
		order = append(order, "B")
		writesAtCompletion = append(writesAtCompletion, rec.count())
		mu.Unlock()
		if err != nil {
			t.Errorf("Payload B failed: %v", err)
		}
		finished <- struct{}{}
	})

	for i := 0; i < 2; i++ {
		select {
		case <-finished:
		case <-time.After(2 * time.Second):
			t.Fatal("Timed out waiting for completions")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "A" || order[1] != "B" {
		t.Fatalf("Completions fired out of submission order: %v", order)
	}
	for i, writes := range writesAtCompletion {
		if writes != totalChunks {
			t.Errorf("Completion %d fired after %d writes, expected all %d", i, writes, totalChunks)
		}
	}

	// Packets of A must all precede packets of B on the wire.
	chunks := rec.recorded()
	if len(chunks) != totalChunks {
		t.Fatalf("Expected %d chunks on the wire, got %d", totalChunks, len(chunks))
	}
	if chunks[0][0] != byte(packet.Count(len(payloadA))) {
		t.Errorf("First chunk does not start payload A's frame")
	}
	if chunks[packet.Count(len(payloadA))][0] != byte(packet.Count(len(payloadB))) {
		t.Errorf("Payload B's frame does not start right after payload A's chunks")
	}
}

func TestWriterFailureStopsDrain(t *testing.T) {
	rec := &chunkRecorder{failAt: 2}
	w := newChunkedWriter("test", rec.write)

	result := make(chan error, 1)
	w.Submit(make([]byte, 90), func(err error) { result <- err }) // 5 chunks

	err := waitErr(t, result)
	if err == nil {
		t.Fatal("Expected a failure callback")
	}

	writesAtFailure := rec.count()
	if writesAtFailure != 2 {
		t.Fatalf("Expected the drain to stop at chunk 2, saw %d writes", writesAtFailure)
	}

	// No further writes may happen for the abandoned chunks.
	time.Sleep(50 * time.Millisecond)
	if rec.count() != writesAtFailure {
		t.Errorf("Drain continued after failure: %d writes", rec.count())
	}

	select {
	case extra := <-result:
		t.Fatalf("Completion callback fired twice, second value: %v", extra)
	default:
	}
}

func TestWriterFailureFailsQueuedSets(t *testing.T) {
	rec := &chunkRecorder{failAt: 1, delay: time.Millisecond}
	w := newChunkedWriter("test", rec.write)

	first := make(chan error, 1)
	second := make(chan error, 1)
	w.Submit(make([]byte, 90), func(err error) { first <- err })
	w.Submit(make([]byte, 30), func(err error) { second <- err })

	if err := waitErr(t, first); err == nil {
		t.Fatal("First set should fail")
	}
	if err := waitErr(t, second); err == nil {
		t.Fatal("Queued-behind set should fail too, not hang")
	}

	time.Sleep(50 * time.Millisecond)
	if rec.count() != 1 {
		t.Errorf("Expected exactly 1 write before the failure, got %d", rec.count())
	}
}

func TestWriterTooLargePayload(t *testing.T) {
	rec := &chunkRecorder{}
	w := newChunkedWriter("test", rec.write)

	result := make(chan error, 1)
	w.Submit(make([]byte, packet.MaxPayloadSize+1), func(err error) { result <- err })

	if err := waitErr(t, result); !errors.Is(err, packet.ErrPayloadTooLarge) {
		t.Fatalf("Expected ErrPayloadTooLarge, got %v", err)
	}
	if rec.count() != 0 {
		t.Errorf("Oversized payload must not reach the transport, saw %d writes", rec.count())
	}
}

func TestWriterSingleFlightAcrossFail(t *testing.T) {
	var inFlight, maxSeen int32
	write := func(chunk []byte, done func(error)) {
		go func() {
			current := atomic.AddInt32(&inFlight, 1)
			for {
				seen := atomic.LoadInt32(&maxSeen)
				if current <= seen || atomic.CompareAndSwapInt32(&maxSeen, seen, current) {
					break
				}
			}
			time.Sleep(50 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
			done(nil)
		}()
	}
	w := newChunkedWriter("test", write)

	first := make(chan error, 1)
	w.Submit(make([]byte, 100), func(err error) { first <- err }) // 6 chunks

	// Abort while the first chunk is still in flight, then submit again
	// right away. The new set must wait for the stale chunk's completion.
	time.Sleep(10 * time.Millisecond)
	w.Fail(ErrDisconnected)
	if err := waitErr(t, first); !errors.Is(err, ErrDisconnected) {
		t.Fatalf("Expected ErrDisconnected for the aborted set, got %v", err)
	}

	second := make(chan error, 1)
	w.Submit(make([]byte, 30), func(err error) { second <- err })
	if err := waitErr(t, second); err != nil {
		t.Fatalf("Submit after Fail failed: %v", err)
	}

	if got := atomic.LoadInt32(&maxSeen); got != 1 {
		t.Fatalf("Observed %d concurrent transport writes, single-flight requires 1", got)
	}
}

func TestWriterFailClearsQueue(t *testing.T) {
	rec := &chunkRecorder{delay: 5 * time.Millisecond}
	w := newChunkedWriter("test", rec.write)

	result := make(chan error, 1)
	w.Submit(make([]byte, 400), func(err error) { result <- err })

	time.Sleep(2 * time.Millisecond)
	w.Fail(ErrDisconnected)

	if err := waitErr(t, result); !errors.Is(err, ErrDisconnected) {
		t.Fatalf("Expected ErrDisconnected, got %v", err)
	}

	// A fresh submit on the same writer must work once the link is back.
	next := make(chan error, 1)
	w.Submit(make([]byte, 10), func(err error) { next <- err })
	if err := waitErr(t, next); err != nil {
		t.Fatalf("Submit after Fail should succeed, got %v", err)
	}
}
