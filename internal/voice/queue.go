package voice

import (
	"context"
	"log"
	"sync"
)

// Generator produces the audio bytes for one enqueued sentence unit.
type Generator = func(ctx context.Context) ([]byte, error)

type audioJob struct {
	seq       int
	text      string
	result    chan jobResult
	delivered func(bytes int)
}

type jobResult struct {
	audio []byte
	err   error
}

// DeliveryQueue decouples synthesis completion order from delivery order.
// Enqueue starts generation immediately, concurrently with earlier in-flight
// jobs, and posts the result into a slot reserved at enqueue time. A single
// sender goroutine drains the slots strictly in enqueue order, so audio bytes
// reach the transport as a FIFO even when generation finishes out of order.
// A failed generator is logged and skipped; it never blocks later jobs.
type DeliveryQueue struct {
	ctx  context.Context
	send func([]byte) error

	mu     sync.Mutex
	seq    int
	closed bool

	jobs      chan *audioJob
	done      chan struct{}
	closeOnce sync.Once

	onFailure func(seq int, text string, err error)
}

// NewDeliveryQueue starts the sender goroutine for one connection. send
// writes one binary frame to the transport; onFailure (optional) observes
// skipped jobs.
func NewDeliveryQueue(ctx context.Context, send func([]byte) error, onFailure func(seq int, text string, err error)) *DeliveryQueue {
	q := &DeliveryQueue{
		ctx:       ctx,
		send:      send,
		jobs:      make(chan *audioJob, 256),
		done:      make(chan struct{}),
		onFailure: onFailure,
	}
	go q.run()
	return q
}

// Enqueue reserves the next delivery slot and starts generating audio for
// text right away. delivered (optional) fires after the bytes were written to
// the transport.
func (q *DeliveryQueue) Enqueue(text string, gen Generator, delivered func(bytes int)) {
	// The lock is held across the channel insert so jobs enter q.jobs in
	// seq order even when turns enqueue concurrently. run never takes q.mu,
	// and Close signals done before it touches the lock, so a blocked
	// insert always unwinds.
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.seq++
	job := &audioJob{
		seq:       q.seq,
		text:      text,
		result:    make(chan jobResult, 1),
		delivered: delivered,
	}

	go func() {
		audio, err := gen(q.ctx)
		job.result <- jobResult{audio: audio, err: err}
	}()

	select {
	case q.jobs <- job:
	case <-q.done:
	case <-q.ctx.Done():
	}
}

// Close stops the sender. Pending and in-flight jobs are abandoned. Safe to
// call more than once.
func (q *DeliveryQueue) Close() {
	q.closeOnce.Do(func() {
		close(q.done)
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()
	})
}

func (q *DeliveryQueue) run() {
	for {
		select {
		case <-q.done:
			return
		case <-q.ctx.Done():
			return
		case job := <-q.jobs:
			select {
			case <-q.done:
				return
			case <-q.ctx.Done():
				return
			case res := <-job.result:
				if res.err != nil {
					log.Printf("audio job %d skipped: synthesis failed for %q: %v", job.seq, job.text, res.err)
					if q.onFailure != nil {
						q.onFailure(job.seq, job.text, res.err)
					}
					continue
				}
				if len(res.audio) == 0 {
					continue
				}
				if err := q.send(res.audio); err != nil {
					// Transport is likely gone; later sends will fail the
					// same way and the connection teardown closes the queue.
					log.Printf("audio job %d not delivered: %v", job.seq, err)
					continue
				}
				if job.delivered != nil {
					job.delivered(len(res.audio))
				}
			}
		}
	}
}
