package worker

import (
	"context"
	"sync"

	"github.com/teplovod/go-heatnet-alerts/internal/repository"
)

// ProcessFunc handles one alert occurrence pulled off the queue.
type ProcessFunc func(ctx context.Context, event *repository.AlertEvent) error

// Pool persists alert occurrences in the background so polling never waits
// on the database.
type Pool struct {
	numWorkers int
	events     chan *repository.AlertEvent
	processor  ProcessFunc
	wg         sync.WaitGroup
}

func NewPool(numWorkers int, bufferSize int, processor ProcessFunc) *Pool {
	return &Pool{
		numWorkers: numWorkers,
		events:     make(chan *repository.AlertEvent, bufferSize),
		processor:  processor,
	}
}

func (p *Pool) Start(ctx context.Context) {
	for i := 1; i <= p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-p.events:
			if !ok {
				return
			}
			p.processor(ctx, event)
		}
	}
}

func (p *Pool) Submit(event *repository.AlertEvent) {
	p.events <- event
}

func (p *Pool) Stop() {
	close(p.events)
	p.wg.Wait()
}
