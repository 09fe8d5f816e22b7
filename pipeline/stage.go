package pipeline

import (
	"context"
	"fmt"
	"sync"
)

// fifo processes payloads one at a time, in arrival order.
type fifo struct {
	proc Processor
}

// NewFIFO returns a StageRunner that processes payloads sequentially and
// preserves their order.
func NewFIFO(proc Processor) StageRunner {
	return fifo{proc: proc}
}

// Run reads payloads from the stage input until it is closed or ctx
// expires. A processor error is reported on the error channel and stops the
// stage.
func (r fifo) Run(ctx context.Context, params StageParams) {
	for {
		select {
		case <-ctx.Done():
			return
		case payloadIn, ok := <-params.Input():
			if !ok {
				return
			}

			payloadOut, err := r.proc.Process(ctx, payloadIn)
			if err != nil {
				mayEmitError(
					fmt.Errorf("pipeline stage %d: %w", params.StageIndex(), err),
					params.Error(),
				)

				return
			}

			if payloadOut == nil {
				payloadIn.MarkAsProcessed()

				continue
			}

			select {
			case <-ctx.Done():
				return
			case params.Output() <- payloadOut:
			}
		}
	}
}

// fixedWorkerPool fans payloads out to a constant number of fifo workers
// sharing one input and one output channel.
type fixedWorkerPool struct {
	fifos []StageRunner
}

// NewFixedWorkerPool returns a StageRunner backed by numOfWorkers
// goroutines. Each payload is handled by exactly one worker: whichever is
// free first receives it from the shared input channel. Output order is not
// preserved.
func NewFixedWorkerPool(proc Processor, numOfWorkers int) StageRunner {
	if numOfWorkers <= 0 {
		panic("FixedWorkerPool: numOfWorkers must be > 0")
	}

	fifos := make([]StageRunner, numOfWorkers)
	for i := range fifos {
		fifos[i] = NewFIFO(proc)
	}

	return fixedWorkerPool{fifos: fifos}
}

// Run starts every worker and blocks until all of them exit.
func (r fixedWorkerPool) Run(ctx context.Context, params StageParams) {
	var wg sync.WaitGroup

	wg.Add(len(r.fifos))
	for _, f := range r.fifos {
		go func(f StageRunner) {
			defer wg.Done()

			f.Run(ctx, params)
		}(f)
	}

	wg.Wait()
}

// dynamicWorkerPool starts one goroutine per payload, bounded by a pool of
// tokens.
type dynamicWorkerPool struct {
	proc      Processor
	tokenPool chan struct{}
}

// NewDynamicWorkerPool returns a StageRunner that processes up to
// maxNumOfWorkers payloads concurrently, each in its own goroutine.
func NewDynamicWorkerPool(proc Processor, maxNumOfWorkers int) StageRunner {
	if maxNumOfWorkers <= 0 {
		panic("DynamicWorkerPool: maxNumOfWorkers must be > 0")
	}

	tokenPool := make(chan struct{}, maxNumOfWorkers)
	for i := 0; i < maxNumOfWorkers; i++ {
		tokenPool <- struct{}{}
	}

	return dynamicWorkerPool{proc: proc, tokenPool: tokenPool}
}

// Run blocks until the input channel is closed or ctx expires, then waits
// for every in-flight worker by reclaiming all tokens.
func (r dynamicWorkerPool) Run(ctx context.Context, params StageParams) {
outer:
	for {
		select {
		case <-ctx.Done():
			break outer
		case payloadIn, ok := <-params.Input():
			if !ok {
				break outer
			}

			var token struct{}
			select {
			case <-ctx.Done():
				break outer
			case token = <-r.tokenPool:
			}

			go func(payloadIn Payload, token struct{}) {
				defer func() { r.tokenPool <- token }()

				payloadOut, err := r.proc.Process(ctx, payloadIn)
				if err != nil {
					mayEmitError(
						fmt.Errorf("pipeline stage %d: %w", params.StageIndex(), err),
						params.Error(),
					)

					return
				}

				if payloadOut == nil {
					payloadIn.MarkAsProcessed()

					return
				}

				select {
				case <-ctx.Done():
				case params.Output() <- payloadOut:
				}
			}(payloadIn, token)
		}
	}

	for i := 0; i < cap(r.tokenPool); i++ {
		<-r.tokenPool
	}
}
