/*
Package pipeline wires a Source, a chain of StageRunner values and a Sink
together with channels and runs them concurrently behind a synchronous
Execute call.

mastolinks uses it at two levels: the monitor runs one long-lived pipeline
over the feed event stream, and the redirect resolver runs a short-lived
fixed worker pool pipeline over the links of a single post. In both cases
Execute is the join point: it only returns after every goroutine it started
has exited.
*/
package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
)

// Pipeline is an ordered list of stages between a source and a sink.
type Pipeline struct {
	stages []StageRunner
}

// New returns a pipeline made of the given stages. A pipeline without
// stages passes payloads straight from the source to the sink.
func New(stages ...StageRunner) *Pipeline {
	return &Pipeline{stages: stages}
}

// Execute drains src through every stage into sink.
//
// Execute blocks until the source is exhausted and every payload has been
// consumed or dropped, until any component reports an error, or until ctx is
// cancelled. Errors from all components are accumulated into a single
// multierror value.
//
// Execute may be called concurrently with different sources and sinks.
func (p *Pipeline) Execute(ctx context.Context, src Source, sink Sink) error {
	var wg sync.WaitGroup
	execCtx, cancel := context.WithCancel(ctx)

	// Channel i feeds stage i; the last channel feeds the sink.
	stageChans := make([]chan Payload, len(p.stages)+1)
	for i := range stageChans {
		stageChans[i] = make(chan Payload)
	}

	errChan := make(chan error, len(p.stages)+2)

	for i := range p.stages {
		wg.Add(1)

		go func(index int) {
			defer wg.Done()

			p.stages[index].Run(execCtx, &stageParams{
				stage:   index,
				inChan:  stageChans[index],
				outChan: stageChans[index+1],
				errChan: errChan,
			})

			// A returning stage closes its output so the shutdown cascades
			// down the chain.
			close(stageChans[index+1])
		}(i)
	}

	wg.Add(2)

	go func() {
		defer wg.Done()

		sourceWorker(execCtx, src, stageChans[0], errChan)
		close(stageChans[0])
	}()

	go func() {
		defer wg.Done()

		sinkWorker(execCtx, sink, stageChans[len(stageChans)-1], errChan)
	}()

	go func() {
		wg.Wait()

		close(errChan)
		cancel()
	}()

	var err error
	for stageErr := range errChan {
		err = multierror.Append(err, stageErr)

		cancel()
	}

	return err
}

func sourceWorker(
	ctx context.Context, src Source,
	outChan chan<- Payload, errChan chan<- error,
) {
	for src.Next(ctx) {
		select {
		case <-ctx.Done():
			return
		case outChan <- src.Payload():
		}
	}

	if err := src.Error(); err != nil {
		mayEmitError(fmt.Errorf("pipeline source: %w", err), errChan)
	}
}

func sinkWorker(
	ctx context.Context, sink Sink,
	inChan <-chan Payload, errChan chan<- error,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-inChan:
			if !ok {
				return
			}

			if err := sink.Consume(ctx, payload); err != nil {
				mayEmitError(fmt.Errorf("pipeline sink: %w", err), errChan)

				return
			}

			payload.MarkAsProcessed()
		}
	}
}

// mayEmitError queues err without blocking. When the error channel is full
// the error is dropped; the ones already queued are enough to abort.
func mayEmitError(err error, errChan chan<- error) {
	select {
	case errChan <- err:
	default:
	}
}
