package pipeline

import "context"

// Source is implemented by types that feed Payload values into a Pipeline.
type Source interface {
	// Next advances the source to the next payload and reports whether one
	// is available. It returns false once the source is exhausted, the
	// context expires or an error occurs.
	Next(context.Context) bool

	// Payload returns the payload the source is currently positioned at.
	Payload() Payload

	// Error returns the last error encountered by the source.
	Error() error
}

// Payload is implemented by values that travel through a Pipeline.
type Payload interface {
	// Clone returns a deep copy of the payload.
	Clone() Payload

	// MarkAsProcessed is invoked once the payload either reaches the sink
	// or is dropped by a stage.
	MarkAsProcessed()
}

// Processor is implemented by types that transform payloads for a stage.
// Returning a nil payload drops it; returning an error aborts the pipeline.
type Processor interface {
	Process(context.Context, Payload) (Payload, error)
}

// ProcessorFunc adapts an ordinary function to the Processor interface.
type ProcessorFunc func(context.Context, Payload) (Payload, error)

// Process calls f(ctx, p).
func (f ProcessorFunc) Process(ctx context.Context, p Payload) (Payload, error) {
	return f(ctx, p)
}

// StageRunner is implemented by types that can be chained together to form
// a multi-stage pipeline.
//
// Run is expected to block until the input channel is closed, the context
// expires or a processor reports an error.
type StageRunner interface {
	Run(context.Context, StageParams)
}

// StageParams groups the channels and position information handed to a
// StageRunner by the pipeline.
type StageParams interface {
	// StageIndex returns the position of the stage in the pipeline.
	StageIndex() int

	// Input returns the channel the stage reads payloads from.
	Input() <-chan Payload

	// Output returns the channel the stage writes processed payloads to.
	Output() chan<- Payload

	// Error returns the channel the stage reports processing errors to.
	Error() chan<- error
}

// Sink is implemented by types that consume payloads leaving the pipeline.
type Sink interface {
	Consume(context.Context, Payload) error
}
