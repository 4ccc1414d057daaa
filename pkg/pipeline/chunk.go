package pipeline

// DefaultChunkSize is the default fixed chunk size the reader stage reads
// the source file in.
const DefaultChunkSize = 256 * 1024

// DefaultQueueCapacity is the default bounded capacity of the writer and
// hasher queues.
const DefaultQueueCapacity = 32

// chunk is a single fixed-size read from the source file, delivered to
// both the hasher and writer queues. Both consumers only read from data;
// neither mutates it, so a single allocation can be shared between them
// without copying.
type chunk struct {
	data []byte
	err  error
}
