package chunkmap

// Producer computes chunk contents. A single value is shared by every job a map
// spawns, so implementations must be safe for concurrent use and must not touch
// the map itself.
type Producer[T any] interface {
	DefaultValue() T
	GenerateChunk(coords ChunkCoords, dim int) *Chunk[T]
}

// Reader is the side-effect free lookup both map variants expose.
type Reader[T any] interface {
	Read(p Point) (T, bool)
}

// Source is the iteration surface used by debug and visualisation consumers.
type Source[T any] interface {
	Reader[T]
	LoadedChunks() []ChunkCoords
	Chunk(c ChunkCoords) (*Chunk[T], bool)
	ChunkDim() int
	Name() string
}

type ChunkState uint8

const (
	StateUnknown ChunkState = iota
	StateRequested
	StatePending
	StateLoaded
)

func (s ChunkState) String() string {
	switch s {
	case StateRequested:
		return "requested"
	case StatePending:
		return "pending"
	case StateLoaded:
		return "loaded"
	default:
		return "unknown"
	}
}

type Stats struct {
	Loaded       int `json:"loaded"`
	Requested    int `json:"requested"`
	Pending      int `json:"pending"`
	QueuedWrites int `json:"queued_writes"`

	Spawned   uint64 `json:"spawned"`
	Completed uint64 `json:"completed"`
	Evicted   uint64 `json:"evicted"`
	Failed    uint64 `json:"failed"`
	Abandoned uint64 `json:"abandoned"`
}
