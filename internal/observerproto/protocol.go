package observerproto

// Version is the observer protocol version.
const Version = "0.1"

const (
	TypeSubscribe    = "SUBSCRIBE"
	TypeTick         = "TICK"
	TypeChunk        = "CHUNK"
	TypeChunkEvict   = "CHUNK_EVICT"
	TypeLightOverlay = "LIGHT_OVERLAY"
)

// Layer names, one per chunk map.
const (
	LayerPassability = "passability"
	LayerEmitters    = "emitters"
	LayerPbr         = "pbr"
)

var Layers = []string{LayerPassability, LayerEmitters, LayerPbr}

const (
	// EncodingRLE8 is base64(varint (value, run) pairs) over row-major cells,
	// row 0 being the chunk's lowest tile y.
	EncodingRLE8 = "RLE_U8"
	// EncodingRGBA8 is base64 of raw RGBA bytes, row-major.
	EncodingRGBA8 = "RGBA8"
)

// Client -> Server. First message on the observer WS connection, and can be re-sent to update settings.
type SubscribeMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	FocusID         string   `json:"focus_id"`
	ChunkRadius     int      `json:"chunk_radius"`
	Layers          []string `json:"layers,omitempty"`
	Light           bool     `json:"light"`
	ChunksPerTick   int      `json:"chunks_per_tick,omitempty"`
}

// HTTP response for GET /admin/v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string       `json:"protocol_version"`
	RunID           string       `json:"run_id"`
	Tick            uint64       `json:"tick"`
	WorldParams     WorldParams  `json:"world_params"`
	Layers          []string     `json:"layers"`
	Focuses         []FocusState `json:"focuses"`
}

type WorldParams struct {
	TickRateHz     int     `json:"tick_rate_hz"`
	TileSizeUnits  float32 `json:"tile_size_units"`
	ChunkSize      int     `json:"chunk_size"`
	RenderDistance int     `json:"render_distance"`
	Seed           int64   `json:"seed"`
	TerrainMode    string  `json:"terrain_mode"`
	OverlayTiles   int     `json:"overlay_tiles"`
}

// Server -> Client. Sent every tick.
type TickMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	Tick            uint64       `json:"tick"`
	StepMS          float64      `json:"step_ms"`
	Focuses         []FocusState `json:"focuses"`
	Maps            []MapStats   `json:"maps"`
}

type FocusState struct {
	ID          string     `json:"id"`
	Pos         [2]float32 `json:"pos"`
	Tile        [2]int     `json:"tile"`
	Passability int        `json:"passability"`
	Blocked     bool       `json:"blocked"`
	Light       [3]int32   `json:"light"`
}

type MapStats struct {
	Name         string `json:"name"`
	Loaded       int    `json:"loaded"`
	Requested    int    `json:"requested"`
	Pending      int    `json:"pending"`
	QueuedWrites int    `json:"queued_writes"`
	Spawned      uint64 `json:"spawned"`
	Completed    uint64 `json:"completed"`
	Evicted      uint64 `json:"evicted"`
	Failed       uint64 `json:"failed"`
	Abandoned    uint64 `json:"abandoned"`
}

// Server -> Client. Full layer grid of one chunk.
type ChunkMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Layer           string `json:"layer"`
	CX              int    `json:"cx"`
	CY              int    `json:"cy"`
	Dim             int    `json:"dim"`
	Version         uint64 `json:"version"`
	Encoding        string `json:"encoding"`
	Data            string `json:"data"`
}

// Server -> Client. Evict a chunk from the client cache.
type ChunkEvictMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Layer           string `json:"layer"`
	CX              int    `json:"cx"`
	CY              int    `json:"cy"`
}

// Server -> Client. Light overlay around the subscribed focus; pixel (x,y)
// covers tile origin+(x,y).
type LightOverlayMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	FocusID         string `json:"focus_id"`
	Tick            uint64 `json:"tick"`
	Origin          [2]int `json:"origin"`
	Size            int    `json:"size"`
	Encoding        string `json:"encoding"`
	Data            string `json:"data"`
}
