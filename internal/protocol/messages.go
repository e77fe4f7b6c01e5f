package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name"`
	// Encoding asks for tile ids on CHUNK_READY in addition to cells.
	// Empty or "CELLS" sends cells only; "PAL_RLE_U16" adds data.
	Encoding string `json:"encoding,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	SessionID       string      `json:"session_id"`
	WorldParams     WorldParams `json:"world_params"`
	Palette         Palette     `json:"palette"`
}

type WorldParams struct {
	WorldID          string `json:"world_id"`
	RunID            string `json:"run_id,omitempty"`
	Seed             int64  `json:"seed"`
	Width            int    `json:"width"`
	Height           int    `json:"height"`
	ChunkWidth       int    `json:"chunk_width"`
	ChunkHeight      int    `json:"chunk_height"`
	RadiusChunks     int    `json:"radius_chunks"`
	HysteresisChunks int    `json:"hysteresis_chunks"`
	Spawn            [2]int `json:"spawn"`
	PositionEveryMs  int    `json:"position_every_ms"`
}

type Palette struct {
	Digest string     `json:"digest"`
	Tiles  []TileInfo `json:"tiles"`
}

type TileInfo struct {
	ID    uint16 `json:"id"`
	Name  string `json:"name"`
	Atlas [2]int `json:"atlas"`
	Alt   int    `json:"alt"`
}

// POSITION (client -> server): the player's grid position.
type PositionMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	X               int    `json:"x"`
	Y               int    `json:"y"`
}

// SET_CELL (client -> server): paint one world cell.
type SetCellMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`
	X               int    `json:"x"`
	Y               int    `json:"y"`
	Tile            string `json:"tile"`
}

type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AckFor          string `json:"ack_for"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
}

// CHUNK_READY (server -> client)
type ChunkReadyMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	Seq             uint64       `json:"seq"`
	Chunk           [2]int       `json:"chunk"`
	Origin          [2]int       `json:"origin"`
	Width           int          `json:"width"`
	Height          int          `json:"height"`
	Digest          string       `json:"digest"`
	Cells           []CellInfo   `json:"cells"`
	Spawns          []SpawnInfo  `json:"spawns"`
	Anchors         []AnchorInfo `json:"anchors"`

	// Set only for sessions that asked for an encoding in HELLO. Data holds
	// every palette id of the chunk; it hashes to Digest.
	Encoding string `json:"encoding,omitempty"`
	Data     string `json:"data,omitempty"`
}

// CellInfo is one non-empty cell in world coordinates.
type CellInfo struct {
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Tile  string `json:"tile"`
	Atlas [2]int `json:"atlas"`
	Alt   int    `json:"alt,omitempty"`
}

type SpawnInfo struct {
	Entity string `json:"entity"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
}

type AnchorInfo struct {
	Behavior string `json:"behavior"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
}

// CHUNK_CLEARED (server -> client)
type ChunkClearedMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Seq             uint64 `json:"seq"`
	Chunk           [2]int `json:"chunk"`
}
