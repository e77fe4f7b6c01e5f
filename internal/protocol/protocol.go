package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello        = "HELLO"
	TypeWelcome      = "WELCOME"
	TypePosition     = "POSITION"
	TypeSetCell      = "SET_CELL"
	TypeAck          = "ACK"
	TypeChunkReady   = "CHUNK_READY"
	TypeChunkCleared = "CHUNK_CLEARED"
)

// Chunk encodings a client may request in HELLO.
const (
	EncodingCells    = "CELLS"
	EncodingTileRuns = "PAL_RLE_U16"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
