package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Session routing.
	ErrBusy = "E_BUSY"

	// Edits.
	ErrUnknownTile = "E_UNKNOWN_TILE"
	ErrOutOfWorld  = "E_OUT_OF_WORLD"
	ErrBadRequest  = "E_BAD_REQUEST"
	ErrInternal    = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrBusy:            {},
	ErrUnknownTile:     {},
	ErrOutOfWorld:      {},
	ErrBadRequest:      {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
