package sqlite

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"

	"github.com/BrandonDHaskell/turnstile/internal/gate/types"
)

// Action payloads are stored as deterministic CBOR so identical payloads
// produce identical bytes.
var (
	payloadEnc cbor.EncMode
	payloadDec cbor.DecMode
)

func init() {
	var err error
	payloadEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("sqlite: CBOR encoder initialization failed: " + err.Error())
	}
	payloadDec, err = cbor.DecOptions{
		// Nested maps must decode as map[string]any, not map[any]any.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("sqlite: CBOR decoder initialization failed: " + err.Error())
	}
}

func encodePayload(p types.Payload) ([]byte, error) {
	if len(p) == 0 {
		return nil, nil
	}
	b, err := payloadEnc.Marshal(map[string]any(p))
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return b, nil
}

func decodePayload(b []byte) (types.Payload, error) {
	if len(b) == 0 {
		return types.Payload{}, nil
	}
	var m map[string]any
	if err := payloadDec.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return types.Payload(m), nil
}
