package feedback

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Records stored in key-value backends are CBOR encoded. Timestamps keep nanosecond
// precision so recovery windows compute identically after a round trip.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.EncOptions{Time: cbor.TimeRFC3339Nano, Sort: cbor.SortCanonical}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("feedback: invalid cbor encode options: %v", err))
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("feedback: invalid cbor decode options: %v", err))
	}
}

// EncodeRecord encodes a state, vector or event to CBOR bytes.
func EncodeRecord(v any) ([]byte, error) {
	data, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode CBOR: %w", err)
	}
	return data, nil
}

// DecodeRecord decodes CBOR bytes produced by EncodeRecord.
func DecodeRecord(data []byte, v any) error {
	if err := decMode.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode CBOR: %w", err)
	}
	return nil
}
