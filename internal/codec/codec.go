// Package codec holds the JSON wire codec shared by the HTTP handlers and
// the balancer's worker client. Encoding uses the standard library; decoding
// uses sonic, which matters on the hot status-poll path.
package codec

import (
	"encoding/json"

	"github.com/bytedance/sonic"
)

func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func Decode(data []byte, v any) error {
	return sonic.Unmarshal(data, v)
}
