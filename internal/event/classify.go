package event

import (
	"bytes"
	"encoding/json"
)

// Control keys, in classification priority order.
const (
	KeyLimit    = "limit"
	KeyDelete   = "delete"
	KeyScrubGeo = "scrub_geo"
)

var controlKeys = []struct {
	key  string
	kind Kind
}{
	{KeyLimit, KindLimit},
	{KeyDelete, KindDelete},
	{KeyScrubGeo, KindScrubGeo},
}

var jsonNull = []byte("null")

// Classify picks the channel for a decoded frame and returns the payload to
// deliver on it. Control notices deliver the value under their key; anything
// else is a tweet and delivers the whole object. A control key holding null
// counts as absent.
func Classify(fields map[string]json.RawMessage, raw json.RawMessage) (Kind, json.RawMessage) {
	for _, c := range controlKeys {
		v, ok := fields[c.key]
		if !ok || len(v) == 0 || bytes.Equal(bytes.TrimSpace(v), jsonNull) {
			continue
		}
		return c.kind, v
	}
	return KindTweet, raw
}
