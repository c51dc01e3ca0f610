package event

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fieldsOf(t *testing.T, raw string) map[string]json.RawMessage {
	t.Helper()
	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &fields))
	return fields
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		wantKind    Kind
		wantPayload string
	}{
		{
			name:        "limit",
			raw:         `{"limit":{"track":5}}`,
			wantKind:    KindLimit,
			wantPayload: `{"track":5}`,
		},
		{
			name:        "delete",
			raw:         `{"delete":{"status":{"id":1,"user_id":2}}}`,
			wantKind:    KindDelete,
			wantPayload: `{"status":{"id":1,"user_id":2}}`,
		},
		{
			name:        "scrub_geo",
			raw:         `{"scrub_geo":{"user_id":3,"up_to_status_id":4}}`,
			wantKind:    KindScrubGeo,
			wantPayload: `{"user_id":3,"up_to_status_id":4}`,
		},
		{
			name:        "tweet",
			raw:         `{"id":10,"text":"hello"}`,
			wantKind:    KindTweet,
			wantPayload: `{"id":10,"text":"hello"}`,
		},
		{
			name:        "limit wins over delete",
			raw:         `{"delete":{"status":{"id":1}},"limit":{"track":1}}`,
			wantKind:    KindLimit,
			wantPayload: `{"track":1}`,
		},
		{
			name:        "delete wins over scrub_geo",
			raw:         `{"scrub_geo":{"user_id":3},"delete":{"status":{"id":1}}}`,
			wantKind:    KindDelete,
			wantPayload: `{"status":{"id":1}}`,
		},
		{
			name:        "null control key is ignored",
			raw:         `{"limit":null,"id":7}`,
			wantKind:    KindTweet,
			wantPayload: `{"limit":null,"id":7}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, payload := Classify(fieldsOf(t, tt.raw), json.RawMessage(tt.raw))
			assert.Equal(t, tt.wantKind, kind)
			assert.JSONEq(t, tt.wantPayload, string(payload))
		})
	}
}

func TestEvent_Decode(t *testing.T) {
	ev := Event{Kind: KindLimit, Payload: json.RawMessage(`{"track":5}`)}

	var notice LimitNotice
	require.NoError(t, ev.Decode(&notice))
	assert.Equal(t, int64(5), notice.Track)

	err := Event{Kind: KindReconnect}.Decode(&notice)
	assert.True(t, errors.Is(err, ErrNoPayload))

	err = Event{Kind: KindTweet, Payload: json.RawMessage(`[1]`)}.Decode(&notice)
	assert.ErrorContains(t, err, "decode tweet payload")
}

func TestTweet_Decode(t *testing.T) {
	raw := `{
		"id": 1050118621198921728,
		"id_str": "1050118621198921728",
		"text": "RT @ops: hello",
		"created_at": "Wed Oct 10 20:19:24 +0000 2018",
		"user": {"id": 6253282, "screen_name": "relay", "name": "Relay", "profile_image_url": "http://img/normal.png"},
		"retweeted_status": {
			"id": 1050118621198921700,
			"text": "hello",
			"created_at": "Wed Oct 10 20:00:00 +0000 2018",
			"user": {"id": 1, "screen_name": "ops"},
			"entities": {"media": [{"id": 9, "type": "photo", "media_url_https": "https://img/9.jpg"}]}
		}
	}`

	var tweet Tweet
	require.NoError(t, Event{Kind: KindTweet, Payload: json.RawMessage(raw)}.Decode(&tweet))

	assert.Equal(t, int64(1050118621198921728), tweet.ID)
	assert.Equal(t, "relay", tweet.User.ScreenName)

	created, err := tweet.CreatedTime()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2018, 10, 10, 20, 19, 24, 0, time.UTC), created.UTC())

	orig := tweet.Original()
	assert.Equal(t, "ops", orig.User.ScreenName)
	require.Len(t, orig.Entities.Media, 1)
	assert.Equal(t, "photo", orig.Entities.Media[0].Type)
	assert.Same(t, orig, orig.Original())
}

func TestControlNotices_Decode(t *testing.T) {
	var del DeleteNotice
	require.NoError(t, Event{Payload: json.RawMessage(`{"status":{"id":12,"id_str":"12","user_id":34}}`)}.Decode(&del))
	assert.Equal(t, int64(12), del.Status.ID)
	assert.Equal(t, int64(34), del.Status.UserID)

	var scrub ScrubGeoNotice
	require.NoError(t, Event{Payload: json.RawMessage(`{"user_id":5,"up_to_status_id":99}`)}.Decode(&scrub))
	assert.Equal(t, int64(5), scrub.UserID)
	assert.Equal(t, int64(99), scrub.UpToStatusID)
}

func TestKind_String(t *testing.T) {
	names := map[Kind]string{
		KindTweet:     "tweet",
		KindLimit:     "limit",
		KindDelete:    "delete",
		KindScrubGeo:  "scrub_geo",
		KindError:     "error",
		KindReconnect: "reconnect",
		KindDestroy:   "destroy",
		Kind(42):      "unknown",
	}
	for k, want := range names {
		assert.Equal(t, want, k.String())
	}
}

func TestEvent_String(t *testing.T) {
	assert.Equal(t, "error(http, 401)", NewHTTPError(401).String())
	assert.Equal(t, "error(network, timeout)", NewError(ErrorNetwork, "timeout", nil).String())
	assert.Equal(t, "reconnect(Network Error, attempt=2)", NewReconnect("Network Error", 2, time.Second).String())
	assert.Equal(t, "destroy(gone)", NewDestroy("gone").String())
	assert.Equal(t, "limit(11 bytes)", Event{Kind: KindLimit, Payload: json.RawMessage(`{"track":5}`)}.String())
}
