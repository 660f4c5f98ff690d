package rest

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRouteKeyScopesByMajorParams(t *testing.T) {
	a := Route{
		Method: http.MethodGet,
		Path:   "/channels/{channel_id}/messages/{message_id}",
		Params: map[string]string{"channel_id": "111", "message_id": "1"},
	}
	b := Route{
		Method: http.MethodGet,
		Path:   "/channels/{channel_id}/messages/{message_id}",
		Params: map[string]string{"channel_id": "111", "message_id": "2"},
	}
	c := Route{
		Method: http.MethodGet,
		Path:   "/channels/{channel_id}/messages/{message_id}",
		Params: map[string]string{"channel_id": "222", "message_id": "1"},
	}
	// Minor params never split buckets, major params always do.
	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
}

func TestRouteKeySeparatesMethods(t *testing.T) {
	get := Route{Method: http.MethodGet, Path: "/channels/{channel_id}", Params: map[string]string{"channel_id": "111"}}
	del := Route{Method: http.MethodDelete, Path: "/channels/{channel_id}", Params: map[string]string{"channel_id": "111"}}
	assert.NotEqual(t, get.Key(), del.Key())
}

func TestRouteEndpointSubstitutesAndEscapes(t *testing.T) {
	r := Route{
		Method: http.MethodGet,
		Path:   "/guilds/{guild_id}/emojis/{emoji}",
		Params: map[string]string{"guild_id": "42", "emoji": "cat face"},
	}
	assert.Equal(t, "/guilds/42/emojis/cat%20face", r.Endpoint())
}
