package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceUnmarshalObject(t *testing.T) {
	var s Source
	require.NoError(t, json.Unmarshal([]byte(`{"section":"intro","index":1,"excerpt":"..."}`), &s))

	assert.Equal(t, "intro", s.Section)
	assert.Equal(t, 1, s.Index)
	assert.Equal(t, "...", s.Excerpt)
}

func TestSourceUnmarshalBareString(t *testing.T) {
	var s Source
	require.NoError(t, json.Unmarshal([]byte(`"page 3, paragraph 2"`), &s))

	assert.Equal(t, Source{Excerpt: "page 3, paragraph 2"}, s)
}

func TestMessageJSONRoundTrip(t *testing.T) {
	msg := Message{
		ID:      "m1",
		Role:    RoleAssistant,
		Text:    "answer",
		Sources: []Source{{Section: "intro", Index: 2}},
	}

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var got Message
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, msg, got)
}
