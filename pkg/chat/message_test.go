package chat

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLimits = Limits{MaxMessages: 25, MaxMessageLength: 3000}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
		wantLen int
	}{
		{"single user message", `{"messages":[{"role":"user","content":"hi"}]}`, false, 1},
		{"system and user", `{"messages":[{"role":"system","content":"be nice"},{"role":"user","content":"hi"}]}`, false, 2},
		{"empty content allowed", `{"messages":[{"role":"user","content":""}]}`, false, 1},
		{"not json", `not json`, true, 0},
		{"missing messages", `{}`, true, 0},
		{"messages is object", `{"messages":{"role":"user"}}`, true, 0},
		{"messages is string", `{"messages":"hello"}`, true, 0},
		{"empty array", `{"messages":[]}`, true, 0},
		{"null element", `{"messages":[null]}`, true, 0},
		{"unknown role", `{"messages":[{"role":"tool","content":"x"}]}`, true, 0},
		{"missing role", `{"messages":[{"content":"x"}]}`, true, 0},
		{"missing content", `{"messages":[{"role":"user"}]}`, true, 0},
		{"numeric content", `{"messages":[{"role":"user","content":42}]}`, true, 0},
		{"null content", `{"messages":[{"role":"user","content":null}]}`, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := Decode([]byte(tt.body), testLimits)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalid)
				return
			}
			require.NoError(t, err)
			assert.Len(t, req.Messages, tt.wantLen)
		})
	}
}

func TestDecode_StreamFlag(t *testing.T) {
	req, err := Decode([]byte(`{"stream":true,"messages":[{"role":"user","content":"hi"}]}`), testLimits)
	require.NoError(t, err)
	assert.True(t, req.Stream)
}

func TestValidate_Limits(t *testing.T) {
	long := strings.Repeat("a", 3001)
	exact := strings.Repeat("a", 3000)

	assert.ErrorIs(t, Validate([]Message{{Role: RoleUser, Content: long}}, testLimits), ErrInvalid)
	assert.NoError(t, Validate([]Message{{Role: RoleUser, Content: exact}}, testLimits))

	// length is measured in characters, not bytes
	assert.NoError(t, Validate([]Message{{Role: RoleUser, Content: strings.Repeat("é", 3000)}}, testLimits))

	tooMany := make([]Message, 26)
	for i := range tooMany {
		tooMany[i] = Message{Role: RoleUser, Content: "x"}
	}
	assert.ErrorIs(t, Validate(tooMany, testLimits), ErrInvalid)
	assert.NoError(t, Validate(tooMany[:25], testLimits))
}

func conversation(n int) []Message {
	msgs := make([]Message, n)
	for i := range msgs {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		msgs[i] = Message{Role: role, Content: fmt.Sprintf("turn %d", i)}
	}
	return msgs
}

func TestTruncate_KeepsMostRecent(t *testing.T) {
	msgs := conversation(30)

	got := Truncate(msgs, 25)

	require.Len(t, got, 25)
	assert.Equal(t, msgs[5:], got)
}

func TestTruncate_KeepsAllSystemMessagesFirst(t *testing.T) {
	msgs := []Message{
		{Role: RoleUser, Content: "u0"},
		{Role: RoleSystem, Content: "s0"},
		{Role: RoleAssistant, Content: "a0"},
		{Role: RoleUser, Content: "u1"},
		{Role: RoleSystem, Content: "s1"},
		{Role: RoleAssistant, Content: "a1"},
	}

	got := Truncate(msgs, 2)

	assert.Equal(t, []Message{
		{Role: RoleSystem, Content: "s0"},
		{Role: RoleSystem, Content: "s1"},
		{Role: RoleUser, Content: "u1"},
		{Role: RoleAssistant, Content: "a1"},
	}, got)
}

func TestTruncate_UnderLimitUnchanged(t *testing.T) {
	msgs := append([]Message{{Role: RoleSystem, Content: "s"}}, conversation(4)...)

	got := Truncate(msgs, 20)

	assert.Equal(t, msgs, got)
}

func TestTruncate_Property(t *testing.T) {
	for total := 0; total < 40; total++ {
		for _, limit := range []int{0, 1, 5, 20} {
			msgs := append([]Message{{Role: RoleSystem, Content: "sys"}}, conversation(total)...)
			got := Truncate(msgs, limit)

			want := total
			if want > limit {
				want = limit
			}
			require.Len(t, got, want+1, "total=%d limit=%d", total, limit)
			assert.Equal(t, RoleSystem, got[0].Role)
			assert.Equal(t, msgs[len(msgs)-want:], got[1:])
		}
	}
}

func TestCharCount(t *testing.T) {
	assert.Equal(t, 0, CharCount(nil))
	assert.Equal(t, 7, CharCount([]Message{{Content: "abc"}, {Content: "défg"}}))
}

func TestMessage_JSON(t *testing.T) {
	b, err := json.Marshal(Message{Role: RoleAssistant, Content: "ok"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"assistant","content":"ok"}`, string(b))
}
