package gemini

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseVerdict(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		out    string
		accept bool
		reason string
	}{
		{
			name:   "plain json",
			out:    `{"hiring": true, "usa": true, "reason": "US-only remote role"}`,
			accept: true,
			reason: "US-only remote role",
		},
		{
			name:   "fenced",
			out:    "```json\n{\"hiring\": true, \"usa\": false, \"reason\": \"role in Canada\"}\n```",
			accept: false,
			reason: "role in Canada",
		},
		{
			name:   "embedded object",
			out:    "Here is my answer: {\"hiring\": false, \"usa\": true, \"reason\": \"job seeker post\"} hope that helps",
			accept: false,
			reason: "job seeker post",
		},
		{
			name:   "missing reason",
			out:    `{"hiring": true, "usa": true}`,
			accept: true,
			reason: "hiring=true usa=true",
		},
		{
			name:   "garbage accepts",
			out:    "I cannot answer that.",
			accept: true,
			reason: "ai-parse-failed",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := ParseVerdict(tc.out)
			require.Equal(t, tc.accept, v.Accept)
			require.Equal(t, tc.reason, v.Reason)
		})
	}
}
