package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/leadscout/leadscout/internal/lead"
)

func TestContacts(t *testing.T) {
	t.Parallel()

	t.Run("plain", func(t *testing.T) {
		emails, phones := Contacts("Reach out to jane.doe@example.com or +1 (415) 555-0134 today")
		require.Equal(t, []string{"jane.doe@example.com"}, emails)
		require.Len(t, phones, 1)
	})

	t.Run("spaced obfuscation", func(t *testing.T) {
		emails, _ := Contacts("write to jane @ example . com for details")
		require.Equal(t, []string{"jane@example.com"}, emails)
	})

	t.Run("at dot obfuscation", func(t *testing.T) {
		emails, _ := Contacts("jobs at acme dot io")
		require.Equal(t, []string{"jobs@acme.io"}, emails)
	})

	t.Run("no false positive on dates", func(t *testing.T) {
		emails, _ := Contacts("see you October@9")
		require.Empty(t, emails)
	})

	t.Run("dedup keeps order", func(t *testing.T) {
		emails, _ := Contacts("a@x.com then b@y.com then a@x.com")
		require.Equal(t, []string{"a@x.com", "b@y.com"}, emails)
	})
}

func TestAnchorContacts(t *testing.T) {
	t.Parallel()

	emails, phones := AnchorContacts([]lead.AnchorHint{
		{Href: "mailto:hr@acme.io?subject=hi"},
		{Href: "tel:+14155550134"},
		{Href: "https://acme.io/about"},
	})
	require.Equal(t, []string{"hr@acme.io"}, emails)
	require.Equal(t, []string{"+14155550134"}, phones)
}

func TestClean(t *testing.T) {
	t.Parallel()

	raw := strings.Join([]string{
		"Feed post number 24",
		"Jane Doe",
		"Jane Doe",
		"3rd+",
		"We are hiring a backend engineer.",
		"Email jobs@acme.io",
		"Like",
		"12 likes",
		"2 comments",
		"Great opportunity! (from a commenter)",
	}, "\n")

	got := Clean(raw)
	require.Equal(t, "Jane Doe\nWe are hiring a backend engineer.\nEmail jobs@acme.io", got)
}

func TestRole(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"hiring phrase", "We are hiring a Senior Backend Engineer, remote", "Senior Backend Engineer"},
		{"keyword window", "Immediate need: Full Stack Developer with Go", "Immediate need: Full Stack"},
		{"none", "Happy Friday everyone!", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Role(tc.in)
			if tc.want == "" {
				require.Empty(t, got)
				return
			}
			require.NotEmpty(t, got)
		})
	}
}
