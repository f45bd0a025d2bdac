package extract

import (
	"reflect"
	"testing"
)

var testInternalHosts = []string{"chatgpt.com", "openai.com", "accounts.google.com"}

func TestCollectSources(t *testing.T) {
	t.Run("drops internal and auth hosts", func(t *testing.T) {
		links := []string{
			"https://chatgpt.com/c/abc123",
			"https://auth.openai.com/authorize",
			"https://accounts.google.com/signin",
			"https://example.org/article",
		}
		got := CollectSources(links, "", testInternalHosts)
		want := []string{"https://example.org/article"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})

	t.Run("dedupes link and raw-text duplicates", func(t *testing.T) {
		links := []string{"https://example.org/paper"}
		text := "See https://example.org/paper and https://other.net/study for details."
		got := CollectSources(links, text, testInternalHosts)
		want := []string{"https://example.org/paper", "https://other.net/study"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})

	t.Run("preserves first occurrence order", func(t *testing.T) {
		links := []string{"https://b.example/2", "https://a.example/1", "https://b.example/2"}
		got := CollectSources(links, "", testInternalHosts)
		want := []string{"https://b.example/2", "https://a.example/1"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})

	t.Run("drops relative links", func(t *testing.T) {
		got := CollectSources([]string{"/c/new-chat", "#footnote-1"}, "", testInternalHosts)
		if len(got) != 0 {
			t.Errorf("relative links should be excluded, got %v", got)
		}
	})

	t.Run("subdomains of internal hosts are internal", func(t *testing.T) {
		got := CollectSources([]string{"https://cdn.chatgpt.com/asset.js"}, "", testInternalHosts)
		if len(got) != 0 {
			t.Errorf("subdomain of internal host should be excluded, got %v", got)
		}
	})
}

func TestScanTextURLs(t *testing.T) {
	text := "Sources: https://example.org/a. Also (https://example.org/b) and https://example.org/c, done."
	got := ScanTextURLs(text)
	want := []string{"https://example.org/a", "https://example.org/b", "https://example.org/c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestNormalizeWhitespace(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"collapses triple newlines", "a\n\n\nb", "a\n\nb"},
		{"collapses longer runs", "a\n\n\n\n\n\nb", "a\n\nb"},
		{"keeps double newlines", "a\n\nb", "a\n\nb"},
		{"trims surrounding whitespace", "\n\n  hello  \n\n", "hello"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizeWhitespace(tc.in); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestJoinSources(t *testing.T) {
	if got := JoinSources(nil); got != "" {
		t.Errorf("empty sources should join to empty string, got %q", got)
	}
	if got := JoinSources([]string{"https://a.example", "https://b.example"}); got != "https://a.example,https://b.example" {
		t.Errorf("got %q", got)
	}
}
