package title

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jmwagner/plausch/internal/config"
)

type fakeGenerator struct {
	title string
	err   error
	calls int
}

func (f *fakeGenerator) GenerateTitle(ctx context.Context, prompt string) (string, error) {
	f.calls++
	return f.title, f.err
}

type fakePages struct {
	title string
	err   error
	url   string
}

func (f *fakePages) PageTitle(ctx context.Context, url string) (string, error) {
	f.url = url
	return f.title, f.err
}

func TestFallback(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"simple", "how do I cook rice", "How do I cook rice"},
		{"caps first word kept", "Paris travel tips", "Paris travel tips"},
		{"seven word cut", "one two three four five six seven eight nine", "One two three four five six seven"},
		{"strips brackets", "help [urgent] with (maybe) my code", "Help with my code"},
		{"strips urls", "look at https://example.com/a/b please", "Look at please"},
		{"strips trailing punctuation", "what is the meaning of life?!", "What is the meaning of life"},
		{"collapses whitespace", "  hello\n\t world  ", "Hello world"},
		{"empty", "", config.PlaceholderTitle},
		{"only url", "https://example.com", config.PlaceholderTitle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Fallback(tt.in))
		})
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"quotes and period", `"Cooking Rice Basics."`, "Cooking Rice Basics"},
		{"six word cap", "a b c d e f g h", "a b c d e f"},
		{"drops emoji", "Rice 🍚 Guide", "Rice Guide"},
		{"keeps hyphen", "How-to guide", "How-to guide"},
		{"empty", "  ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.in))
		})
	}
}

func TestSynthesizeUsesRemote(t *testing.T) {
	gen := &fakeGenerator{title: `"Rice Cooking Help."`}
	s := New(gen, nil)

	got := s.Synthesize(context.Background(), "how do I cook rice properly every time")
	assert.Equal(t, "Rice Cooking Help", got)
	assert.Equal(t, 1, gen.calls)
}

func TestSynthesizeFallsBackOnRemoteError(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("boom")}
	s := New(gen, nil)

	got := s.Synthesize(context.Background(), "how do I cook rice properly every time")
	assert.Equal(t, "How do I cook rice properly", got)
}

func TestSynthesizeFallsBackOnEmptyRemoteResult(t *testing.T) {
	gen := &fakeGenerator{title: "  !!! "}
	s := New(gen, nil)

	got := s.Synthesize(context.Background(), "hello there")
	assert.Equal(t, "Hello there", got)
}

func TestSynthesizeNeverEmpty(t *testing.T) {
	s := New(&fakeGenerator{err: errors.New("down")}, nil)
	assert.Equal(t, config.PlaceholderTitle, s.Synthesize(context.Background(), "   "))
}

func TestSynthesizeBareLinkUsesPageTitle(t *testing.T) {
	gen := &fakeGenerator{title: "Should Not Be Used"}
	pages := &fakePages{title: "Example Domain"}
	s := New(gen, pages)

	got := s.Synthesize(context.Background(), "  https://example.com/article  ")
	assert.Equal(t, "Example Domain", got)
	assert.Equal(t, "https://example.com/article", pages.url)
	assert.Zero(t, gen.calls)
}

func TestSynthesizeLinkWithTextSkipsPageTitle(t *testing.T) {
	pages := &fakePages{title: "Example Domain"}
	gen := &fakeGenerator{title: "Summarized Title"}
	s := New(gen, pages)

	got := s.Synthesize(context.Background(), "what does https://example.com say about rice")
	assert.Equal(t, "Summarized Title", got)
}

func TestSynthesizePageTitleFailureFallsThrough(t *testing.T) {
	pages := &fakePages{err: errors.New("timeout")}
	gen := &fakeGenerator{title: "From Remote"}
	s := New(gen, pages)

	got := s.Synthesize(context.Background(), "https://example.com")
	assert.Equal(t, "From Remote", got)
}

func TestBuildPromptTruncates(t *testing.T) {
	long := make([]byte, 3000)
	for i := range long {
		long[i] = 'a'
	}
	p := buildPrompt(string(long))
	assert.Less(t, len(p), config.TitlePromptLimit+200)
}
