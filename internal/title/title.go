// Package title produces short session titles from the first user
// message, preferring a remote generator and falling back to a
// deterministic local summarizer. Synthesis never fails: the result is
// always a non-empty title.
package title

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode"

	"github.com/jmwagner/plausch/internal/config"
)

// Generator is the remote title-generation collaborator.
type Generator interface {
	GenerateTitle(ctx context.Context, prompt string) (string, error)
}

// PageTitler resolves the title of a web page, used when the first
// message is just a link and carries no text to summarize.
type PageTitler interface {
	PageTitle(ctx context.Context, url string) (string, error)
}

type Synthesizer struct {
	remote Generator
	pages  PageTitler
}

// New creates a Synthesizer. pages may be nil to disable link titling.
func New(remote Generator, pages PageTitler) *Synthesizer {
	return &Synthesizer{remote: remote, pages: pages}
}

var (
	urlRe       = regexp.MustCompile(`https?://\S+`)
	bracketedRe = regexp.MustCompile(`\[[^\]]*\]|\([^)]*\)`)
	badRunesRe  = regexp.MustCompile(`[^\p{L}\p{N}\p{Z}\-]`)
)

// Synthesize returns a title for a session whose first user message is
// text. It never returns an error and never returns an empty string.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) string {
	trimmed := strings.TrimSpace(text)

	// A bare link has nothing to summarize; use the page's own title.
	if s.pages != nil && urlRe.MatchString(trimmed) && strings.TrimSpace(urlRe.ReplaceAllString(trimmed, "")) == "" {
		if t, err := s.pages.PageTitle(ctx, urlRe.FindString(trimmed)); err == nil {
			if clean := Sanitize(t); clean != "" {
				return clean
			}
		} else {
			slog.Debug("page title lookup failed", "error", err)
		}
	}

	if s.remote != nil {
		prompt := buildPrompt(trimmed)
		t, err := s.remote.GenerateTitle(ctx, prompt)
		if err == nil {
			if clean := Sanitize(t); clean != "" {
				return clean
			}
		} else {
			slog.Debug("remote title generation failed", "error", err)
		}
	}

	return Fallback(text)
}

func buildPrompt(firstMessage string) string {
	if len(firstMessage) > config.TitlePromptLimit {
		firstMessage = firstMessage[:config.TitlePromptLimit]
	}
	return fmt.Sprintf(
		"Generate an extremely short, concise chat title (at most %d words, no quotes, no trailing period) for this first message:\n\n%q",
		config.TitleMaxWords, firstMessage,
	)
}

// Sanitize cleans a remotely generated title: surrounding quotes and
// sentence-ending punctuation go, as does anything that is not a
// letter, number, space or hyphen; the result is capped at six words.
func Sanitize(t string) string {
	t = strings.Trim(t, "\"'`„“‚‘ \t\r\n")
	t = strings.TrimRight(t, ".!?…")
	t = badRunesRe.ReplaceAllString(t, "")
	words := strings.Fields(t)
	if len(words) > config.TitleMaxWords {
		words = words[:config.TitleMaxWords]
	}
	return strings.Join(words, " ")
}

// Fallback derives a title locally: bracketed text and URLs are
// stripped, whitespace collapsed, the first seven words kept, trailing
// punctuation removed and the first letter capitalized. Always
// non-empty; a message with nothing usable yields the placeholder.
func Fallback(text string) string {
	s := bracketedRe.ReplaceAllString(text, "")
	s = urlRe.ReplaceAllString(s, "")
	words := strings.Fields(s)
	if len(words) > config.FallbackTitleWords {
		words = words[:config.FallbackTitleWords]
	}
	s = strings.TrimRight(strings.Join(words, " "), ".,;:!?-")
	s = strings.TrimSpace(s)
	if s == "" {
		return config.PlaceholderTitle
	}
	return capitalize(s)
}

func capitalize(s string) string {
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
