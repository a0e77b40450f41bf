package stream

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmwagner/plausch/internal/config"
	"github.com/jmwagner/plausch/internal/domain"
	"github.com/jmwagner/plausch/internal/search"
	"github.com/jmwagner/plausch/internal/store"
)

func deltaFrame(text string) string {
	return fmt.Sprintf(`data: {"choices":[{"delta":{"content":%q}}]}`+"\n\n", text)
}

func seedSession(t *testing.T, st *store.Store) uuid.UUID {
	t.Helper()
	s := &domain.Session{ID: uuid.New(), Title: "chat"}
	st.Upsert(s)
	st.AppendMessages(s.ID,
		domain.Message{Role: domain.RoleUser, Text: "Hello"},
		domain.Message{Role: domain.RoleAssistant, Text: ""},
	)
	return s.ID
}

func TestConsumeFoldsDeltas(t *testing.T) {
	st := store.New()
	id := seedSession(t, st)
	in := NewIngestor(st)

	body := deltaFrame("Hi") + deltaFrame(" there") + "data: [DONE]\n\n"
	res, err := in.Consume(id, strings.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, "Hi there", res.Text)

	s, ok := st.Get(id)
	require.True(t, ok)
	require.Len(t, s.Messages, 2)
	assert.Equal(t, domain.RoleAssistant, s.Messages[1].Role)
	assert.Equal(t, "Hi there", s.Messages[1].Text)
	assert.Equal(t, search.BuildSearchText(s, config.SearchTail), s.SearchText)
}

func TestConsumeSkipsMalformedFrames(t *testing.T) {
	st := store.New()
	id := seedSession(t, st)
	in := NewIngestor(st)

	body := deltaFrame("Hi") +
		"data: {not json at all\n\n" +
		": sse comment\n" +
		"event: ping\n" +
		deltaFrame("!")
	res, err := in.Consume(id, strings.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, "Hi!", res.Text)
}

func TestConsumeZeroDeltas(t *testing.T) {
	st := store.New()
	id := seedSession(t, st)
	in := NewIngestor(st)

	res, err := in.Consume(id, strings.NewReader("data: [DONE]\n\n"))
	require.NoError(t, err)
	assert.Empty(t, res.Text)

	// the placeholder is untouched; finalization is the controller's job
	s, _ := st.Get(id)
	assert.Equal(t, "", s.Messages[1].Text)
}

func TestConsumeErrorFrame(t *testing.T) {
	st := store.New()
	id := seedSession(t, st)
	in := NewIngestor(st)

	body := deltaFrame("partial") + `data: {"error":{"message":"overloaded"}}` + "\n\n"
	res, err := in.Consume(id, strings.NewReader(body))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStreamFailed)
	assert.Contains(t, err.Error(), "overloaded")
	assert.Equal(t, "partial", res.Text)
}

func TestConsumeParsesUsageCost(t *testing.T) {
	st := store.New()
	id := seedSession(t, st)
	in := NewIngestor(st)

	body := deltaFrame("ok") +
		`data: {"choices":[{"delta":{}}],"usage":{"cost":0.00042}}` + "\n\n" +
		"data: [DONE]\n\n"
	res, err := in.Consume(id, strings.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, "0.00042", res.Cost.String())
}

func TestConsumeAbsentSessionDropsUpdates(t *testing.T) {
	st := store.New()
	in := NewIngestor(st)

	// session never existed; folding must not panic and must keep reading
	res, err := in.Consume(uuid.New(), strings.NewReader(deltaFrame("Hi")+deltaFrame(" there")))
	require.NoError(t, err)
	assert.Equal(t, "Hi there", res.Text)
	assert.Zero(t, st.Len())
}

type failingReader struct {
	data string
	read bool
}

func (r *failingReader) Read(p []byte) (int, error) {
	if !r.read {
		r.read = true
		return copy(p, r.data), nil
	}
	return 0, errors.New("connection reset")
}

func TestConsumeReadErrorReturnsAccumulated(t *testing.T) {
	st := store.New()
	id := seedSession(t, st)
	in := NewIngestor(st)

	res, err := in.Consume(id, &failingReader{data: deltaFrame("Hi")})
	require.Error(t, err)
	assert.Equal(t, "Hi", res.Text)
}
