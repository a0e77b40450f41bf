// Package stream consumes the incremental server-sent-event stream
// produced by the model backend and folds each text delta into the
// session store, one visible update per delta.
package stream

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jmwagner/plausch/internal/config"
	"github.com/jmwagner/plausch/internal/domain"
	"github.com/jmwagner/plausch/internal/search"
	"github.com/jmwagner/plausch/internal/store"
)

// Result is what a finished stream leaves behind: the accumulated
// assistant text and the cost reported by the final usage frame.
type Result struct {
	Text string
	Cost decimal.Decimal
}

// frame is one parsed `data:` payload.
type frame struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Usage *struct {
		Cost      float64 `json:"cost"`
		TotalCost float64 `json:"total_cost"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Ingestor folds deltas into the session store. Each Consume call is
// bound to one target session and only ever touches that session's
// last message; updates to a session that has since disappeared are
// dropped.
type Ingestor struct {
	store *store.Store
}

func NewIngestor(st *store.Store) *Ingestor {
	return &Ingestor{store: st}
}

// Consume reads SSE frames from r until the stream ends. Each text
// delta is appended to the accumulator and written into the last
// message of the target session, with the search text recomputed.
// Malformed frames are skipped; the `[DONE]` sentinel is a no-op. The
// accumulated text so far is returned even when reading fails, so the
// caller can always finalize.
func (in *Ingestor) Consume(sessionID uuid.UUID, r io.Reader) (Result, error) {
	var (
		full strings.Builder
		res  Result
	)
	res.Cost = decimal.Zero

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" || payload == "[DONE]" {
			continue
		}

		var f frame
		if err := json.Unmarshal([]byte(payload), &f); err != nil {
			slog.Debug("skipping malformed stream frame", "error", err)
			continue
		}

		if f.Error != nil {
			res.Text = full.String()
			return res, fmt.Errorf("%w: %s", domain.ErrStreamFailed, f.Error.Message)
		}

		if f.Usage != nil {
			cost := f.Usage.Cost
			if cost == 0 {
				cost = f.Usage.TotalCost
			}
			if cost > 0 {
				res.Cost = decimal.NewFromFloat(cost)
			}
		}

		if len(f.Choices) == 0 {
			continue
		}
		delta := f.Choices[0].Delta.Content
		if delta == "" {
			continue
		}

		full.WriteString(delta)
		in.fold(sessionID, full.String())
	}

	res.Text = full.String()
	if err := scanner.Err(); err != nil {
		return res, fmt.Errorf("read stream: %w", err)
	}
	return res, nil
}

// fold writes the accumulated text into the target session's trailing
// assistant message. A vanished session is a silent no-op.
func (in *Ingestor) fold(sessionID uuid.UUID, text string) {
	ok := in.store.ReplaceLastMessage(sessionID, domain.Message{Role: domain.RoleAssistant, Text: text})
	if !ok {
		return
	}
	if s, present := in.store.Get(sessionID); present {
		in.store.SetSearchText(sessionID, search.BuildSearchText(s, config.SearchTail))
	}
}
