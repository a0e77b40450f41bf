// Package share builds public session links and copies them to the
// system clipboard on a best-effort basis.
package share

import (
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/google/uuid"

	"github.com/jmwagner/plausch/internal/config"
)

// Clipboard is the best-effort clipboard collaborator. Failures are
// swallowed by callers; not every environment has one.
type Clipboard interface {
	Write(text string) error
}

// SystemClipboard writes to the OS clipboard.
type SystemClipboard struct{}

func (SystemClipboard) Write(text string) error {
	return clipboard.WriteAll(text)
}

// Link renders the public URL for a shared session.
func Link(baseURL string, publicID uuid.UUID) string {
	return fmt.Sprintf(config.SharePathTemplate, strings.TrimRight(baseURL, "/"), publicID)
}
