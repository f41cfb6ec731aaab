package server

import (
	"fmt"
	"net/url"

	"github.com/codewandler/cc-gateway-go/oai"
)

// validationError is returned by validateRequest for a client-caused
// rejection; its Message becomes the HTTP 400 body.
type validationError struct {
	Message string
}

func (e *validationError) Error() string { return e.Message }

// validateRequest applies the request-shape checks the orchestrator runs
// before touching the cache or a session: a non-empty message list, no
// streaming combined with tool declarations, and only http(s) or data URL
// schemes for any inline image content that hasn't already been resolved to
// a local path.
func validateRequest(req *oai.ChatCompletionRequest) error {
	if len(req.Messages) == 0 {
		return &validationError{"messages array is required and must be non-empty"}
	}
	hasNonSystem := false
	for _, msg := range req.Messages {
		if msg.Role != "system" {
			hasNonSystem = true
			break
		}
	}
	if !hasNonSystem {
		return &validationError{"at least one non-system message is required"}
	}
	if req.Stream && len(req.Tools) > 0 {
		return &validationError{"stream=true cannot be combined with tools"}
	}
	for _, msg := range req.Messages {
		parts, ok := msg.Content.([]oai.ContentPart)
		if !ok {
			continue
		}
		for _, p := range parts {
			if p.Type != "image_url" || p.ImageURL == nil || p.ResolvedPath != "" {
				continue
			}
			if err := validateImageURL(p.ImageURL.URL); err != nil {
				return &validationError{fmt.Sprintf("image_url: %v", err)}
			}
		}
	}
	return nil
}

// validateImageURL rejects any scheme other than http, https, or data. The
// image-download collaborator is responsible for actually fetching and
// resolving the URL; this only guards against obviously disallowed schemes
// reaching that far (file://, ftp://, and the like).
func validateImageURL(raw string) error {
	if len(raw) >= 5 && raw[:5] == "data:" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("unparseable URL: %w", err)
	}
	switch u.Scheme {
	case "http", "https":
		return nil
	default:
		return fmt.Errorf("disallowed scheme %q", u.Scheme)
	}
}
