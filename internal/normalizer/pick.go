package normalizer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/thatssosanya/kimovil-scraper/internal/llm"
	"github.com/thatssosanya/kimovil-scraper/internal/models"
)

var ErrNoOptions = errors.New("no options to pick from")

// PickSlug asks the model which option names the device. A single option is
// returned without a model call. A reply that is not one of the offered slugs
// is an AmbiguousMatchError.
func (n *Normalizer) PickSlug(ctx context.Context, name string, options []models.AutocompleteOption) (string, error) {
	switch len(options) {
	case 0:
		return "", ErrNoOptions
	case 1:
		return options[0].Slug, nil
	}

	var list strings.Builder
	for _, opt := range options {
		fmt.Fprintf(&list, "- %s: %s\n", opt.Name, opt.Slug)
	}

	reply, err := n.gen.Generate(ctx, llm.Request{
		Purpose: llm.PurposePickSlug,
		System:  "You match device names to catalogue identifiers. Reply with exactly one identifier from the list and nothing else.",
		Prompt:  fmt.Sprintf("Device: %s\n\nCandidates (name: identifier):\n%s", name, list.String()),
	})
	if err != nil {
		return "", fmt.Errorf("failed to pick slug: %w", err)
	}

	picked := cleanReply(reply)
	for _, opt := range options {
		if opt.Slug == picked {
			n.logger.Info("slug picked", "name", name, "slug", picked, "options", len(options))
			return picked, nil
		}
	}

	n.logger.Warn("slug pick outside option set", "name", name, "reply", reply)
	return "", &models.AmbiguousMatchError{Query: name, Reply: reply}
}

// cleanReply strips whitespace, quotes and a trailing period around a bare
// identifier reply.
func cleanReply(reply string) string {
	reply = strings.TrimSpace(reply)
	reply = strings.Trim(reply, "`\"' ")
	reply = strings.TrimSuffix(reply, ".")
	return strings.TrimSpace(reply)
}
