package forum

import (
	"bytes"
	"html"
	"strings"

	"github.com/bundlebooth/bdb-3.0-sub000/internal/featureflags"
	"github.com/bundlebooth/bdb-3.0-sub000/internal/models"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

// Renderer turns user-authored bodies into safe HTML. Markdown is used when
// the forum_markdown flag is on for the viewer, escaped plain text otherwise.
type Renderer struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
	flags  *featureflags.Manager
}

// NewRenderer builds a Renderer. A nil flag manager renders plain text.
func NewRenderer(flags *featureflags.Manager) *Renderer {
	policy := bluemonday.UGCPolicy()
	policy.AddTargetBlankToFullyQualifiedLinks(true)
	policy.RequireNoReferrerOnLinks(true)

	return &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
		),
		policy: policy,
		flags:  flags,
	}
}

// Render returns the HTML for content as seen by viewer.
func (r *Renderer) Render(content string, viewer models.ID) string {
	if r == nil || !r.flags.Enabled(featureflags.ForumMarkdown, viewer) {
		return plain(content)
	}
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(content), &buf); err != nil {
		return plain(content)
	}
	return strings.TrimSpace(r.policy.Sanitize(buf.String()))
}

// RenderEntries fills the HTML of each entry, using the tombstone for deleted comments.
func (r *Renderer) RenderEntries(entries []Entry, viewer models.ID) []Entry {
	for i := range entries {
		if entries[i].Comment.IsDeleted {
			entries[i].HTML = plain(Tombstone)
			continue
		}
		entries[i].HTML = r.Render(entries[i].Comment.Content, viewer)
	}
	return entries
}

func plain(content string) string {
	return strings.ReplaceAll(html.EscapeString(content), "\n", "<br>")
}
