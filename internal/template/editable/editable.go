// Package editable prepares processed template HTML for the in-page editor.
package editable

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"template-ingest/internal/common/errors"
)

const (
	Attribute = "data-editable"

	DefaultPrimaryColor   = "#C4A57B"
	DefaultSecondaryColor = "#6d8a91"
)

var (
	hexColor         = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)
	primaryColorDecl = regexp.MustCompile(`--primary-color:\s*#[0-9A-Fa-f]{6};`)
	headClose        = regexp.MustCompile(`(?i)</head\s*>`)
)

// ExtractFields maps each data-editable key to the element's trimmed text.
// A repeated key keeps the value of its last element.
func ExtractFields(html string) (map[string]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	fields := make(map[string]string)
	doc.Find("[" + Attribute + "]").Each(func(_ int, s *goquery.Selection) {
		key, ok := s.Attr(Attribute)
		if !ok || key == "" {
			return
		}
		fields[key] = strings.TrimSpace(s.Text())
	})
	return fields, nil
}

// ApplyColorTheme rewrites every --primary-color declaration to color.
func ApplyColorTheme(html, color string) (string, error) {
	if !hexColor.MatchString(color) {
		return "", errors.NewInvalidInputError("Invalid color", fmt.Sprintf("color must be #RRGGBB, got %q", color))
	}
	return primaryColorDecl.ReplaceAllLiteralString(html, "--primary-color: "+color+";"), nil
}

// InjectEditorStyles adds the theme variables and editable outlines before
// the first </head>. Documents without a head are returned unchanged.
func InjectEditorStyles(html, primary, secondary string) string {
	loc := headClose.FindStringIndex(html)
	if loc == nil {
		return html
	}
	if primary == "" {
		primary = DefaultPrimaryColor
	}
	if secondary == "" {
		secondary = DefaultSecondaryColor
	}
	return html[:loc[0]] + editorStyles(primary, secondary) + "\n" + html[loc[0]:]
}

func editorStyles(primary, secondary string) string {
	return `<style>
  :root {
    --primary-color: ` + primary + `;
    --secondary-color: ` + secondary + `;
  }
  [` + Attribute + `]:hover {
    outline: 2px dashed var(--primary-color) !important;
    outline-offset: 2px !important;
    cursor: pointer !important;
  }
  [` + Attribute + `].editing {
    outline: 3px solid var(--primary-color) !important;
    outline-offset: 2px !important;
  }
</style>`
}
