package provider

import (
	"strconv"
	"strings"

	"github.com/jaennil/guide_helper/backend/prefetch/internal/tile"
)

// Template is a provider whose URL is a fixed template with the placeholders
// {x}, {y}, {z}, {locale} and {quadkey}.
type Template struct {
	name     string
	template string
	locale   string
	quadkey  bool
}

var _ Provider = (*Template)(nil)

func NewTemplate(name, template, locale string) *Template {
	return &Template{
		name:     name,
		template: template,
		locale:   locale,
		quadkey:  strings.Contains(template, "{quadkey}"),
	}
}

// TemplateFactory returns a Factory producing Template providers.
func TemplateFactory(name, template string) Factory {
	return func(locale string) Provider {
		return NewTemplate(name, template, locale)
	}
}

func (t *Template) Name() string {
	return t.name
}

func (t *Template) BuildURL(x, y, zoom uint32) string {
	pairs := []string{
		"{x}", strconv.FormatUint(uint64(x), 10),
		"{y}", strconv.FormatUint(uint64(y), 10),
		"{z}", strconv.FormatUint(uint64(zoom), 10),
		"{locale}", t.locale,
	}
	if t.quadkey {
		pairs = append(pairs, "{quadkey}", tile.QuadKey(x, y, zoom))
	}
	return strings.NewReplacer(pairs...).Replace(t.template)
}
