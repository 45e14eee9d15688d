package booking

import "strings"

// Catalog maps provider event-type slugs to service names shown to people.
type Catalog map[string]string

// DefaultCatalog lists the clinic's bookable services.
var DefaultCatalog = Catalog{
	"avaliacao":             "Avaliação inicial",
	"sessao-fonoaudiologia": "Sessão de fonoaudiologia",
	"sessao-terapia":        "Sessão de terapia",
	"retorno":               "Consulta de retorno",
	"orientacao-familiar":   "Orientação familiar",
}

// Name returns the service name for slug, falling back to the raw slug and then title.
func (c Catalog) Name(slug, title string) string {
	slug = strings.TrimSpace(slug)
	if name, ok := c[slug]; ok {
		return name
	}
	if slug != "" {
		return slug
	}
	return strings.TrimSpace(title)
}
