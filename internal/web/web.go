package web

import (
	"embed"
	"html/template"

	"cleanpay/internal/orchestrator"
)

// IndexTemplate is the name of the page template.
const IndexTemplate = "index.html"

//go:embed templates/*.html
var files embed.FS

// Page is the data rendered into the index template.
type Page struct {
	PublicKey  string
	CSRFCookie string
	CSRFHeader string
	Prices     []orchestrator.PriceEntry
	SessionID  string
}

var funcs = template.FuncMap{
	"major": formatMajor,
}

// Template parses the embedded templates.
func Template() *template.Template {
	return template.Must(template.New("").Funcs(funcs).ParseFS(files, "templates/*.html"))
}
