package templates

import (
	"embed"
	"fmt"
	"strings"
)

//go:embed templates/*.html
var templateFS embed.FS

// Render loads an embedded HTML template and substitutes every {{key}}
// marker with the matching value. Unknown markers are left in place, the
// same forgiving behavior the notification emails have always had.
func Render(name string, data map[string]string) (string, error) {
	raw, err := templateFS.ReadFile("templates/" + name + ".html")
	if err != nil {
		return "", fmt.Errorf("unknown template %q: %w", name, err)
	}
	body := string(raw)
	for key, value := range data {
		body = strings.ReplaceAll(body, "{{"+key+"}}", value)
	}
	return body, nil
}
