// Package pages holds the few HTML pages the API server renders itself.
// Everything user-facing lives in the separate front-end; these pages only
// cover browsers that land directly on a non-API URL.
package pages

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/a-h/templ"
)

// ErrorPage renders a minimal standalone error page for the given status.
func ErrorPage(code int, message string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		title := templ.EscapeString(fmt.Sprintf("%d %s", code, http.StatusText(code)))
		_, err := fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>%s</title>
<style>body{font-family:system-ui,sans-serif;margin:4rem auto;max-width:32rem;color:#222}h1{font-size:1.5rem}</style>
</head>
<body>
<h1>%s</h1>
<p>%s</p>
</body>
</html>
`, title, title, templ.EscapeString(message))
		return err
	})
}
