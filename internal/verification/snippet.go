package verification

import (
	"fmt"
	"strings"
)

// Snippet renders the script tag a site owner installs.
func Snippet(baseURL, publicID string) string {
	return fmt.Sprintf(`<script src="%s/cg.js" data-site-id="%s" async></script>`, strings.TrimRight(baseURL, "/"), publicID)
}
