package auth

import (
	"fmt"
	"io"
	"strings"
)

// WriteTokenGuide explains where to find the scraping backend token
func WriteTokenGuide(w io.Writer) {
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintln(w, "APIFY API TOKEN")
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "1. Sign in at https://console.apify.com")
	fmt.Fprintln(w, "2. Open Settings > API & Integrations")
	fmt.Fprintln(w, "3. Copy the Personal API token (starts with apify_api_)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "The token is stored in the system keychain when available,")
	fmt.Fprintln(w, "otherwise in an encrypted file in the config directory.")
	fmt.Fprintf(w, "Set %s to choose the file encryption passphrase.\n", PassphraseEnv)
	fmt.Fprintln(w, strings.Repeat("=", 60))
}
