// Package browser opens web pages in the user's default browser.
package browser

import (
	"fmt"
	"net/url"
	"os/exec"
	"runtime"
)

// Open opens rawURL in the default browser without waiting for it to exit.
// Only http and https URLs are accepted.
func Open(rawURL string) error {
	cmd, err := command(runtime.GOOS, rawURL)
	if err != nil {
		return err
	}
	return cmd.Start()
}

func command(goos, rawURL string) (*exec.Cmd, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("browser: refusing to open %q: not an http(s) URL", rawURL)
	}
	target := u.String()

	switch goos {
	case "darwin":
		return exec.Command("open", target), nil
	case "linux", "freebsd", "openbsd", "netbsd":
		return exec.Command("xdg-open", target), nil
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", target), nil
	default:
		return nil, fmt.Errorf("browser: unsupported OS: %s", goos)
	}
}
