package privacy

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/protocol/page"
	"github.com/mafredri/cdp/protocol/runtime"

	"devpipe/internal/logger"
)

// Brave-only WebRTC hardening: with a proxy in front of the browser,
// non-proxied UDP lets WebRTC leak the real IP.
const (
	settingsSearchURL = "brave://settings/?search=webrtc"
	targetPolicy      = "disable_non_proxied_udp"
)

// Detect classifies the attached browser from its user agent.
func Detect(ctx context.Context, c *cdp.Client) string {
	ua, err := evalString(ctx, c, "navigator.userAgent")
	if err != nil {
		return "unknown"
	}
	switch {
	case strings.Contains(strings.ToLower(ua), "brave"):
		return "brave"
	case strings.Contains(ua, "Firefox"):
		return "firefox"
	case strings.Contains(ua, "Chrome"), strings.Contains(ua, "Chromium"):
		return "chrome"
	default:
		return "unknown"
	}
}

// Apply sets Brave's WebRTC IP handling policy to
// disable_non_proxied_udp, then restores the page the session was on.
// Non-Brave browsers are declined with a warning: Chrome needs an
// extension and Firefox uses about:config.
func Apply(ctx context.Context, c *cdp.Client, l logger.Logger) error {
	if l == nil {
		l = logger.NewNop()
	}
	browser := Detect(ctx, c)
	if browser != "brave" {
		l.Warn("webrtc privacy is brave-only, skipping", "browser", browser)
		return fmt.Errorf("unsupported browser %q", browser)
	}

	originalURL, _ := evalString(ctx, c, "location.href")

	if _, err := c.Page.Navigate(ctx, page.NewNavigateArgs(settingsSearchURL)); err != nil {
		return fmt.Errorf("open settings: %w", err)
	}
	// let the settings WebUI render before piercing it
	select {
	case <-time.After(1500 * time.Millisecond):
	case <-ctx.Done():
		return ctx.Err()
	}

	result, err := evalString(ctx, c, setPolicyScript)
	restoreErr := restore(ctx, c, originalURL)
	if err != nil {
		return fmt.Errorf("set policy: %w", err)
	}
	switch result {
	case "already_set":
		l.Info("webrtc policy already set", "policy", targetPolicy)
	case "set":
		l.Info("webrtc policy configured", "policy", targetPolicy)
	default:
		return fmt.Errorf("set policy: %s", result)
	}
	return restoreErr
}

func restore(ctx context.Context, c *cdp.Client, url string) error {
	if url == "" || strings.HasPrefix(url, "brave://settings") {
		url = "about:blank"
	}
	_, err := c.Page.Navigate(ctx, page.NewNavigateArgs(url))
	return err
}

// setPolicyScript walks the settings WebUI (shadow roots included) to
// the WebRTC dropdown and selects the target policy, returning a small
// status string.
const setPolicyScript = `
(() => {
    const deepQuery = (root, selector) => {
        const direct = root.querySelector(selector);
        if (direct) return direct;
        const all = root.querySelectorAll('*');
        for (const el of all) {
            if (el.shadowRoot) {
                const found = deepQuery(el.shadowRoot, selector);
                if (found) return found;
            }
        }
        return null;
    };
    const menu = deepQuery(document, 'settings-dropdown-menu');
    if (!menu) return 'dropdown_not_found';
    const select = deepQuery(menu.shadowRoot || menu, 'select#dropdownMenu');
    if (!select) return 'select_not_found';
    if (select.disabled) return 'select_disabled';
    if (select.value === 'disable_non_proxied_udp') return 'already_set';
    select.value = 'disable_non_proxied_udp';
    select.dispatchEvent(new Event('change', { bubbles: true }));
    return select.value === 'disable_non_proxied_udp' ? 'set' : 'verify_failed';
})();
`

func evalString(ctx context.Context, c *cdp.Client, expr string) (string, error) {
	args := runtime.NewEvaluateArgs(expr).SetReturnByValue(true)
	reply, err := c.Runtime.Evaluate(ctx, args)
	if err != nil {
		return "", err
	}
	if reply.ExceptionDetails != nil {
		return "", fmt.Errorf("evaluate: %s", reply.ExceptionDetails.Text)
	}
	var s string
	if err := json.Unmarshal(reply.Result.Value, &s); err != nil {
		return "", fmt.Errorf("evaluate: non-string result: %w", err)
	}
	return s, nil
}
