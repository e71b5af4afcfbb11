package core

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	DefaultResourceTimeout = 10 * time.Second
	MaxResourceSize        = 5 * 1024 * 1024
	UserAgent              = "Mozilla/5.0 (compatible; linkshelf/1.0)"
)

// errBlockedHost is returned when a resource points at a private address.
var errBlockedHost = errors.New("host is not public")

// InlineOptions controls which external resources are embedded in a snapshot.
type InlineOptions struct {
	// BaseURL resolves relative references and is written as <base href>.
	BaseURL string
	// Timeout is the per-resource fetch timeout.
	Timeout time.Duration
	// MaxResourceSize truncates resources at this many bytes. 0 means no limit.
	MaxResourceSize int64
	InlineImages    bool
	InlineCSS       bool
	InlineJS        bool
	// AllowPrivateHosts permits loopback, private and link-local targets.
	// Captured pages are untrusted, so this stays off outside tests.
	AllowPrivateHosts bool
}

// DefaultInlineOptions inlines everything with conservative limits.
func DefaultInlineOptions(baseURL string) InlineOptions {
	return InlineOptions{
		BaseURL:         baseURL,
		Timeout:         DefaultResourceTimeout,
		MaxResourceSize: MaxResourceSize,
		InlineImages:    true,
		InlineCSS:       true,
		InlineJS:        true,
	}
}

// InlineResources rewrites html so it renders without network access:
// stylesheets become <style>, scripts get their source inlined, images and CSS
// url() references become data URIs. Resources that cannot be fetched are
// left as they are, and a <base> tag keeps their relative URLs working.
func InlineResources(ctx context.Context, html string, opts InlineOptions) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}

	f := &fetcher{
		client:       &http.Client{Timeout: opts.Timeout},
		maxSize:      opts.MaxResourceSize,
		allowPrivate: opts.AllowPrivateHosts,
	}

	if opts.InlineCSS {
		doc.Find("link[rel='stylesheet'][href]").Each(func(_ int, s *goquery.Selection) {
			href := resolveURL(base, s.AttrOr("href", ""))
			if href == "" {
				return
			}
			css, _, err := f.fetch(ctx, href)
			if err != nil {
				return
			}
			cssBase, _ := url.Parse(href)
			s.ReplaceWithHtml("<style>" + inlineCSSURLs(ctx, f, string(css), cssBase) + "</style>")
		})
	}

	if opts.InlineJS {
		doc.Find("script[src]").Each(func(_ int, s *goquery.Selection) {
			src := resolveURL(base, s.AttrOr("src", ""))
			if src == "" {
				return
			}
			js, _, err := f.fetch(ctx, src)
			if err != nil {
				return
			}
			s.RemoveAttr("src")
			s.SetText(string(js))
		})
	}

	if opts.InlineImages {
		doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
			src := resolveURL(base, s.AttrOr("src", ""))
			if src == "" {
				return
			}
			if dataURI, err := f.dataURI(ctx, src); err == nil {
				s.SetAttr("src", dataURI)
			}
		})
		// srcset candidates are not fetched; the inlined src is used instead.
		doc.Find("img[srcset], source[srcset]").RemoveAttr("srcset")

		doc.Find("[style]").Each(func(_ int, s *goquery.Selection) {
			if style := s.AttrOr("style", ""); strings.Contains(style, "url(") {
				s.SetAttr("style", inlineCSSURLs(ctx, f, style, base))
			}
		})
	}

	if head := doc.Find("head"); head.Length() > 0 && doc.Find("base").Length() == 0 && base.String() != "" {
		head.PrependHtml(fmt.Sprintf(`<base href="%s">`, escapeAttr(opts.BaseURL)))
	}

	out, err := doc.Html()
	if err != nil {
		return "", fmt.Errorf("failed to serialize HTML: %w", err)
	}
	return out, nil
}

func escapeAttr(s string) string {
	return strings.NewReplacer(`&`, "&amp;", `"`, "&quot;", `<`, "&lt;", `>`, "&gt;").Replace(s)
}

// resolveURL resolves ref against base. It returns "" for empty refs and for
// data: and javascript: URLs, which are never fetched.
func resolveURL(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "data:") || strings.HasPrefix(ref, "javascript:") {
		return ""
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return base.ResolveReference(refURL).String()
}

// inlineCSSURLs replaces url(...) references in css with data URIs. References
// that cannot be fetched are kept verbatim.
func inlineCSSURLs(ctx context.Context, f *fetcher, css string, base *url.URL) string {
	var out strings.Builder
	rest := css
	for {
		start := strings.Index(rest, "url(")
		if start == -1 {
			out.WriteString(rest)
			return out.String()
		}
		end := strings.Index(rest[start:], ")")
		if end == -1 {
			out.WriteString(rest)
			return out.String()
		}
		end += start

		out.WriteString(rest[:start])
		original := rest[start : end+1]
		ref := strings.Trim(strings.TrimSpace(rest[start+len("url("):end]), `"'`)
		rest = rest[end+1:]

		target := resolveURL(base, ref)
		if target == "" {
			out.WriteString(original)
			continue
		}
		dataURI, err := f.dataURI(ctx, target)
		if err != nil {
			out.WriteString(original)
			continue
		}
		out.WriteString("url(" + dataURI + ")")
	}
}

type fetcher struct {
	client       *http.Client
	maxSize      int64
	allowPrivate bool
}

// fetch GETs target and returns the body and its media type.
func (f *fetcher) fetch(ctx context.Context, target string) ([]byte, string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if !f.allowPrivate {
		if err := checkPublicHost(ctx, u.Hostname()); err != nil {
			return nil, "", err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	var body io.Reader = resp.Body
	if f.maxSize > 0 {
		body = io.LimitReader(resp.Body, f.maxSize)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, "", err
	}

	mediaType := resp.Header.Get("Content-Type")
	if mediaType == "" {
		mediaType = http.DetectContentType(data)
	}
	if i := strings.Index(mediaType, ";"); i > 0 {
		mediaType = strings.TrimSpace(mediaType[:i])
	}
	return data, mediaType, nil
}

func (f *fetcher) dataURI(ctx context.Context, target string) (string, error) {
	data, mediaType, err := f.fetch(ctx, target)
	if err != nil {
		return "", err
	}
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// checkPublicHost rejects hosts that are, or resolve to, loopback, private,
// link-local or unspecified addresses.
func checkPublicHost(ctx context.Context, host string) error {
	if host == "" || strings.EqualFold(host, "localhost") {
		return fmt.Errorf("%w: %q", errBlockedHost, host)
	}
	ips := []net.IP{net.ParseIP(host)}
	if ips[0] == nil {
		addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
		if err != nil {
			return err
		}
		ips = ips[:0]
		for _, a := range addrs {
			ips = append(ips, a.IP)
		}
	}
	for _, ip := range ips {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
			return fmt.Errorf("%w: %s resolves to %s", errBlockedHost, host, ip)
		}
	}
	return nil
}
