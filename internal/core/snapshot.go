package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/seckatie/linkshelf/internal/core/db"
	"go.uber.org/zap"
)

// Snapshot status values stored in the snapshots table.
const (
	SnapshotStatusOK    = "ok"
	SnapshotStatusError = "error"
)

const (
	DefaultSnapshotTimeout = 35 * time.Second
	settleDelay            = 500 * time.Millisecond
)

// SnapshotOptions controls how a page is loaded before it is captured.
//
// Pages are rendered in a real Chrome/Chromium (DevTools protocol) so that
// scripted pages have a chance to finish before the HTML is read.
type SnapshotOptions struct {
	// ChromePath overrides the browser executable. Empty means chromedp's lookup.
	ChromePath string
	// Headless runs the browser without a window.
	Headless bool
	// Timeout is the per-page deadline. <= 0 uses DefaultSnapshotTimeout.
	Timeout time.Duration
	// WaitSelector, if set, must become visible before capture.
	WaitSelector string
	// AllowPrivateHosts permits capturing loopback, private and link-local
	// addresses, for the page itself and the resources it inlines.
	AllowPrivateHosts bool
}

// PageCapture is the rendered state of a page.
type PageCapture struct {
	FinalURL string
	Title    string
	HTML     string
}

// CapturePage loads target in Chrome, waits for network idle and a ready <body>,
// and returns the final URL, title and outer HTML of the document.
//
// Paywalls, CAPTCHAs and login walls are not worked around.
func CapturePage(ctx context.Context, target string, opts SnapshotOptions) (PageCapture, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultSnapshotTimeout
	}

	allocatorOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocatorOpts = append(allocatorOpts, chromedp.NoDefaultBrowserCheck, chromedp.NoFirstRun)
	if opts.ChromePath != "" {
		allocatorOpts = append(allocatorOpts, chromedp.ExecPath(opts.ChromePath))
	}
	if opts.Headless {
		allocatorOpts = append(allocatorOpts, chromedp.Headless)
	} else {
		allocatorOpts = append(allocatorOpts, chromedp.Flag("headless", false))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocatorOpts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()
	runCtx, cancelRun := context.WithTimeout(browserCtx, opts.Timeout)
	defer cancelRun()

	var capture PageCapture
	actions := []chromedp.Action{
		chromedp.ActionFunc(func(ctx context.Context) error {
			return navigateUntilIdle(ctx, target)
		}),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if sel := strings.TrimSpace(opts.WaitSelector); sel != "" {
		actions = append(actions, chromedp.WaitVisible(sel, chromedp.ByQuery))
	}
	actions = append(actions,
		chromedp.Sleep(settleDelay),
		chromedp.Location(&capture.FinalURL),
		chromedp.Title(&capture.Title),
		chromedp.OuterHTML("html", &capture.HTML, chromedp.ByQuery),
	)
	if err := chromedp.Run(runCtx, actions...); err != nil {
		return PageCapture{}, err
	}

	if strings.TrimSpace(capture.Title) == "" {
		capture.Title = documentTitle(capture.HTML)
	}
	return capture, nil
}

func navigateUntilIdle(ctx context.Context, target string) error {
	if err := page.SetLifecycleEventsEnabled(true).Do(ctx); err != nil {
		return err
	}

	idle := make(chan struct{}, 1)
	chromedp.ListenTarget(ctx, func(ev any) {
		if e, ok := ev.(*page.EventLifecycleEvent); ok && e.Name == "networkIdle" {
			select {
			case idle <- struct{}{}:
			default:
			}
		}
	})

	if err := chromedp.Navigate(target).Do(ctx); err != nil {
		return err
	}
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// documentTitle returns the text of the first <title> in html.
func documentTitle(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// SnapshotStore is the persistence needed by a Snapshotter. *db.DB implements it.
type SnapshotStore interface {
	GetBookmark(ctx context.Context, id int64) (db.Bookmark, error)
	ListBookmarksWithoutSnapshot(ctx context.Context, limit int) ([]db.Bookmark, error)
	SaveSnapshot(ctx context.Context, s db.Snapshot) error
}

type captureFunc func(ctx context.Context, target string, opts SnapshotOptions) (PageCapture, error)

// Snapshotter captures bookmarked pages and stores the result.
type Snapshotter struct {
	store   SnapshotStore
	logger  *zap.Logger
	opts    SnapshotOptions
	inline  InlineOptions
	capture captureFunc
}

// NewSnapshotter returns a Snapshotter rendering pages with CapturePage.
func NewSnapshotter(store SnapshotStore, logger *zap.Logger, opts SnapshotOptions) *Snapshotter {
	if logger == nil {
		logger = zap.NewNop()
	}
	inline := DefaultInlineOptions("")
	inline.AllowPrivateHosts = opts.AllowPrivateHosts
	return &Snapshotter{
		store:   store,
		logger:  logger,
		opts:    opts,
		inline:  inline,
		capture: CapturePage,
	}
}

// checkTarget refuses page URLs that are not http(s) or, unless private hosts
// are allowed, point at a non-public address.
func (s *Snapshotter) checkTarget(ctx context.Context, target string) error {
	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("invalid page URL %q: %w", target, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q", errBlockedHost, u.Scheme)
	}
	if s.opts.AllowPrivateHosts {
		return nil
	}
	return checkPublicHost(ctx, u.Hostname())
}


// SnapshotAndPersist captures b and stores the outcome.
//
// A failed capture is stored with status "error" and the message, and the
// capture error is returned. Inlining failures fall back to the raw HTML.
func (s *Snapshotter) SnapshotAndPersist(ctx context.Context, b db.Bookmark) error {
	log := s.logger.With(zap.Int64("bookmark_id", b.ID), zap.String("url", b.URL))
	attemptedAt := time.Now().UTC()

	fail := func(err error) error {
		failed := db.Snapshot{
			BookmarkID:  b.ID,
			AttemptedAt: attemptedAt,
			Status:      SnapshotStatusError,
			Error:       err.Error(),
		}
		if saveErr := s.store.SaveSnapshot(ctx, failed); saveErr != nil {
			return fmt.Errorf("snapshot failed (%v) and saving failure failed (%w)", err, saveErr)
		}
		return err
	}

	if err := s.checkTarget(ctx, b.URL); err != nil {
		return fail(err)
	}
	capture, err := s.capture(ctx, b.URL, s.opts)
	if err != nil {
		return fail(err)
	}
	// Redirects may land somewhere the bookmark URL did not point to.
	if capture.FinalURL != "" {
		if err := s.checkTarget(ctx, capture.FinalURL); err != nil {
			if errors.Is(err, errBlockedHost) {
				log.Warn("capture redirected to a blocked host", zap.String("final_url", capture.FinalURL))
			}
			return fail(err)
		}
	}

	inlineOpts := s.inline
	inlineOpts.BaseURL = capture.FinalURL
	if inlineOpts.BaseURL == "" {
		inlineOpts.BaseURL = b.URL
	}
	html, err := InlineResources(ctx, capture.HTML, inlineOpts)
	if err != nil {
		log.Warn("failed to inline resources, storing raw HTML", zap.Error(err))
		html = capture.HTML
	}

	done := db.Snapshot{
		BookmarkID:  b.ID,
		FinalURL:    capture.FinalURL,
		HTML:        html,
		AttemptedAt: attemptedAt,
		CapturedAt:  sql.NullTime{Time: time.Now().UTC(), Valid: true},
		Status:      SnapshotStatusOK,
	}
	if err := s.store.SaveSnapshot(ctx, done); err != nil {
		return err
	}
	log.Info("snapshot stored", zap.String("final_url", capture.FinalURL))
	return nil
}

// SnapshotRunOptions selects what a Run captures: a single bookmark by ID, or
// up to Limit bookmarks without a snapshot (all when Limit <= 0).
type SnapshotRunOptions struct {
	ID    int64
	Limit int
}

// SnapshotRunResult reports the outcome of a run.
type SnapshotRunResult struct {
	Attempted int
	Succeeded int
	Failed    int
}

// Run captures the bookmarks selected by opts one after another. It returns an
// error when any capture failed.
func (s *Snapshotter) Run(ctx context.Context, opts SnapshotRunOptions) (SnapshotRunResult, error) {
	var bookmarks []db.Bookmark
	if opts.ID > 0 {
		b, err := s.store.GetBookmark(ctx, opts.ID)
		if err != nil {
			return SnapshotRunResult{}, err
		}
		bookmarks = []db.Bookmark{b}
	} else {
		var err error
		if bookmarks, err = s.store.ListBookmarksWithoutSnapshot(ctx, opts.Limit); err != nil {
			return SnapshotRunResult{}, err
		}
	}
	if len(bookmarks) == 0 {
		s.logger.Info("no bookmarks to snapshot")
		return SnapshotRunResult{}, nil
	}

	s.logger.Info("capturing snapshots", zap.Int("count", len(bookmarks)))
	var res SnapshotRunResult
	for _, b := range bookmarks {
		res.Attempted++
		if err := s.SnapshotAndPersist(ctx, b); err != nil {
			res.Failed++
			s.logger.Warn("snapshot failed", zap.Int64("bookmark_id", b.ID), zap.String("url", b.URL), zap.Error(err))
			continue
		}
		res.Succeeded++
	}

	if res.Failed > 0 {
		return res, fmt.Errorf("snapshot run finished with %d failure(s)", res.Failed)
	}
	return res, nil
}
