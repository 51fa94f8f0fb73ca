package yad2

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"

	"apartments-scraper/models"
	"apartments-scraper/utils"
)

// BrowserClient loads the feed through headless Chrome. The feed sits behind
// bot protection that sometimes rejects plain HTTP clients; a real browser
// session passes it.
type BrowserClient struct {
	params  FeedParams
	timeout time.Duration
	retry   *utils.RetryConfig
	logger  *utils.Logger

	browserCtx    context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc
}

// BrowserOptions configures NewBrowserClient.
type BrowserOptions struct {
	Params     FeedParams
	Timeout    time.Duration
	MaxRetries int
	ChromeBin  string
	Logger     *utils.Logger
}

// NewBrowserClient starts a headless browser. Close must be called to stop it.
func NewBrowserClient(opts BrowserOptions) (*BrowserClient, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 45 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = utils.NewNopLogger()
	}

	chromeBin := opts.ChromeBin
	if chromeBin == "" {
		chromeBin = findChromeBinary()
	}
	opts.Logger.Info("[yad2] Using browser binary: %s", chromeBin)

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.UserAgent(userAgent),
	)
	if chromeBin != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(chromeBin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...any) {}))

	// Start the browser now so every Fetch opens a tab in the same instance.
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, eris.Wrap(err, "browser: start chrome")
	}

	return &BrowserClient{
		params:  opts.Params,
		timeout: opts.Timeout,
		retry: &utils.RetryConfig{
			MaxAttempts: opts.MaxRetries,
			BaseDelay:   2 * time.Second,
			Logger:      opts.Logger,
		},
		logger:        opts.Logger,
		browserCtx:    browserCtx,
		cancelBrowser: cancelBrowser,
		cancelAlloc:   cancelAlloc,
	}, nil
}

// Fetch opens the feed URL in a new tab and decodes the JSON it renders.
func (b *BrowserClient) Fetch(ctx context.Context, q models.AreaQuery) ([]models.RawRecord, error) {
	feedURL := b.params.URL(q)

	var body string
	err := b.retry.Do(ctx, "browser feed "+q.String(), func(ctx context.Context) error {
		tabCtx, cancelTab := chromedp.NewContext(b.browserCtx)
		defer cancelTab()

		tabCtx, cancelTimeout := context.WithTimeout(tabCtx, b.timeout)
		defer cancelTimeout()

		// Tie the tab to the caller's deadline as well.
		stop := context.AfterFunc(ctx, cancelTab)
		defer stop()

		var text string
		err := chromedp.Run(tabCtx,
			chromedp.Navigate(feedURL),
			chromedp.WaitReady("body", chromedp.ByQuery),
			chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &text),
		)
		if err != nil {
			// Navigation failures are usually the bot wall or a slow page.
			return utils.NewTransientError(eris.Wrap(err, "chromedp feed load"), 0)
		}
		body = text
		return nil
	})
	if err != nil {
		return nil, err
	}

	b.logger.Debug("[yad2] Browser fetched %d bytes for %s", len(body), q)
	return DecodeFeed([]byte(strings.TrimSpace(body)))
}

// Close shuts the browser down.
func (b *BrowserClient) Close() error {
	b.cancelBrowser()
	b.cancelAlloc()
	return nil
}

// findChromeBinary locates a Chrome/Chromium binary.
func findChromeBinary() string {
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
