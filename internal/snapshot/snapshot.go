// Package snapshot renders generated HTML artifacts to PNG through a
// headless browser. Chrome being unavailable is a soft failure: callers warn
// and keep the HTML.
package snapshot

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"yukemuri/internal/logging"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// DefaultTimeout bounds a single page render.
const DefaultTimeout = 30 * time.Second

// Capture renders the HTML file at htmlPath into a PNG at pngPath.
func Capture(ctx context.Context, htmlPath, pngPath string) error {
	timer := logging.StartTimer(logging.SubSnapshot, "Capture")
	defer timer.Stop()
	log := logging.L(logging.SubSnapshot)

	if _, err := os.Stat(htmlPath); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	binPath, found := launcher.LookPath()
	if !found {
		return fmt.Errorf("snapshot: no Chrome or Chromium found; keeping the HTML artifact only")
	}

	l := launcher.New().Bin(binPath).Headless(true)
	controlURL, lerr := l.Launch()
	if lerr != nil {
		return fmt.Errorf("snapshot: launch browser: %w", lerr)
	}
	defer l.Cleanup()

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("snapshot: connect browser: %w", err)
	}
	defer browser.Close()

	url := "file://" + htmlPath
	if !strings.HasPrefix(htmlPath, "/") {
		abs, aerr := os.Getwd()
		if aerr == nil {
			url = "file://" + abs + "/" + htmlPath
		}
	}

	page, perr := browser.Page(proto.TargetCreateTarget{URL: url})
	if perr != nil {
		return fmt.Errorf("snapshot: open page: %w", perr)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("snapshot: wait for page load: %w", err)
	}
	// Give map tiles a moment; the screenshot is best effort either way.
	time.Sleep(500 * time.Millisecond)

	data, serr := page.Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if serr != nil {
		return fmt.Errorf("snapshot: screenshot: %w", serr)
	}
	if err := os.WriteFile(pngPath, data, 0o644); err != nil {
		return fmt.Errorf("snapshot: write %s: %w", pngPath, err)
	}
	log.Debugf("captured %s -> %s (%d bytes)", htmlPath, pngPath, len(data))
	return nil
}
