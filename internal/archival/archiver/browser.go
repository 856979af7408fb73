package archiver

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"
)

// singletonLockFiles are the marker files a Chrome/Chromium profile writes to claim
// exclusive use of its user-data directory. A crashed prior run leaves these behind and
// they must be cleared before a fresh launch (spec §4.2, §5).
var singletonLockFiles = []string{"SingletonLock", "SingletonCookie", "SingletonSocket"}

// BrowserSession is the setup/teardown helper shared by every browser-backed archiver
// variant (screenshot, pdf, readability): composition over the teacher's single-use
// ArchiveBookmark, extracted per spec §9's "prefer composition over inheritance"
// redesign flag.
type BrowserSession struct {
	ChromePath  string
	UserDataDir string
	Headless    bool
}

// removeSingletonLocks deletes stale singleton files before launch.
func (s BrowserSession) removeSingletonLocks() {
	for _, name := range singletonLockFiles {
		path := filepath.Join(s.UserDataDir, name)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Printf("archiver: failed to remove stale lock %s: %v", path, err)
		}
	}
}

// Run launches a browser, invokes fn with a context scoped to timeout, and tears the
// browser down afterward, cleaning singleton locks either way. On timeout it issues the
// two-phase interrupt: chromedp's own context cancellation (soft) followed by a pkill of
// any chrome process rooted at this session's user-data dir (hard fallback), matching the
// source's terminate-then-pkill sequence for browser subprocesses.
func (s BrowserSession) Run(ctx context.Context, timeout time.Duration, fn func(browserCtx context.Context) error) (timedOut bool, err error) {
	if err := os.MkdirAll(s.UserDataDir, 0o755); err != nil {
		return false, fmt.Errorf("archiver: failed to create browser user-data dir: %w", err)
	}
	s.removeSingletonLocks()
	defer s.removeSingletonLocks()

	allocatorOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocatorOpts = append(allocatorOpts,
		chromedp.NoDefaultBrowserCheck,
		chromedp.NoFirstRun,
		chromedp.UserDataDir(s.UserDataDir),
	)
	if s.ChromePath != "" {
		allocatorOpts = append(allocatorOpts, chromedp.ExecPath(s.ChromePath))
	}
	if s.Headless {
		allocatorOpts = append(allocatorOpts, chromedp.Headless)
	} else {
		allocatorOpts = append(allocatorOpts, chromedp.Flag("headless", false))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocatorOpts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	runCtx, cancelRun := context.WithTimeout(browserCtx, timeout)
	defer cancelRun()

	err = fn(runCtx)
	if runCtx.Err() == context.DeadlineExceeded {
		timedOut = true
		s.pkillStray()
		return timedOut, fmt.Errorf("archiver: browser session timed out after %s", timeout)
	}
	return false, err
}

// pkillStray is the hard fallback when the soft context cancellation above does not tear
// the browser process down quickly enough; it targets only processes whose command line
// references this session's own user-data directory, so it never touches unrelated
// Chrome instances on the host.
func (s BrowserSession) pkillStray() {
	cmd := exec.Command("pkill", "-f", s.UserDataDir)
	if err := cmd.Run(); err != nil && cmd.ProcessState != nil && cmd.ProcessState.ExitCode() > 1 {
		log.Printf("archiver: pkill of stray browser process failed: %v", err)
	}
}
