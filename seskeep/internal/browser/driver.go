package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/seskeep/seskeep/internal/snapshot"
)

const navTimeout = 30 * time.Second

// Driver is the CDP-backed implementation of the session lifecycle's browser
// operations. It owns one work page and tracks every origin the page
// navigates to, so capture and clearing know which storage partitions exist.
type Driver struct {
	mgr    *Manager
	logger *slog.Logger

	mu      sync.Mutex
	page    *rod.Page
	origins []string
	known   map[string]bool
}

// NewDriver opens the work page and starts origin tracking. The driver
// reopens its page when the manager recycles Chrome.
func NewDriver(mgr *Manager, logger *slog.Logger) (*Driver, error) {
	if logger == nil {
		logger = slog.Default()
	}
	page, err := mgr.NewPage()
	if err != nil {
		return nil, err
	}

	d := &Driver{
		mgr:    mgr,
		logger: logger,
		known:  map[string]bool{},
	}
	d.attach(page)

	mgr.SetRecycleCallback(&RecycleCallback{
		AfterRecycle: func(b *rod.Browser) {
			// The fresh Chrome has empty storage; the tracked origin set
			// belongs to the dead one.
			d.resetOrigins()
			p, err := mgr.newPageOn(b)
			if err != nil {
				d.logger.Error("browser: reopen work page after recycle", "error", err)
				return
			}
			d.attach(p)
		},
	})

	return d, nil
}

// attach swaps in a work page and starts its origin tracking.
func (d *Driver) attach(page *rod.Page) {
	d.mu.Lock()
	d.page = page
	d.mu.Unlock()

	go page.EachEvent(func(e *proto.PageFrameNavigated) {
		d.noteOrigin(e.Frame.URL)
	})()
}

// Page returns the work page handed to setup and validate procedures.
func (d *Driver) Page() *rod.Page {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.page
}

// Origins returns the origins visited since the last environment clear,
// in first-visit order.
func (d *Driver) Origins() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.origins))
	copy(out, d.origins)
	return out
}

func (d *Driver) noteOrigin(pageURL string) {
	o, ok := originOf(pageURL)
	if !ok {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.known[o] {
		d.known[o] = true
		d.origins = append(d.origins, o)
	}
}

func (d *Driver) resetOrigins() {
	d.mu.Lock()
	d.origins = nil
	d.known = map[string]bool{}
	d.mu.Unlock()
}

// BlankPage navigates the work page to about:blank without touching storage.
func (d *Driver) BlankPage(ctx context.Context) error {
	if err := d.Page().Context(ctx).Navigate("about:blank"); err != nil {
		return fmt.Errorf("browser: blank page: %w", err)
	}
	return nil
}

// ClearEnvironment blanks the page and wipes cookies plus web storage for
// every known origin, then forgets the origin set.
func (d *Driver) ClearEnvironment(ctx context.Context) error {
	if err := d.BlankPage(ctx); err != nil {
		return err
	}

	b := d.mgr.Browser()
	if b == nil {
		return fmt.Errorf("browser: no active browser")
	}

	if err := (proto.StorageClearCookies{}).Call(b); err != nil {
		return fmt.Errorf("browser: clear cookies: %w", err)
	}

	for _, o := range d.Origins() {
		err := proto.StorageClearDataForOrigin{
			Origin:       o,
			StorageTypes: "local_storage,session_storage,indexeddb,cache_storage",
		}.Call(b)
		if err != nil {
			d.logger.Warn("browser: clear storage failed", "origin", o, "error", err)
		}
	}

	d.resetOrigins()
	return nil
}

type storageDump struct {
	Local   map[string]string `json:"local"`
	Session map[string]string `json:"session"`
}

// Capture snapshots cookies globally and local/sessionStorage for every
// origin visited since the last environment clear.
func (d *Driver) Capture(ctx context.Context) (*snapshot.Snapshot, error) {
	b := d.mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}

	cookies, err := b.GetCookies()
	if err != nil {
		return nil, fmt.Errorf("browser: get cookies: %w", err)
	}

	snap := snapshot.New()
	snap.Cookies = snapshot.FromProtoCookies(cookies)

	for _, o := range d.Origins() {
		dump, err := d.readStorage(ctx, o)
		if err != nil {
			return nil, fmt.Errorf("browser: capture storage for %s: %w", o, err)
		}
		snap.Origins = append(snap.Origins, snapshot.OriginStorage{
			Origin:  o,
			Local:   dump.Local,
			Session: dump.Session,
		})
	}

	return snap, nil
}

// Restore reapplies a snapshot: cookies first, then each origin's storage.
// A failed origin is logged and collected; any failure surfaces as an error
// so the lifecycle invalidates the entry instead of silently continuing with
// a half-restored session.
func (d *Driver) Restore(ctx context.Context, snap *snapshot.Snapshot) error {
	b := d.mgr.Browser()
	if b == nil {
		return fmt.Errorf("browser: no active browser")
	}

	if len(snap.Cookies) > 0 {
		if err := b.SetCookies(snap.ToParams()); err != nil {
			return fmt.Errorf("browser: set cookies: %w", err)
		}
	}

	var failed []error
	for _, o := range snap.Origins {
		d.noteOrigin(o.Origin + "/")
		if err := d.writeStorage(ctx, o); err != nil {
			d.logger.Warn("browser: restore storage failed", "origin", o.Origin, "error", err)
			failed = append(failed, fmt.Errorf("%s: %w", o.Origin, err))
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("browser: restore storage: %w", errors.Join(failed...))
	}
	return nil
}

// Close closes the work page. The browser itself stays up for reuse.
func (d *Driver) Close() error {
	if p := d.Page(); p != nil {
		return p.Close()
	}
	return nil
}

func (d *Driver) readStorage(ctx context.Context, origin string) (*storageDump, error) {
	if err := d.visit(ctx, origin); err != nil {
		return nil, err
	}

	res, err := d.Page().Context(ctx).Eval(`() => JSON.stringify({
		local: Object.fromEntries(Object.entries(localStorage)),
		session: Object.fromEntries(Object.entries(sessionStorage)),
	})`)
	if err != nil {
		return nil, fmt.Errorf("read storage: %w", err)
	}

	var dump storageDump
	if err := json.Unmarshal([]byte(res.Value.Str()), &dump); err != nil {
		return nil, fmt.Errorf("decode storage: %w", err)
	}
	return &dump, nil
}

func (d *Driver) writeStorage(ctx context.Context, o snapshot.OriginStorage) error {
	if len(o.Local) == 0 && len(o.Session) == 0 {
		return nil
	}
	if err := d.visit(ctx, o.Origin); err != nil {
		return err
	}

	payload, err := json.Marshal(storageDump{Local: o.Local, Session: o.Session})
	if err != nil {
		return fmt.Errorf("encode storage: %w", err)
	}

	_, err = d.Page().Context(ctx).Eval(`(data) => {
		const d = JSON.parse(data);
		localStorage.clear();
		sessionStorage.clear();
		for (const [k, v] of Object.entries(d.local || {})) localStorage.setItem(k, v);
		for (const [k, v] of Object.entries(d.session || {})) sessionStorage.setItem(k, v);
	}`, string(payload))
	if err != nil {
		return fmt.Errorf("write storage: %w", err)
	}
	return nil
}

// visit navigates the work page to an origin's root so its storage
// partition is reachable from page JavaScript.
func (d *Driver) visit(ctx context.Context, origin string) error {
	navCtx, cancel := context.WithTimeout(ctx, navTimeout)
	defer cancel()

	p := d.Page()
	if err := p.Context(navCtx).Navigate(origin + "/"); err != nil {
		return fmt.Errorf("navigate %s: %w", origin, err)
	}
	if err := p.Context(navCtx).WaitLoad(); err != nil {
		d.logger.Warn("browser: wait load timeout", "origin", origin, "error", err)
	}
	return nil
}

// originOf extracts scheme://host[:port] from a page URL. Non-network
// schemes (about:, data:, chrome-error:) are not storage origins.
func originOf(pageURL string) (string, bool) {
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		return "", false
	}
	switch u.Scheme {
	case "http", "https":
		return u.Scheme + "://" + u.Host, true
	}
	return "", false
}
