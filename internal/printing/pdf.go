package printing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// ErrPDFDisabled is returned when no PDF renderer is configured.
var ErrPDFDisabled = errors.New("printing: pdf rendering is disabled")

// PDFRenderer turns an HTML document into PDF bytes.
type PDFRenderer interface {
	Render(ctx context.Context, html []byte) ([]byte, error)
}

// PDF renders documents through a headless Chromium driven by rod. The
// browser is started on first use and shared by later renders.
type PDF struct {
	bin     string
	timeout time.Duration
	log     *zap.Logger

	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
}

// NewPDF returns a renderer using the Chromium binary at bin, or the one rod
// finds on the system when bin is empty.
func NewPDF(bin string, timeout time.Duration, log *zap.Logger) *PDF {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &PDF{bin: bin, timeout: timeout, log: log}
}

func (p *PDF) connect() (*rod.Browser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.browser != nil {
		return p.browser, nil
	}

	l := launcher.New().Headless(true)
	if p.bin != "" {
		l = l.Bin(p.bin)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chromium: %w", err)
	}
	// The browser outlives any single request, so it gets its own context.
	browser := rod.New().ControlURL(controlURL).Context(context.Background())
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect chromium: %w", err)
	}
	p.launcher = l
	p.browser = browser
	p.log.Info("pdf browser started", zap.String("control_url", controlURL))
	return browser, nil
}

// Render loads html into a fresh tab and prints it to PDF.
func (p *PDF) Render(ctx context.Context, html []byte) ([]byte, error) {
	browser, err := p.connect()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("open tab: %w", err)
	}
	defer page.Close()
	page = page.Context(ctx)

	if err := page.SetDocumentContent(string(html)); err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait load: %w", err)
	}
	stream, err := page.PDF(&proto.PagePrintToPDF{
		PrintBackground:   true,
		PreferCSSPageSize: true,
	})
	if err != nil {
		return nil, fmt.Errorf("print to pdf: %w", err)
	}
	defer stream.Close()
	return io.ReadAll(stream)
}

// Close shuts the browser down if it was started.
func (p *PDF) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.browser == nil {
		return nil
	}
	err := p.browser.Close()
	p.launcher.Kill()
	p.browser = nil
	p.launcher = nil
	return err
}
