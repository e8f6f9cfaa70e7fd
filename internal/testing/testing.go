// package testing contains shared testing utilities
package testing

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/rankwatch/internal/extract"
	"github.com/desertthunder/rankwatch/internal/models"
)

// FakeSession is a scripted [extract.Session].
//
// Pages maps a URL to the HTML served after navigating there. Frames does the same for pages that change as the
// feed scrolls: each ScrollToBottom advances to the next frame and the last frame repeats.
type FakeSession struct {
	Pages     map[string]string
	Frames    map[string][]string
	Redirects map[string]string
	NavErrors map[string]error

	WaitErr       error
	ScrollErr     error
	ScreenshotErr error
	GeoErr        error
	CloseErr      error
	PNG           []byte

	mu           sync.Mutex
	current      string
	scrolls      int
	visited      []string
	cookies      []extract.Cookie
	geolocations []models.Coordinates
	closed       int
}

// NewFakeSession returns a session serving pages.
func NewFakeSession(pages map[string]string) *FakeSession {
	return &FakeSession{
		Pages:     pages,
		Frames:    map[string][]string{},
		Redirects: map[string]string{},
		NavErrors: map[string]error{},
	}
}

func (f *FakeSession) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.visited = append(f.visited, url)
	if err, ok := f.NavErrors[url]; ok {
		return err
	}
	f.current = url
	if to, ok := f.Redirects[url]; ok {
		f.current = to
	}
	f.scrolls = 0
	return nil
}

func (f *FakeSession) HTML(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if frames := f.Frames[f.current]; len(frames) > 0 {
		i := f.scrolls
		if i >= len(frames) {
			i = len(frames) - 1
		}
		return frames[i], nil
	}
	if html, ok := f.Pages[f.current]; ok {
		return html, nil
	}
	return "<html><body></body></html>", nil
}

func (f *FakeSession) CurrentURL(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current, nil
}

func (f *FakeSession) Screenshot(ctx context.Context) ([]byte, error) {
	if f.ScreenshotErr != nil {
		return nil, f.ScreenshotErr
	}
	if f.PNG != nil {
		return f.PNG, nil
	}
	return TinyPNG(), nil
}

func (f *FakeSession) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	return f.WaitErr
}

func (f *FakeSession) ScrollToBottom(ctx context.Context, selector string) error {
	if f.ScrollErr != nil {
		return f.ScrollErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scrolls++
	return nil
}

func (f *FakeSession) SetGeolocation(ctx context.Context, at models.Coordinates, accuracy float64) error {
	if f.GeoErr != nil {
		return f.GeoErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.geolocations = append(f.geolocations, at)
	return nil
}

func (f *FakeSession) SetCookie(ctx context.Context, c extract.Cookie) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cookies = append(f.cookies, c)
	return nil
}

func (f *FakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return f.CloseErr
}

// Visited lists every URL passed to Navigate, in order.
func (f *FakeSession) Visited() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.visited...)
}

func (f *FakeSession) Cookies() []extract.Cookie {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]extract.Cookie(nil), f.cookies...)
}

func (f *FakeSession) Geolocations() []models.Coordinates {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Coordinates(nil), f.geolocations...)
}

// Closed reports how many times Close was called.
func (f *FakeSession) Closed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// TinyPNG is a 2x2 image with a transparent pixel.
func TinyPNG() []byte {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	img.Set(1, 1, color.NRGBA{B: 255, A: 255})
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

// StubGeocoder returns fixed coordinates or an error.
type StubGeocoder struct {
	At  models.Coordinates
	Err error

	mu    sync.Mutex
	calls []string
}

func (g *StubGeocoder) Geocode(ctx context.Context, address string) (models.Coordinates, error) {
	g.mu.Lock()
	g.calls = append(g.calls, address)
	g.mu.Unlock()
	if g.Err != nil {
		return models.Coordinates{}, g.Err
	}
	return g.At, nil
}

// Calls lists the addresses that were geocoded.
func (g *StubGeocoder) Calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
