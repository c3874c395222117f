// Package preview renders asset thumbnails asynchronously. A render request
// returns at once; the thumbnail arrives on the request's channel and through
// the host's OnThumbnailGenerated callback.
package preview

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/conduit-lang/assetforge/internal/asset"
	"github.com/conduit-lang/assetforge/internal/handle"
	"github.com/conduit-lang/assetforge/internal/host"
)

// ErrClosed is returned by Render after Close
var ErrClosed = errors.New("preview service is closed")

// DefaultSize is the edge length of a thumbnail when none is requested
const DefaultSize = 128

// MaxSize caps both edges of a thumbnail
const MaxSize = 1024

// Pixmap describes the target a thumbnail is rendered into
type Pixmap struct {
	Width      int        `json:"width"`
	Height     int        `json:"height"`
	Background color.RGBA `json:"background"`
}

func (p Pixmap) normalize(size int) Pixmap {
	if p.Width <= 0 {
		p.Width = size
	}
	if p.Height <= 0 {
		p.Height = size
	}
	p.Width = min(p.Width, MaxSize)
	p.Height = min(p.Height, MaxSize)
	return p
}

func (p Pixmap) newImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, p.Width, p.Height))
	if p.Background.A != 0 {
		fill(img, img.Bounds(), p.Background)
	}
	return img
}

// Thumbnail is a finished render
type Thumbnail struct {
	RequestID string
	Asset     asset.Asset
	Image     *image.RGBA
}

// PNG encodes the thumbnail image
func (t Thumbnail) PNG() ([]byte, error) {
	return EncodePNG(t.Image)
}

// EncodePNG encodes an image as PNG
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// Request is a pending thumbnail render. Done yields at most one Thumbnail
// and is then closed; it closes without a value when the asset disappears or
// rendering fails.
type Request struct {
	ID     string
	Handle handle.Handle
	Pixmap Pixmap

	done chan Thumbnail
	once sync.Once
}

// Done returns the completion channel
func (r *Request) Done() <-chan Thumbnail {
	return r.done
}

// Wait blocks until the request completes. ok is false when no thumbnail was
// produced.
func (r *Request) Wait(ctx context.Context) (Thumbnail, bool, error) {
	select {
	case t, ok := <-r.done:
		return t, ok, nil
	case <-ctx.Done():
		return Thumbnail{}, false, ctx.Err()
	}
}

func (r *Request) complete(t *Thumbnail) {
	r.once.Do(func() {
		if t != nil {
			r.done <- *t
		}
		close(r.done)
	})
}

// Options configures a Service
type Options struct {
	Host    host.Host
	Logger  *zap.Logger
	Workers int
	// Size is the default edge length for requests without one
	Size int
}

// Service renders thumbnails on a bounded worker pool
type Service struct {
	registry  *asset.Registry
	host      host.Host
	logger    *zap.Logger
	size      int
	renderers map[string]Renderer
	fallback  Renderer

	queue  []*Request
	closed bool
	mu     sync.Mutex
	cond   *sync.Cond
	wg     sync.WaitGroup
}

// NewService creates a preview service and starts its workers. The swatch
// renderer serves every type without a dedicated renderer.
func NewService(registry *asset.Registry, opts Options) *Service {
	if opts.Host == nil {
		opts.Host = host.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.Size <= 0 {
		opts.Size = DefaultSize
	}

	s := &Service{
		registry:  registry,
		host:      opts.Host,
		logger:    opts.Logger,
		size:      opts.Size,
		renderers: make(map[string]Renderer),
		fallback:  SwatchRenderer{Types: registry.Types()},
	}
	s.cond = sync.NewCond(&s.mu)

	for i := 0; i < opts.Workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	return s
}

// RegisterRenderer binds a renderer to an asset type id
func (s *Service) RegisterRenderer(typeID string, r Renderer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.renderers[typeID] = r
}

func (s *Service) rendererFor(typeID string) Renderer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.renderers[typeID]; ok {
		return r
	}
	return s.fallback
}

// Render queues a thumbnail render and returns immediately
func (s *Service) Render(h handle.Handle, target Pixmap) (*Request, error) {
	if !s.registry.Contains(h) {
		return nil, fmt.Errorf("%w: %s", asset.ErrNotFound, h)
	}

	req := &Request{
		ID:     uuid.NewString(),
		Handle: h,
		Pixmap: target.normalize(s.size),
		done:   make(chan Thumbnail, 1),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	s.queue = append(s.queue, req)
	s.cond.Signal()
	return req, nil
}

// Pending returns the number of queued requests
func (s *Service) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Close stops the workers. Queued requests close without a thumbnail.
func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	queued := s.queue
	s.queue = nil
	s.cond.Broadcast()
	s.mu.Unlock()

	for _, req := range queued {
		req.complete(nil)
	}
	s.wg.Wait()
}

func (s *Service) worker() {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}
		req := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.process(req)
	}
}

func (s *Service) process(req *Request) {
	a, ok := s.registry.Get(req.Handle)
	if !ok {
		req.complete(nil)
		return
	}

	img, err := s.render(a, req.Pixmap)
	if err != nil {
		s.logger.Warn("thumbnail render failed",
			zap.String("asset", a.RelativePath),
			zap.String("request", req.ID),
			zap.Error(err),
		)
		req.complete(nil)
		return
	}

	// deleted while rendering
	if !s.registry.Contains(req.Handle) {
		req.complete(nil)
		return
	}

	s.host.OnThumbnailGenerated(a, req.ID, img)
	req.complete(&Thumbnail{RequestID: req.ID, Asset: a, Image: img})
	s.logger.Debug("thumbnail rendered", zap.String("asset", a.RelativePath), zap.String("request", req.ID))
}

func (s *Service) render(a asset.Asset, target Pixmap) (img *image.RGBA, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("renderer panicked: %v", r)
		}
	}()

	// renderers that need the source fail on nil; swatches do not
	src, _ := s.registry.ReadSource(a.Handle)
	img = target.newImage()
	if err := s.rendererFor(a.TypeID).Render(context.Background(), a, src, img); err != nil {
		return nil, err
	}
	return img, nil
}
