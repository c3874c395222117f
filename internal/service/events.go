package service

import (
	"image"
	"sync"
	"time"

	"github.com/conduit-lang/assetforge/internal/asset"
	"github.com/conduit-lang/assetforge/internal/compiler"
	"github.com/conduit-lang/assetforge/internal/host"
)

// EventType names a service event
type EventType string

const (
	EventAssetAdded         EventType = "asset.added"
	EventAssetRemoved       EventType = "asset.removed"
	EventAssetChanged       EventType = "asset.changed"
	EventScanComplete       EventType = "scan.complete"
	EventRecompileRequested EventType = "compile.requested"
	EventCompileFinished    EventType = "compile.finished"
	EventThumbnailGenerated EventType = "thumbnail.generated"
)

// Event is published to subscribers of the service's Bus
type Event struct {
	Type      EventType         `json:"type"`
	Time      time.Time         `json:"time"`
	Asset     *asset.Asset      `json:"asset,omitempty"`
	Result    *compiler.Result  `json:"result,omitempty"`
	Scan      *asset.ScanResult `json:"scan,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	Reason    string            `json:"reason,omitempty"`
}

// Bus fans events out to subscribers. It is a host.Host, so registry,
// compiler and preview notifications reach it through the host fan-out.
// Slow subscribers lose events rather than stall publishers.
type Bus struct {
	host.Nop

	subs map[int]chan Event
	next int
	mu   sync.RWMutex
}

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber. The returned function unsubscribes and
// closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of subscribers
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish delivers ev to every subscriber without blocking
func (b *Bus) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (b *Bus) AssetAdded(a asset.Asset) {
	b.Publish(Event{Type: EventAssetAdded, Asset: &a})
}

func (b *Bus) AssetRemoved(a asset.Asset) {
	b.Publish(Event{Type: EventAssetRemoved, Asset: &a})
}

func (b *Bus) AssetChanged(a asset.Asset) {
	b.Publish(Event{Type: EventAssetChanged, Asset: &a})
}

func (b *Bus) AssetScanComplete(result asset.ScanResult) {
	b.Publish(Event{Type: EventScanComplete, Scan: &result})
}

func (b *Bus) OnDemandRecompile(a asset.Asset, reason string) {
	b.Publish(Event{Type: EventRecompileRequested, Asset: &a, Reason: reason})
}

func (b *Bus) OnThumbnailGenerated(a asset.Asset, requestID string, _ image.Image) {
	b.Publish(Event{Type: EventThumbnailGenerated, Asset: &a, RequestID: requestID})
}

var _ host.Host = (*Bus)(nil)
