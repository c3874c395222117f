package host

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/assetforge/internal/asset"
	"github.com/conduit-lang/assetforge/internal/handle"
)

type countingHost struct {
	Nop
	added   int
	handles bool
	err     error
	tried   int
	menu    string
}

func (c *countingHost) AssetAdded(asset.Asset) { c.added++ }

func (c *countingHost) TryManagedCompile(context.Context, CompileRequest) (bool, error) {
	c.tried++
	return c.handles, c.err
}

func (c *countingHost) PopulateAssetMenu(menu *Menu, _ []asset.Asset) {
	menu.Add(c.menu, c.menu, nil)
}

type fakeRequest struct{}

func (fakeRequest) Handle() handle.Handle { return handle.Handle{Index: 1, Generation: 1} }
func (fakeRequest) Asset() asset.Asset    { return asset.Asset{RelativePath: "a.mdl"} }

func TestMulti_FansOutNotifications(t *testing.T) {
	a, b := &countingHost{}, &countingHost{}
	m := NewMulti(a, nil, b)

	m.AssetAdded(asset.Asset{})
	assert.Equal(t, 1, a.added)
	assert.Equal(t, 1, b.added)
	assert.Equal(t, 2, m.Len())
}

func TestMulti_FirstManagedCompilerWins(t *testing.T) {
	first := &countingHost{}
	second := &countingHost{handles: true}
	third := &countingHost{handles: true}
	m := NewMulti(first, second, third)

	handled, err := m.TryManagedCompile(context.Background(), fakeRequest{})
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, 1, first.tried)
	assert.Equal(t, 1, second.tried)
	assert.Equal(t, 0, third.tried)
}

func TestMulti_ManagedCompileErrorStops(t *testing.T) {
	failing := &countingHost{err: errors.New("boom")}
	after := &countingHost{handles: true}
	m := NewMulti(failing, after)

	handled, err := m.TryManagedCompile(context.Background(), fakeRequest{})
	assert.False(t, handled)
	assert.EqualError(t, err, "boom")
	assert.Equal(t, 0, after.tried)
}

func TestMulti_Remove(t *testing.T) {
	a, b := &countingHost{}, &countingHost{}
	m := NewMulti(a, b)

	m.Remove(a)
	m.AssetAdded(asset.Asset{})
	assert.Equal(t, 0, a.added)
	assert.Equal(t, 1, b.added)
}

func TestMulti_PopulateAssetMenu(t *testing.T) {
	m := NewMulti(&countingHost{menu: "open"}, &countingHost{menu: "reveal"})
	menu := &Menu{}

	m.PopulateAssetMenu(menu, nil)

	require.Len(t, menu.Items, 2)
	_, ok := menu.Find("reveal")
	assert.True(t, ok)
}

func TestNop_DoesNotHandleCompiles(t *testing.T) {
	handled, err := Nop{}.TryManagedCompile(context.Background(), fakeRequest{})
	assert.False(t, handled)
	assert.NoError(t, err)
}
