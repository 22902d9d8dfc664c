package design

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/printloom/go-services/internal/gateway"
	"github.com/printloom/go-services/internal/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	col, err := store.Open(t.TempDir(), "designs")
	require.NoError(t, err)
	return NewService(col)
}

func TestRegisterAndGet(t *testing.T) {
	svc := newTestService(t)

	rec, err := svc.Register("tokyo-neon", "Tokyo Neon", "uploads/neon.png", []string{"city"})
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, rec.Status)
	assert.Equal(t, int64(1), rec.UpdatedVersion)

	got, err := svc.Get("tokyo-neon")
	require.NoError(t, err)
	assert.Equal(t, "Tokyo Neon", got.Title)
	assert.Equal(t, []string{"city"}, got.Tags)
}

func TestRegisterDuplicateSlug(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Register("dup", "First", "ref", nil)
	require.NoError(t, err)
	_, err = svc.Register("dup", "Second", "ref", nil)
	require.ErrorIs(t, err, ErrExists)

	// the original record is untouched
	got, err := svc.Get("dup")
	require.NoError(t, err)
	assert.Equal(t, "First", got.Title)
}

func TestGetNotFound(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Get("nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListSortedBySlug(t *testing.T) {
	svc := newTestService(t)
	for _, slug := range []string{"zebra", "alpha", "mid"} {
		_, err := svc.Register(slug, slug, "ref", nil)
		require.NoError(t, err)
	}
	list, err := svc.List()
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "alpha", list[0].Slug)
	assert.Equal(t, "mid", list[1].Slug)
	assert.Equal(t, "zebra", list[2].Slug)
}

func TestDelete(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Register("gone", "Gone", "ref", nil)
	require.NoError(t, err)
	require.NoError(t, svc.Delete("gone"))
	_, err = svc.Get("gone")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, svc.Delete("gone"), ErrNotFound)
}

func TestApplyMetadata(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Register("md", "Original", "ref", []string{"old"})
	require.NoError(t, err)

	rec, err := svc.ApplyMetadata("md", gateway.Metadata{
		Title:       "Better Title",
		Description: "A longer pitch.",
		Tags:        []string{"new", "tags"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Better Title", rec.Title)
	assert.Equal(t, "A longer pitch.", rec.Description)
	assert.Equal(t, []string{"new", "tags"}, rec.Tags)
	assert.Equal(t, int64(2), rec.UpdatedVersion)

	// empty fields leave the existing values alone
	rec, err = svc.ApplyMetadata("md", gateway.Metadata{Description: "Only this changes."})
	require.NoError(t, err)
	assert.Equal(t, "Better Title", rec.Title)
	assert.Equal(t, "Only this changes.", rec.Description)
	assert.Equal(t, []string{"new", "tags"}, rec.Tags)
}

func TestAttachMockupsDedupes(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Register("m", "M", "ref", nil)
	require.NoError(t, err)

	rec, err := svc.AttachMockups("m", []string{"mockups/m/a.png", "mockups/m/b.png"})
	require.NoError(t, err)
	assert.Equal(t, []string{"mockups/m/a.png", "mockups/m/b.png"}, rec.Mockups)

	rec, err = svc.AttachMockups("m", []string{"mockups/m/b.png", "mockups/m/c.png"})
	require.NoError(t, err)
	assert.Equal(t, []string{"mockups/m/a.png", "mockups/m/b.png", "mockups/m/c.png"}, rec.Mockups)
}
