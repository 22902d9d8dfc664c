package design

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecordStartsAsDraft(t *testing.T) {
	r := NewRecord("mount-fuji-sunrise", "Mount Fuji Sunrise", "uploads/fuji.png", []string{"japan", "art"})
	assert.Equal(t, StatusDraft, r.Status)
	assert.Equal(t, SchemaVersion, r.Schema)
	assert.Zero(t, r.AttemptCount)
	assert.Nil(t, r.Printify)
	assert.Nil(t, r.Shopify)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	r := NewRecord("slug", "Title", "ref", nil)
	r.Printify = &PrintifyInfo{ShopID: "shop-1", ProductID: "p-9", BlueprintID: 6, PrintProviderID: 29}
	r.Status = StatusCreated

	raw, err := r.Encode()
	require.NoError(t, err)
	got, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, r.Slug, got.Slug)
	assert.Equal(t, StatusCreated, got.Status)
	require.NotNil(t, got.Printify)
	assert.Equal(t, "p-9", got.Printify.ProductID)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("not json"))
	require.Error(t, err)
}

func TestCanApply(t *testing.T) {
	cases := []struct {
		status  Status
		pending Command
		cmd     Command
		want    bool
	}{
		{StatusDraft, "", CommandCreateProduct, true},
		{StatusCreatingProduct, "", CommandCreateProduct, true},
		{StatusDraft, "", CommandPublishProduct, false},
		{StatusDraft, "", CommandSyncImages, false},
		{StatusCreated, "", CommandPublishProduct, true},
		{StatusCreated, "", CommandCreateProduct, false},
		{StatusPublishing, "", CommandPublishProduct, true},
		{StatusPublished, "", CommandSyncImages, true},
		{StatusPublished, "", CommandPublishProduct, false},
		{StatusSyncingImages, "", CommandSyncImages, true},
		{StatusSynced, "", CommandSyncImages, false},
		{StatusRetrying, CommandPublishProduct, CommandPublishProduct, true},
		{StatusRetrying, CommandPublishProduct, CommandSyncImages, false},
		{StatusFailed, CommandPublishProduct, CommandPublishProduct, false},
	}
	for _, tc := range cases {
		r := &Record{Status: tc.status, PendingStep: tc.pending}
		assert.Equalf(t, tc.want, r.CanApply(tc.cmd), "status=%s pending=%s cmd=%s", tc.status, tc.pending, tc.cmd)
	}
}

func TestCompleted(t *testing.T) {
	r := &Record{Status: StatusDraft}
	assert.False(t, r.Completed(CommandCreateProduct))

	r.Printify = &PrintifyInfo{ProductID: "p-1"}
	assert.True(t, r.Completed(CommandCreateProduct))
	assert.False(t, r.Completed(CommandPublishProduct))

	r.Printify.Published = true
	assert.True(t, r.Completed(CommandPublishProduct))
	assert.False(t, r.Completed(CommandSyncImages))

	r.Status = StatusSynced
	assert.True(t, r.Completed(CommandSyncImages))
}

func TestInFlight(t *testing.T) {
	for _, s := range []Status{StatusCreatingProduct, StatusPublishing, StatusSyncingImages} {
		assert.Truef(t, s.InFlight(), "%s", s)
	}
	for _, s := range []Status{StatusDraft, StatusCreated, StatusPublished, StatusSynced, StatusRetrying, StatusFailed} {
		assert.Falsef(t, s.InFlight(), "%s", s)
	}
}

func TestClearRetryState(t *testing.T) {
	r := &Record{AttemptCount: 3, PendingStep: CommandSyncImages, LastError: &StepError{Kind: "ServerError"}}
	r.ClearRetryState()
	assert.Zero(t, r.AttemptCount)
	assert.Empty(t, r.PendingStep)
	assert.Nil(t, r.LastError)
}
