package design

import (
	"encoding/json"
	"fmt"
	"time"
)

// SchemaVersion tags persisted records so fields can be added later without
// breaking stored documents.
const SchemaVersion = 1

// Status is the publishing state of a design.
type Status string

const (
	StatusDraft           Status = "Draft"
	StatusCreatingProduct Status = "CreatingProduct"
	StatusCreated         Status = "Created"
	StatusPublishing      Status = "Publishing"
	StatusPublished       Status = "Published"
	StatusSyncingImages   Status = "SyncingImages"
	StatusSynced          Status = "Synced"
	StatusRetrying        Status = "Retrying"
	StatusFailed          Status = "Failed"
)

// Command names one orchestrator step.
type Command string

const (
	CommandCreateProduct  Command = "create_product"
	CommandPublishProduct Command = "publish_product"
	CommandSyncImages     Command = "sync_images"
)

// InFlight reports whether the status marks an external call in progress.
// A record in one of these states rejects further commands until the call
// completes or the record is resumed after a crash.
func (s Status) InFlight() bool {
	switch s {
	case StatusCreatingProduct, StatusPublishing, StatusSyncingImages:
		return true
	}
	return false
}

// PrintifyInfo records the fulfillment-service side of a published design.
// Absent (nil) until product creation succeeded.
type PrintifyInfo struct {
	ShopID          string   `json:"shop_id"`
	BlueprintID     int      `json:"blueprint_id"`
	PrintProviderID int      `json:"print_provider_id"`
	ProductID       string   `json:"product_id"`
	Variants        []int    `json:"variants,omitempty"`
	PrintAreas      []string `json:"print_areas,omitempty"`
	Published       bool     `json:"published"`
}

// ShopifyInfo records the storefront side. Absent until image sync succeeded
// at least partially; UploadedImageRefs grows as individual uploads land so a
// retry resumes with the remainder.
type ShopifyInfo struct {
	ProductID         string   `json:"product_id"`
	UploadedImageRefs []string `json:"uploaded_image_refs,omitempty"`
}

// StepError is the structured last_error recorded on a failed step.
type StepError struct {
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Record is the persisted design entity, keyed by slug.
type Record struct {
	Schema         int           `json:"schema_version"`
	Slug           string        `json:"slug"`
	Title          string        `json:"title"`
	Description    string        `json:"description,omitempty"`
	Tags           []string      `json:"tags,omitempty"`
	SourceImageRef string        `json:"source_image_ref"`
	Mockups        []string      `json:"mockups,omitempty"`
	Printify       *PrintifyInfo `json:"printify,omitempty"`
	Shopify        *ShopifyInfo  `json:"shopify,omitempty"`
	Status         Status        `json:"status"`
	PendingStep    Command       `json:"pending_step,omitempty"`
	AttemptCount   int           `json:"attempt_count"`
	LastError      *StepError    `json:"last_error,omitempty"`
	UpdatedAt      time.Time     `json:"updated_at"`

	// UpdatedVersion mirrors the store document's version after a commit.
	// Not part of the persisted payload.
	UpdatedVersion int64 `json:"-"`
}

// NewRecord registers a design as a Draft.
func NewRecord(slug, title, sourceImageRef string, tags []string) *Record {
	return &Record{
		Schema:         SchemaVersion,
		Slug:           slug,
		Title:          title,
		Tags:           tags,
		SourceImageRef: sourceImageRef,
		Status:         StatusDraft,
	}
}

// Decode parses a stored payload into a Record.
func Decode(payload []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(payload, &r); err != nil {
		return nil, fmt.Errorf("design: decode record: %w", err)
	}
	return &r, nil
}

// Encode serializes a Record for storage.
func (r *Record) Encode() (json.RawMessage, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("design: encode record: %w", err)
	}
	return raw, nil
}

// CanApply reports whether cmd is valid from the record's current state.
// A Retrying record only accepts the command it is pending on.
func (r *Record) CanApply(cmd Command) bool {
	if r.Status == StatusRetrying {
		return r.PendingStep == cmd
	}
	switch cmd {
	case CommandCreateProduct:
		return r.Status == StatusDraft || r.Status == StatusCreatingProduct
	case CommandPublishProduct:
		return r.Status == StatusCreated || r.Status == StatusPublishing
	case CommandSyncImages:
		return r.Status == StatusPublished || r.Status == StatusSyncingImages
	}
	return false
}

// Completed reports whether the record already carries the result cmd would
// produce, making the command an idempotent no-op.
func (r *Record) Completed(cmd Command) bool {
	switch cmd {
	case CommandCreateProduct:
		return r.Printify != nil && r.Printify.ProductID != ""
	case CommandPublishProduct:
		return r.Printify != nil && r.Printify.Published
	case CommandSyncImages:
		return r.Status == StatusSynced
	}
	return false
}

// ClearRetryState resets retry bookkeeping after a successful transition.
func (r *Record) ClearRetryState() {
	r.AttemptCount = 0
	r.LastError = nil
	r.PendingStep = ""
}
