package gateway

import "context"

// ProductSpec is the payload for creating a draft product on the fulfillment
// service. Shapes follow the Printify v1 create-product request.
type ProductSpec struct {
	Title           string      `json:"title"`
	Description     string      `json:"description"`
	Tags            []string    `json:"tags,omitempty"`
	BlueprintID     int         `json:"blueprint_id"`
	PrintProviderID int         `json:"print_provider_id"`
	Variants        []Variant   `json:"variants"`
	PrintAreas      []PrintArea `json:"print_areas"`
}

type Variant struct {
	ID        int  `json:"id"`
	Price     int  `json:"price"`
	IsEnabled bool `json:"is_enabled"`
	IsDefault bool `json:"is_default,omitempty"`
}

type PrintArea struct {
	VariantIDs   []int         `json:"variant_ids"`
	Placeholders []Placeholder `json:"placeholders"`
	Background   string        `json:"background,omitempty"`
}

type Placeholder struct {
	Position string      `json:"position"`
	Images   []PlacedArt `json:"images"`
}

// PlacedArt positions one uploaded image inside a placeholder.
type PlacedArt struct {
	ID    string  `json:"id"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Scale float64 `json:"scale"`
	Angle int     `json:"angle"`
}

// ProductRef identifies a draft product created on the fulfillment service.
type ProductRef struct {
	ID     string
	ShopID string
}

// PublishDetails selects which product fields the publish call pushes to the
// storefront. The zero value is not useful; use DefaultPublishDetails.
type PublishDetails struct {
	Title       bool `json:"title"`
	Description bool `json:"description"`
	Images      bool `json:"images"`
	Variants    bool `json:"variants"`
	Tags        bool `json:"tags"`
}

func DefaultPublishDetails() PublishDetails {
	return PublishDetails{Title: true, Description: true, Images: true, Variants: true, Tags: true}
}

// UploadedImage is one storefront image created from a mockup ref.
type UploadedImage struct {
	ID  string
	Src string
}

// PrintifyGateway is the fulfillment-service surface the orchestrator drives.
type PrintifyGateway interface {
	CreateProduct(ctx context.Context, spec ProductSpec) (ProductRef, error)
	PublishProduct(ctx context.Context, shopID, productID string, details PublishDetails) error
}

// ArtUploader pushes artwork into the fulfillment service's media library so
// product specs can reference it by id.
type ArtUploader interface {
	UploadArt(ctx context.Context, fileName, srcURL string) (string, error)
}

// ShopifyGateway is the storefront surface used for mockup image sync.
type ShopifyGateway interface {
	UploadImages(ctx context.Context, productID string, imageRefs []string) ([]UploadedImage, error)
}

// StorefrontProduct is the live storefront view of a published product.
type StorefrontProduct struct {
	ID     string          `json:"id"`
	Title  string          `json:"title"`
	Images []UploadedImage `json:"images"`
}

// StorefrontReader fetches the storefront product so a caller can verify what
// actually landed after publishing and image sync.
type StorefrontReader interface {
	GetProduct(ctx context.Context, productID string) (StorefrontProduct, error)
}

// MockupRenderer composites a design onto a product template. Implementations
// live outside this service; output is only ever stored as an opaque ref.
type MockupRenderer interface {
	Render(ctx context.Context, sourceImageRef, template string) (string, error)
}

// Metadata is an advisor suggestion for a design's listing copy.
type Metadata struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// MetadataAdvisor suggests listing metadata from design context.
type MetadataAdvisor interface {
	Suggest(ctx context.Context, designContext string) (Metadata, error)
}
