package resources

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/guarzo/storefront/common/model"
	"github.com/guarzo/storefront/modules/api"
)

// Collection paths on the Remote API.
const (
	ProductsPath       = "/products"
	OrdersPath         = "/orders"
	ReviewsPath        = "/reviews"
	FAQsPath           = "/faqs"
	AdminsPath         = "/admins"
	WebsiteContentPath = "/website-content"
)

// Services groups the back-office resources behind one client.
type Services struct {
	Products       *Resource[model.Product]
	Orders         *OrderService
	Reviews        *ReviewService
	FAQs           *Resource[model.FAQ]
	Admins         *Resource[model.Admin]
	WebsiteContent *ContentService
}

func New(client api.Requester) *Services {
	return &Services{
		Products:       NewResource[model.Product](client, ProductsPath),
		Orders:         &OrderService{Resource: NewResource[model.Order](client, OrdersPath)},
		Reviews:        &ReviewService{Resource: NewResource[model.Review](client, ReviewsPath)},
		FAQs:           NewResource[model.FAQ](client, FAQsPath),
		Admins:         NewResource[model.Admin](client, AdminsPath),
		WebsiteContent: &ContentService{Resource: NewResource[model.WebsiteContent](client, WebsiteContentPath)},
	}
}

type OrderService struct {
	*Resource[model.Order]
}

// ListByStatus is List filtered on one status.
func (s *OrderService) ListByStatus(ctx context.Context, status string) ([]model.Order, error) {
	return s.List(ctx, url.Values{"status": {status}})
}

// UpdateStatus moves an order to status (PATCH /orders/{id}/status).
func (s *OrderService) UpdateStatus(ctx context.Context, id, status string) (*model.Order, error) {
	p, err := s.item(id, "status")
	if err != nil {
		return nil, err
	}
	return s.patchPath(ctx, p, map[string]string{"status": status})
}

type ReviewService struct {
	*Resource[model.Review]
}

// SetApproved publishes or hides a review (PATCH /reviews/{id}/approve).
func (s *ReviewService) SetApproved(ctx context.Context, id string, approved bool) (*model.Review, error) {
	p, err := s.item(id, "approve")
	if err != nil {
		return nil, err
	}
	return s.patchPath(ctx, p, map[string]bool{"isApproved": approved})
}

// ContentService edits the marketing site's sections, addressed by name.
type ContentService struct {
	*Resource[model.WebsiteContent]
}

func (s *ContentService) GetSection(ctx context.Context, section string) (*model.WebsiteContent, error) {
	return s.Get(ctx, section)
}

// UpdateSection replaces a section's free-form content.
func (s *ContentService) UpdateSection(ctx context.Context, section string, content json.RawMessage) (*model.WebsiteContent, error) {
	current, err := s.GetSection(ctx, section)
	if err != nil {
		return nil, err
	}
	current.Content = content
	return s.Update(ctx, section, *current)
}
