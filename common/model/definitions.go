package model

import (
	"encoding/json"
	"time"
)

// JSONUnmarshal is the single place payloads are decoded from JSON.
func JSONUnmarshal(data []byte, out interface{}) error {
	return json.Unmarshal(data, out)
}

// ----------------------------------------------------------------------
// Envelope
// ----------------------------------------------------------------------

// Envelope is the normalized shape every successful call resolves to.
// Resource endpoints answer with {success, message, data}; endpoints that
// answer with a different shape (login, refresh) keep their body in Raw.
type Envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`

	// Raw is the undecoded response body.
	Raw json.RawMessage `json:"-"`
}

// DecodeData unmarshals the data field into out. An absent data field
// leaves out untouched.
func (e *Envelope) DecodeData(out interface{}) error {
	if e == nil || len(e.Data) == 0 || string(e.Data) == "null" {
		return nil
	}
	return JSONUnmarshal(e.Data, out)
}

// DecodeBody unmarshals the whole response body into out.
func (e *Envelope) DecodeBody(out interface{}) error {
	if e == nil || len(e.Raw) == 0 {
		return nil
	}
	return JSONUnmarshal(e.Raw, out)
}

// ErrorBody is what the Remote API sends with a non-2xx status.
type ErrorBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ----------------------------------------------------------------------
// Identity / Auth Structures
// ----------------------------------------------------------------------

// Identity is the cached snapshot of the logged-in admin. It is kept for
// display only; the Remote API stays authoritative.
type Identity struct {
	ID    string `json:"_id,omitempty"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is the body returned by POST /auth/login.
type LoginResponse struct {
	Admin        Identity `json:"admin"`
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken"`
}

// RefreshRequest is the body of POST /auth/refresh-token and /auth/logout.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// TokenPairResponse is the body returned by POST /auth/refresh-token.
type TokenPairResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// ----------------------------------------------------------------------
// Storefront resources
// ----------------------------------------------------------------------

// Image is a product or content image reference.
type Image struct {
	URL string `json:"url"`
	Alt string `json:"alt,omitempty"`
}

// Product is the single physical product sold by the storefront and its variants.
type Product struct {
	ID          string    `json:"_id,omitempty"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug,omitempty"`
	Description string    `json:"description,omitempty"`
	Price       float64   `json:"price"`
	SalePrice   float64   `json:"salePrice,omitempty"`
	Stock       int       `json:"stock"`
	Images      []Image   `json:"images,omitempty"`
	Features    []string  `json:"features,omitempty"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt,omitempty"`
}

// OrderItem is one line of an order.
type OrderItem struct {
	Product  string  `json:"product"`
	Name     string  `json:"name,omitempty"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

// ShippingAddress is where an order goes.
type ShippingAddress struct {
	FullName   string `json:"fullName"`
	Phone      string `json:"phone,omitempty"`
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// Order statuses the back-office moves orders through.
const (
	OrderPending   = "pending"
	OrderConfirmed = "confirmed"
	OrderShipped   = "shipped"
	OrderDelivered = "delivered"
	OrderCancelled = "cancelled"
)

// Order is a customer order.
type Order struct {
	ID              string          `json:"_id,omitempty"`
	OrderNumber     string          `json:"orderNumber,omitempty"`
	CustomerName    string          `json:"customerName"`
	CustomerEmail   string          `json:"customerEmail"`
	Items           []OrderItem     `json:"items"`
	ShippingAddress ShippingAddress `json:"shippingAddress"`
	TotalAmount     float64         `json:"totalAmount"`
	Status          string          `json:"status"`
	PaymentStatus   string          `json:"paymentStatus,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	CreatedAt       time.Time       `json:"createdAt,omitempty"`
	UpdatedAt       time.Time       `json:"updatedAt,omitempty"`
}

// Review is a customer review shown on the storefront once approved.
type Review struct {
	ID         string    `json:"_id,omitempty"`
	Name       string    `json:"name"`
	Email      string    `json:"email,omitempty"`
	Rating     int       `json:"rating"`
	Title      string    `json:"title,omitempty"`
	Comment    string    `json:"comment"`
	IsApproved bool      `json:"isApproved"`
	CreatedAt  time.Time `json:"createdAt,omitempty"`
}

// FAQ is a question/answer pair.
type FAQ struct {
	ID       string `json:"_id,omitempty"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Category string `json:"category,omitempty"`
	Order    int    `json:"order"`
	IsActive bool   `json:"isActive"`
}

// Admin roles.
const (
	RoleSuperAdmin = "superadmin"
	RoleAdmin      = "admin"
	RoleEditor     = "editor"
)

// Admin is a back-office user account.
type Admin struct {
	ID        string    `json:"_id,omitempty"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Password  string    `json:"password,omitempty"`
	Role      string    `json:"role"`
	IsActive  bool      `json:"isActive"`
	LastLogin time.Time `json:"lastLogin,omitempty"`
}

// WebsiteContent is one editable section of the marketing site (hero,
// about, features, ...). Content is free-form and passed through as-is.
type WebsiteContent struct {
	ID        string          `json:"_id,omitempty"`
	Section   string          `json:"section"`
	Title     string          `json:"title,omitempty"`
	Subtitle  string          `json:"subtitle,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	Images    []Image         `json:"images,omitempty"`
	IsActive  bool            `json:"isActive"`
	UpdatedAt time.Time       `json:"updatedAt,omitempty"`
}
