/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Auth/Users:  UserDTO, RegisterRequest, LoginRequest, LoginResponse, UpdateUserRequest
  Products:    ProductDTO, CreateProductRequest, UpdateProductRequest, AdjustStockRequest
  Sales:       SaleRequest, SaleLineRequest, InvoiceDTO, LineItemDTO, CorrectInvoiceRequest
  History:     SnapshotDTO, AggregateRequest, AmendSnapshotRequest, ReportDTO
  Scenarios:   ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Request types carry go-playground/validator tags, checked by decodeJSON
  before the handler runs. Domain rules (stock, categories, periods) are
  still enforced by the domain packages.

MONEY:
  Amounts are decimal.Decimal and serialize as JSON strings ("12.50").

SEE ALSO:
  - handlers.go, sales.go: Use these types
  - validation.go: decodeJSON
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/backoffice/auth"
	"github.com/warp/backoffice/commerce"
	"github.com/warp/backoffice/report"
)

// =============================================================================
// AUTH / USERS
// =============================================================================

type UserDTO struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type RegisterRequest struct {
	Username string `json:"username" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Role     string `json:"role" validate:"omitempty,oneof=employee customer"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	Token     string  `json:"token"`
	ExpiresAt string  `json:"expires_at"`
	User      UserDTO `json:"user"`
}

type UpdateUserRequest struct {
	Username string `json:"username" validate:"omitempty,max=100"`
	Email    string `json:"email" validate:"omitempty,email"`
	Role     string `json:"role" validate:"omitempty,oneof=employee customer"`
}

func toUserDTO(u auth.User) UserDTO {
	return UserDTO{
		ID:        string(u.ID),
		Username:  u.Username,
		Email:     u.Email,
		Role:      string(u.Role),
		CreatedAt: u.CreatedAt.Format(time.RFC3339),
		UpdatedAt: u.UpdatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// PRODUCTS
// =============================================================================

type ProductDTO struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int64           `json:"stock"`
	Category    string          `json:"category"`
	CreatedAt   string          `json:"created_at"`
	UpdatedAt   string          `json:"updated_at"`
}

type CreateProductRequest struct {
	ID          string          `json:"id" validate:"omitempty,max=64"`
	Name        string          `json:"name" validate:"required,max=200"`
	Description string          `json:"description" validate:"max=2000"`
	Price       decimal.Decimal `json:"price"`
	Stock       int64           `json:"stock" validate:"gte=0"`
	Category    string          `json:"category"`
}

// UpdateProductRequest changes catalog fields. Stock moves only through
// the stock endpoint.
type UpdateProductRequest struct {
	Name        *string          `json:"name" validate:"omitempty,min=1,max=200"`
	Description *string          `json:"description" validate:"omitempty,max=2000"`
	Price       *decimal.Decimal `json:"price"`
	Category    *string          `json:"category"`
}

type AdjustStockRequest struct {
	Delta int64 `json:"delta" validate:"required"`
}

func toProductDTO(p commerce.Product) ProductDTO {
	return ProductDTO{
		ID:          string(p.ID),
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Stock:       p.Stock,
		Category:    string(p.Category),
		CreatedAt:   p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   p.UpdatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// SALES / INVOICES
// =============================================================================

type SaleLineRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int64  `json:"quantity" validate:"gt=0"`
}

type SaleRequest struct {
	// UserID is honoured for employees only.
	UserID   string            `json:"user_id"`
	Products []SaleLineRequest `json:"products" validate:"required,min=1,dive"`
}

type LineItemRequest struct {
	ProductID string          `json:"product_id" validate:"required"`
	Quantity  int64           `json:"quantity" validate:"gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type CorrectInvoiceRequest struct {
	Products []LineItemRequest `json:"products" validate:"required,min=1,dive"`
}

type LineItemDTO struct {
	ProductID string          `json:"product_id"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type InvoiceDTO struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	Products    []LineItemDTO   `json:"products"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	CreatedAt   string          `json:"created_at"`
}

func toInvoiceDTO(inv commerce.Invoice) InvoiceDTO {
	lines := make([]LineItemDTO, len(inv.Lines))
	for i, l := range inv.Lines {
		lines[i] = LineItemDTO{
			ProductID: string(l.ProductID),
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Subtotal:  l.Subtotal(),
		}
	}
	return InvoiceDTO{
		ID:          string(inv.ID),
		UserID:      string(inv.UserID),
		Products:    lines,
		TotalAmount: inv.TotalAmount,
		CreatedAt:   inv.CreatedAt.Format(time.RFC3339Nano),
	}
}

func toInvoiceDTOs(invoices []commerce.Invoice) []InvoiceDTO {
	dtos := make([]InvoiceDTO, len(invoices))
	for i, inv := range invoices {
		dtos[i] = toInvoiceDTO(inv)
	}
	return dtos
}

// =============================================================================
// SALES HISTORY
// =============================================================================

// AggregateRequest names the month to aggregate. Range checks belong to
// commerce.Period so a bad month reports INVALID_PERIOD.
type AggregateRequest struct {
	Month int `json:"month"`
	Year  int `json:"year"`
}

type ProductSalesDTO struct {
	ProductID      string          `json:"product_id"`
	TotalUnitsSold int64           `json:"total_units_sold"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
}

type CategorySalesDTO struct {
	Category       string          `json:"category"`
	TotalUnitsSold int64           `json:"total_units_sold"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
}

type SnapshotDTO struct {
	ID                string             `json:"id"`
	Month             int                `json:"month"`
	Year              int                `json:"year"`
	TotalSalesAmount  decimal.Decimal    `json:"total_sales_amount"`
	TotalProductsSold int64              `json:"total_products_sold"`
	TotalCategorySold int                `json:"total_category_sold"`
	TotalInvoices     int                `json:"total_invoices"`
	MostSoldProducts  []ProductSalesDTO  `json:"most_sold_products"`
	SalesByCategory   []CategorySalesDTO `json:"sales_by_category"`
	AmendsID          string             `json:"amends_id,omitempty"`
	CreatedAt         string             `json:"created_at"`
}

type AmendSnapshotRequest struct {
	TotalSalesAmount  *decimal.Decimal   `json:"total_sales_amount"`
	TotalProductsSold *int64             `json:"total_products_sold" validate:"omitempty,gte=0"`
	TotalInvoices     *int               `json:"total_invoices" validate:"omitempty,gte=0"`
	MostSoldProducts  []ProductSalesDTO  `json:"most_sold_products" validate:"omitempty,dive"`
	SalesByCategory   []CategorySalesDTO `json:"sales_by_category" validate:"omitempty,dive"`
}

func (r AmendSnapshotRequest) toAmendment() (commerce.Amendment, error) {
	a := commerce.Amendment{
		TotalSalesAmount:  r.TotalSalesAmount,
		TotalProductsSold: r.TotalProductsSold,
		TotalInvoices:     r.TotalInvoices,
	}
	if r.MostSoldProducts != nil {
		a.MostSoldProducts = make([]commerce.ProductSales, len(r.MostSoldProducts))
		for i, row := range r.MostSoldProducts {
			a.MostSoldProducts[i] = commerce.ProductSales{
				ProductID:      commerce.ProductID(row.ProductID),
				TotalUnitsSold: row.TotalUnitsSold,
				TotalAmount:    row.TotalAmount,
			}
		}
	}
	if r.SalesByCategory != nil {
		a.SalesByCategory = make([]commerce.CategorySales, len(r.SalesByCategory))
		for i, row := range r.SalesByCategory {
			category, err := commerce.ParseCategory(row.Category)
			if err != nil {
				return commerce.Amendment{}, err
			}
			a.SalesByCategory[i] = commerce.CategorySales{
				Category:       category,
				TotalUnitsSold: row.TotalUnitsSold,
				TotalAmount:    row.TotalAmount,
			}
		}
	}
	return a, nil
}

func toSnapshotDTO(s commerce.Snapshot) SnapshotDTO {
	dto := SnapshotDTO{
		ID:                string(s.ID),
		Month:             int(s.Period.Month),
		Year:              s.Period.Year,
		TotalSalesAmount:  s.TotalSalesAmount,
		TotalProductsSold: s.TotalProductsSold,
		TotalCategorySold: s.TotalCategorySold,
		TotalInvoices:     s.TotalInvoices,
		MostSoldProducts:  make([]ProductSalesDTO, len(s.MostSoldProducts)),
		SalesByCategory:   make([]CategorySalesDTO, len(s.SalesByCategory)),
		AmendsID:          string(s.AmendsID),
		CreatedAt:         s.CreatedAt.Format(time.RFC3339Nano),
	}
	for i, p := range s.MostSoldProducts {
		dto.MostSoldProducts[i] = ProductSalesDTO{ProductID: string(p.ProductID), TotalUnitsSold: p.TotalUnitsSold, TotalAmount: p.TotalAmount}
	}
	for i, c := range s.SalesByCategory {
		dto.SalesByCategory[i] = CategorySalesDTO{Category: string(c.Category), TotalUnitsSold: c.TotalUnitsSold, TotalAmount: c.TotalAmount}
	}
	return dto
}

func toSnapshotDTOs(snaps []commerce.Snapshot) []SnapshotDTO {
	dtos := make([]SnapshotDTO, len(snaps))
	for i, s := range snaps {
		dtos[i] = toSnapshotDTO(s)
	}
	return dtos
}

type ReportDTO struct {
	Snapshot    SnapshotDTO   `json:"sales_data"`
	History     []SnapshotDTO `json:"history"`
	Narrative   string        `json:"ai_generated_report"`
	GeneratedAt string        `json:"generated_at"`
}

func toReportDTO(r report.Report) ReportDTO {
	return ReportDTO{
		Snapshot:    toSnapshotDTO(r.Snapshot),
		History:     toSnapshotDTOs(r.History),
		Narrative:   r.Narrative,
		GeneratedAt: r.GeneratedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// SCENARIOS / COMMON
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}
