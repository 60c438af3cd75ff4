package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"text/template"

	"github.com/shopspring/decimal"
	"github.com/warp/backoffice/commerce"
)

// PromptInput is everything the narrative prompt is rendered from.
type PromptInput struct {
	Current  commerce.Snapshot
	Earlier  []commerce.Snapshot
	Products map[commerce.ProductID]commerce.Product
}

type productView struct {
	ProductID   commerce.ProductID `json:"productId"`
	Name        string             `json:"name,omitempty"`
	Description string             `json:"description,omitempty"`
	Category    commerce.Category  `json:"category,omitempty"`
	Price       *decimal.Decimal   `json:"price,omitempty"`
	UnitsSold   int64              `json:"unitsSold"`
	TotalAmount decimal.Decimal    `json:"totalAmount"`
}

type categoryView struct {
	Category    commerce.Category `json:"category"`
	UnitsSold   int64             `json:"unitsSold"`
	TotalAmount decimal.Decimal   `json:"totalAmount"`
}

type monthView struct {
	Month            int             `json:"month"`
	Year             int             `json:"year"`
	TotalSales       decimal.Decimal `json:"totalSales"`
	TotalUnitsSold   int64           `json:"totalUnitsSold"`
	TotalInvoices    int             `json:"totalInvoices"`
	MostSoldProducts []productView   `json:"mostSoldProducts"`
	SalesByCategory  []categoryView  `json:"salesByCategory"`
}

var promptTemplate = template.Must(template.New("report").Parse(`You are a business analyst specialised in retail sales. Using the sales history below, write a detailed report of at least 1000 words covering the following points.

1. Overview
   - Summarise sales performance for {{.Period}}.
   - State whether sales rose or fell compared with earlier months.
   - Earlier months this year:
{{.Earlier}}

2. Sales analysis
   - Total sales amount: {{.TotalSales}}
   - Total units sold: {{.TotalUnits}}
   - Total invoices issued: {{.TotalInvoices}}
   - Average ticket: {{.AverageTicket}}. Comment on whether it is high or low.

3. Best-selling products
   - List the best sellers and the units sold of each.
   - Say whether one product dominates and what share of revenue it represents.
{{.Products}}

4. Performance by category
{{.Categories}}
   - Which category sells the most and which the least?
   - Could weaker categories benefit from promotions or discounts?

5. Trends and patterns
   - Identify patterns across months and any seasonal variation.

6. Strategic recommendations
   - Suggestions to grow sales over the coming months.
   - Products whose stock should be increased.
   - Marketing campaigns the data supports.
   - Pricing adjustments worth considering.

7. Conclusion
   - Close with an overall view of the month and concrete next steps.

Be specific and structured, and give the sales team actionable insights.
`))

// BuildPrompt renders the narrative prompt. Product names are included
// where the product still exists.
func BuildPrompt(in PromptInput) (string, error) {
	current := toMonthView(in.Current, in.Products)

	earlier := make([]monthView, 0, len(in.Earlier))
	for _, s := range in.Earlier {
		earlier = append(earlier, toMonthView(s, in.Products))
	}

	earlierJSON, err := json.MarshalIndent(earlier, "   ", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode earlier months: %w", err)
	}
	productsJSON, err := json.MarshalIndent(current.MostSoldProducts, "   ", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode products: %w", err)
	}
	categoriesJSON, err := json.MarshalIndent(current.SalesByCategory, "   ", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode categories: %w", err)
	}

	average := decimal.Zero
	if in.Current.TotalInvoices > 0 {
		average = in.Current.TotalSalesAmount.Div(decimal.NewFromInt(int64(in.Current.TotalInvoices))).Round(2)
	}

	var buf bytes.Buffer
	err = promptTemplate.Execute(&buf, map[string]any{
		"Period":        in.Current.Period.String(),
		"Earlier":       "   " + string(earlierJSON),
		"TotalSales":    in.Current.TotalSalesAmount.StringFixed(2),
		"TotalUnits":    in.Current.TotalProductsSold,
		"TotalInvoices": in.Current.TotalInvoices,
		"AverageTicket": average.StringFixed(2),
		"Products":      "   " + string(productsJSON),
		"Categories":    "   " + string(categoriesJSON),
	})
	if err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return buf.String(), nil
}

func toMonthView(s commerce.Snapshot, products map[commerce.ProductID]commerce.Product) monthView {
	v := monthView{
		Month:            int(s.Period.Month),
		Year:             s.Period.Year,
		TotalSales:       s.TotalSalesAmount,
		TotalUnitsSold:   s.TotalProductsSold,
		TotalInvoices:    s.TotalInvoices,
		MostSoldProducts: make([]productView, 0, len(s.MostSoldProducts)),
		SalesByCategory:  make([]categoryView, 0, len(s.SalesByCategory)),
	}
	for _, ps := range s.MostSoldProducts {
		pv := productView{ProductID: ps.ProductID, UnitsSold: ps.TotalUnitsSold, TotalAmount: ps.TotalAmount}
		if p, ok := products[ps.ProductID]; ok {
			price := p.Price
			pv.Name, pv.Description, pv.Category, pv.Price = p.Name, p.Description, p.Category, &price
		}
		v.MostSoldProducts = append(v.MostSoldProducts, pv)
	}
	for _, cs := range s.SalesByCategory {
		v.SalesByCategory = append(v.SalesByCategory, categoryView{Category: cs.Category, UnitsSold: cs.TotalUnitsSold, TotalAmount: cs.TotalAmount})
	}
	return v
}
