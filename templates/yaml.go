package templates

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/ledger-engine/ledger"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// YAML EXPORT / IMPORT
// =============================================================================
//
//	title: Rent
//	amount: "1200"
//	note: monthly
//	line_items:
//	  - account: 6f1c...   # account unique id
//	    amount: "-1200"
//	    memo: landlord

type document struct {
	Title     string         `yaml:"title"`
	Amount    string         `yaml:"amount"`
	Note      string         `yaml:"note,omitempty"`
	LineItems []lineItemNode `yaml:"line_items,omitempty"`
}

type lineItemNode struct {
	Account string `yaml:"account,omitempty"`
	Amount  string `yaml:"amount"`
	Memo    string `yaml:"memo,omitempty"`
}

// Export renders a template as YAML. Returns ledger.ErrNotFound when the
// template does not exist.
func (c *Catalog) Export(ctx context.Context, id int64) ([]byte, error) {
	t, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("template %d: %w", id, ledger.ErrNotFound)
	}

	doc := document{Title: t.Title, Amount: t.Amount.String(), Note: t.Note}
	for _, li := range t.LineItems {
		doc.LineItems = append(doc.LineItems, lineItemNode{
			Account: li.AccountID,
			Amount:  li.Amount.String(),
			Memo:    li.Memo,
		})
	}
	return yaml.Marshal(doc)
}

// Import creates a template from YAML produced by Export.
func (c *Catalog) Import(ctx context.Context, data []byte) (int64, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return 0, fmt.Errorf("%w: template: %v", ledger.ErrMalformed, err)
	}

	in := CreateInput{Title: doc.Title, Note: doc.Note}
	var err error
	if in.Amount, err = parseAmount(doc.Amount); err != nil {
		return 0, err
	}
	for i, node := range doc.LineItems {
		amount, err := parseAmount(node.Amount)
		if err != nil {
			return 0, fmt.Errorf("line item %d: %w", i, err)
		}
		in.LineItems = append(in.LineItems, LineItemInput{
			AccountID: node.Account,
			Amount:    amount,
			Memo:      node.Memo,
		})
	}
	return c.Create(ctx, in)
}

func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: amount %q", ledger.ErrMalformed, s)
	}
	return d, nil
}
