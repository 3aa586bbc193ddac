package catalog

import (
	"context"
	"fmt"

	"github.com/Abhinav-Eluri/ProjectZahra/orders-service/internal/order"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Artwork is the priced catalog view of a sellable item.
type Artwork struct {
	ID       string
	Title    string
	ImageURL string
	Price    order.Money
}

// Catalog is the authoritative price source for checkout.
type Catalog struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Catalog {
	return &Catalog{pool: pool}
}

// Price returns the current artwork for every id.
// An id that is unknown, hidden or not sellable fails the whole lookup with order.ErrPricing.
func (c *Catalog) Price(ctx context.Context, ids []string) (map[string]Artwork, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT id, title, image_url, price::text, visible
		FROM artworks
		WHERE id = ANY($1::text[])`, ids,
	)
	if err != nil {
		return nil, fmt.Errorf("query artworks: %w", err)
	}
	defer rows.Close()

	found := make(map[string]Artwork, len(ids))
	for rows.Next() {
		var (
			id, title, image, price string
			visible                 bool
		)
		if err := rows.Scan(&id, &title, &image, &price, &visible); err != nil {
			return nil, err
		}
		a, err := toArtwork(id, title, image, price, visible)
		if err != nil {
			return nil, err
		}
		found[id] = a
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, id := range ids {
		if _, ok := found[id]; !ok {
			return nil, fmt.Errorf("%w: item %q is not in the catalog", order.ErrPricing, id)
		}
	}
	return found, nil
}

func toArtwork(id, title, image, price string, visible bool) (Artwork, error) {
	if !visible {
		return Artwork{}, fmt.Errorf("%w: item %q is not for sale", order.ErrPricing, id)
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return Artwork{}, fmt.Errorf("%w: item %q has malformed price %q", order.ErrPricing, id, price)
	}
	amount, err := order.MoneyFromDecimal(d)
	if err != nil {
		return Artwork{}, fmt.Errorf("%w: item %q: %v", order.ErrPricing, id, err)
	}
	if amount <= 0 {
		return Artwork{}, fmt.Errorf("%w: item %q has no price", order.ErrPricing, id)
	}
	return Artwork{ID: id, Title: title, ImageURL: image, Price: amount}, nil
}
