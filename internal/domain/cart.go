package domain

// CartLine is one product entry in the cart. ProductID is unique across the
// cart: adding the same product again merges quantities into the existing line.
// RemoteID is set once the line has a counterpart in the marketplace cart.
type CartLine struct {
	ProductID   int64  `json:"productId" bson:"product_id"`
	RemoteID    *int64 `json:"remoteId,omitempty" bson:"remote_id,omitempty"`
	DisplayName string `json:"displayName" bson:"display_name"`
	UnitPrice   int64  `json:"unitPrice" bson:"unit_price"`
	Quantity    int    `json:"quantity" bson:"quantity"`
	MaxQuantity int    `json:"maxQuantity" bson:"max_quantity"`
	SellerID    int64  `json:"sellerId" bson:"seller_id"`
	SellerName  string `json:"sellerName" bson:"seller_name"`
	Selected    bool   `json:"selected" bson:"selected"`
	ImageURL    string `json:"imageUrl,omitempty" bson:"image_url,omitempty"`
	Note        string `json:"note,omitempty" bson:"note,omitempty"`

	// Display-only snapshot of the product, never sent to the marketplace.
	BrandName      string  `json:"brandName,omitempty" bson:"brand_name,omitempty"`
	Color          string  `json:"color,omitempty" bson:"color,omitempty"`
	StorageGB      int     `json:"storageGb,omitempty" bson:"storage_gb,omitempty"`
	RAMGB          int     `json:"ramGb,omitempty" bson:"ram_gb,omitempty"`
	ScreenSizeInch float64 `json:"screenSizeInch,omitempty" bson:"screen_size_inch,omitempty"`
}

// Product is the catalog snapshot handed to the engine when a line is added.
// Available is the inventory ceiling at the time of the add.
type Product struct {
	ID             int64
	Model          string
	Price          int64
	Available      int
	SellerID       int64
	SellerName     string
	ImageURL       string
	BrandName      string
	Color          string
	StorageGB      int
	RAMGB          int
	ScreenSizeInch float64
}

// Line builds a CartLine from the product snapshot with the given quantity.
func (p Product) Line(quantity int) CartLine {
	return CartLine{
		ProductID:      p.ID,
		DisplayName:    p.Model,
		UnitPrice:      p.Price,
		Quantity:       quantity,
		MaxQuantity:    p.Available,
		SellerID:       p.SellerID,
		SellerName:     p.SellerName,
		ImageURL:       p.ImageURL,
		BrandName:      p.BrandName,
		Color:          p.Color,
		StorageGB:      p.StorageGB,
		RAMGB:          p.RAMGB,
		ScreenSizeInch: p.ScreenSizeInch,
	}
}

// ClampQuantity caps q at max when max is a positive ceiling. The second
// return reports whether clamping happened.
func ClampQuantity(q, max int) (int, bool) {
	if max > 0 && q > max {
		return max, true
	}
	return q, false
}

// Totals are the derived cart aggregates. They are computed on demand and
// never persisted.
type Totals struct {
	Quantity         int   `json:"totalQuantity"`
	Price            int64 `json:"totalPrice"`
	SelectedQuantity int   `json:"selectedQuantity"`
	SelectedPrice    int64 `json:"selectedPrice"`
}

// Aggregate computes the totals over a set of lines.
func Aggregate(lines []CartLine) Totals {
	var t Totals
	for _, l := range lines {
		t.Quantity += l.Quantity
		t.Price += l.UnitPrice * int64(l.Quantity)
		if l.Selected {
			t.SelectedQuantity += l.Quantity
			t.SelectedPrice += l.UnitPrice * int64(l.Quantity)
		}
	}
	return t
}
