package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mshop/cart-agent/internal/auth"
	"github.com/mshop/cart-agent/internal/domain"
	"github.com/mshop/cart-agent/internal/engine"
)

// CartHandler exposes the cart engine to the local UI.
type CartHandler struct {
	cart      *engine.Engine
	tokens    *auth.MemoryProvider
	accountID int64
}

func NewCartHandler(cart *engine.Engine, tokens *auth.MemoryProvider, accountID int64) *CartHandler {
	return &CartHandler{
		cart:      cart,
		tokens:    tokens,
		accountID: accountID,
	}
}

// Routes mounts the cart API onto r.
func (h *CartHandler) Routes(r chi.Router) {
	r.Get("/cart", h.GetCart)
	r.Post("/cart/items", h.AddItem)
	r.Put("/cart/items/{product_id}", h.UpdateQuantity)
	r.Put("/cart/items/{product_id}/note", h.UpdateNote)
	r.Post("/cart/items/{product_id}/toggle", h.ToggleSelected)
	r.Delete("/cart/items/{product_id}", h.RemoveItem)
	r.Delete("/cart", h.ClearCart)
	r.Delete("/cart/selected", h.ClearSelected)
	r.Post("/cart/sync", h.Sync)
	r.Post("/auth/tokens", h.SetTokens)
	r.Delete("/auth/tokens", h.ClearTokens)
}

type AddItemRequestDTO struct {
	Product  ProductDTO `json:"product"`
	Quantity int        `json:"quantity"`
	Note     string     `json:"note,omitempty"`
}

type ProductDTO struct {
	ID             int64   `json:"id"`
	Model          string  `json:"model"`
	Price          int64   `json:"price"`
	Quantity       int     `json:"quantity"` // available stock
	SellerID       int64   `json:"sellerId"`
	SellerName     string  `json:"sellerName"`
	ImageURL       string  `json:"imageUrl,omitempty"`
	BrandName      string  `json:"brandName,omitempty"`
	Color          string  `json:"color,omitempty"`
	StorageGB      int     `json:"storageGb,omitempty"`
	RAMGB          int     `json:"ramGb,omitempty"`
	ScreenSizeInch float64 `json:"screenSizeInch,omitempty"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type UpdateNoteRequestDTO struct {
	Note string `json:"note"`
}

type TokensRequestDTO struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in,omitempty"` // seconds
}

type CartResponseDTO struct {
	Lines   []domain.CartLine `json:"lines"`
	Totals  domain.Totals     `json:"totals"`
	Warning *engine.Warning   `json:"warning,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.snapshot(nil))
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Product.ID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product id must be positive")
		return
	}
	if req.Quantity <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be positive")
		return
	}

	p := domain.Product{
		ID:             req.Product.ID,
		Model:          req.Product.Model,
		Price:          req.Product.Price,
		Available:      req.Product.Quantity,
		SellerID:       req.Product.SellerID,
		SellerName:     req.Product.SellerName,
		ImageURL:       req.Product.ImageURL,
		BrandName:      req.Product.BrandName,
		Color:          req.Product.Color,
		StorageGB:      req.Product.StorageGB,
		RAMGB:          req.Product.RAMGB,
		ScreenSizeInch: req.Product.ScreenSizeInch,
	}

	warn := h.cart.AddLine(r.Context(), p, req.Quantity, h.accountID, req.Note)
	respondJSON(w, http.StatusCreated, h.snapshot(warn))
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}
	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	warn := h.cart.SetQuantity(r.Context(), productID, req.Quantity, h.accountID)
	respondJSON(w, http.StatusOK, h.snapshot(warn))
}

func (h *CartHandler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}
	var req UpdateNoteRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	h.cart.SetNote(r.Context(), productID, req.Note, h.accountID)
	respondJSON(w, http.StatusOK, h.snapshot(nil))
}

func (h *CartHandler) ToggleSelected(w http.ResponseWriter, r *http.Request) {
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}
	h.cart.ToggleSelected(r.Context(), productID)
	respondJSON(w, http.StatusOK, h.snapshot(nil))
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}
	h.cart.RemoveLine(r.Context(), productID, h.accountID)
	respondJSON(w, http.StatusOK, h.snapshot(nil))
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	h.cart.Clear(r.Context())
	respondJSON(w, http.StatusOK, h.snapshot(nil))
}

func (h *CartHandler) ClearSelected(w http.ResponseWriter, r *http.Request) {
	h.cart.ClearSelected(r.Context())
	respondJSON(w, http.StatusOK, h.snapshot(nil))
}

func (h *CartHandler) Sync(w http.ResponseWriter, r *http.Request) {
	if err := h.cart.Sync(r.Context(), h.accountID); err != nil {
		respondError(w, http.StatusBadGateway, "sync_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, h.snapshot(nil))
}

// SetTokens installs the token pair produced by the UI's login flow.
func (h *CartHandler) SetTokens(w http.ResponseWriter, r *http.Request) {
	var req TokensRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.AccessToken == "" {
		respondError(w, http.StatusBadRequest, "invalid_token", "access_token is required")
		return
	}
	ttl := 30 * time.Minute
	if req.ExpiresIn > 0 {
		ttl = time.Duration(req.ExpiresIn) * time.Second
	}
	h.tokens.SetTokens(req.AccessToken, req.RefreshToken, ttl)
	w.WriteHeader(http.StatusNoContent)
}

// ClearTokens drops the credentials and empties the local cart, the logout
// path. The remote cart is untouched.
func (h *CartHandler) ClearTokens(w http.ResponseWriter, r *http.Request) {
	h.tokens.Clear()
	h.cart.Clear(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandler) snapshot(warn *engine.Warning) CartResponseDTO {
	return CartResponseDTO{
		Lines:   h.cart.Lines(),
		Totals:  h.cart.Totals(),
		Warning: warn,
	}
}

func productIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "product_id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be a positive integer")
		return 0, false
	}
	return id, true
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{Error: message, Code: code})
}
