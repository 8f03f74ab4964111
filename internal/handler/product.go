package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/buildkart/buildkart/internal/domain/product"
)

type productResponse struct {
	ID            string  `json:"id"`
	DistributorID string  `json:"distributorId"`
	Name          string  `json:"name"`
	Category      string  `json:"category,omitempty"`
	Unit          string  `json:"unit,omitempty"`
	Price         float64 `json:"price"`
	Stock         int     `json:"stock"`
	Image         string  `json:"image,omitempty"`
}

// productToResponse converts a catalog product into its response shape.
// Relative image paths are prefixed with the configured imageBaseURL.
func (h *Handler) productToResponse(p product.Product) productResponse {
	image := p.Image
	if image != "" {
		image = h.imageBaseURL + image
	}
	return productResponse{
		ID:            p.ID,
		DistributorID: p.DistributorID,
		Name:          p.Name,
		Category:      p.Category,
		Unit:          p.Unit,
		Price:         p.Price.InexactFloat64(),
		Stock:         p.Stock,
		Image:         image,
	}
}

// ListProducts returns every active product in the catalog.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}

	out := make([]productResponse, len(products))
	for i, p := range products {
		out[i] = h.productToResponse(p)
	}
	writeJSON(w, http.StatusOK, out)
}

// GetProduct returns a single product by ID.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetByID(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.productToResponse(*p))
}
