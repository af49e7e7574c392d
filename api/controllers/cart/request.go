package cart

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/shopflow-backend/pkg/errors"
)

type addItemRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"gte=1,max=999"`
}

// Quantity is a pointer so an explicit 0 is told apart from a missing field.
type setQuantityRequest struct {
	Quantity *int `json:"quantity" validate:"required,gte=0,max=999"`
}

func parseDistance(r *http.Request) (*float64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("distance_km"))
	if raw == "" {
		return nil, nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "distance_km must be a non-negative number").WithDetails(map[string]any{"field": "distance_km"})
	}
	return &value, nil
}
