package models

import (
	"errors"
	"math"
	"time"
)

var ErrInvalidQuantity = errors.New("quantity must be at least 1")

// CartLine is one product in a shopping cart.
type CartLine struct {
	ProductID      string  `json:"productId"`
	Name           string  `json:"name"`
	UnitPrice      float64 `json:"unitPrice"`
	Quantity       int     `json:"quantity"`
	ImageRef       string  `json:"imageRef,omitempty"`
	InStock        bool    `json:"inStock"`
	AvailableStock int     `json:"availableStock"`
}

// Cart is a session-scoped, ordered list of lines with unique product ids.
// A Cart is not safe for concurrent use; callers own it for the duration of
// a request.
type Cart struct {
	SessionID string     `json:"sessionId"`
	Lines     []CartLine `json:"lines"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

func NewCart(sessionID string) *Cart {
	return &Cart{SessionID: sessionID, Lines: []CartLine{}}
}

// Add merges line into the cart. An existing line for the same product has
// its quantity increased; the stored price and name are kept.
func (c *Cart) Add(line CartLine) error {
	if line.Quantity < 1 {
		return ErrInvalidQuantity
	}
	if i := c.index(line.ProductID); i >= 0 {
		c.Lines[i].Quantity += line.Quantity
		c.Lines[i].InStock = line.InStock
		c.Lines[i].AvailableStock = line.AvailableStock
		return nil
	}
	c.Lines = append(c.Lines, line)
	return nil
}

// Remove drops the line for productID. Removing an absent product is a no-op.
func (c *Cart) Remove(productID string) {
	if i := c.index(productID); i >= 0 {
		c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
	}
}

// SetQuantity replaces a line's quantity; q <= 0 removes the line.
func (c *Cart) SetQuantity(productID string, q int) bool {
	i := c.index(productID)
	if i < 0 {
		return false
	}
	if q <= 0 {
		c.Remove(productID)
		return true
	}
	c.Lines[i].Quantity = q
	return true
}

func (c *Cart) Clear() {
	c.Lines = []CartLine{}
}

func (c *Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

// Total is the display total, rounded to two decimals.
func (c *Cart) Total() float64 {
	var sum float64
	for _, l := range c.Lines {
		sum += l.UnitPrice * float64(l.Quantity)
	}
	return RoundMoney(sum)
}

// Snapshot returns a copy of the lines that later cart edits cannot affect.
func (c *Cart) Snapshot() []CartLine {
	out := make([]CartLine, len(c.Lines))
	copy(out, c.Lines)
	return out
}

func (c *Cart) index(productID string) int {
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// RoundMoney rounds to two decimal places, half away from zero.
func RoundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}

type AddCartItemRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
}

type UpdateCartItemRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}
