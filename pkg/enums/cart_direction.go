package enums

import "fmt"

// CartDirection is the quantity change requested for a cart line.
type CartDirection string

const (
	CartDirectionAdd   CartDirection = "add"
	CartDirectionMinus CartDirection = "minus"
)

func (d CartDirection) IsValid() bool {
	return d == CartDirectionAdd || d == CartDirectionMinus
}

// ParseCartDirection converts raw input into a CartDirection.
func ParseCartDirection(value string) (CartDirection, error) {
	d := CartDirection(value)
	if !d.IsValid() {
		return "", fmt.Errorf("invalid cart direction %q", value)
	}
	return d, nil
}
