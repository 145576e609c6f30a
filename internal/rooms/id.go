package rooms

import (
	"strings"

	"github.com/google/uuid"
)

const roomCodeLength = 8

// IDProvider issues room identifiers.
type IDProvider interface {
	NewID() (string, error)
}

type roomCodeProvider struct{}

// NewRoomCodeProvider issues short, shareable uppercase room codes.
func NewRoomCodeProvider() IDProvider {
	return &roomCodeProvider{}
}

func (p *roomCodeProvider) NewID() (string, error) {
	value, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	code := strings.ToUpper(strings.ReplaceAll(value.String(), "-", ""))
	return code[:roomCodeLength], nil
}
