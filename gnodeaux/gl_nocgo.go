//go:build tinygo || !cgo

package gnodeaux

import (
	"errors"

	"github.com/soypat/gnode/scene"
)

func ui(cfg scene.Config, ucfg UIConfig) error {
	return errors.New("require cgo for UI rendering")
}
