package root

import (
	"github.com/calmhaven/calmhaven-backend/apps/cli/cmd/auth"
	"github.com/calmhaven/calmhaven-backend/apps/cli/cmd/bootstrap"
)

func init() {
	Root().AddCommand(auth.Command())
	Root().AddCommand(bootstrap.Command())
}
