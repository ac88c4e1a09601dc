// go-common local proxy functions

package fat

import (
	"fmt"

	"github.com/rstms/fatnav"
	"github.com/rstms/go-common"
)

func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return fatnav.WithLocation(common.Fatal(err), err)
}

func Fatalf(format string, args ...interface{}) error {
	err := fmt.Errorf(format, args...)
	return fatnav.WithLocation(common.Fatal(err), err)
}
