// panmk compiles documents with pandoc and keeps a viewer in sync while
// they are edited.
package main

import (
	"os"

	"github.com/hupe1980/panmk/pkg/panmk"
)

func main() {
	os.Exit(panmk.Main(panmk.DefaultRegistry()))
}
