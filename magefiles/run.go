//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Vantaview runs the clear-and-present demo directly via go run.
func (Run) Vantaview() error {
	fmt.Println("Run vantaview...")
	_, err := executeCmd("go", withArgs("run", "./cmd/vantaview"), withStream())
	return err
}
