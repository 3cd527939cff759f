//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// Vantaview builds the cmd/vantaview demo binary.
func (Build) Vantaview() error {
	fmt.Println("Build vantaview...")
	_, err := executeCmd("go", withArgs("build", "-o", "bin/vantaview", "./cmd/vantaview"), withStream())
	return err
}
