package main

import (
	"github.com/variantdev/ebs-deploy/cmd"
)

func main() {
	cmd.Execute()
}
