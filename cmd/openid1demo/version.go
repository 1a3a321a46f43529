package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

const demoVersion = "0.1.0"

func commandVersion() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version and exit",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf(`openid1demo Version: %s
Go Version: %s
Go OS/ARCH: %s %s
`, demoVersion, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
