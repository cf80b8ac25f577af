// Package main is the entry point for the remediation agent.
// The agent acts on predicted cluster problems before they cause outages.
package main

import (
	"os"

	"github.com/softcane/kube-remediator/cmd/remediator/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
