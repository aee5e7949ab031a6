/*
Copyright © 2026 Wei-Hsuan Chen <weihsuan.c@fastmail.com>
*/

package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	releaseVersion = "0.2.1"
)

// Package-level logger, replaced with a real zap logger in newCmd.
// Tests leave the nop logger in place.
var logger = zap.NewNop()

func main() {
	cfg := &Config{}
	cobra.CheckErr(newCmd(cfg).Execute())
}
