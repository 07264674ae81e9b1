/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package options

import (
	"flag"
	"fmt"
)

type Options struct {
	Config      string
	LogfilePath string
	LogFileSize int

	// Reconcile switches the binary into one-shot reconciliation mode:
	// custos --reconcile <custodian> <job_id> <source_manifest> <collected_manifest>
	Reconcile bool
	DryRun    bool
	Args      []string
}

func (opt *Options) InitFlags() error {
	if opt == nil {
		return fmt.Errorf("the options is not initialized")
	}
	flag.StringVar(&opt.Config, "config", "", "Path to the custos config.yaml")
	flag.IntVar(&opt.LogFileSize, "log_file_size", 0,
		"Defines the maximum size of the log file. Unit is megabytes. "+
			"The default is 0, which means that the size is unlimited.")
	flag.StringVar(&opt.LogfilePath, "log_file_path", "", "Path to the log file")
	flag.BoolVar(&opt.Reconcile, "reconcile", false,
		"Run one reconciliation pass against a source manifest and exit")
	flag.BoolVar(&opt.DryRun, "dry-run", false,
		"With --reconcile, skip writing the discrepancy report")
	flag.Parse()
	opt.Args = flag.Args()
	if opt.Config == "" && !opt.Reconcile {
		return fmt.Errorf("-config is not found")
	}

	return nil
}
