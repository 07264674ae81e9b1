/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package klog

import (
	"flag"
	"strconv"

	"k8s.io/klog/v2"
)

// Init wires klog to the service's logging layout: logs to logfilePath
// (rotated at logFileSize megabytes) mirrored to stderr, or stderr only
// when no file is configured (the one-shot reconcile mode runs that way).
func Init(logfilePath string, logFileSize int) error {
	klog.InitFlags(nil)
	if logfilePath == "" {
		flag.Set("logtostderr", "true")
	} else {
		flag.Set("log_file", logfilePath)
		flag.Set("alsologtostderr", "true")
		flag.Set("logtostderr", "false")
		if logFileSize > 0 {
			flag.Set("log_file_max_size", strconv.Itoa(logFileSize))
		}
	}
	flag.Set("skip_log_headers", "true")
	flag.Parse()
	return nil
}
