/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package main

import (
	"fmt"
	"os"

	"k8s.io/klog/v2"

	"github.com/AMD-AIG-AIMA/Custos/pkg/server"
)

func main() {
	s, err := server.NewServer()
	if err != nil {
		fmt.Println("failed to new server, err: ", err.Error())
		os.Exit(1)
	}
	if s.Options().Reconcile {
		passed, err := s.RunReconcile()
		if err != nil {
			klog.ErrorS(err, "reconciliation failed to run")
			os.Exit(2)
		}
		if !passed {
			os.Exit(1)
		}
		return
	}
	s.Start()
}
