/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package manifest

import (
	"bytes"
	"encoding/csv"
	"strconv"
)

// csvHeader is the stable collected-manifest column order consumed by the
// reconciler and by downstream review tooling.
var csvHeader = []string{
	"Custodian", "Kind", "DriveId", "ItemId", "Path", "Size", "SHA256", "StorageUri", "CollectedUtc",
}

// EncodeCSV renders the manifest entries in the stable CSV layout with
// RFC 4180 quoting.
func EncodeCSV(m *Manifest) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for i := range m.Items {
		entry := &m.Items[i]
		record := []string{
			entry.Custodian,
			entry.ItemType,
			"", // drive id is unset for API-collected items
			entry.SourceItemId,
			entry.ArtifactPath,
			strconv.FormatInt(entry.SizeBytes, 10),
			entry.Sha256,
			entry.ArtifactPath,
			entry.CollectedAt,
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
