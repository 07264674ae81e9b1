/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package reconcile

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// columnAliases maps every accepted header spelling, lowercased, onto the
// canonical column name.
var columnAliases = map[string]string{
	"custodian":      "custodian",
	"kind":           "kind",
	"itemtype":       "kind",
	"item_type":      "kind",
	"driveid":        "drive_id",
	"drive_id":       "drive_id",
	"itemid":         "item_id",
	"item_id":        "item_id",
	"id":             "item_id",
	"source_item_id": "item_id",
	"path":           "path",
	"filepath":       "path",
	"file_path":      "path",
	"artifact_path":  "path",
	"size":           "size",
	"filesize":       "size",
	"file_size":      "size",
	"size_bytes":     "size",
	"sha256":         "sha256",
	"hash":           "sha256",
	"storageuri":     "storage_uri",
	"storage_uri":    "storage_uri",
	"collectedutc":   "collected_utc",
	"collected_utc":  "collected_utc",
	"collected_at":   "collected_utc",
	"lastmodified":   "last_modified",
	"modified":       "last_modified",
}

// LoadRows reads a manifest file in any of the accepted formats: CSV with
// flexible headers, a JSON array, or JSON lines. Rows that fail to parse
// are dropped with a warning; the warn count is returned alongside.
func LoadRows(path string) ([]*Row, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "failed to read manifest %s", path)
	}
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})

	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return loadCSV(path, data)
	}
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return loadJSONArray(path, trimmed)
	}
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return loadJSONLines(path, trimmed)
	}
	// no JSON shape detected, assume headered CSV
	return loadCSV(path, data)
}

func loadCSV(path string, data []byte) ([]*Row, int, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		if err == io.EOF {
			return nil, 0, nil
		}
		return nil, 0, errors.Wrapf(err, "failed to read csv header of %s", path)
	}
	columns := make([]string, len(header))
	for i, name := range header {
		columns[i] = columnAliases[strings.ToLower(strings.TrimSpace(name))]
	}

	var rows []*Row
	warns := 0
	line := 1
	for {
		record, err := r.Read()
		line++
		if err == io.EOF {
			break
		}
		if err != nil {
			klog.Warningf("%s line %d: unparseable csv row: %v", path, line, err)
			warns++
			continue
		}
		fields := map[string]string{}
		for i, value := range record {
			if i < len(columns) && columns[i] != "" {
				fields[columns[i]] = strings.TrimSpace(value)
			}
		}
		row, err := rowFromFields(fields)
		if err != nil {
			klog.Warningf("%s line %d: %v", path, line, err)
			warns++
			continue
		}
		rows = append(rows, row)
	}
	return rows, warns, nil
}

func loadJSONArray(path string, data []byte) ([]*Row, int, error) {
	var raw []map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, 0, errors.Wrapf(err, "failed to parse json manifest %s", path)
	}
	var rows []*Row
	warns := 0
	for i, obj := range raw {
		row, err := rowFromFields(flattenFields(obj))
		if err != nil {
			klog.Warningf("%s entry %d: %v", path, i, err)
			warns++
			continue
		}
		rows = append(rows, row)
	}
	return rows, warns, nil
}

func loadJSONLines(path string, data []byte) ([]*Row, int, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	var rows []*Row
	warns := 0
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var obj map[string]interface{}
		if err := json.Unmarshal([]byte(text), &obj); err != nil {
			klog.Warningf("%s line %d: unparseable json row: %v", path, line, err)
			warns++
			continue
		}
		row, err := rowFromFields(flattenFields(obj))
		if err != nil {
			klog.Warningf("%s line %d: %v", path, line, err)
			warns++
			continue
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, warns, errors.Wrapf(err, "failed to scan %s", path)
	}
	return rows, warns, nil
}

// flattenFields lowers the keys of a decoded JSON object through the alias
// table and renders values as strings.
func flattenFields(obj map[string]interface{}) map[string]string {
	fields := map[string]string{}
	for key, value := range obj {
		canonical := columnAliases[strings.ToLower(key)]
		if canonical == "" {
			continue
		}
		switch v := value.(type) {
		case string:
			fields[canonical] = strings.TrimSpace(v)
		case float64:
			fields[canonical] = strconv.FormatInt(int64(v), 10)
		case bool:
			fields[canonical] = strconv.FormatBool(v)
		}
	}
	return fields
}

func rowFromFields(fields map[string]string) (*Row, error) {
	row := &Row{
		Custodian:    fields["custodian"],
		Kind:         fields["kind"],
		DriveId:      fields["drive_id"],
		ItemId:       fields["item_id"],
		Path:         fields["path"],
		Sha256:       fields["sha256"],
		StorageUri:   fields["storage_uri"],
		CollectedUtc: fields["collected_utc"],
		LastModified: fields["last_modified"],
	}
	if row.Path == "" && (row.DriveId == "" || row.ItemId == "") {
		return nil, errors.New("row has no path and no complete (drive_id, item_id) pair")
	}
	if raw := fields["size"]; raw != "" {
		size, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "bad size %q", raw)
		}
		row.Size = size
	}
	return row, nil
}
