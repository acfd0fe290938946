// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package recording

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/tidwall/jsonc"

	"github.com/bureau-foundation/sendlog/protocol"
)

// MetadataFile is the name of the metadata file in a recording directory.
const MetadataFile = "log.json"

// Metadata is the session description sent with Accept or Reject. Info is
// opaque to the sender; only the exit fields are interpreted.
type Metadata struct {
	// SubmitTime is when the recorded command started. Taken from
	// submit_time in log.json, or the timing file's modification time.
	SubmitTime time.Time

	// Info holds every metadata entry as a key/value record, sorted by
	// key. Nested objects are flattened with dotted keys.
	Info []protocol.InfoRecord

	// ExitValue, Signal, and DumpedCore describe how the command ended.
	ExitValue  int32
	Signal     string
	DumpedCore bool
}

// LoadMetadata reads log.json from dir. A missing file yields empty
// metadata whose SubmitTime is the timing file's modification time.
func LoadMetadata(dir string, options Options) (Metadata, error) {
	var metadata Metadata
	if info, err := os.Stat(filepath.Join(dir, TimingFile)); err == nil {
		metadata.SubmitTime = info.ModTime()
	}

	file, err := openDecoded(filepath.Join(dir, MetadataFile), options)
	if errors.Is(err, fs.ErrNotExist) {
		return metadata, nil
	}
	if err != nil {
		return Metadata{}, fmt.Errorf("opening metadata: %w", err)
	}
	defer file.Close()
	raw, err := io.ReadAll(file)
	if err != nil {
		return Metadata{}, fmt.Errorf("reading metadata: %w", err)
	}
	return parseMetadata(raw, metadata)
}

func parseMetadata(raw []byte, metadata Metadata) (Metadata, error) {
	decoder := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(raw)))
	decoder.UseNumber()
	var document map[string]any
	if err := decoder.Decode(&document); err != nil {
		return Metadata{}, fmt.Errorf("parsing %s: %w", MetadataFile, err)
	}

	if submit, ok := document["submit_time"].(map[string]any); ok {
		seconds, _ := jsonInt(submit["seconds"])
		nanoseconds, _ := jsonInt(submit["nanoseconds"])
		metadata.SubmitTime = time.Unix(seconds, nanoseconds)
	}
	if value, ok := jsonInt(document["exit_value"]); ok {
		metadata.ExitValue = int32(value)
	}
	if signal, ok := document["signal"].(string); ok {
		metadata.Signal = signal
	}
	if dumped, ok := document["dumped_core"].(bool); ok {
		metadata.DumpedCore = dumped
	}

	metadata.Info = flattenInfo("", document, nil)
	sort.Slice(metadata.Info, func(i, j int) bool {
		return metadata.Info[i].Key < metadata.Info[j].Key
	})
	return metadata, nil
}

// flattenInfo converts a decoded JSON object into info records.
func flattenInfo(prefix string, object map[string]any, records []protocol.InfoRecord) []protocol.InfoRecord {
	for key, value := range object {
		if prefix != "" {
			key = prefix + "." + key
		}
		switch typed := value.(type) {
		case string:
			records = append(records, protocol.StringInfo(key, typed))
		case json.Number:
			if number, err := typed.Int64(); err == nil {
				records = append(records, protocol.NumberInfo(key, number))
			} else {
				records = append(records, protocol.StringInfo(key, typed.String()))
			}
		case bool:
			records = append(records, protocol.StringInfo(key, strconv.FormatBool(typed)))
		case []any:
			values := make([]string, 0, len(typed))
			for _, element := range typed {
				values = append(values, fmt.Sprint(element))
			}
			records = append(records, protocol.StringsInfo(key, values))
		case map[string]any:
			records = flattenInfo(key, typed, records)
		}
	}
	return records
}

func jsonInt(value any) (int64, bool) {
	number, ok := value.(json.Number)
	if !ok {
		return 0, false
	}
	parsed, err := number.Int64()
	return parsed, err == nil
}
