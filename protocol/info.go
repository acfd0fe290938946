// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// InfoType identifies which value field of an InfoRecord is set.
type InfoType uint8

const (
	InfoString  InfoType = 1
	InfoNumber  InfoType = 2
	InfoStrings InfoType = 3
)

// InfoRecord is one key/value pair of session metadata (user, host,
// command, working directory, and so on). The sender treats the set as
// opaque; only Type says which value field is meaningful.
type InfoRecord struct {
	Key     string   `cbor:"1,keyasint"`
	Type    InfoType `cbor:"2,keyasint"`
	Text    string   `cbor:"3,keyasint,omitempty"`
	Number  int64    `cbor:"4,keyasint,omitempty"`
	Strings []string `cbor:"5,keyasint,omitempty"`
}

// StringInfo returns a string-valued record.
func StringInfo(key, value string) InfoRecord {
	return InfoRecord{Key: key, Type: InfoString, Text: value}
}

// NumberInfo returns an integer-valued record.
func NumberInfo(key string, value int64) InfoRecord {
	return InfoRecord{Key: key, Type: InfoNumber, Number: value}
}

// StringsInfo returns a string-list-valued record.
func StringsInfo(key string, values []string) InfoRecord {
	return InfoRecord{Key: key, Type: InfoStrings, Strings: values}
}

// String renders the record as key=value for logs.
func (record InfoRecord) String() string {
	switch record.Type {
	case InfoString:
		return record.Key + "=" + record.Text
	case InfoNumber:
		return record.Key + "=" + strconv.FormatInt(record.Number, 10)
	case InfoStrings:
		return record.Key + "=[" + strings.Join(record.Strings, " ") + "]"
	default:
		return fmt.Sprintf("%s=<type %d>", record.Key, record.Type)
	}
}
