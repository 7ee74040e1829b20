// Copyright 2026 Weft ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package serialization saves and restores composite graphs as
// versioned msgpack artifacts.
package serialization

import (
	"github.com/weft-ml/weft/internal/composite"
	"github.com/weft-ml/weft/internal/serialization"
	"github.com/weft-ml/weft/internal/tensor"
)

// Dict is the schema-free dictionary form every artifact round-trips
// through.
type Dict = serialization.Dict

// Format versions this build can read. Marshal always writes
// CurrentVersion.
const (
	Version1       = serialization.Version1
	Version2       = serialization.Version2
	Version3       = serialization.Version3
	CurrentVersion = serialization.CurrentVersion
)

// Serialize renders the composite as a version-tagged dictionary.
func Serialize(c *composite.Composite) (Dict, error) {
	return serialization.Serialize(c)
}

// Marshal renders the composite as msgpack bytes.
func Marshal(c *composite.Composite) ([]byte, error) {
	return serialization.Marshal(c)
}

// Deserialize reconstructs a composite from dictionary form, placing
// stored tensor values on the given device.
func Deserialize(d Dict, device tensor.Device) (*composite.Composite, error) {
	return serialization.Deserialize(d, device)
}

// Unmarshal reconstructs a composite from msgpack bytes.
func Unmarshal(data []byte, device tensor.Device) (*composite.Composite, error) {
	return serialization.Unmarshal(data, device)
}

// Decode and encode errors.
var (
	ErrUnsupportedVersion = serialization.ErrUnsupportedVersion
	ErrMalformed          = serialization.ErrMalformed
	ErrUnknownOperation   = serialization.ErrUnknownOperation
)
