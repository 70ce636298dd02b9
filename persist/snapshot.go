// SPDX-License-Identifier: Apache-2.0
// Package persist implements the driver's on-disk snapshot document of
// spec.md §4.5: zwcfg_0x<homeid>.xml carries driver-level attributes and
// per-node state (protocol info, product triple, neighbours, and every
// registered command-class's serialized fields), loaded back at startup to
// avoid a full re-interrogation of a network the controller already knows.
package persist

import (
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gozwave/core/node"
)

// schemaVersion is the current snapshot schema; a mismatch aborts load
// rather than attempt an upgrade (spec.md §4.5).
const schemaVersion = 3

// document is the root XML element, named to match OpenZWave's own
// zwcfg_*.xml so an operator recognises the file's provenance.
type document struct {
	XMLName                xml.Name    `xml:"Driver"`
	Version                int         `xml:"version,attr"`
	HomeID                 string      `xml:"home_id,attr"`
	NodeID                 uint8       `xml:"node_id,attr"`
	APICapabilities        string      `xml:"api_capabilities,attr"`
	ControllerCapabilities string      `xml:"controller_capabilities,attr"`
	PollInterval           int         `xml:"poll_interval,attr"`
	Nodes                  []xmlNode   `xml:"Node"`
}

type xmlNode struct {
	ID                uint8             `xml:"id,attr"`
	Listening         bool              `xml:"listening,attr"`
	FrequentListening bool              `xml:"frequent_listening,attr"`
	Routing           bool              `xml:"routing,attr"`
	Beaming           bool              `xml:"beaming,attr"`
	SecurityCapable   bool              `xml:"security_capable,attr"`
	ControllerClass   bool              `xml:"controller_class,attr"`
	Basic             uint8             `xml:"basic,attr"`
	Generic           uint8             `xml:"generic,attr"`
	Specific          uint8             `xml:"specific,attr"`
	ManufacturerID    uint16            `xml:"manufacturer_id,attr"`
	ProductType       uint16            `xml:"product_type,attr"`
	ProductID         uint16            `xml:"product_id,attr"`
	Name              string            `xml:"name,attr,omitempty"`
	Location          string            `xml:"location,attr,omitempty"`
	Neighbours        string            `xml:"neighbours,attr"`
	CommandClasses    []xmlCommandClass `xml:"CommandClass"`
}

type xmlCommandClass struct {
	ID     uint8      `xml:"id,attr"`
	Fields []xmlField `xml:"Field"`
}

type xmlField struct {
	Key   string `xml:"key,attr"`
	Value string `xml:"value,attr"`
}

// Doc is the in-memory form of a loaded or about-to-be-saved snapshot,
// with driver-level attributes and one Snapshot per node.
type Doc struct {
	HomeID                 string
	ControllerNodeID       uint8
	APICapabilities        string
	ControllerCapabilities string
	PollInterval           int
	Nodes                  map[uint8]node.Snapshot

	// CommandClasses holds each node's per-class serialized fields, keyed
	// first by node id then by command class id — kept alongside rather
	// than inside node.Snapshot since only package cc's handlers know how
	// to interpret them.
	CommandClasses map[uint8]map[uint8]map[string]string
}

// Path returns the snapshot file path for a home id, under dir (spec.md
// §4.5's UserPath option).
func Path(dir string, homeID uint32) string {
	return filepath.Join(dir, fmt.Sprintf("zwcfg_0x%08x.xml", homeID))
}

// Save writes doc to path, overwriting any existing file.
func Save(path string, doc *Doc) error {
	out := document{
		Version:                schemaVersion,
		HomeID:                 doc.HomeID,
		NodeID:                 doc.ControllerNodeID,
		APICapabilities:        doc.APICapabilities,
		ControllerCapabilities: doc.ControllerCapabilities,
		PollInterval:           doc.PollInterval,
	}

	for id := uint8(1); ; id++ {
		if snap, ok := doc.Nodes[id]; ok {
			out.Nodes = append(out.Nodes, toXMLNode(snap, doc.CommandClasses[id]))
		}
		if id == 232 {
			break
		}
	}

	data, err := xml.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("persist: marshal snapshot: %w", err)
	}
	data = append([]byte(xml.Header), data...)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("persist: write %s: %w", path, err)
	}
	return nil
}

// Load reads path and validates it against the expected home id and
// controller node id (spec.md §4.5: "any version mismatch aborts load...
// any home-id or node-id mismatch aborts"). Returns (nil, false, nil) on
// any validation failure that should not be treated as an I/O error — the
// caller falls back to an empty table and full init-data query.
func Load(path string, expectHomeID string, expectControllerNodeID uint8) (*Doc, bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("persist: read %s: %w", path, err)
	}

	var in document
	if err := xml.Unmarshal(data, &in); err != nil {
		return nil, false, fmt.Errorf("persist: parse %s: %w", path, err)
	}

	if in.Version != schemaVersion || in.HomeID != expectHomeID || in.NodeID != expectControllerNodeID {
		return nil, false, nil
	}

	doc := &Doc{
		HomeID:                 in.HomeID,
		ControllerNodeID:       in.NodeID,
		APICapabilities:        in.APICapabilities,
		ControllerCapabilities: in.ControllerCapabilities,
		PollInterval:           in.PollInterval,
		Nodes:                  make(map[uint8]node.Snapshot, len(in.Nodes)),
		CommandClasses:         make(map[uint8]map[uint8]map[string]string, len(in.Nodes)),
	}

	for _, xn := range in.Nodes {
		snap := node.Snapshot{
			ID:                xn.ID,
			Listening:         xn.Listening,
			FrequentListening: xn.FrequentListening,
			Routing:           xn.Routing,
			Beaming:           xn.Beaming,
			SecurityCapable:   xn.SecurityCapable,
			ControllerClass:   xn.ControllerClass,
			Basic:             xn.Basic,
			Generic:           xn.Generic,
			Specific:          xn.Specific,
			ManufacturerID:    xn.ManufacturerID,
			ProductType:       xn.ProductType,
			ProductID:         xn.ProductID,
			Name:              xn.Name,
			Location:          xn.Location,
			Stage:             node.StageComplete,
		}
		if raw, err := hex.DecodeString(xn.Neighbours); err == nil && len(raw) == 29 {
			copy(snap.Neighbours[:], raw)
		}
		doc.Nodes[xn.ID] = snap

		classes := make(map[uint8]map[string]string, len(xn.CommandClasses))
		for _, cc := range xn.CommandClasses {
			fields := make(map[string]string, len(cc.Fields))
			for _, f := range cc.Fields {
				fields[f.Key] = f.Value
			}
			classes[cc.ID] = fields
		}
		doc.CommandClasses[xn.ID] = classes
	}

	return doc, true, nil
}

func toXMLNode(snap node.Snapshot, classes map[uint8]map[string]string) xmlNode {
	xn := xmlNode{
		ID:                snap.ID,
		Listening:         snap.Listening,
		FrequentListening: snap.FrequentListening,
		Routing:           snap.Routing,
		Beaming:           snap.Beaming,
		SecurityCapable:   snap.SecurityCapable,
		ControllerClass:   snap.ControllerClass,
		Basic:             snap.Basic,
		Generic:           snap.Generic,
		Specific:          snap.Specific,
		ManufacturerID:    snap.ManufacturerID,
		ProductType:       snap.ProductType,
		ProductID:         snap.ProductID,
		Name:              snap.Name,
		Location:          snap.Location,
		Neighbours:        hex.EncodeToString(snap.Neighbours[:]),
	}

	for id, fields := range classes {
		cc := xmlCommandClass{ID: id}
		for k, v := range fields {
			cc.Fields = append(cc.Fields, xmlField{Key: k, Value: v})
		}
		xn.CommandClasses = append(xn.CommandClasses, cc)
	}
	return xn
}
