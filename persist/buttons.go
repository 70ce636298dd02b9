// SPDX-License-Identifier: Apache-2.0
package persist

import (
	"encoding/xml"
	"fmt"
	"os"
)

// buttonDocument is the root of zwbutton.xml: a bridge controller's map of
// virtual nodes it is impersonating on behalf of physical remote buttons
// (spec.md §7).
type buttonDocument struct {
	XMLName xml.Name       `xml:"Buttons"`
	Nodes   []buttonNode   `xml:"Node"`
}

type buttonNode struct {
	ID      uint8          `xml:"id,attr"`
	Buttons []buttonEntry  `xml:"Button"`
}

type buttonEntry struct {
	ID        uint8 `xml:"id,attr"`
	VirtualID uint8 `xml:"virtual_id,attr"`
}

// ButtonMap is node id -> { logical button id -> virtual node id }.
type ButtonMap map[uint8]map[uint8]uint8

// ButtonsPath returns the fixed zwbutton.xml path under dir.
func ButtonsPath(dir string) string {
	return dir + string(os.PathSeparator) + "zwbutton.xml"
}

// SaveButtons writes m to path.
func SaveButtons(path string, m ButtonMap) error {
	var doc buttonDocument
	for nodeID, buttons := range m {
		bn := buttonNode{ID: nodeID}
		for buttonID, virtualID := range buttons {
			bn.Buttons = append(bn.Buttons, buttonEntry{ID: buttonID, VirtualID: virtualID})
		}
		doc.Nodes = append(doc.Nodes, bn)
	}

	data, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("persist: marshal button map: %w", err)
	}
	data = append([]byte(xml.Header), data...)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("persist: write %s: %w", path, err)
	}
	return nil
}

// LoadButtons reads path, returning an empty map if it does not exist.
func LoadButtons(path string) (ButtonMap, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return ButtonMap{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("persist: read %s: %w", path, err)
	}

	var doc buttonDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("persist: parse %s: %w", path, err)
	}

	m := make(ButtonMap, len(doc.Nodes))
	for _, bn := range doc.Nodes {
		buttons := make(map[uint8]uint8, len(bn.Buttons))
		for _, b := range bn.Buttons {
			buttons[b.ID] = b.VirtualID
		}
		m[bn.ID] = buttons
	}
	return m, nil
}
