package persist

import (
	"path/filepath"
	"testing"

	"github.com/gozwave/core/node"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "zwcfg_0x00000001.xml")

	snap := node.Snapshot{
		ID:             5,
		Listening:      true,
		Basic:          0x04,
		Generic:        0x10,
		Specific:       0x01,
		ManufacturerID: 0x1234,
		ProductType:    0x5678,
		ProductID:      0x9abc,
		Name:           "Hallway",
		Location:       "Upstairs",
	}
	snap.Neighbours[0] = 0xff

	doc := &Doc{
		HomeID:           "0x00000001",
		ControllerNodeID: 1,
		APICapabilities:  "caps",
		PollInterval:     30,
		Nodes:            map[uint8]node.Snapshot{5: snap},
		CommandClasses: map[uint8]map[uint8]map[string]string{
			5: {0x72: {"manufacturer_id": "4660"}},
		},
	}

	require.NoError(t, Save(path, doc))

	loaded, ok, err := Load(path, "0x00000001", 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Hallway", loaded.Nodes[5].Name)
	require.Equal(t, uint16(0x1234), loaded.Nodes[5].ManufacturerID)
	require.Equal(t, byte(0xff), loaded.Nodes[5].Neighbours[0])
	require.Equal(t, node.StageComplete, loaded.Nodes[5].Stage)
	require.Equal(t, "4660", loaded.CommandClasses[5][0x72]["manufacturer_id"])
}

func TestLoadRejectsHomeIDMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "zwcfg_0x00000001.xml")

	require.NoError(t, Save(path, &Doc{HomeID: "0x00000001", ControllerNodeID: 1, Nodes: map[uint8]node.Snapshot{}}))

	_, ok, err := Load(path, "0x00000002", 1)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	_, ok, err := Load(filepath.Join(t.TempDir(), "missing.xml"), "0x1", 1)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestButtonsSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "zwbutton.xml")

	m := ButtonMap{3: {1: 10, 2: 11}}
	require.NoError(t, SaveButtons(path, m))

	loaded, err := LoadButtons(path)
	require.NoError(t, err)
	require.Equal(t, uint8(10), loaded[3][1])
	require.Equal(t, uint8(11), loaded[3][2])
}
