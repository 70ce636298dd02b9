// SPDX-License-Identifier: Apache-2.0
package cc

import (
	"sync"

	"github.com/gozwave/core/message"
	"github.com/gozwave/core/node"
	"github.com/gozwave/core/zwmsg"
)

const (
	configurationCommandSet    uint8 = 0x04
	configurationCommandGet    uint8 = 0x05
	configurationCommandReport uint8 = 0x06
)

// Configuration handles COMMAND_CLASS_CONFIGURATION. Unlike the fixed
// stages before it, its parameter set is device-specific: the node manager
// drives it by calling RequestParameter for whatever parameter list the
// device-database (out of scope, spec.md §1) supplies; with none known,
// AdvanceQuery has nothing to request and StageConfiguration is entered and
// left immediately (spec.md §4.4 edge case).
type Configuration struct {
	nodeID uint8

	mu     sync.RWMutex
	values map[uint8]int32
}

// NewConfiguration returns a handler for nodeID.
func NewConfiguration(nodeID uint8) *Configuration {
	return &Configuration{nodeID: nodeID, values: make(map[uint8]int32)}
}

// ClassID implements node.CommandClassHandler.
func (c *Configuration) ClassID() uint8 { return zwmsg.CommandClassConfiguration }

// HandleIncoming implements node.CommandClassHandler.
func (c *Configuration) HandleIncoming(commandID uint8, data []uint8) {
	if commandID != configurationCommandReport || len(data) < 2 {
		return
	}
	param := data[0]
	size := int(data[1] & 0x07)
	if size == 0 || len(data) < 2+size {
		return
	}
	var value int32
	for _, b := range data[2 : 2+size] {
		value = (value << 8) | int32(b)
	}
	c.mu.Lock()
	c.values[param] = value
	c.mu.Unlock()
}

// AdvanceQuery implements node.CommandClassHandler; with no known
// parameter list there is nothing to request at StageConfiguration.
func (c *Configuration) AdvanceQuery(nodeID uint8, stage node.Stage) ([]*message.Message, bool) {
	return nil, false
}

// RequestState implements node.CommandClassHandler.
func (c *Configuration) RequestState(nodeID uint8) []*message.Message { return nil }

// RequestParameter builds a Get for a single configuration parameter.
func (c *Configuration) RequestParameter(param uint8) *message.Message {
	return query(c.nodeID, zwmsg.CommandClassConfiguration, []uint8{configurationCommandGet, param})
}

// SetParameter builds a Set for a single-byte configuration parameter.
func (c *Configuration) SetParameter(param uint8, value uint8, callbackID uint8) *message.Message {
	payload := []uint8{configurationCommandSet, param, 0x01, value}
	return set(c.nodeID, zwmsg.CommandClassConfiguration, payload, callbackID)
}

// Parameter returns the last-known value of param.
func (c *Configuration) Parameter(param uint8) (int32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[param]
	return v, ok
}

// Serialize implements node.CommandClassHandler.
func (c *Configuration) Serialize() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.values) == 0 {
		return nil
	}
	out := make(map[string]string, len(c.values))
	for param, v := range c.values {
		out["param_"+itoa8(param)] = itoa32(v)
	}
	return out
}

// Deserialize implements node.CommandClassHandler.
func (c *Configuration) Deserialize(fields map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, v := range fields {
		if len(key) <= 6 || key[:6] != "param_" {
			continue
		}
		param := atoi8(key[6:])
		c.values[param] = atoi32(v)
	}
}
