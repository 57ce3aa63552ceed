package observer

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// clientMessageSchema accepts the two message kinds a client may send:
// a subscribe (optionally changing its snapshot stride) and a command.
const clientMessageSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "oneOf": [
    {
      "type": "object",
      "required": ["type"],
      "properties": {
        "type": {"const": "subscribe"},
        "stride": {"type": "integer", "minimum": 1, "maximum": 3600}
      },
      "additionalProperties": false
    },
    {
      "type": "object",
      "required": ["type", "command"],
      "properties": {
        "type": {"const": "command"},
        "command": {"enum": ["place_hospital", "place_building", "start", "stop", "clear",
                             "set_auto_deploy", "set_deploy_count", "manual_deploy"]},
        "pos": {
          "type": "object",
          "required": ["x", "y"],
          "properties": {
            "x": {"type": "integer", "minimum": 0},
            "y": {"type": "integer", "minimum": 0}
          },
          "additionalProperties": false
        },
        "enabled": {"type": "boolean"},
        "count": {"type": "integer"}
      },
      "additionalProperties": false,
      "allOf": [
        {"if": {"properties": {"command": {"enum": ["place_hospital", "place_building"]}}}, "then": {"required": ["pos"]}},
        {"if": {"properties": {"command": {"const": "set_auto_deploy"}}}, "then": {"required": ["enabled"]}},
        {"if": {"properties": {"command": {"const": "set_deploy_count"}}}, "then": {"required": ["count"]}}
      ]
    }
  ]
}`

var clientSchema = jsonschema.MustCompileString("client-message.schema.json", clientMessageSchema)

// validateClientMessage checks raw against the client message schema.
func validateClientMessage(raw []byte) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("malformed JSON: %w", err)
	}
	if err := clientSchema.Validate(v); err != nil {
		return fmt.Errorf("invalid message: %w", err)
	}
	return nil
}
