package linqpipe

import (
	"bytes"
	"encoding/json"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Serializable is implemented by Result to produce BSON and JSON output.
type Serializable interface {
	// BsonD returns the translated pipeline as a []bson.D (mongo.Pipeline),
	// suitable for passing directly to mongo.Collection.Aggregate.
	BsonD() []bson.D

	// JSON returns the pipeline as a pretty-printed JSON array string.
	// Useful for debugging and logging queries.
	JSON() string

	// CompactJSON returns the pipeline as a compact (no whitespace) JSON array string.
	CompactJSON() string
}

// toJSON converts a bson.D to a pretty-printed JSON string.
func toJSON(d bson.D) string {
	raw, err := bson.MarshalExtJSON(d, false, false)
	if err != nil {
		return "{}"
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}

// toCompactJSON converts a bson.D to a compact JSON string.
func toCompactJSON(d bson.D) string {
	raw, err := bson.MarshalExtJSON(d, false, false)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

// pipelineToJSON converts a mongo.Pipeline ([]bson.D) to a pretty-printed JSON array string.
func pipelineToJSON(stages []bson.D) string {
	result := make([]json.RawMessage, 0, len(stages))
	for _, stage := range stages {
		raw, err := bson.MarshalExtJSON(stage, false, false)
		if err != nil {
			continue
		}
		result = append(result, raw)
	}
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(out)
}

// pipelineToCompactJSON converts a mongo.Pipeline to a compact JSON array string.
func pipelineToCompactJSON(stages []bson.D) string {
	result := make([]json.RawMessage, 0, len(stages))
	for _, stage := range stages {
		raw, err := bson.MarshalExtJSON(stage, false, false)
		if err != nil {
			continue
		}
		result = append(result, raw)
	}
	out, err := json.Marshal(result)
	if err != nil {
		return "[]"
	}
	return string(out)
}
