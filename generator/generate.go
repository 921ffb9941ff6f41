// Package generator migrates a stored, legacy MongoDB aggregation
// pipeline (raw extended-JSON text) back into Go source that constructs
// the equivalent expr.Pipeline. It is the inverse of translate.go: where
// that package lowers a typed tree to BSON, this package raises BSON back
// to a typed tree, for callers retiring a hand-built pipeline in favor of
// a LINQ-style front-end.
package generator

import (
	"bytes"
	"fmt"
	"go/format"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Generate parses extended-JSON text and returns the equivalent Go source.
// An array is treated as a full pipeline (-> expr.Pipeline); an object is
// treated as a single match-style expression (-> expr.Expression).
func Generate(jsonStr string) (string, error) {
	str := strings.TrimSpace(jsonStr)
	if strings.HasPrefix(str, "[") {
		return GeneratePipeline(str)
	}
	return GenerateExpression(str)
}

// GenerateExpression parses an extended-JSON object and returns Go source
// constructing the equivalent expr.Expression, treating top-level fields
// as an implicit conjunction the way a $match stage body would.
func GenerateExpression(jsonStr string) (string, error) {
	var doc bson.D
	if err := bson.UnmarshalExtJSON([]byte(jsonStr), true, &doc); err != nil {
		return "", fmt.Errorf("failed to parse JSON: %w", err)
	}

	code, err := translateMatchBody(doc)
	if err != nil {
		return "", err
	}
	return gofmt(code)
}

// GeneratePipeline parses an extended-JSON array and returns Go source
// constructing the equivalent expr.Pipeline.
func GeneratePipeline(jsonStr string) (string, error) {
	var arr bson.A
	if err := bson.UnmarshalExtJSON([]byte(jsonStr), true, &arr); err != nil {
		return "", fmt.Errorf("failed to parse JSON array: %w", err)
	}

	code, err := translatePipeline(arr)
	if err != nil {
		return "", err
	}
	return gofmt(code)
}

func gofmt(code string) (string, error) {
	formatted, err := format.Source([]byte(code))
	if err != nil {
		return code, fmt.Errorf("failed to format generated code: %w\nOutput was:\n%s", err, code)
	}
	return string(bytes.TrimSpace(formatted)), nil
}
