package linqpipe

import (
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/marrow-systems/linqpipe/expr"
)

// translateMethodCall dispatches a recognized method call to its operator
// document. Dispatch is on Method.Name, with each case checking the
// receiver and the number of Args it needs; Method.Arity and
// Method.DeclaringType are not consulted.
func translateMethodCall(n expr.MethodCall) (any, error) {
	switch n.Method.Name {
	case "IsNullOrEmpty":
		if len(n.Args) != 1 {
			break
		}
		s, err := translateValue(n.Args[0])
		if err != nil {
			return nil, err
		}
		return bson.D{{Key: "$or", Value: bson.A{
			bson.D{{Key: "$eq", Value: bson.A{s, nil}}},
			bson.D{{Key: "$eq", Value: bson.A{s, ""}}},
		}}}, nil

	case "Equals":
		return translateStringEquals(n)

	case "Substring":
		if n.Receiver == nil || len(n.Args) != 2 {
			break
		}
		s, err := translateValue(n.Receiver)
		if err != nil {
			return nil, err
		}
		start, err := translateValue(n.Args[0])
		if err != nil {
			return nil, err
		}
		length, err := translateValue(n.Args[1])
		if err != nil {
			return nil, err
		}
		return bson.D{{Key: "$substr", Value: bson.A{s, start, length}}}, nil

	case "ToLower", "ToLowerInvariant":
		if n.Receiver == nil {
			break
		}
		s, err := translateValue(n.Receiver)
		if err != nil {
			return nil, err
		}
		return bson.D{{Key: "$toLower", Value: s}}, nil

	case "ToUpper", "ToUpperInvariant":
		if n.Receiver == nil {
			break
		}
		s, err := translateValue(n.Receiver)
		if err != nil {
			return nil, err
		}
		return bson.D{{Key: "$toUpper", Value: s}}, nil

	case "IsSubsetOf":
		if n.Receiver == nil || len(n.Args) != 1 {
			break
		}
		h, err := translateValue(n.Receiver)
		if err != nil {
			return nil, err
		}
		o, err := translateValue(n.Args[0])
		if err != nil {
			return nil, err
		}
		return bson.D{{Key: "$setIsSubset", Value: bson.A{h, o}}}, nil

	case "SetEquals":
		if n.Receiver == nil || len(n.Args) != 1 {
			break
		}
		h, err := translateValue(n.Receiver)
		if err != nil {
			return nil, err
		}
		o, err := translateValue(n.Args[0])
		if err != nil {
			return nil, err
		}
		return bson.D{{Key: "$setEquals", Value: bson.A{h, o}}}, nil

	case "CompareTo":
		if n.Receiver == nil || len(n.Args) != 1 {
			break
		}
		x, err := translateValue(n.Receiver)
		if err != nil {
			return nil, err
		}
		y, err := translateValue(n.Args[0])
		if err != nil {
			return nil, err
		}
		return bson.D{{Key: "$cmp", Value: bson.A{x, y}}}, nil
	}

	return nil, unsupportedExpr(n, "")
}

// translateStringEquals handles both s.Equals(t) / s.Equals(t, Ordinal)
// (plain $eq) and s.Equals(t, OrdinalIgnoreCase) (case-insensitive
// compare via $strcasecmp against 0).
func translateStringEquals(n expr.MethodCall) (any, error) {
	if n.Receiver == nil || len(n.Args) == 0 || len(n.Args) > 2 {
		return nil, unsupportedExpr(n, "")
	}
	s, err := translateValue(n.Receiver)
	if err != nil {
		return nil, err
	}
	t, err := translateValue(n.Args[0])
	if err != nil {
		return nil, err
	}

	if len(n.Args) == 2 {
		mode, ok := n.Args[1].(expr.Constant)
		if !ok {
			return nil, unsupportedExpr(n, "")
		}
		switch mode.Value {
		case "OrdinalIgnoreCase":
			return bson.D{{Key: "$eq", Value: bson.A{
				bson.D{{Key: "$strcasecmp", Value: bson.A{s, t}}},
				0,
			}}}, nil
		case "Ordinal":
			return bson.D{{Key: "$eq", Value: bson.A{s, t}}}, nil
		default:
			return nil, unsupportedExpr(n, "")
		}
	}

	return bson.D{{Key: "$eq", Value: bson.A{s, t}}}, nil
}
