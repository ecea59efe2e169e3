package snapshots

import (
	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/cockroachdb/errors"
)

// OperationType is the kind of change a stream record describes.
type OperationType string

const (
	OperationInsert OperationType = "INSERT"
	OperationModify OperationType = "MODIFY"
	OperationRemove OperationType = "REMOVE"
)

// Request asks for a search session to be hydrated: the hydration function
// runs the search described by Params against Index and stores the
// resulting snapshot under the same ID.
type Request struct {
	ID     string         `dynamodbav:"pk"`
	Kind   string         `dynamodbav:"sk"`
	Index  string         `dynamodbav:"index"`
	Params map[string]any `dynamodbav:"params"`
}

// UnmarshalRequest converts an item image into a Request.
func UnmarshalRequest(image map[string]types.AttributeValue) (Request, error) {
	var req Request
	if err := attributevalue.UnmarshalMap(image, &req); err != nil {
		return Request{}, err
	}
	return req, nil
}

// RequestFromStream converts the NewImage of a stream record into a Request.
func RequestFromStream(image map[string]events.DynamoDBAttributeValue) (Request, error) {
	item, err := FromStreamImage(image)
	if err != nil {
		return Request{}, err
	}
	return UnmarshalRequest(item)
}

// FromStreamImage converts a stream image, as decoded by the Lambda runtime,
// into SDK attribute values.
func FromStreamImage(image map[string]events.DynamoDBAttributeValue) (map[string]types.AttributeValue, error) {
	out := make(map[string]types.AttributeValue, len(image))
	for name, v := range image {
		av, err := fromStreamValue(v)
		if err != nil {
			return nil, errors.Wrapf(err, "attribute %q", name)
		}
		out[name] = av
	}
	return out, nil
}

func fromStreamValue(v events.DynamoDBAttributeValue) (types.AttributeValue, error) {
	switch v.DataType() {
	case events.DataTypeString:
		return &types.AttributeValueMemberS{Value: v.String()}, nil
	case events.DataTypeNumber:
		return &types.AttributeValueMemberN{Value: v.Number()}, nil
	case events.DataTypeBoolean:
		return &types.AttributeValueMemberBOOL{Value: v.Boolean()}, nil
	case events.DataTypeBinary:
		return &types.AttributeValueMemberB{Value: v.Binary()}, nil
	case events.DataTypeNull:
		return &types.AttributeValueMemberNULL{Value: true}, nil
	case events.DataTypeStringSet:
		return &types.AttributeValueMemberSS{Value: v.StringSet()}, nil
	case events.DataTypeNumberSet:
		return &types.AttributeValueMemberNS{Value: v.NumberSet()}, nil
	case events.DataTypeBinarySet:
		return &types.AttributeValueMemberBS{Value: v.BinarySet()}, nil
	case events.DataTypeList:
		list := v.List()
		out := make([]types.AttributeValue, 0, len(list))
		for i, item := range list {
			av, err := fromStreamValue(item)
			if err != nil {
				return nil, errors.Wrapf(err, "list item %d", i)
			}
			out = append(out, av)
		}
		return &types.AttributeValueMemberL{Value: out}, nil
	case events.DataTypeMap:
		m, err := FromStreamImage(v.Map())
		if err != nil {
			return nil, err
		}
		return &types.AttributeValueMemberM{Value: m}, nil
	default:
		return nil, errors.Newf("unsupported attribute data type %v", v.DataType())
	}
}
