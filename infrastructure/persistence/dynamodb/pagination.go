package dynamodb

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	pkgerrors "flopods-backend/pkg/errors"
)

// encodeCursor turns a LastEvaluatedKey into an opaque page token. Only
// string key attributes occur in this table's keys.
func encodeCursor(key map[string]types.AttributeValue) (string, error) {
	if len(key) == 0 {
		return "", nil
	}

	plain := make(map[string]string, len(key))
	for name, av := range key {
		s, ok := av.(*types.AttributeValueMemberS)
		if !ok {
			return "", fmt.Errorf("unsupported key attribute type for %q", name)
		}
		plain[name] = s.Value
	}

	raw, err := json.Marshal(plain)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// decodeCursor turns a page token back into an ExclusiveStartKey
func decodeCursor(cursor string) (map[string]types.AttributeValue, error) {
	if cursor == "" {
		return nil, nil
	}

	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, pkgerrors.NewValidationError("malformed page cursor")
	}

	var plain map[string]string
	if err := json.Unmarshal(raw, &plain); err != nil {
		return nil, pkgerrors.NewValidationError("malformed page cursor")
	}

	key := make(map[string]types.AttributeValue, len(plain))
	for name, value := range plain {
		key[name] = &types.AttributeValueMemberS{Value: value}
	}
	return key, nil
}
