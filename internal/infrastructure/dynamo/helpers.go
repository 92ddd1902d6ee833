package dynamo

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// strKey builds a DynamoDB primary key map with a single string attribute.
func strKey(name, value string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		name: &types.AttributeValueMemberS{Value: value},
	}
}

// numKey builds a DynamoDB primary key map with a single numeric attribute.
func numKey(name string, value int64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		name: &types.AttributeValueMemberN{Value: strconv.FormatInt(value, 10)},
	}
}

// updateExpr is a ready-to-send SET/REMOVE expression with its placeholders.
type updateExpr struct {
	Expr   string
	Names  map[string]string
	Values map[string]types.AttributeValue
}

// buildUpdateExpr converts a map of field->value into a DynamoDB SET expression.
// Keys are emitted in sorted order so the expression is deterministic.
// Fields listed in remove are appended as a REMOVE clause.
func buildUpdateExpr(updates map[string]interface{}, remove ...string) (*updateExpr, error) {
	if len(updates) == 0 && len(remove) == 0 {
		return nil, fmt.Errorf("no fields to update")
	}
	keys := make([]string, 0, len(updates))
	for k := range updates {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ue := &updateExpr{
		Names:  make(map[string]string),
		Values: make(map[string]types.AttributeValue),
	}
	i := 0
	if len(keys) > 0 {
		ue.Expr = "SET "
		for _, k := range keys {
			nameKey := fmt.Sprintf("#f%d", i)
			valueKey := fmt.Sprintf(":v%d", i)
			av, err := attributevalue.Marshal(updates[k])
			if err != nil {
				return nil, fmt.Errorf("marshal field %s: %w", k, err)
			}
			ue.Names[nameKey] = k
			ue.Values[valueKey] = av
			if i > 0 {
				ue.Expr += ", "
			}
			ue.Expr += fmt.Sprintf("%s = %s", nameKey, valueKey)
			i++
		}
	}
	if len(remove) > 0 {
		if ue.Expr != "" {
			ue.Expr += " "
		}
		ue.Expr += "REMOVE "
		for j, k := range remove {
			nameKey := fmt.Sprintf("#f%d", i)
			ue.Names[nameKey] = k
			if j > 0 {
				ue.Expr += ", "
			}
			ue.Expr += nameKey
			i++
		}
	}
	if len(ue.Values) == 0 {
		ue.Values = nil
	}
	return ue, nil
}
