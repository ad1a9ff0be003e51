package utils

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/vitwit/chainrpc/types"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// ValidateStruct runs the struct tag validators over v.
func ValidateStruct(v any) error {
	return validate.Struct(v)
}

// ParseConfig parses and validates a Config from JSON
func ParseConfig(data []byte) (*types.Config, error) {
	var config types.Config

	if err := json.Unmarshal(data, &config); err != nil {
		return nil, &types.Error{
			Code:    types.ErrInvalidArgument,
			Message: fmt.Sprintf("failed to parse config: %v", err),
			Err:     err,
		}
	}

	if err := validate.Struct(&config); err != nil {
		return nil, &types.Error{
			Code:    types.ErrInvalidArgument,
			Message: fmt.Sprintf("validation failed: %v", err),
			Err:     err,
		}
	}

	return &config, nil
}
