package request

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"

	"github.com/go-playground/validator/v10"

	"github.com/miketropi/wp-backup/internal/model"
)

var validate = validator.New()

var folderRegex = regexp.MustCompile(`^[A-Za-z0-9_-][A-Za-z0-9._-]*$`)

func init() {
	validate.RegisterValidation("backup_type", func(fl validator.FieldLevel) bool {
		return model.IsValidBackupType(model.BackupType(fl.Field().String()))
	})
}

func Decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}
	return nil
}

// DecodeOptional is Decode for endpoints whose body may be omitted. An
// empty body leaves v untouched.
func DecodeOptional(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}
	return nil
}

// DecodeObject reads a JSON object body without binding it to a type.
func DecodeObject(r *http.Request) (map[string]any, error) {
	var m map[string]any
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if m == nil {
		return nil, fmt.Errorf("invalid JSON: expected an object")
	}
	return m, nil
}

// Bind decodes an already parsed object into v and validates it.
func Bind(m map[string]any, v any) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}
	return nil
}

// RequireFolder returns s when it names a backup folder.
func RequireFolder(s string) (string, error) {
	if s == "" {
		return "", fmt.Errorf("missing required folder")
	}
	if !folderRegex.MatchString(s) {
		return "", fmt.Errorf("invalid folder %q", s)
	}
	return s, nil
}
