// Package out renders command results to stdout as a JSON envelope or as
// plain key=value lines.
package out

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	clierr "github.com/ggonzalez94/defi-keeper/internal/errors"
	"github.com/ggonzalez94/defi-keeper/internal/model"
)

// Success wraps data in a v1 envelope with a fresh request id.
func Success(command string, cycle int, data any, warnings []string) model.Envelope {
	return model.Envelope{
		Version:  model.EnvelopeVersion,
		Success:  true,
		Data:     data,
		Warnings: warnings,
		Meta:     meta(command, cycle),
	}
}

// Failure builds the envelope for a command that stopped on err.
func Failure(command string, cycle int, err error) model.Envelope {
	code := clierr.CodeOf(err)
	return model.Envelope{
		Version: model.EnvelopeVersion,
		Success: false,
		Error: &model.ErrorBody{
			Code:    int(code),
			Type:    clierr.TypeName(code),
			Message: err.Error(),
		},
		Meta: meta(command, cycle),
	}
}

func meta(command string, cycle int) model.EnvelopeMeta {
	return model.EnvelopeMeta{
		RequestID: uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Command:   command,
		Cycle:     cycle,
	}
}

// Render writes env in mode "json" (indented envelope) or "plain".
func Render(w io.Writer, env model.Envelope, mode string) error {
	if mode == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(env)
	}

	head := map[string]any{
		"success": env.Success,
		"command": env.Meta.Command,
	}
	if env.Meta.Cycle > 0 {
		head["cycle"] = env.Meta.Cycle
	}
	if env.Error != nil {
		head["error"] = env.Error.Type
		head["message"] = env.Error.Message
	}
	if _, err := fmt.Fprintln(w, toLine(head)); err != nil {
		return err
	}
	for _, warning := range env.Warnings {
		if _, err := fmt.Fprintf(w, "warning=%q\n", warning); err != nil {
			return err
		}
	}
	if env.Data == nil {
		return nil
	}
	return renderPlain(w, normalizeValue(env.Data))
}

// renderPlain prints scalar fields of an object on one line and each element
// of its list fields on its own indented line.
func renderPlain(w io.Writer, data any) error {
	switch t := data.(type) {
	case []any:
		for _, item := range t {
			if _, err := fmt.Fprintln(w, toLine(item)); err != nil {
				return err
			}
		}
		return nil
	case map[string]any:
		scalars := map[string]any{}
		var lists []string
		for k, v := range t {
			if _, ok := v.([]any); ok {
				lists = append(lists, k)
				continue
			}
			scalars[k] = v
		}
		if len(scalars) > 0 {
			if _, err := fmt.Fprintln(w, toLine(scalars)); err != nil {
				return err
			}
		}
		sort.Strings(lists)
		for _, k := range lists {
			for _, item := range t[k].([]any) {
				if _, err := fmt.Fprintf(w, "  %s: %s\n", k, toLine(item)); err != nil {
					return err
				}
			}
		}
		return nil
	default:
		_, err := fmt.Fprintln(w, toLine(data))
		return err
	}
}

func normalizeValue(v any) any {
	buf, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(buf, &out); err != nil {
		return v
	}
	return out
}

func toLine(v any) string {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+"="+scalar(t[k]))
		}
		return strings.Join(parts, " ")
	default:
		return scalar(v)
	}
}

func scalar(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		if strings.ContainsAny(t, " \t\"=") {
			return fmt.Sprintf("%q", t)
		}
		return t
	case float64, bool:
		return fmt.Sprint(t)
	default:
		buf, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(buf)
	}
}
