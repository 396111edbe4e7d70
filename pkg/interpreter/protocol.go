package interpreter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aretw0/arepl/pkg/domain"
)

// Line prefixes used by the backend on stdout. Anything else on stdout is
// plain print output from the user's program.
const (
	ResultIdentifier = "6q3co7"
	PrintIdentifier  = "6q3co6"
)

// wireResult is the JSON document following ResultIdentifier.
type wireResult struct {
	UserErrorMsg  string          `json:"userErrorMsg"`
	UserVariables json.RawMessage `json:"userVariables"`
	Print         string          `json:"print"`
	ExecTime      float64         `json:"execTime"` // seconds
	InternalError string          `json:"internalError"`
	Caller        string          `json:"caller"`
	Lineno        int             `json:"lineno"`
	Done          *bool           `json:"done"`
}

// EncodeRequest serializes req as one newline-terminated JSON line.
func EncodeRequest(req domain.EvaluationRequest) ([]byte, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return append(data, '\n'), nil
}

// ParseLine classifies one stdout line. The returned outcome has no Seq; the
// supervisor assigns it. Errors wrap domain.ErrCommunication.
func ParseLine(line string) (domain.Outcome, error) {
	switch {
	case strings.HasPrefix(line, ResultIdentifier):
		res, err := decodeResult(strings.TrimPrefix(line, ResultIdentifier))
		if err != nil {
			return domain.Outcome{}, err
		}
		return domain.Outcome{Kind: domain.OutcomeResult, Result: res}, nil

	case strings.HasPrefix(line, PrintIdentifier):
		var text string
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, PrintIdentifier)), &text); err != nil {
			return domain.Outcome{}, fmt.Errorf("%w: bad print chunk: %v", domain.ErrCommunication, err)
		}
		return domain.Outcome{Kind: domain.OutcomePrint, Text: text}, nil

	default:
		return domain.Outcome{Kind: domain.OutcomePrint, Text: line + "\n"}, nil
	}
}

func decodeResult(payload string) (*domain.Result, error) {
	var wr wireResult
	if err := json.Unmarshal([]byte(payload), &wr); err != nil {
		return nil, fmt.Errorf("%w: bad result: %v", domain.ErrCommunication, err)
	}

	vars, err := decodeVariables(wr.UserVariables)
	if err != nil {
		return nil, err
	}

	done := true
	if wr.Done != nil {
		done = *wr.Done
	}

	return &domain.Result{
		Variables:     vars,
		Print:         wr.Print,
		UserError:     wr.UserErrorMsg,
		InternalError: wr.InternalError,
		Elapsed:       time.Duration(wr.ExecTime * float64(time.Second)),
		Done:          done,
		Caller:        wr.Caller,
		Line:          wr.Lineno,
	}, nil
}

// decodeVariables walks the JSON object token by token so the order the
// backend wrote the names in survives.
func decodeVariables(raw json.RawMessage) (domain.Variables, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: bad variables: %v", domain.ErrCommunication, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("%w: variables must be an object", domain.ErrCommunication)
	}

	var vars domain.Variables
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: bad variable name: %v", domain.ErrCommunication, err)
		}
		name, _ := keyTok.(string)

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("%w: bad value for %q: %v", domain.ErrCommunication, name, err)
		}
		vars = append(vars, domain.Variable{Name: name, Value: renderValue(value)})
	}
	return vars, nil
}

// renderValue quotes strings and shows everything else as compact JSON.
func renderValue(value json.RawMessage) string {
	var s string
	if err := json.Unmarshal(value, &s); err == nil {
		return fmt.Sprintf("%q", s)
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, value); err != nil {
		return string(value)
	}
	return buf.String()
}
