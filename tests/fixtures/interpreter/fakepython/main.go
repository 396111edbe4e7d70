// Command fakepython speaks the arepl backend protocol without Python.
//
// Each line of evalCode is a statement:
//
//	name = value   assign a variable
//	print text     emit a print chunk
//	raw text       write an unprefixed stdout line
//	warn text      write to stderr
//	sleep ms       block
//	crash code     exit the process
//	raise T: msg   fail the run with a user error
//	garbage        write a malformed result line
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"
)

type request struct {
	EvalCode             string `json:"evalCode"`
	SavedCode            string `json:"savedCode"`
	UsePreviousVariables bool   `json:"usePreviousVariables"`
	UseSavePoint         bool   `json:"useSavePoint"`
}

type namespace struct {
	names  []string
	values map[string]string
}

func newNamespace() *namespace {
	return &namespace{values: map[string]string{}}
}

func (n *namespace) set(name, value string) {
	if _, ok := n.values[name]; !ok {
		n.names = append(n.names, name)
	}
	n.values[name] = value
}

func (n *namespace) clone() *namespace {
	c := newNamespace()
	for _, name := range n.names {
		c.set(name, n.values[name])
	}
	return c
}

func (n *namespace) json() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, name := range n.names {
		if i > 0 {
			b.WriteByte(',')
		}
		key, _ := json.Marshal(name)
		b.Write(key)
		b.WriteByte(':')
		b.WriteString(n.values[name])
	}
	b.WriteByte('}')
	return b.String()
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		v := os.Getenv("FAKEPYTHON_VERSION")
		if v == "" {
			v = "3.11.4"
		}
		fmt.Printf("Python %s\n", v)
		return
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		os.Exit(0)
	}()

	out := bufio.NewWriter(os.Stdout)
	savedRuns := 0
	var previous, snapshot *namespace

	in := bufio.NewScanner(os.Stdin)
	in.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for in.Scan() {
		var req request
		if err := json.Unmarshal(in.Bytes(), &req); err != nil {
			continue
		}
		start := time.Now()

		var ns *namespace
		userErr := ""
		switch {
		case req.SavedCode != "":
			savedRuns++
			ns = newNamespace()
			userErr = run(req.SavedCode, ns, out)
			if userErr == "" {
				snapshot = ns.clone()
			}
		case req.UseSavePoint && snapshot != nil:
			ns = snapshot.clone()
		case req.UsePreviousVariables && previous != nil:
			ns = previous
		default:
			ns = newNamespace()
		}
		if userErr == "" {
			userErr = run(req.EvalCode, ns, out)
		}
		ns.set("__saved_runs", strconv.Itoa(savedRuns))
		previous = ns

		msg, _ := json.Marshal(userErr)
		fmt.Fprintf(out, "6q3co7{\"userErrorMsg\":%s,\"userVariables\":%s,\"execTime\":%f,\"done\":true}\n",
			msg, ns.json(), time.Since(start).Seconds())
		out.Flush()
	}
}

func run(code string, ns *namespace, out *bufio.Writer) string {
	for _, line := range strings.Split(code, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		verb, rest, _ := strings.Cut(line, " ")
		switch verb {
		case "print":
			chunk, _ := json.Marshal(rest + "\n")
			fmt.Fprintf(out, "6q3co6%s\n", chunk)
			out.Flush()
		case "raw":
			fmt.Fprintln(out, rest)
			out.Flush()
		case "warn":
			fmt.Fprintln(os.Stderr, rest)
		case "sleep":
			ms, _ := strconv.Atoi(rest)
			time.Sleep(time.Duration(ms) * time.Millisecond)
		case "crash":
			code, _ := strconv.Atoi(rest)
			out.Flush()
			os.Exit(code)
		case "raise":
			return "Traceback (most recent call last):\n" + rest + "\n"
		case "garbage":
			fmt.Fprintln(out, "6q3co7{not json")
			out.Flush()
		default:
			name, value, ok := strings.Cut(line, "=")
			if !ok {
				return "NameError: name '" + line + "' is not defined\n"
			}
			value = strings.TrimSpace(value)
			if _, err := strconv.ParseFloat(value, 64); err != nil {
				quoted, _ := json.Marshal(strings.Trim(value, `"'`))
				value = string(quoted)
			}
			ns.set(strings.TrimSpace(name), value)
		}
	}
	return ""
}
