// Package snippet compiles externally supplied source fragments against a
// restricted import set and executes them on the host thread. Compilation
// happens before any bridge dispatch, so code that does not compile has no
// side effects. The import whitelist is the only isolation layer; the shared
// token remains the real perimeter.
package snippet

import (
	"bytes"
	"context"
	"fmt"
	"go/parser"
	"go/token"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/hostbridge/bridgectl/internal/protocol"
)

// allowedImports is the fixed set of importable packages. Everything
// touching the OS, network, or process boundary stays out.
var allowedImports = map[string]bool{
	"bytes":         true,
	"encoding/json": true,
	"errors":        true,
	"fmt":           true,
	"math":          true,
	"math/rand":     true,
	"regexp":        true,
	"sort":          true,
	"strconv":       true,
	"strings":       true,
	"time":          true,
	"unicode":       true,
	"unicode/utf8":  true,
}

// Engine compiles and runs snippets.
type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

// Compiled is one snippet ready for the bridge. It is single-use: the
// interpreter and its captured output buffer belong to one execution.
type Compiled struct {
	interp *interp.Interpreter
	prog   *interp.Program
	stdout *bytes.Buffer
}

// Compile validates imports and compiles src. On failure it returns nil and
// at least one diagnostic; nothing is executed.
//
// Fragments without a package clause come in two shapes: a set of top-level
// declarations (wrapped into a main package so main runs), or bare
// statements and expressions (compiled as-is in the interpreter's statement
// form, so an expression's value survives into the result).
func (e *Engine) Compile(src string) (compiled *Compiled, diags []string) {
	defer func() {
		if r := recover(); r != nil {
			compiled = nil
			diags = []string{fmt.Sprintf("internal compiler error: %v", r)}
		}
	}()

	if strings.TrimSpace(src) == "" {
		return nil, []string{"empty snippet"}
	}

	program := src
	if !hasPackageClause(src) {
		wrapped := "package main\n\n" + src
		if errs := checkImports(wrapped); len(errs) > 0 {
			return nil, errs
		}
		if parsesAsFile(wrapped) {
			program = wrapped
		}
	} else if errs := checkImports(src); len(errs) > 0 {
		return nil, errs
	}

	stdout := &bytes.Buffer{}
	i := interp.New(interp.Options{Stdout: stdout, Stderr: stdout})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, []string{fmt.Sprintf("interpreter init failed: %v", err)}
	}
	prog, err := i.Compile(program)
	if err != nil {
		return nil, splitDiagnostics(err)
	}
	return &Compiled{interp: i, prog: prog, stdout: stdout}, nil
}

// Run executes the compiled snippet on the calling goroutine; the bridge
// hands it to the host thread. Output is the captured program output plus a
// return-value line when the snippet evaluates to one.
func (c *Compiled) Run(ctx context.Context) protocol.WorkResult {
	v, err := c.interp.ExecuteWithContext(ctx, c.prog)
	output := c.stdout.String()
	if err != nil {
		result := protocol.Failuref("snippet execution failed: %v", err)
		result.Output = output
		return result
	}
	if v.IsValid() && v.Kind().String() != "invalid" {
		if line := fmt.Sprintf("%v", v); line != "" && line != "<invalid reflect.Value>" {
			if output != "" && !strings.HasSuffix(output, "\n") {
				output += "\n"
			}
			output += "return: " + line
		}
	}
	return protocol.OK(output)
}

func hasPackageClause(src string) bool {
	for _, line := range strings.Split(strings.TrimSpace(src), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		return strings.HasPrefix(line, "package ")
	}
	return false
}

// parsesAsFile reports whether src is a complete Go file, which separates
// declaration fragments from statement/expression fragments.
func parsesAsFile(src string) bool {
	fset := token.NewFileSet()
	_, err := parser.ParseFile(fset, "snippet.go", src, 0)
	return err == nil
}

// checkImports parses the import set only and rejects anything outside the
// whitelist.
func checkImports(src string) []string {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "snippet.go", src, parser.ImportsOnly)
	if err != nil {
		return splitDiagnostics(err)
	}
	var errs []string
	for _, imp := range file.Imports {
		path := strings.Trim(imp.Path.Value, `"`)
		if !allowedImports[path] {
			errs = append(errs, fmt.Sprintf("import %q is not permitted", path))
		}
	}
	return errs
}

// splitDiagnostics turns a (possibly multi-line) compile error into one
// diagnostic string per line.
func splitDiagnostics(err error) []string {
	var out []string
	for _, line := range strings.Split(err.Error(), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	if len(out) == 0 {
		out = []string{"compilation failed"}
	}
	return out
}
