package rpc

import (
	"strconv"
	"strings"
)

// DefaultNamespace is the page global that carries the bridge.
const DefaultNamespace = "glaze"

// Definition is one defined function.
type Definition struct {
	Name   string
	Schema Schema
}

// Declarations renders TypeScript declarations of defs as overloads of the
// page bridge under ns. Binary functions are declared on callBinary.
func Declarations(ns string, defs []Definition) string {
	if ns == "" {
		ns = DefaultNamespace
	}
	var b strings.Builder
	b.WriteString("// Generated by glazejs. Do not edit.\n\n")
	b.WriteString("declare global {\n")
	b.WriteString("  interface Window {\n")
	b.WriteString("    " + ns + ": {\n")

	for _, d := range defs {
		if d.Schema.Binary() {
			continue
		}
		result := "Promise<" + d.Schema.Result().TS() + ">"
		doc(&b, d.Schema.Params, result)
		params := []string{"name: " + strconv.Quote(d.Name)}
		for i, p := range d.Schema.Params {
			params = append(params, param(p, i))
		}
		if d.Schema.Params == nil {
			params = append(params, "...args: any[]")
		}
		b.WriteString("      call(" + strings.Join(params, ", ") + "): " + result + ";\n")
	}

	for _, d := range defs {
		if !d.Schema.Binary() {
			continue
		}
		result := "Promise<any>"
		if d.Schema.Result().Binary() {
			result = "Promise<Uint8Array>"
		}
		b.WriteString("      callBinary(name: " + strconv.Quote(d.Name) + ", data: Uint8Array | ArrayBuffer): " + result + ";\n")
	}

	b.WriteString("      postMessage(message: string): boolean;\n")
	b.WriteString("    };\n")
	b.WriteString("  }\n")
	b.WriteString("}\n\n")
	b.WriteString("export {};\n")
	return b.String()
}

func param(p Type, i int) string {
	name := paramLabel(p, i)
	if p.Rest {
		return "..." + name + ": " + ArrayOf(p).TS()
	}
	return name + optionalMark(p) + ": " + p.TS()
}

func doc(b *strings.Builder, params []Type, result string) {
	if len(params) == 0 {
		return
	}
	b.WriteString("      /**\n")
	for i, p := range params {
		line := "       * @param " + paramLabel(p, i) + " " + p.TS()
		if p.Optional {
			line += " (optional)"
		}
		b.WriteString(line + "\n")
	}
	b.WriteString("       * @returns " + result + "\n")
	b.WriteString("       */\n")
}
