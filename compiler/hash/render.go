package hash

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/chazu/zed/compiler"
)

// ---------------------------------------------------------------------------
// Canonical textual rendering of AST nodes.
//
// The rendering is a stable s-expression form: parenthesized tag plus
// child renderings, with literals printed in a fixed format. Source
// offsets are deliberately excluded so that two parses of the same
// source — or the same function moved within a file — render
// identically. The renderer is the hashing input; changing it changes
// every function digest, which invalidates VM closure caches.
// ---------------------------------------------------------------------------

// Render produces the canonical textual rendering of a node.
func Render(node compiler.Node) string {
	var sb strings.Builder
	render(&sb, node)
	return sb.String()
}

func render(sb *strings.Builder, node compiler.Node) {
	switch n := node.(type) {
	case *compiler.BoolLit:
		if n.Value {
			sb.WriteString("(bool t)")
		} else {
			sb.WriteString("(bool f)")
		}

	case *compiler.NilLit:
		sb.WriteString("(nil)")

	case *compiler.IntLit:
		fmt.Fprintf(sb, "(int %d)", n.Value)

	case *compiler.UintLit:
		fmt.Fprintf(sb, "(uint %d)", n.Value)

	case *compiler.FloatLit:
		// strconv with 'x' renders the exact bit pattern.
		fmt.Fprintf(sb, "(float %s)", strconv.FormatFloat(n.Value, 'x', -1, 64))

	case *compiler.StringLit:
		sb.WriteString("(str")
		for _, seg := range n.Segments {
			if seg.Interp == nil {
				fmt.Fprintf(sb, " (lit %q)", seg.Lit)
				continue
			}
			fmt.Fprintf(sb, " (interp %q", seg.Format)
			renderList(sb, seg.Interp)
			sb.WriteString(")")
		}
		sb.WriteString(")")

	case *compiler.Ident:
		fmt.Fprintf(sb, "(id %s)", n.Name)

	case *compiler.Global:
		fmt.Fprintf(sb, "(global %s)", n.Tag)

	case *compiler.Define:
		fmt.Fprintf(sb, "(let %s ", n.Name.Name)
		render(sb, n.Value)
		sb.WriteString(")")

	case *compiler.Assign:
		fmt.Fprintf(sb, "(assign %s ", n.Combo)
		render(sb, n.Target)
		sb.WriteString(" ")
		render(sb, n.Value)
		sb.WriteString(")")

	case *compiler.Infix:
		fmt.Fprintf(sb, "(infix %s ", n.Op)
		render(sb, n.Left)
		sb.WriteString(" ")
		render(sb, n.Right)
		sb.WriteString(")")

	case *compiler.Prefix:
		fmt.Fprintf(sb, "(prefix %s ", n.Op)
		render(sb, n.Operand)
		sb.WriteString(")")

	case *compiler.Conditional:
		sb.WriteString("(if ")
		render(sb, n.Cond)
		sb.WriteString(" (then")
		renderList(sb, n.Then)
		sb.WriteString(") (else")
		renderList(sb, n.Else)
		sb.WriteString("))")

	case *compiler.Loop:
		if n.IsDo {
			sb.WriteString("(do-while ")
		} else {
			sb.WriteString("(while ")
		}
		render(sb, n.Cond)
		sb.WriteString(" (body")
		renderList(sb, n.Body)
		sb.WriteString("))")

	case *compiler.LoopBreak:
		sb.WriteString("(break)")

	case *compiler.LoopContinue:
		sb.WriteString("(continue)")

	case *compiler.FuncLit:
		fmt.Fprintf(sb, "(fn %q (params", n.Name)
		for _, param := range n.Params {
			sb.WriteString(" " + param)
		}
		sb.WriteString(") (body")
		renderList(sb, n.Body)
		sb.WriteString("))")

	case *compiler.FuncReturn:
		sb.WriteString("(return")
		if n.Value != nil {
			sb.WriteString(" ")
			render(sb, n.Value)
		}
		sb.WriteString(")")

	case *compiler.Call:
		sb.WriteString("(call ")
		render(sb, n.Callee)
		renderList(sb, n.Args)
		sb.WriteString(")")

	case *compiler.ListLit:
		sb.WriteString("(list")
		renderList(sb, n.Elems)
		sb.WriteString(")")

	case *compiler.MapLit:
		sb.WriteString("(map")
		for _, e := range n.Entries {
			sb.WriteString(" ")
			render(sb, e.Key)
			sb.WriteString(" ")
			render(sb, e.Value)
		}
		sb.WriteString(")")

	case *compiler.RangeLit:
		if n.Inclusive {
			sb.WriteString("(range-incl")
		} else {
			sb.WriteString("(range")
		}
		renderOpt(sb, n.From)
		renderOpt(sb, n.To)
		sb.WriteString(")")

	case *compiler.Subscript:
		sb.WriteString("(subscript ")
		render(sb, n.Container)
		sb.WriteString(" ")
		render(sb, n.Index)
		sb.WriteString(")")

	case *compiler.RecRange:
		fmt.Fprintf(sb, "(rec-range %d %t", n.ID, n.Exclusive)
		renderOpt(sb, n.From)
		renderOpt(sb, n.To)
		sb.WriteString(" (action")
		renderList(sb, n.Action)
		sb.WriteString("))")

	case *compiler.Redir:
		fmt.Fprintf(sb, "(redir %t ", n.Clobber)
		render(sb, n.Expr)
		sb.WriteString(" ")
		render(sb, n.Target)
		sb.WriteString(")")

	case *compiler.StmtEnd:
		sb.WriteString("(end)")

	default:
		fmt.Fprintf(sb, "(?%T)", node)
	}
}

func renderList(sb *strings.Builder, nodes []compiler.Node) {
	for _, n := range nodes {
		sb.WriteString(" ")
		render(sb, n)
	}
}

func renderOpt(sb *strings.Builder, node compiler.Node) {
	if node == nil {
		sb.WriteString(" _")
		return
	}
	sb.WriteString(" ")
	render(sb, node)
}
