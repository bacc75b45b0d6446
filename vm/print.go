package vm

import (
	"strconv"
	"strings"

	"github.com/chazu/tuuvm/tuple"
)

const maxPrintDepth = 4

// PrintString renders v for traces, the CLI and the printString
// primitive. It never calls user code.
func (ctx *Context) PrintString(v tuple.Tuple) string {
	var sb strings.Builder
	ctx.printOn(&sb, v, 0)
	return sb.String()
}

func (ctx *Context) printOn(sb *strings.Builder, v tuple.Tuple, depth int) {
	switch v {
	case tuple.Null:
		sb.WriteString("nil")
		return
	case tuple.True:
		sb.WriteString("true")
		return
	case tuple.False:
		sb.WriteString("false")
		return
	case tuple.Void:
		sb.WriteString("void")
		return
	}
	if v.IsTrivial() {
		sb.WriteString(v.String())
		return
	}
	if x, ok := ctx.IntegerValue(v); ok {
		sb.WriteString(x.String())
		return
	}
	if f, ok := ctx.floatValue(v); ok {
		sb.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
		return
	}
	switch v.Tag() {
	case tuple.TagChar8, tuple.TagChar16, tuple.TagChar32:
		sb.WriteByte('$')
		sb.WriteRune(rune(v.Payload()))
		return
	}
	if !v.IsPointer() {
		sb.WriteString(v.String())
		return
	}

	h := ctx.heap
	typ := ctx.TypeOf(v)
	switch {
	case typ == ctx.types[SymbolType]:
		sb.WriteByte('#')
		sb.WriteString(ctx.StringValue(v))
	case typ == ctx.types[StringType]:
		sb.WriteByte('\'')
		sb.WriteString(strings.ReplaceAll(ctx.StringValue(v), "'", "''"))
		sb.WriteByte('\'')
	case typ == ctx.types[Char32Type]:
		sb.WriteByte('$')
		sb.WriteRune(rune(ctx.DecodeChar32(v)))
	case ctx.IsType(v):
		sb.WriteString(ctx.TypeName(v))
	case ctx.IsException(v):
		sb.WriteString(ctx.TypeName(typ))
		if msg := ctx.MessageText(v); msg != "" {
			sb.WriteString(": ")
			sb.WriteString(msg)
		}
	case typ == ctx.types[FunctionType]:
		sb.WriteString("a Function(")
		sb.WriteString(ctx.FunctionName(v))
		sb.WriteByte(')')
	case depth >= maxPrintDepth:
		sb.WriteString("...")
	case ctx.IsSubtypeOf(typ, ctx.types[AssociationType]):
		ctx.printOn(sb, h.Slot(v, AssociationKey), depth+1)
		sb.WriteString(" -> ")
		ctx.printOn(sb, h.Slot(v, AssociationValue), depth+1)
	case typ == ctx.types[ArrayType] || typ == ctx.types[WeakArrayType]:
		sb.WriteString("#(")
		for i := range h.SlotCount(v) {
			if i > 0 {
				sb.WriteByte(' ')
			}
			ctx.printOn(sb, h.Slot(v, i), depth+1)
		}
		sb.WriteByte(')')
	case typ == ctx.types[DictionaryType]:
		sb.WriteString("a Dictionary(")
		first := true
		ctx.DictionaryEach(v, func(key, value tuple.Tuple) {
			if !first {
				sb.WriteByte(' ')
			}
			first = false
			ctx.printOn(sb, key, depth+1)
			sb.WriteString("->")
			ctx.printOn(sb, value, depth+1)
		})
		sb.WriteByte(')')
	case typ == ctx.types[BoxType]:
		sb.WriteString("a Box(")
		ctx.printOn(sb, h.Slot(v, BoxValue), depth+1)
		sb.WriteByte(')')
	default:
		name := ctx.TypeName(typ)
		sb.WriteString(article(name))
		sb.WriteByte(' ')
		sb.WriteString(name)
	}
}

func (ctx *Context) floatValue(v tuple.Tuple) (float64, bool) {
	if !ctx.IsFloat(v) {
		return 0, false
	}
	return ctx.TryDecodeFloat64(v)
}

func article(name string) string {
	if name != "" && strings.ContainsRune("AEIOUaeiou", rune(name[0])) {
		return "an"
	}
	return "a"
}
